// Package builtin provides the Tool Abstraction's built-in tools
// (get_current_time, echo), grounded on spec §4.4.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/orchcore/orchcore/internal/tools"
)

// schemaFor generates a JSON Schema for a parameter struct, letting each
// built-in's argument type double as its own schema source.
func schemaFor(v any) json.RawMessage {
	s := jsonschema.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// currentTimeArgs is get_current_time's (empty) parameter shape.
type currentTimeArgs struct{}

// echoArgs is echo's parameter shape.
type echoArgs struct {
	Text string `json:"text" jsonschema:"required,description=text to echo back"`
}

// Register adds every built-in tool to the given registry.
func Register(reg *tools.Registry) {
	reg.Register(&tools.Tool{
		Name:             "get_current_time",
		Description:      "Returns the current UTC time in RFC3339 format.",
		ParametersSchema: schemaFor(currentTimeArgs{}),
		Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	})

	reg.Register(&tools.Tool{
		Name:             "echo",
		Description:      "Echoes the given text back unchanged.",
		ParametersSchema: schemaFor(echoArgs{}),
		Invoke: func(ctx context.Context, args json.RawMessage) (string, error) {
			var a echoArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return "", fmt.Errorf("invalid echo arguments: %w", err)
			}
			return a.Text, nil
		},
	})
}
