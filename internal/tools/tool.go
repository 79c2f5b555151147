// Package tools implements the Tool Abstraction (C4): a uniform call
// interface over built-in tools and MCP-surfaced external tools.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is a single callable capability a Run Executor turn may invoke.
type Tool struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
	Invoke           func(ctx context.Context, args json.RawMessage) (string, error)
}
