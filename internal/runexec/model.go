// Package runexec implements the Run Executor (C5): loads a thread's
// message history, walks a call_model/call_tools graph against a
// ModelClient, streams results over the Event Bus, and persists newly
// produced messages through C1.
package runexec

import (
	"context"
	"encoding/json"

	"github.com/orchcore/orchcore/internal/domain"
)

// ToolCallRequest is one tool invocation the model asked for.
type ToolCallRequest struct {
	ID        string
	ToolName  string
	Arguments json.RawMessage
}

// ChatRequest is the input to one ModelClient.Chat call.
type ChatRequest struct {
	Messages     []*domain.Message
	Model        string
	Temperature  float64
	ToolSchemas  []ToolSchema
	StreamTokens bool
}

// ToolSchema is the subset of a Tool the model needs to decide whether to
// call it.
type ToolSchema struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
}

// ChatResponse is the model's reply to one Chat call.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCallRequest
}

// StreamHandler receives token chunks as the model streams a response. It
// must not block; callers are expected to publish onto the Event Bus.
type StreamHandler func(chunk string)

// ModelClient is the narrow interface the Run Executor drives the LLM
// provider through (spec §1: "the LLM provider SDK itself is out of
// scope... called through a narrow ModelClient interface").
type ModelClient interface {
	Chat(ctx context.Context, req ChatRequest, onToken StreamHandler) (ChatResponse, error)
}
