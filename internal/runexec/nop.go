package runexec

import "context"

// NopModelClient is a test double that replies with a fixed response and
// never requests tool calls, used by package tests that exercise the
// executor's graph loop without a live model provider.
type NopModelClient struct {
	Response string
}

// Chat implements ModelClient by returning Response verbatim, optionally
// streaming it as a single token chunk.
func (n *NopModelClient) Chat(ctx context.Context, req ChatRequest, onToken StreamHandler) (ChatResponse, error) {
	if req.StreamTokens && onToken != nil {
		onToken(n.Response)
	}
	return ChatResponse{Content: n.Response}, nil
}
