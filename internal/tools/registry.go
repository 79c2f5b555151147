package tools

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/domain"
)

// Registry holds every known Tool and exposes list/get/invoke (spec §4.4).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry constructs an empty Registry. Built-ins are registered by the
// caller via Register (see internal/tools/builtin); MCP-backed tools are
// registered the same way once discovered from a connected MCP server.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a Tool. Idempotent by name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Unregister removes a Tool by name (used when an MCP server disconnects).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// List returns every tool whose name is present in allowed, or every
// registered tool if allowed is empty (spec §3 Agent.allowed_tools).
func (r *Registry) List(allowed []string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(allowed) == 0 {
		out := make([]*Tool, 0, len(r.tools))
		for _, t := range r.tools {
			out = append(out, t)
		}
		return out
	}

	out := make([]*Tool, 0, len(allowed))
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, domain.ErrNotFound)
	}
	return t, nil
}

// Call is one tool invocation request issued by the model in a turn.
type Call struct {
	ToolName   string
	ToolCallID string
	Args       []byte
}

// Result is the outcome of one Call; Err is non-nil on failure, but a
// failed Call never aborts the batch (spec §4.4: "a failing tool yields a
// tool message whose content is the error; the run continues").
type Result struct {
	ToolCallID string
	ToolName   string
	Content    string
	Err        error
}

// InvokeAll runs every Call concurrently with a per-call timeout, isolating
// failures per spec §4.4. Results preserve the input order.
func (r *Registry) InvokeAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = r.invokeOne(gctx, call)
			return nil
		})
	}
	_ = g.Wait() // invokeOne never returns an error itself; failures live in Result.Err

	return results
}

func (r *Registry) invokeOne(ctx context.Context, call Call) Result {
	res := Result{ToolCallID: call.ToolCallID, ToolName: call.ToolName}

	t, err := r.Get(call.ToolName)
	if err != nil {
		res.Content = err.Error()
		res.Err = err
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, constants.ToolCallTimeout)
	defer cancel()

	content, err := t.Invoke(callCtx, call.Args)
	if ctx.Err() != nil {
		// The run itself was cancelled: drop whatever the tool returned and
		// record the call as "cancelled".
		res.Content = "cancelled"
		res.Err = ctx.Err()
		return res
	}
	if err != nil {
		res.Content = err.Error()
		res.Err = err
		return res
	}
	res.Content = content
	return res
}
