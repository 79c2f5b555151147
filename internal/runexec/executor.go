package runexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events"
	"github.com/orchcore/orchcore/internal/events/bus"
	"github.com/orchcore/orchcore/internal/tools"
)

// Mode distinguishes a single interactive turn from an autonomous task run
// (spec §4.5: "mode ∈ {single_turn, task_run}"); both drive the same graph,
// mode only affects how the caller (C6) interprets completion.
type Mode string

const (
	ModeSingleTurn Mode = "single_turn"
	ModeTaskRun    Mode = "task_run"
)

// MessageStore is the subset of C1's MessageRepository the executor needs.
type MessageStore interface {
	List(ctx context.Context, threadID string, since string, limit int) ([]*domain.Message, error)
	Append(ctx context.Context, threadID string, msgs []*domain.Message) ([]string, error)
}

// ToolInvoker is the subset of C4's Registry the executor needs.
type ToolInvoker interface {
	List(allowed []string) []*tools.Tool
	InvokeAll(ctx context.Context, calls []tools.Call) []tools.Result
}

// Options configures one run_thread invocation (spec §4.5).
type Options struct {
	Mode         Mode
	StreamTokens bool
}

// Executor runs one turn or autonomous run of an agent against a thread
// (spec §4.5).
type Executor struct {
	messages MessageStore
	tools    ToolInvoker
	bus      bus.EventBus
	log      *logger.Logger
}

// New constructs an Executor.
func New(messages MessageStore, toolRegistry ToolInvoker, eventBus bus.EventBus, log *logger.Logger) *Executor {
	return &Executor{
		messages: messages,
		tools:    toolRegistry,
		bus:      eventBus,
		log:      log.WithFields(zap.String("component", "run_executor")),
	}
}

// RunThread executes one turn (or autonomous run) of agent against thread,
// returning only the newly appended messages (spec §4.5 algorithm).
func (e *Executor) RunThread(ctx context.Context, client ModelClient, agent *domain.Agent, thread *domain.Thread, opts Options) ([]*domain.Message, error) {
	history, err := e.messages.List(ctx, thread.ID, "", 0)
	if err != nil {
		return nil, fmt.Errorf("load thread history: %w", err)
	}
	if len(history) == 0 || history[0].MessageType != domain.MessageTypeSystem {
		return nil, fmt.Errorf("thread %s missing leading system message: %w", thread.ID, domain.ErrInvariant)
	}

	var newMessages []*domain.Message
	turn := append([]*domain.Message(nil), history...)

	e.publishStream(ctx, events.StreamStart, events.PayloadStream{ThreadID: thread.ID})

	for {
		resp, assistantMsg, err := e.callModel(ctx, client, agent, thread, turn, opts)
		if err != nil {
			return newMessages, err
		}
		newMessages = append(newMessages, assistantMsg)
		turn = append(turn, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			break
		}

		toolMsgs, err := e.callTools(ctx, thread, assistantMsg.ID, resp.ToolCalls)
		if err != nil {
			return newMessages, err
		}
		newMessages = append(newMessages, toolMsgs...)
		turn = append(turn, toolMsgs...)
	}

	e.publishStream(ctx, events.StreamEnd, events.PayloadStream{ThreadID: thread.ID})
	return newMessages, nil
}

// callModel invokes the model with retry/exponential backoff on transient
// failure (spec §4.5: "N=2 retries with exponential backoff ... surface as
// ModelUnavailable"), grounded on the teacher scheduler's fixed-delay retry
// counter generalized to exponential backoff.
func (e *Executor) callModel(ctx context.Context, client ModelClient, agent *domain.Agent, thread *domain.Thread, turn []*domain.Message, opts Options) (ChatResponse, *domain.Message, error) {
	req := ChatRequest{
		Messages:     turn,
		Model:        agent.Model,
		Temperature:  agent.Temperature,
		ToolSchemas:  toolSchemas(e.tools.List(agent.AllowedTools)),
		StreamTokens: opts.StreamTokens,
	}

	onToken := func(chunk string) {
		e.publishStream(ctx, events.StreamChunk, events.PayloadStream{
			ThreadID: thread.ID, ChunkType: "assistant_token", Content: chunk,
		})
	}
	if !opts.StreamTokens {
		onToken = nil
	}

	var resp ChatResponse
	var err error
	delay := 500 * time.Millisecond
	for attempt := 0; attempt <= constants.ModelCallMaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, constants.ModelCallTimeout)
		resp, err = client.Chat(callCtx, req, onToken)
		cancel()
		if err == nil {
			break
		}
		if attempt == constants.ModelCallMaxRetries {
			return ChatResponse{}, nil, fmt.Errorf("model call failed after %d retries: %w", attempt, domain.ErrUnavailable)
		}
		e.log.Warn("model call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ChatResponse{}, nil, ctx.Err()
		}
		delay *= 2
	}

	toolCallsJSON, _ := json.Marshal(resp.ToolCalls)
	assistantMsg := &domain.Message{
		ThreadID:    thread.ID,
		Role:        domain.RoleAssistant,
		Content:     resp.Content,
		MessageType: domain.MessageTypeAssistant,
		ToolCalls:   toolCallsJSON,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := e.messages.Append(ctx, thread.ID, []*domain.Message{assistantMsg}); err != nil {
		return ChatResponse{}, nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if !opts.StreamTokens {
		e.publishStream(ctx, events.StreamChunk, events.PayloadStream{
			ThreadID: thread.ID, ChunkType: "assistant_message", Content: resp.Content, MessageID: assistantMsg.ID,
		})
	}
	if err := e.bus.Publish(ctx, &events.Event{Kind: events.AssistantID, Data: events.PayloadAssistantID{ThreadID: thread.ID, MessageID: assistantMsg.ID}}); err != nil {
		e.log.Error("assistant id publish failed", zap.Error(err))
	}

	return resp, assistantMsg, nil
}

// callTools invokes every requested tool call in parallel, appending and
// streaming one tool message per result (spec §4.5 step 4).
func (e *Executor) callTools(ctx context.Context, thread *domain.Thread, parentID string, reqs []ToolCallRequest) ([]*domain.Message, error) {
	calls := make([]tools.Call, len(reqs))
	for i, r := range reqs {
		calls[i] = tools.Call{ToolName: r.ToolName, ToolCallID: r.ID, Args: r.Arguments}
	}
	results := e.tools.InvokeAll(ctx, calls)

	parent := parentID
	msgs := make([]*domain.Message, len(results))
	for i, res := range results {
		msgs[i] = &domain.Message{
			ThreadID:    thread.ID,
			Role:        domain.RoleTool,
			Content:     res.Content,
			MessageType: domain.MessageTypeToolOutput,
			ToolName:    res.ToolName,
			ToolCallID:  res.ToolCallID,
			ParentID:    &parent,
			CreatedAt:   time.Now().UTC(),
		}
	}
	if _, err := e.messages.Append(ctx, thread.ID, msgs); err != nil {
		return nil, fmt.Errorf("persist tool messages: %w", err)
	}

	for _, m := range msgs {
		e.publishStream(ctx, events.StreamChunk, events.PayloadStream{
			ThreadID: thread.ID, ChunkType: "tool_output", ToolName: m.ToolName,
			ToolCallID: m.ToolCallID, Content: m.Content, MessageID: m.ID,
		})
	}
	return msgs, nil
}

func (e *Executor) publishStream(ctx context.Context, kind events.Kind, payload events.PayloadStream) {
	if err := e.bus.Publish(ctx, &events.Event{Kind: kind, Data: payload}); err != nil {
		e.log.Error("stream event publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func toolSchemas(ts []*tools.Tool) []ToolSchema {
	out := make([]ToolSchema, len(ts))
	for i, t := range ts {
		out[i] = ToolSchema{Name: t.Name, Description: t.Description, ParametersSchema: t.ParametersSchema}
	}
	return out
}
