package taskrunner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/common/stringutil"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/events/bus"
	"github.com/orchcore/orchcore/internal/runexec"
)

// AgentStore is the subset of C1's AgentRepository the runner needs.
type AgentStore interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	Update(ctx context.Context, a *domain.Agent) error
}

// ThreadStore is the subset of C1's ThreadRepository the runner needs.
type ThreadStore interface {
	CreateWithSystemMessage(ctx context.Context, agent *domain.Agent, threadType domain.ThreadType, title string) (*domain.Thread, *domain.Message, error)
	GetForAgent(ctx context.Context, threadID, agentID string) (*domain.Thread, error)
}

// RunStore is the subset of C1's RunRepository the runner needs.
type RunStore interface {
	Create(ctx context.Context, agentID, threadID string, trigger domain.RunTrigger) (*domain.Run, error)
	Start(ctx context.Context, id string) (*domain.Run, error)
	Finish(ctx context.Context, id string, status domain.RunStatus, runErr, summary string) (*domain.Run, error)
	FirstAssistantMessageSince(ctx context.Context, threadID string, since time.Time) (string, error)
}

// MessageAppender is the subset of C1's MessageRepository the runner needs
// to seed a newly-created thread's first user message.
type MessageAppender interface {
	Append(ctx context.Context, threadID string, msgs []*domain.Message) ([]string, error)
}

// Executor is the subset of C5's Executor the runner drives.
type Executor interface {
	RunThread(ctx context.Context, client runexec.ModelClient, agent *domain.Agent, thread *domain.Thread, opts runexec.Options) ([]*domain.Message, error)
}

// NextRunComputer resolves a cron schedule's next fire time after from. C7's
// Scheduler implements this by parsing the schedule through the same
// robfig/cron/v3 parser it registers jobs with, so the value finalizeRun
// persists always matches what actually fires next (spec §4.7, §8: "next_run_at
// equals cron_next(s, now) within +/-1 second").
type NextRunComputer interface {
	NextRunAt(schedule string, from time.Time) (time.Time, bool)
}

// TaskParams describes one execute_agent_task invocation (spec §4.6).
type TaskParams struct {
	AgentID      string
	Trigger      domain.RunTrigger
	TaskOverride string
	ThreadID     string // non-empty for the chat path; reuses an existing thread
	StreamTokens bool
}

// Result is what execute_agent_task returns to its caller.
type Result struct {
	RunID    string
	ThreadID string
}

// Runner implements execute_agent_task's S0-S6 state machine.
type Runner struct {
	agents   AgentStore
	threads  ThreadStore
	runs     RunStore
	messages MessageAppender
	executor Executor
	model    runexec.ModelClient
	lock     *AgentLock
	cancels  *CancelRegistry
	nextRun  NextRunComputer
	bus      bus.EventBus
	log      *logger.Logger
}

// New constructs a Runner.
func New(agents AgentStore, threads ThreadStore, runs RunStore, messages MessageAppender, executor Executor, model runexec.ModelClient, eventBus bus.EventBus, log *logger.Logger) *Runner {
	return &Runner{
		agents:   agents,
		threads:  threads,
		runs:     runs,
		messages: messages,
		executor: executor,
		model:    model,
		lock:     NewAgentLock(),
		cancels:  NewCancelRegistry(),
		bus:      eventBus,
		log:      log.WithFields(zap.String("component", "task_runner")),
	}
}

// SetNextRunComputer wires C7's Scheduler in after construction, mirroring
// the Hub/Server two-step wiring in cmd/orchestrator: the Runner and
// Scheduler are built independently and then cross-linked once both exist.
func (r *Runner) SetNextRunComputer(c NextRunComputer) {
	r.nextRun = c
}

// ErrBusy is returned by Execute when the agent already has a run in
// flight (spec §4.6 S0; non-retryable for this caller).
var ErrBusy = fmt.Errorf("agent has a run already in flight: %w", domain.ErrConflict)

// threadTypeForTrigger maps a RunTrigger to the Thread it creates on the
// non-chat path (spec §4.6 S2).
var threadTypeForTrigger = map[domain.RunTrigger]domain.ThreadType{
	domain.TriggerSchedule: domain.ThreadScheduled,
	domain.TriggerWebhook:  domain.ThreadWebhook,
	domain.TriggerEmail:    domain.ThreadEmail,
	domain.TriggerWorkflow: domain.ThreadWorkflow,
	domain.TriggerManual:   domain.ThreadManual,
	domain.TriggerAPI:      domain.ThreadManual,
}

// Execute runs S0 through S6 for one task dispatch.
func (r *Runner) Execute(ctx context.Context, p TaskParams) (Result, error) {
	// S0: acquire per-agent lock.
	if !r.lock.TryAcquire(p.AgentID) {
		return Result{}, ErrBusy
	}
	defer r.lock.Release(p.AgentID)

	agent, err := r.agents.Get(ctx, p.AgentID)
	if err != nil {
		return Result{}, fmt.Errorf("load agent: %w", err)
	}

	// S1: mark agent running.
	agent.Status = domain.AgentRunning
	if err := r.agents.Update(ctx, agent); err != nil {
		return Result{}, fmt.Errorf("mark agent running: %w", err)
	}

	// S2: resolve thread.
	thread, err := r.resolveThread(ctx, agent, p)
	if err != nil {
		r.finalizeFailure(ctx, agent, nil, err)
		return Result{}, err
	}

	// S3: create Run, transition to running.
	run, err := r.runs.Create(ctx, agent.ID, thread.ID, p.Trigger)
	if err != nil {
		r.finalizeFailure(ctx, agent, nil, err)
		return Result{}, fmt.Errorf("create run: %w", err)
	}
	if _, err := r.runs.Start(ctx, run.ID); err != nil {
		r.finalizeFailure(ctx, agent, run, err)
		return Result{}, fmt.Errorf("start run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancels.Register(run.ID, cancel)
	defer r.cancels.Unregister(run.ID)

	// S4: invoke the Run Executor.
	turnStart := time.Now().UTC()
	_, execErr := r.executor.RunThread(runCtx, r.model, agent, thread, runexec.Options{
		Mode: modeFor(p.Trigger), StreamTokens: p.StreamTokens,
	})

	// S5/S6: finalize.
	if execErr != nil {
		r.finalizeRun(ctx, agent, run, domain.RunFailed, cancelAwareError(runCtx, execErr), "")
		return Result{RunID: run.ID, ThreadID: thread.ID}, execErr
	}

	summary, err := r.runs.FirstAssistantMessageSince(ctx, thread.ID, turnStart)
	if err != nil {
		r.log.Warn("summary extraction failed", zap.Error(err))
	}
	r.finalizeRun(ctx, agent, run, domain.RunSuccess, "", stringutil.TruncateRunes(summary, constants.RunSummaryMaxRunes))

	return Result{RunID: run.ID, ThreadID: thread.ID}, nil
}

// Cancel signals a cooperative cancellation for an in-flight run (spec
// §4.6 "Cancellation").
func (r *Runner) Cancel(runID string) bool {
	return r.cancels.Cancel(runID)
}

// IsHeld reports whether agentID currently has a run in flight, letting the
// scheduler (C7) implement its skip-on-busy dispatch policy.
func (r *Runner) IsHeld(agentID string) bool {
	return r.lock.IsHeld(agentID)
}

func (r *Runner) resolveThread(ctx context.Context, agent *domain.Agent, p TaskParams) (*domain.Thread, error) {
	if p.Trigger == domain.TriggerAPI && p.ThreadID != "" {
		return r.threads.GetForAgent(ctx, p.ThreadID, agent.ID)
	}

	threadType, ok := threadTypeForTrigger[p.Trigger]
	if !ok {
		threadType = domain.ThreadManual
	}
	thread, _, err := r.threads.CreateWithSystemMessage(ctx, agent, threadType, agent.Name)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	content := p.TaskOverride
	if content == "" {
		content = agent.TaskInstructions
	}
	userMsg := &domain.Message{
		ThreadID:    thread.ID,
		Role:        domain.RoleUserMsg,
		Content:     content,
		MessageType: domain.MessageTypeUser,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.messages.Append(ctx, thread.ID, []*domain.Message{userMsg}); err != nil {
		return nil, fmt.Errorf("seed task message: %w", err)
	}
	return thread, nil
}

// finalizeRun performs S5/S6 for a run that reached the executor.
func (r *Runner) finalizeRun(ctx context.Context, agent *domain.Agent, run *domain.Run, status domain.RunStatus, runErr, summary string) {
	if run != nil {
		if _, err := r.runs.Finish(ctx, run.ID, status, runErr, summary); err != nil {
			r.log.Error("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	agent.LastRunAt = &now
	if status == domain.RunSuccess {
		agent.Status = domain.AgentIdle
		agent.LastError = ""
	} else {
		agent.Status = domain.AgentError
		agent.LastError = runErr
	}
	if agent.IsScheduled() && r.nextRun != nil {
		if next, ok := r.nextRun.NextRunAt(*agent.Schedule, now); ok {
			agent.NextRunAt = &next
		}
	}
	if err := r.agents.Update(ctx, agent); err != nil {
		r.log.Error("finalize agent status failed", zap.String("agent_id", agent.ID), zap.Error(err))
	}
}

// finalizeFailure handles S2/S3 failures that occur before a Run exists to
// finish, or before it started.
func (r *Runner) finalizeFailure(ctx context.Context, agent *domain.Agent, run *domain.Run, err error) {
	r.finalizeRun(ctx, agent, run, domain.RunFailed, stringutil.TruncateRunes(err.Error(), constants.RunErrorMaxRunes), "")
}

func modeFor(trigger domain.RunTrigger) runexec.Mode {
	if trigger == domain.TriggerAPI {
		return runexec.ModeSingleTurn
	}
	return runexec.ModeTaskRun
}

// cancelAwareError reports "cancelled" when the run's context was cancelled
// cooperatively, regardless of the underlying executor error text (spec
// §4.6: "A cancelled run ends as failed with error 'cancelled'").
func cancelAwareError(ctx context.Context, execErr error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return stringutil.TruncateRunes(execErr.Error(), constants.RunErrorMaxRunes)
}
