// Package domain holds the durable entities of the Agent Orchestration Core
// (§3) and the closed enums that give them well-typed state, grounded on the
// teacher's repository/transaction idiom in internal/common/database.
package domain

import (
	"encoding/json"
	"time"
)

// UserRole is the closed set of roles a User may hold.
type UserRole string

const (
	RoleUser       UserRole = "user"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

// JarvisSystemEmail is the reserved user that owns system-initiated runs.
// Its id is discovered on demand (looked up by email), never hardcoded.
const JarvisSystemEmail = "jarvis@system.local"

// User is a platform account. Owns Agents, Threads, Triggers.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Prefs       json.RawMessage `json:"prefs,omitempty"`
	Role        UserRole        `json:"role"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AgentStatus is the closed set of Agent lifecycle states.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentError     AgentStatus = "error"
	AgentScheduled AgentStatus = "scheduled"
)

// Agent is a configured LLM role: system prompt, model, task instructions,
// optional cron schedule, allowed tools.
type Agent struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Name               string          `json:"name"`
	SystemInstructions string          `json:"system_instructions"`
	TaskInstructions   string          `json:"task_instructions"`
	Model              string          `json:"model"`
	Temperature        float64         `json:"temperature"`
	Schedule           *string         `json:"schedule,omitempty"`
	Status             AgentStatus     `json:"status"`
	LastRunAt          *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt          *time.Time      `json:"next_run_at,omitempty"`
	LastError          string          `json:"last_error,omitempty"`
	Config             json.RawMessage `json:"config,omitempty"`
	AllowedTools       []string        `json:"allowed_tools,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsScheduled reports whether the agent carries a non-empty schedule. This
// is a derived label, not separately stored state (spec §3).
func (a *Agent) IsScheduled() bool {
	return a.Schedule != nil && *a.Schedule != ""
}

// ThreadType is the closed set of reasons a Thread was created.
type ThreadType string

const (
	ThreadChat      ThreadType = "chat"
	ThreadManual    ThreadType = "manual"
	ThreadScheduled ThreadType = "scheduled"
	ThreadWebhook   ThreadType = "webhook"
	ThreadEmail     ThreadType = "email"
	ThreadWorkflow  ThreadType = "workflow"
)

// Thread is an ordered conversation bound to one Agent.
type Thread struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Title       string          `json:"title"`
	ThreadType  ThreadType      `json:"thread_type"`
	AgentState  json.RawMessage `json:"agent_state,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MessageRole is the closed set of roles a Message may carry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUserMsg   MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// MessageType distinguishes transient stream artifacts from durable rows.
type MessageType string

const (
	MessageTypeUser      MessageType = "user_message"
	MessageTypeAssistant MessageType = "assistant_message"
	// MessageTypeAssistantToken is transient: never persisted, only streamed.
	MessageTypeAssistantToken MessageType = "assistant_token"
	MessageTypeToolOutput     MessageType = "tool_output"
	// MessageTypeSystem marks the single captured system-instructions row
	// created atomically with its Thread (spec §3); not part of the
	// enumerated streaming message_type set because it is never streamed.
	MessageTypeSystem MessageType = "system"
)

// Message is one row in a Thread.
type Message struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"thread_id"`
	Role        MessageRole     `json:"role"`
	Content     string          `json:"content"`
	MessageType MessageType     `json:"message_type"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ParentID    *string         `json:"parent_id,omitempty"`
	Processed   bool            `json:"processed"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RunTrigger is the closed set of sources that can start a Run.
type RunTrigger string

const (
	TriggerManual   RunTrigger = "manual"
	TriggerSchedule RunTrigger = "schedule"
	TriggerAPI      RunTrigger = "api"
	TriggerWebhook  RunTrigger = "webhook"
	TriggerEmail    RunTrigger = "email"
	TriggerWorkflow RunTrigger = "workflow"
)

// RunStatus is the closed, monotone set of Run states (spec §3, §8).
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ValidRunTransitions enumerates the only legal Run.status transitions.
// Any other requested transition is a Conflict (spec §8).
var ValidRunTransitions = map[RunStatus][]RunStatus{
	RunQueued:  {RunRunning},
	RunRunning: {RunSuccess, RunFailed},
}

// CanTransition reports whether moving from `from` to `to` is a legal Run
// status transition.
func CanTransition(from, to RunStatus) bool {
	for _, allowed := range ValidRunTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Run is one execution attempt of an Agent against a Thread.
type Run struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	ThreadID   string     `json:"thread_id"`
	Trigger    RunTrigger `json:"trigger"`
	Status     RunStatus  `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TriggerType is the closed set of external trigger kinds.
type TriggerType string

const (
	TriggerTypeWebhook TriggerType = "webhook"
	TriggerTypeEmail   TriggerType = "email"
)

// Trigger is an external source (webhook/email) wired to dispatch Runs for
// one Agent.
type Trigger struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id"`
	Type           TriggerType     `json:"type"`
	Secret         string          `json:"-"` // webhook HMAC secret; never serialized
	Config         json.RawMessage `json:"config,omitempty"`
	LastMessageKey string          `json:"last_message_key,omitempty"`
	HistoryID      string          `json:"history_id,omitempty"`
	WatchExpiry    *time.Time      `json:"watch_expiry,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Workflow is a soft-deletable DAG of nodes owned by a User.
type Workflow struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Name      string          `json:"name"`
	Graph     json.RawMessage `json:"graph"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// WorkflowExecutionStatus mirrors RunStatus's monotone shape for DAG runs.
type WorkflowExecutionStatus string

const (
	ExecutionQueued  WorkflowExecutionStatus = "queued"
	ExecutionRunning WorkflowExecutionStatus = "running"
	ExecutionSuccess WorkflowExecutionStatus = "success"
	ExecutionFailed  WorkflowExecutionStatus = "failed"
)

// WorkflowExecution is one run of a Workflow's DAG.
type WorkflowExecution struct {
	ID         string                  `json:"id"`
	WorkflowID string                  `json:"workflow_id"`
	OwnerID    string                  `json:"owner_id"`
	Status     WorkflowExecutionStatus `json:"status"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Log        string                  `json:"log,omitempty"`
}

// NodeExecutionStatus is the closed set of per-node DAG states.
type NodeExecutionStatus string

const (
	NodeIdle    NodeExecutionStatus = "idle"
	NodeQueued  NodeExecutionStatus = "queued"
	NodeRunning NodeExecutionStatus = "running"
	NodeSuccess NodeExecutionStatus = "success"
	NodeFailed  NodeExecutionStatus = "failed"
)

// NodeExecutionState is the per-node record of one WorkflowExecution.
type NodeExecutionState struct {
	ID          string              `json:"id"`
	ExecutionID string              `json:"execution_id"`
	NodeID      string              `json:"node_id"`
	Status      NodeExecutionStatus `json:"status"`
	Output      json.RawMessage     `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// CanvasLayout is a per-user, per-workspace UI layout blob. UNIQUE(user_id,
// workspace); mutated only via atomic upsert (spec §3).
type CanvasLayout struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Workspace string          `json:"workspace"`
	Positions json.RawMessage `json:"positions"`
	Viewport  json.RawMessage `json:"viewport"`
}
