// Package events defines the closed set of event kinds published across the
// orchestration core (spec §4.2) and the payload shapes carried between
// C1/C5/C6/C8/C9 publishers and the C3 realtime hub's subscribers.
package events

// Kind is the closed sum type of event kinds (spec §9: "model as a closed
// sum type ... avoid string-typed generics").
type Kind string

const (
	AgentCreated Kind = "AGENT_CREATED"
	AgentUpdated Kind = "AGENT_UPDATED"
	AgentDeleted Kind = "AGENT_DELETED"

	ThreadCreated        Kind = "THREAD_CREATED"
	ThreadUpdated        Kind = "THREAD_UPDATED"
	ThreadMessageCreated Kind = "THREAD_MESSAGE_CREATED"

	StreamStart Kind = "STREAM_START"
	StreamChunk Kind = "STREAM_CHUNK"
	AssistantID Kind = "ASSISTANT_ID"
	StreamEnd   Kind = "STREAM_END"

	RunCreated Kind = "RUN_CREATED"
	RunUpdated Kind = "RUN_UPDATED"

	UserUpdated Kind = "USER_UPDATED"

	TriggerFired Kind = "TRIGGER_FIRED"

	NodeState         Kind = "NODE_STATE"
	NodeLog           Kind = "NODE_LOG"
	ExecutionFinished Kind = "EXECUTION_FINISHED"
)

// Event is the typed envelope passed through the Event Bus. Data holds one
// of the Payload* structs below; publishers in this repository never put
// anything else there, but the field is `any` so the bus itself stays
// decoupled from the payload catalogue (new kinds don't require bus changes).
type Event struct {
	Kind Kind
	Data any
}

// PayloadAgent carries AGENT_CREATED / AGENT_UPDATED / AGENT_DELETED.
type PayloadAgent struct {
	AgentID string `json:"agent_id"`
	OwnerID string `json:"owner_id"`
	Status  string `json:"status,omitempty"`
}

// PayloadThread carries THREAD_CREATED / THREAD_UPDATED.
type PayloadThread struct {
	ThreadID string `json:"thread_id"`
	AgentID  string `json:"agent_id"`
}

// PayloadThreadMessage carries THREAD_MESSAGE_CREATED.
type PayloadThreadMessage struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

// PayloadStream carries STREAM_START / STREAM_CHUNK / STREAM_END.
type PayloadStream struct {
	ThreadID   string `json:"thread_id"`
	ChunkType  string `json:"chunk_type,omitempty"` // assistant_token | assistant_message | tool_output
	Content    string `json:"content,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// PayloadAssistantID carries ASSISTANT_ID.
type PayloadAssistantID struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

// PayloadRun carries RUN_CREATED / RUN_UPDATED.
type PayloadRun struct {
	RunID    string `json:"run_id"`
	AgentID  string `json:"agent_id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// PayloadUser carries USER_UPDATED.
type PayloadUser struct {
	UserID string `json:"user_id"`
}

// PayloadTrigger carries TRIGGER_FIRED.
type PayloadTrigger struct {
	TriggerID string         `json:"trigger_id"`
	AgentID   string         `json:"agent_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// PayloadNode carries NODE_STATE / NODE_LOG.
type PayloadNode struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Status      string `json:"status,omitempty"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PayloadExecutionFinished carries EXECUTION_FINISHED.
type PayloadExecutionFinished struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}
