package api

// DTOs for the REST table in spec §6. Field names mirror the wire shapes
// the spec documents; internal domain types are never serialized directly
// so storage-layer fields (e.g. Trigger.Secret) can't leak through this
// boundary by accident.

type dispatchTaskRequest struct {
	TaskOverride string `json:"task_override,omitempty"`
}

type dispatchTaskResponse struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
}

type runResponse struct {
	ID         string `json:"id"`
	AgentID    string `json:"agent_id"`
	ThreadID   string `json:"thread_id"`
	Trigger    string `json:"trigger"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

type runListResponse struct {
	Runs []runResponse `json:"runs"`
}

type appendMessageRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type messageResponse struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

type jarvisAuthRequest struct {
	DeviceSecret string `json:"device_secret"`
}

type jarvisAuthResponse struct {
	Token string `json:"token"`
}

type jarvisDispatchRequest struct {
	AgentID      string `json:"agent_id"`
	TaskOverride string `json:"task_override,omitempty"`
}

type agentResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type agentListResponse struct {
	Agents []agentResponse `json:"agents"`
}

type workflowExecuteResponse struct {
	ExecutionID string `json:"execution_id"`
}
