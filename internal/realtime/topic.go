package realtime

import (
	"fmt"

	"github.com/orchcore/orchcore/internal/events"
)

// topicOf computes the topic(s) an Event routes to, a pure function over
// the closed event Kind set (spec §4.3). Most kinds route to exactly one
// topic; a kind this function doesn't recognize routes nowhere (ok=false),
// which is not an error — not every published event is topic-addressable.
func topicOf(evt *events.Event) (topics []string, ok bool) {
	switch evt.Kind {
	case events.AgentCreated, events.AgentUpdated, events.AgentDeleted:
		if p, ok := evt.Data.(events.PayloadAgent); ok {
			return []string{agentTopic(p.AgentID)}, true
		}
	case events.RunCreated, events.RunUpdated:
		if p, ok := evt.Data.(events.PayloadRun); ok {
			return []string{agentTopic(p.AgentID), threadTopic(p.ThreadID)}, true
		}
	case events.ThreadCreated, events.ThreadUpdated:
		if p, ok := evt.Data.(events.PayloadThread); ok {
			return []string{threadTopic(p.ThreadID)}, true
		}
	case events.ThreadMessageCreated:
		if p, ok := evt.Data.(events.PayloadThreadMessage); ok {
			return []string{threadTopic(p.ThreadID)}, true
		}
	case events.StreamStart, events.StreamChunk, events.StreamEnd:
		if p, ok := evt.Data.(events.PayloadStream); ok {
			return []string{threadTopic(p.ThreadID)}, true
		}
	case events.AssistantID:
		if p, ok := evt.Data.(events.PayloadAssistantID); ok {
			return []string{threadTopic(p.ThreadID)}, true
		}
	case events.UserUpdated:
		if p, ok := evt.Data.(events.PayloadUser); ok {
			return []string{userTopic(p.UserID)}, true
		}
	case events.TriggerFired:
		if p, ok := evt.Data.(events.PayloadTrigger); ok {
			return []string{agentTopic(p.AgentID)}, true
		}
	case events.NodeState, events.NodeLog:
		if p, ok := evt.Data.(events.PayloadNode); ok {
			return []string{executionTopic(p.ExecutionID)}, true
		}
	case events.ExecutionFinished:
		if p, ok := evt.Data.(events.PayloadExecutionFinished); ok {
			return []string{executionTopic(p.ExecutionID)}, true
		}
	}
	return nil, false
}

func agentTopic(id string) string     { return fmt.Sprintf("agent:%s", id) }
func threadTopic(id string) string    { return fmt.Sprintf("thread:%s", id) }
func userTopic(id string) string      { return fmt.Sprintf("user:%s", id) }
func executionTopic(id string) string { return fmt.Sprintf("workflow_execution:%s", id) }
