package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/taskrunner"
)

// AppendMessage handles POST /api/threads/:id/messages: appends a user
// message to the thread and dispatches the agent over it (spec §6, the
// chat path of execute_agent_task keyed by Trigger.API + ThreadID).
func (s *Server) AppendMessage(c *gin.Context) {
	threadID := c.Param("id")

	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}

	runID, err := s.appendAndDispatch(c.Request.Context(), threadID, req.Content, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message_id": runID.messageID,
		"run_id":     runID.runID,
		"thread_id":  runID.threadID,
	})
}

// SendMessage implements realtime.MessageSender for the WS send_message
// inbound frame (spec §6), sharing the same append+dispatch path as the
// REST endpoint above.
func (s *Server) SendMessage(ctx context.Context, threadID, content string, metadata map[string]any) error {
	_, err := s.appendAndDispatch(ctx, threadID, content, metadata)
	return err
}

type dispatchOutcome struct {
	messageID string
	runID     string
	threadID  string
}

func (s *Server) appendAndDispatch(ctx context.Context, threadID, content string, metadata map[string]any) (dispatchOutcome, error) {
	thread, err := s.repos.Threads.Get(ctx, threadID)
	if err != nil {
		return dispatchOutcome{}, err
	}

	ids, err := s.repos.Messages.Append(ctx, threadID, []*domain.Message{{
		ThreadID:    threadID,
		Role:        domain.RoleUserMsg,
		Content:     content,
		MessageType: domain.MessageTypeUser,
	}})
	if err != nil {
		return dispatchOutcome{}, err
	}

	res, err := s.runner.Execute(ctx, taskrunner.TaskParams{
		AgentID:  thread.AgentID,
		Trigger:  domain.TriggerAPI,
		ThreadID: threadID,
	})
	if err != nil {
		return dispatchOutcome{}, err
	}

	return dispatchOutcome{messageID: firstOrEmpty(ids), runID: res.RunID, threadID: res.ThreadID}, nil
}

// ListMessages handles GET /api/threads/:id/messages?since=&limit=.
func (s *Server) ListMessages(c *gin.Context) {
	threadID := c.Param("id")
	limit := queryInt(c, "limit", 50)
	since := c.Query("since")

	msgs, err := s.repos.Messages.List(c.Request.Context(), threadID, since, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:        m.ID,
			ThreadID:  m.ThreadID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, messageListResponse{Messages: out})
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
