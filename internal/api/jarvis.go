package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/realtime"
	"github.com/orchcore/orchcore/internal/taskrunner"
)

// ListJarvisAgents handles GET /api/jarvis/agents: every agent owned by the
// authenticated Jarvis identity (spec §6).
func (s *Server) ListJarvisAgents(c *gin.Context) {
	ownerID := userIDFrom(c)

	agents, err := s.repos.Agents.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentResponse{ID: a.ID, Name: a.Name, Status: string(a.Status)})
	}
	c.JSON(http.StatusOK, agentListResponse{Agents: out})
}

// DispatchJarvis handles POST /api/jarvis/dispatch: `{agent_id,
// task_override?}` -> `{run_id, thread_id}` (spec §6).
func (s *Server) DispatchJarvis(c *gin.Context) {
	var req jarvisDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	res, err := s.runner.Execute(c.Request.Context(), taskrunner.TaskParams{
		AgentID:      req.AgentID,
		Trigger:      domain.TriggerAPI,
		TaskOverride: req.TaskOverride,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dispatchTaskResponse{RunID: res.RunID, ThreadID: res.ThreadID})
}

// StreamJarvisEvents handles GET /api/jarvis/events: a Server-Sent Events
// stream over the realtime hub, scoped to the authenticated user's topic
// (spec §6, §4.3's "the same user identity applies to both transports").
func (s *Server) StreamJarvisEvents(c *gin.Context) {
	userID := userIDFrom(c)
	client := realtime.NewSSEClient(userID+":"+c.Request.RemoteAddr, 32)
	s.hub.Subscribe(client, "user:"+userID)
	defer s.hub.Unsubscribe(client, "user:"+userID)

	c.SSEvent("connected", gin.H{"user_id": userID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(constants.HeartbeatInterval)
	defer heartbeat.Stop()
	c.Stream(func(w gin.ResponseWriter) bool {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				return false
			}
			c.SSEvent("event", string(frame))
			return true
		case <-heartbeat.C:
			_, _ = w.Write([]byte(":\n\n"))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
