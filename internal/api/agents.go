package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/taskrunner"
)

// DispatchTask handles POST /api/agents/:id/task: starts a manual Run
// against the agent via the C6 task runner (spec §6).
func (s *Server) DispatchTask(c *gin.Context) {
	agentID := c.Param("id")

	var req dispatchTaskRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
			return
		}
	}

	res, err := s.runner.Execute(c.Request.Context(), taskrunner.TaskParams{
		AgentID:      agentID,
		Trigger:      domain.TriggerManual,
		TaskOverride: req.TaskOverride,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dispatchTaskResponse{RunID: res.RunID, ThreadID: res.ThreadID})
}

// ListRuns handles GET /api/agents/:id/runs: newest-first, paginated via
// ?limit=&offset= (spec §6).
func (s *Server) ListRuns(c *gin.Context) {
	agentID := c.Param("id")
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	runs, err := s.repos.Runs.ListForAgent(c.Request.Context(), agentID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponseFrom(r))
	}
	c.JSON(http.StatusOK, runListResponse{Runs: out})
}

func runResponseFrom(r *domain.Run) runResponse {
	return runResponse{
		ID:         r.ID,
		AgentID:    r.AgentID,
		ThreadID:   r.ThreadID,
		Trigger:    string(r.Trigger),
		Status:     string(r.Status),
		Summary:    r.Summary,
		Error:      r.Error,
		DurationMs: r.DurationMs,
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
