package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ExecuteWorkflow handles POST /api/workflows/:id/execute: loads the
// Workflow and runs it to completion through the C9 DAG engine (spec §6).
func (s *Server) ExecuteWorkflow(c *gin.Context) {
	wf, err := s.repos.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	exec, err := s.workflow.Execute(c.Request.Context(), wf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, workflowExecuteResponse{ExecutionID: exec.ID})
}
