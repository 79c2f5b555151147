package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/taskrunner"
)

func TestErrorResponse_BusyTakesPriorityOverConflict(t *testing.T) {
	status, body := errorResponse(taskrunner.ErrBusy)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "busy", body["error"])
}

func TestErrorResponse_NotFound(t *testing.T) {
	status, _ := errorResponse(fmt.Errorf("agent: %w", domain.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestErrorResponse_InvalidArgumentEchoesMessage(t *testing.T) {
	err := fmt.Errorf("name is required: %w", domain.ErrInvalidArgument)
	status, body := errorResponse(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, err.Error(), body["error"])
}

func TestErrorResponse_InvariantHidesDetail(t *testing.T) {
	err := fmt.Errorf("run already finished: %w", domain.ErrInvariant)
	status, body := errorResponse(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, body["error"], "run already finished")
}

func TestErrorResponse_Unmapped(t *testing.T) {
	status, _ := errorResponse(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}
