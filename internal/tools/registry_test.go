package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ListRespectsAllowed(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{Name: "a"})
	reg.Register(&Tool{Name: "b"})

	all := reg.List(nil)
	assert.Len(t, all, 2)

	only := reg.List([]string{"b"})
	require.Len(t, only, 1)
	assert.Equal(t, "b", only[0].Name)
}

func TestRegistry_InvokeAllIsolatesFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name:   "ok",
		Invoke: func(ctx context.Context, args []byte) (string, error) { return "fine", nil },
	})
	reg.Register(&Tool{
		Name:   "boom",
		Invoke: func(ctx context.Context, args []byte) (string, error) { return "", errors.New("kaboom") },
	})
	reg.Register(&Tool{
		Name: "slow",
		Invoke: func(ctx context.Context, args []byte) (string, error) {
			select {
			case <-time.After(time.Hour):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})

	results := reg.InvokeAll(context.Background(), []Call{
		{ToolName: "ok", ToolCallID: "1"},
		{ToolName: "boom", ToolCallID: "2"},
		{ToolName: "missing", ToolCallID: "3"},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "fine", results[0].Content)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "kaboom", results[1].Content)
	assert.Error(t, results[2].Err)
}
