package realtime

import (
	"encoding/json"
	"sync"
)

// sseClient adapts a one-way SSE connection to the subscriber interface,
// letting the Hub back both transports (spec §4.3). Frames are pushed onto
// a buffered channel that the HTTP handler in internal/api/jarvis.go drains.
type sseClient struct {
	connID string
	out    chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSSEClient constructs an SSE-side subscriber. bufSize bounds how many
// undelivered frames are held before the connection is considered dead.
func NewSSEClient(connID string, bufSize int) *sseClient {
	return &sseClient{connID: connID, out: make(chan []byte, bufSize)}
}

func (c *sseClient) id() string { return c.connID }

func (c *sseClient) deliver(env *Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// Frames returns the channel the HTTP handler reads to write SSE events.
func (c *sseClient) Frames() <-chan []byte { return c.out }

// Close marks the connection dead and stops accepting further frames.
func (c *sseClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
