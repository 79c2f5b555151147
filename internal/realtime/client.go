package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/constants"
	"github.com/orchcore/orchcore/internal/common/logger"
)

// MessageSender dispatches an inbound send_message frame (spec §6: "append
// user message and trigger executor"), implemented by internal/api against
// the message repository and task runner.
type MessageSender interface {
	SendMessage(ctx context.Context, threadID, content string, metadata map[string]any) error
}

const (
	pongWait       = constants.HeartbeatInterval * 2
	pingPeriod     = constants.HeartbeatInterval
	writeWait      = constants.SocketWriteTimeout
	maxMessageSize = 64 * 1024
)

// Client is one WebSocket connection registered with the Hub, grounded on
// the teacher's internal/gateway/websocket.Client read/write pump idiom.
type Client struct {
	connID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(connID string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		connID: connID,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		log:    log.WithFields(zap.String("conn_id", connID)),
	}
}

func (c *Client) id() string { return c.connID }

func (c *Client) deliver(env *Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("marshal envelope failed", zap.Error(err))
		return true
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("client send buffer full, dropping connection")
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads inbound subscribe/unsubscribe/ping frames until the
// connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.closeSend()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid message format")
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch normalizeInboundType(msg.Type) {
	case TypeSubscribe:
		for _, topic := range msg.Topics {
			if !validTopic(topic) {
				c.sendError(msg.MessageID, "malformed topic: "+topic)
				continue
			}
			c.hub.Subscribe(c, topic)
		}
	case TypeUnsubscribe:
		for _, topic := range msg.Topics {
			c.hub.Unsubscribe(c, topic)
		}
	case TypePing:
		env, _ := newEnvelope(TypePong, "", map[string]int64{"ts": msg.TS}, nowMs())
		c.deliver(env)
	case TypeSendMessage:
		c.handleSendMessage(msg)
	default:
		c.sendError(msg.MessageID, "unknown message type: "+msg.Type)
	}
}

func (c *Client) handleSendMessage(msg *ClientMessage) {
	if c.hub.sender == nil {
		c.sendError(msg.MessageID, "send_message not supported")
		return
	}
	if msg.ThreadID == "" || msg.Content == "" {
		c.sendError(msg.MessageID, "send_message requires thread_id and content")
		return
	}
	if err := c.hub.sender.SendMessage(context.Background(), msg.ThreadID, msg.Content, msg.Metadata); err != nil {
		c.sendError(msg.MessageID, "send_message failed: "+err.Error())
	}
}

func (c *Client) sendError(reqID, message string) {
	env, err := newEnvelope(TypeError, "", errorDetails{Error: message}, nowMs())
	if err != nil {
		return
	}
	env.ReqID = reqID
	c.deliver(env)
}

// WritePump writes queued envelopes and periodic pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	connected, _ := newEnvelope(TypeConnected, "", nil, nowMs())
	if data, err := json.Marshal(connected); err == nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func validTopic(topic string) bool {
	for _, prefix := range []string{"agent:", "thread:", "user:", "workflow_execution:"} {
		if len(topic) > len(prefix) && topic[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
