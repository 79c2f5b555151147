// Package realtime implements the Topic Router / Realtime Hub (C3):
// subscription graph plus WS/SSE delivery, grounded on the teacher's
// internal/gateway/websocket hub/client and pkg/websocket envelope idiom.
package realtime

import "encoding/json"

// Envelope is the wire format shared by WebSocket and SSE transports
// (spec §4.3). V is a wire version, bumped only on breaking changes.
type Envelope struct {
	V     int             `json:"v"`
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	ReqID string          `json:"req_id,omitempty"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const envelopeVersion = 1

// Outbound envelope types.
const (
	TypeConnected = "connected"
	TypeEvent     = "event"
	TypeError     = "error"
	TypePong      = "pong"
)

// Inbound client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypeSendMessage = "send_message"
)

// legacyInboundAliases maps deprecated inbound type names to their current
// equivalent (spec §6: "legacy aliases must be accepted as inbound
// synonyms ... and never emitted"). Older clients send these verbatim;
// handleMessage normalizes before dispatch.
var legacyInboundAliases = map[string]string{
	"agent_state": "agent_event",
}

func normalizeInboundType(t string) string {
	if alias, ok := legacyInboundAliases[t]; ok {
		return alias
	}
	return t
}

// ClientMessage is an inbound subscribe/unsubscribe/ping/send_message frame.
type ClientMessage struct {
	Type      string         `json:"type"`
	Topics    []string       `json:"topics,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	TS        int64          `json:"ts,omitempty"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func newEnvelope(typ, topic string, data any, nowMs int64) (*Envelope, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Envelope{V: envelopeVersion, Type: typ, Topic: topic, TS: nowMs, Data: raw}, nil
}

// errorDetails is the payload carried by a TypeError envelope (spec §4.3).
type errorDetails struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
