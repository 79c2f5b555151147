package realtime

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orchcore/orchcore/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checks are the HTTP gateway's concern (C10); this transport
	// only frames and routes already-authenticated connections.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a WebSocket connection and runs its
// read/write pumps until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, log *logger.Logger) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(uuid.New().String(), conn, h, log)
	go client.WritePump()
	client.ReadPump()
	return nil
}
