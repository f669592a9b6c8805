package uilink

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Frame is one message exchanged with a UI client.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type actionPayload struct {
	TicketID string `json:"ticket_id"`
}

// uiConn serializes writes to one client. Broadcasts arrive from arbitrary
// goroutines and the serve loop writes pings of its own; gorilla/websocket
// allows only one concurrent writer per connection.
type uiConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (u *uiConn) writeJSON(frame Frame, timeout time.Duration) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	u.conn.SetWriteDeadline(time.Now().Add(timeout))
	return u.conn.WriteJSON(frame)
}

func (u *uiConn) writePing(timeout time.Duration) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	u.conn.SetWriteDeadline(time.Now().Add(timeout))
	return u.conn.WriteMessage(websocket.PingMessage, nil)
}

// Hub fans frames out to every connected UI client and routes incoming
// action frames back to whoever registered the ticket. It backs both the
// notification surface and the video-layout directives.
type Hub struct {
	connections map[*uiConn]struct{}
	mu          sync.RWMutex

	actions  map[string]func()
	actionMu sync.Mutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		connections:  make(map[*uiConn]struct{}),
		actions:      make(map[string]func()),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// HandleWebSocket upgrades the request and serves the connection until the
// client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &uiConn{conn: conn}
	h.mu.Lock()
	h.connections[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Infow("ui client connected", "remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	frameChan := make(chan Frame, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(h.readTimeout))
			frameChan <- frame
		}
	}()

	for {
		select {
		case frame := <-frameChan:
			h.handleFrame(frame)

		case <-pingTicker.C:
			if err := client.writePing(h.writeTimeout); err != nil {
				h.logger.Infow("error sending ping", "error", err)
				h.dropConnection(client)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Infow("error reading from ui client", "error", err)
			}
			h.dropConnection(client)
			return
		}
	}
}

func (h *Hub) dropConnection(client *uiConn) {
	h.mu.Lock()
	delete(h.connections, client)
	h.mu.Unlock()
	h.logger.Infow("ui client disconnected", "remote", client.conn.RemoteAddr().String())
}

func (h *Hub) handleFrame(frame Frame) {
	switch frame.Type {
	case "action":
		var payload actionPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.logger.Warnw("malformed action frame", "error", err)
			return
		}
		h.actionMu.Lock()
		callback := h.actions[payload.TicketID]
		h.actionMu.Unlock()
		if callback == nil {
			// Ticket already hidden or expired; the click races the hide.
			h.logger.Debugw("action for unknown ticket", "ticket_id", payload.TicketID)
			return
		}
		callback()
	default:
		h.logger.Debugw("ignoring unknown frame type", "type", frame.Type)
	}
}

// Broadcast sends a frame to every connected UI client. Send failures drop
// the connection; the UI reconnects on its own.
func (h *Hub) Broadcast(frameType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorw("failed to marshal broadcast payload", "type", frameType, "error", err)
		return
	}
	frame := Frame{Type: frameType, Payload: data}

	h.mu.RLock()
	clients := make([]*uiConn, 0, len(h.connections))
	for client := range h.connections {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.writeJSON(frame, h.writeTimeout); err != nil {
			h.logger.Infow("dropping ui client on write failure", "error", err)
			h.dropConnection(client)
			client.conn.Close()
		}
	}
}

// RegisterAction binds a ticket id to a callback invoked when a UI client
// sends the matching action frame.
func (h *Hub) RegisterAction(ticketID string, callback func()) {
	h.actionMu.Lock()
	defer h.actionMu.Unlock()
	h.actions[ticketID] = callback
}

// UnregisterAction removes the callback for a ticket. Safe to call for
// unknown tickets.
func (h *Hub) UnregisterAction(ticketID string) {
	h.actionMu.Lock()
	defer h.actionMu.Unlock()
	delete(h.actions, ticketID)
}
