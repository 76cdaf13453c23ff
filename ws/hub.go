package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"callpilot.dev/dispatch"
	"callpilot.dev/ingest"
	"callpilot.dev/store"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type inboundMessage struct {
	Action string `json:"action"`
	ingest.Fragment
}

type registeredMessage struct {
	Type         string `json:"type"`
	CallID       string `json:"call_id"`
	ConnectionID string `json:"connection_id"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Hub owns the websocket connections: audio ingress from callers and
// dashboard egress to agents. It satisfies dispatch.Sender so the
// dispatcher can push frames to registered connections.
type Hub struct {
	store  store.Store
	mux    *ingest.Multiplexer
	logger *log.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	callID  string
}

func NewHub(st store.Store, mux *ingest.Multiplexer, logger *log.Logger) *Hub {
	return &Hub{
		store:  st,
		mux:    mux,
		logger: logger,
		conns:  make(map[string]*connection),
	}
}

var _ dispatch.Sender = (*Hub)(nil)

// Send pushes one text frame to a connection. A connection that is no
// longer tracked, or that fails the write, reports dispatch.ErrConnectionGone
// so the dispatcher evicts it.
func (h *Hub) Send(_ context.Context, connectionID string, payload []byte) error {
	h.mu.Lock()
	c, ok := h.conns[connectionID]
	h.mu.Unlock()
	if !ok {
		return dispatch.ErrConnectionGone
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.logger.Debug("websocket write failed",
			"connection_id", connectionID, "error", err)
		return dispatch.ErrConnectionGone
	}
	return nil
}

// ServeHTTP upgrades the request and runs the read loop until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	c := &connection{conn: conn}

	h.mu.Lock()
	h.conns[connectionID] = c
	h.mu.Unlock()

	h.logger.Info("websocket connected", "connection_id", connectionID)
	h.readLoop(r.Context(), connectionID, c)

	h.mu.Lock()
	delete(h.conns, connectionID)
	h.mu.Unlock()

	if c.callID != "" {
		if err := h.store.RemoveConnection(context.Background(), c.callID, connectionID); err != nil {
			h.logger.Warn("failed to deregister connection",
				"connection_id", connectionID, "error", err)
		}
	}
	conn.Close()
	h.logger.Info("websocket disconnected", "connection_id", connectionID)
}

func (h *Hub) readLoop(ctx context.Context, connectionID string, c *connection) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed",
					"connection_id", connectionID, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "invalid message")
			continue
		}

		switch msg.Action {
		case "register":
			h.handleRegister(ctx, connectionID, c, msg.CallID)
		case "audio_chunk":
			h.mux.HandleFragment(msg.Fragment)
		case "audio_end":
			h.mux.HandleEnd(msg.CallID)
		default:
			h.logger.Debug("ignoring unknown action",
				"connection_id", connectionID, "action", msg.Action)
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, connectionID string, c *connection, callID string) {
	if callID == "" {
		h.sendError(c, "register requires call_id")
		return
	}
	if err := h.store.RegisterConnection(ctx, callID, connectionID); err != nil {
		h.logger.Error("failed to register connection",
			"connection_id", connectionID, "call_id", callID, "error", err)
		h.sendError(c, "registration failed")
		return
	}
	c.callID = callID
	h.logger.Info("connection registered",
		"connection_id", connectionID, "call_id", callID)
	h.sendJSON(c, registeredMessage{
		Type:         "registered",
		CallID:       callID,
		ConnectionID: connectionID,
	})
}

func (h *Hub) sendError(c *connection, text string) {
	h.sendJSON(c, errorMessage{Type: "error", Error: text})
}

func (h *Hub) sendJSON(c *connection, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.TextMessage, payload)
}
