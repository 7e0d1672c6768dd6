package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/eventbus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades a request into a WebSocket stream of one execution's
// DomainEvent log, grounded on the teacher's websocket.Handler but
// stripped of the Hub/subscription-command layer: the executionID to
// stream is fixed by the URL, not chosen by a client command sent after
// connect, since SPEC_FULL.md scopes this surface to a minimal
// execution-event subscriber rather than a general pub/sub hub.
type Handler struct {
	bus  eventbus.EventBus
	auth Authenticator
	log  zerolog.Logger
}

func NewHandler(bus eventbus.EventBus, auth Authenticator, log zerolog.Logger) *Handler {
	return &Handler{bus: bus, auth: auth, log: log}
}

// ServeHTTP authenticates the caller, upgrades the connection, and pumps
// every DomainEvent published to the bus whose ExecutionID matches the
// "execution_id" path value set by the router, until the client
// disconnects or the bus subscription closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, executionID string) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	sub := h.bus.Subscribe(sendBufferSize)
	h.log.Info().Str("client_id", clientID).Str("user_id", userID).Str("execution_id", executionID).Msg("websocket client connected")

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, domain.ExecutionID(executionID), done)

	sub.Close()
	conn.Close()
}

// readPump exists only to drain and discard client frames (pings,
// unsolicited text) and to notice disconnects; this stream never accepts
// commands from the client.
func (h *Handler) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub eventbus.Subscription, executionID domain.ExecutionID, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.ExecutionID != executionID {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			body, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
			if ev.Type == domain.EventExecutionCompleted || ev.Type == domain.EventExecutionFailed {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
