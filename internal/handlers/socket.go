package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"multidisplay/internal/signage"
	"multidisplay/pkg/realtime"
	"multidisplay/pkg/versioned"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxCommandSize = 4096
	sseKeepAlive   = 25 * time.Second
)

// SocketHandler serves the long-lived display and controller connections.
// These routes must not sit behind a request timeout.
type SocketHandler struct {
	broadcaster *signage.Broadcaster
	log         zerolog.Logger
	outboxSize  int
	upgrader    websocket.Upgrader
}

func NewSocketHandler(b *signage.Broadcaster, log zerolog.Logger, outboxSize int) *SocketHandler {
	return &SocketHandler{
		broadcaster: b,
		log:         log.With().Str("component", "socket").Logger(),
		outboxSize:  outboxSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *SocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/controller", h.controllerSocket)
	r.Get("/client/{name}/connection", h.clientSocket)
	r.Get("/client/{name}/stream", h.clientStream)
}

func (h *SocketHandler) clientSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := versioned.ValidateKey(name); err != nil {
		http.Error(w, "invalid client name", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("client", name).Msg("websocket upgrade failed")
		return
	}

	outbox := realtime.NewOutbox(h.outboxSize)
	done := make(chan struct{})
	go h.writePump(conn, outbox, done)

	session := h.broadcaster.ConnectClient(name, outbox)
	h.readPump(conn, nil)
	h.broadcaster.DisconnectClient(session)
	outbox.Close()
	<-done
}

func (h *SocketHandler) controllerSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	outbox := realtime.NewOutbox(h.outboxSize)
	done := make(chan struct{})
	go h.writePump(conn, outbox, done)

	session := h.broadcaster.ConnectController(outbox)
	h.readPump(conn, func(msg []byte) {
		if err := h.broadcaster.Command(string(msg)); err != nil {
			h.log.Warn().Err(err).Str("session", session.ID).Msg("controller command rejected")
		}
	})
	h.broadcaster.DisconnectController(session)
	outbox.Close()
	<-done
}

// readPump blocks until the connection fails or closes, passing each text
// frame to onMessage.
func (h *SocketHandler) readPump(conn *websocket.Conn, onMessage func([]byte)) {
	defer conn.Close()
	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if onMessage != nil && kind == websocket.TextMessage {
			onMessage(msg)
		}
	}
}

// writePump is the only writer of data frames on conn. It exits when the
// outbox closes or a write fails; either way the connection is closed so
// the read pump unblocks.
func (h *SocketHandler) writePump(conn *websocket.Conn, outbox *realtime.Outbox, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()
	for {
		select {
		case msg, ok := <-outbox.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientStream serves a display over server-sent events for browsers or
// kiosks that cannot hold a websocket open.
func (h *SocketHandler) clientStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := versioned.ValidateKey(name); err != nil {
		http.Error(w, "invalid client name", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	outbox := realtime.NewOutbox(h.outboxSize)
	session := h.broadcaster.ConnectClient(name, outbox)
	defer func() {
		h.broadcaster.DisconnectClient(session)
		outbox.Close()
	}()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-outbox.C():
			if !ok {
				return
			}
			if err := writeSSE(w, "message", string(msg)); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data string) error {
	var b strings.Builder
	b.WriteString("event: " + event + "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
