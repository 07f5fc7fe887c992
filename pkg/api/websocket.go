package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suzxlabs/ytserver/pkg/logging"
)

const (
	controlWriteWait = 10 * time.Second
	maxClientMessage = 4096
)

// ServeWS upgrades the request, registers the session and keeps reading
// until the client goes away. Client messages carry no meaning and are
// discarded; reading is what detects a closed connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("WebSocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	id, err := h.sessions.Register(conn)
	if err != nil {
		h.logger.Warn("Session registration failed", logging.Fields{"error": err.Error(), "remote": r.RemoteAddr})
		return
	}
	defer h.sessions.Unregister(id)

	logger := h.logger.WithField("session", id)
	logger.Info("Client connected", logging.Fields{"remote": r.RemoteAddr})

	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("Connection closed unexpectedly", logging.Fields{"error": err.Error()})
			}
			break
		}
	}
	logger.Info("Client disconnected")
}

// keepAlive pings the client until done is closed. WriteControl may run
// concurrently with the registry's data writes.
func (h *Handler) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				return
			}
		}
	}
}
