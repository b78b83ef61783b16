package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aurascope/aurascope/internal/session"
)

const (
	// streamBuffer must absorb a normalization burst; a panel that
	// falls this far behind is dropped and reconnects.
	streamBuffer = 256

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Panels connect from extension and devtools origins while the daemon
// listens on loopback only, so origin checking buys nothing here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream serves the live call feed. On connect the current
// session log is replayed as record events, then appends and clears
// follow as they happen. The first connected panel attaches the
// capture adapter; the last one to leave detaches it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade stream connection", "error", err)
		return
	}
	defer conn.Close()

	// Attach before subscribing so drained records show up in the
	// snapshot instead of racing the event channel.
	s.adapter.Attach()
	defer s.adapter.Detach()

	snapshot, events, cancel := s.log.SubscribeWithSnapshot(streamBuffer)
	defer cancel()

	requestID := GetRequestID(r.Context())
	s.logger.Info("stream connected",
		"request_id", requestID,
		"replay", len(snapshot),
	)

	for _, rec := range snapshot {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(session.Event{Kind: session.EventRecord, Record: rec}); err != nil {
			s.logger.Debug("stream replay write failed", "request_id", requestID, "error", err)
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
					websocket.CloseNoStatusReceived) {
					s.logger.Debug("stream read error", "request_id", requestID, "error", err)
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// The log dropped this subscriber for falling behind.
				// Closing makes the panel reconnect and re-replay.
				s.logger.Warn("stream subscriber fell behind, closing", "request_id", requestID)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("stream write failed", "request_id", requestID, "error", err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			s.logger.Info("stream disconnected", "request_id", requestID)
			return
		}
	}
}
