package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 8 << 10
)

// GET /ws answers one query per text message with a JSON reply. Empty
// messages are ignored. The connection closes after a farewell.
func (s *Server) handleQuerySocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	ctx := r.Context()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("query socket read")
			}
			return
		}
		if kind != websocket.TextMessage || strings.TrimSpace(string(msg)) == "" {
			continue
		}

		reply, err := s.deps.Assistant.Ask(ctx, string(msg))
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err != nil {
			if werr := conn.WriteJSON(errorResponse{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if reply.Farewell {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
