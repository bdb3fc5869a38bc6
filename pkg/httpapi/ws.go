package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass"
)

// handleWS serves the RPC protocol over a WebSocket connection. Each text
// frame carries one rpc request object and is answered with one envelope
// frame, in order. Malformed frames get a failure envelope; the connection
// stays open.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.With().Str("session", uuid.NewString()).Logger()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket session opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket session ended")
			}
			return
		}

		var env anyclass.Envelope
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			env = anyclass.Fail(&anyclass.ValidationError{
				Reason: fmt.Sprintf("invalid request frame: %v", err),
			})
		} else {
			env, _ = s.dispatchRequest(r.Context(), req)
		}
		if !writeFrame(conn, env, log) {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, env anyclass.Envelope, log zerolog.Logger) bool {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("marshal envelope")
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}
