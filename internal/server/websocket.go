package server

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jayramgit94/Zoom/internal/relay"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts everything when no origins are configured or "*" is
// listed. Requests without an Origin header come from native clients.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 || slices.Contains(s.origins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.Contains(s.origins, u.Scheme+"://"+u.Host)
}

// serveWS upgrades the connection and hands it to the hub under a fresh
// participant id.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Failed to upgrade connection")
		return
	}

	id := uuid.NewString()
	client := relay.NewClient(s.hub, conn, id, s.log)
	s.log.Debug().Str("client_id", id).Str("remote", r.RemoteAddr).Msg("Client connected")

	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
