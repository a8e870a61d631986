// Package server exposes the relay over HTTP: the signaling websocket, the
// health check and the meeting-history API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jayramgit94/Zoom/internal/auth"
	"github.com/jayramgit94/Zoom/internal/history"
	"github.com/jayramgit94/Zoom/internal/relay"
	"github.com/jayramgit94/Zoom/internal/version"
	"github.com/rs/zerolog"
)

// Server holds the relay's HTTP dependencies.
type Server struct {
	hub     *relay.Hub
	history history.Service
	secret  string
	origins []string
	log     zerolog.Logger
	started time.Time
}

// Config wires a Server.
type Config struct {
	Hub            *relay.Hub
	History        history.Service
	JWTSecret      string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

func New(cfg Config) *Server {
	return &Server{
		hub:     cfg.Hub,
		history: cfg.History,
		secret:  cfg.JWTSecret,
		origins: cfg.AllowedOrigins,
		log:     cfg.Logger,
		started: time.Now(),
	}
}

// Router builds the relay's routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ws", s.serveWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rooms/{key}", s.room)

		h := history.NewHandler(s.history)
		r.Route("/meetings", func(r chi.Router) {
			r.Use(auth.Middleware(s.secret))
			r.Get("/", h.List)
			r.Post("/", h.Record)
		})
	})

	return r
}

// requestLogger attaches the server logger to the request context and logs
// each non-websocket request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(l.WithContext(r.Context()))

		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("Request")
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Rooms   int    `json:"rooms"`
	History string `json:"history"`
	Uptime  string `json:"uptime"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Rooms:   s.hub.Registry().RoomCount(),
		History: s.history.Backend(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

type roomResponse struct {
	RoomKey      string `json:"room_key"`
	Participants int    `json:"participants"`
}

func (s *Server) room(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, roomResponse{
		RoomKey:      key,
		Participants: len(s.hub.Registry().Members(key)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
