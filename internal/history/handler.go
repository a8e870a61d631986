package history

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jayramgit94/Zoom/internal/auth"
	"github.com/rs/zerolog"
)

type recordRequest struct {
	RoomKey   string    `json:"room_key"`
	Timestamp time.Time `json:"timestamp"`
}

type listResponse struct {
	Meetings []Meeting `json:"meetings"`
}

// Handler serves the meeting history API. Routes must sit behind
// auth.Middleware.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Record handles POST /api/v1/meetings.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	var req recordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	if err := h.svc.RecordMeeting(r.Context(), userID, req.RoomKey, req.Timestamp); err != nil {
		if errors.Is(err, ErrEmptyRoomKey) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", userID).Msg("Failed to record meeting")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record meeting"})
		return
	}

	writeJSON(w, http.StatusCreated, Meeting{RoomKey: req.RoomKey, Timestamp: req.Timestamp.UTC()})
}

// List handles GET /api/v1/meetings.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	meetings, err := h.svc.ListMeetings(r.Context(), userID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", userID).Msg("Failed to list meetings")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list meetings"})
		return
	}
	if meetings == nil {
		meetings = []Meeting{}
	}
	writeJSON(w, http.StatusOK, listResponse{Meetings: meetings})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
