package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"anonchat/internal/models"
	"anonchat/internal/store"
	"anonchat/pkg/logger"
)

type RoomHandlers struct {
	store     *store.Store
	clientURL string
}

func NewRoomHandlers(s *store.Store, clientURL string) *RoomHandlers {
	return &RoomHandlers{store: s, clientURL: clientURL}
}

// CreateRoom handles POST /api/rooms. The response is the only place the
// owner secret is ever exposed.
func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.store.CreateRoom(req.TTLHours)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTTL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Create room error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateRoomResponse{
		RoomID:      room.ID,
		URL:         fmt.Sprintf("%s/room/%s", h.clientURL, room.ID),
		ExpiresAt:   room.ExpiresAt,
		OwnerSecret: room.OwnerSecret,
	})
}

// GetRoom handles GET /api/rooms/{roomID}. Expired rooms are 404s even
// before the sweeper gets to them.
func (h *RoomHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	room, err := h.store.GetRoom(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found or has expired")
		return
	}

	writeJSON(w, http.StatusOK, models.RoomInfoResponse{
		Room:             room,
		ParticipantCount: h.store.ParticipantCount(roomID),
	})
}

// RoomExists handles GET /api/rooms/{roomID}/exists. It never errors to
// the caller; anything unexpected degrades to exists=false.
func (h *RoomHandlers) RoomExists(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	_, err := h.store.GetRoom(roomID)
	writeJSON(w, http.StatusOK, models.RoomExistsResponse{Exists: err == nil})
}

// Health handles GET /health.
func (h *RoomHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
