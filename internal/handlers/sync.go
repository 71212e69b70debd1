package handlers

import (
	"net/http"

	"story-offline/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SyncHandler exposes the pending queue and manual sync runs
type SyncHandler struct {
	coordinator *services.SyncCoordinator
	stories     *services.StoryService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(coordinator *services.SyncCoordinator, stories *services.StoryService) *SyncHandler {
	return &SyncHandler{
		coordinator: coordinator,
		stories:     stories,
	}
}

// Routes mounts the sync routes on r
func (h *SyncHandler) Routes(r chi.Router) {
	r.Get("/pending", h.ListPending)
	r.Post("/sync", h.Sync)
}

// ListPending handles GET /api/v1/pending
func (h *SyncHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.stories.Pending(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending stories")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"total":   len(pending),
	})
}

// Sync handles POST /api/v1/sync. A run already in flight yields 409.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report := h.coordinator.Run(r.Context())
	if report.Skipped {
		respondJSON(w, http.StatusConflict, report)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
