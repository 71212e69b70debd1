package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"story-offline/internal/models"
	"story-offline/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxUploadSize = 10 << 20

// StoryHandler handles story-related HTTP requests
type StoryHandler struct {
	query   *services.QueryService
	stories *services.StoryService
}

// NewStoryHandler creates a new story handler
func NewStoryHandler(query *services.QueryService, stories *services.StoryService) *StoryHandler {
	return &StoryHandler{
		query:   query,
		stories: stories,
	}
}

// Routes mounts the story routes on r
func (h *StoryHandler) Routes(r chi.Router) {
	r.Get("/stories", h.ListStories)
	r.Post("/stories", h.SubmitStory)
	r.Get("/stories/search", h.SearchStories)
	r.Get("/stories/{id}", h.GetStory)
	r.Put("/stories/{id}", h.SaveStory)
	r.Delete("/stories/{id}", h.DeleteStory)
}

// ListStories handles GET /api/v1/stories
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	res, err := h.query.Refresh(r.Context(), h.stories.Fetch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stories")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("X-Data-Source", string(res.Source))
	respondJSON(w, http.StatusOK, map[string]any{
		"stories": res.Stories,
		"source":  res.Source,
		"offline": res.Offline(),
	})
}

// SearchStories handles GET /api/v1/stories/search?q=
func (h *StoryHandler) SearchStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.query.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to search stories")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("X-Data-Source", string(models.SourceCache))
	respondJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

// GetStory handles GET /api/v1/stories/{id}
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	story, found, err := h.query.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("story_id", id).Msg("Failed to get story")
		respondError(w, err.Error(), statusFor(err))
		return
	}
	if !found {
		respondError(w, "story not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, story)
}

// SaveStory handles PUT /api/v1/stories/{id}
func (h *StoryHandler) SaveStory(w http.ResponseWriter, r *http.Request) {
	var story models.Story
	if err := json.NewDecoder(r.Body).Decode(&story); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	story.ID = chi.URLParam(r, "id")

	saved, err := h.stories.Save(r.Context(), &story)
	if err != nil {
		log.Error().Err(err).Str("story_id", story.ID).Msg("Failed to save story")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, saved)
}

// DeleteStory handles DELETE /api/v1/stories/{id}
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.stories.Delete(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("story_id", id).Msg("Failed to delete story")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// SubmitStory handles POST /api/v1/stories (multipart: name, description,
// photo, optional lat/lon)
func (h *StoryHandler) SubmitStory(w http.ResponseWriter, r *http.Request) {
	draft, msg := parseNewStory(w, r)
	if msg != "" {
		respondError(w, msg, http.StatusBadRequest)
		return
	}

	res, err := h.stories.Submit(r.Context(), draft)
	if err != nil {
		log.Error().Err(err).Msg("Failed to submit story")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	status := http.StatusCreated
	if res.Status == models.SubmitQueued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

// parseNewStory reads the multipart form; a non-empty message describes
// what was wrong with it
func parseNewStory(w http.ResponseWriter, r *http.Request) (*models.NewStory, string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "Invalid multipart form"
	}
	defer r.MultipartForm.RemoveAll()

	draft := &models.NewStory{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if draft.Description == "" {
		return nil, "description is required"
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		return nil, "photo is required"
	}
	defer file.Close()

	draft.Photo, err = io.ReadAll(file)
	if err != nil || len(draft.Photo) == 0 {
		return nil, "photo is empty"
	}
	draft.ContentType = header.Header.Get("Content-Type")
	if draft.ContentType == "" {
		draft.ContentType = http.DetectContentType(draft.Photo)
	}

	latStr, lonStr := r.FormValue("lat"), r.FormValue("lon")
	if latStr == "" && lonStr == "" {
		return draft, ""
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return nil, "lat and lon must both be numbers"
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, "lat or lon out of range"
	}
	draft.Location = &models.Location{Lat: lat, Lon: lon}
	return draft, ""
}
