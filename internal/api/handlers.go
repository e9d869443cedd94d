package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/db"
	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/pacing"
	"github.com/storyforge/storyforge/internal/progress"
	"github.com/storyforge/storyforge/internal/queue"
	"github.com/storyforge/storyforge/internal/storage"
)

const (
	defaultTargetDuration = 60.0
	minTargetDuration     = 10.0
	maxTargetDuration     = 180.0
)

type Handler struct {
	db      *db.DB
	queue   *queue.Queue
	storage *storage.Storage
	hub     *progress.Hub
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage, hub *progress.Hub) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
		hub:     hub,
	}
}

// CreateStory handles POST /v1/stories
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	targetDuration := defaultTargetDuration
	if req.TargetDurationSeconds != nil {
		targetDuration = *req.TargetDurationSeconds
	}
	if targetDuration < minTargetDuration || targetDuration > maxTargetDuration {
		respondError(w, http.StatusBadRequest, "target_duration_seconds must be between 10 and 180")
		return
	}

	profileName := ""
	if req.PacingProfile != nil {
		profileName = *req.PacingProfile
	}
	profile, err := pacing.ParseProfile(profileName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pacing_profile. Allowed: slow, medium, fast, dynamic")
		return
	}

	story := &models.Story{
		ID:                    uuid.New(),
		Prompt:                req.Prompt,
		TargetDurationSeconds: targetDuration,
		Voice:                 req.Voice,
		VisualStyle:           req.VisualStyle,
		PacingProfile:         string(profile),
		Status:                models.StoryStatusPending,
	}

	if err := h.db.CreateStory(r.Context(), story); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create story")
		return
	}

	if err := h.queue.EnqueueGenerateStory(r.Context(), story.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue story")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateStoryResponse{
		StoryID: story.ID,
		Status:  story.Status,
	})
}

// ListStories handles GET /v1/stories
// Query params:
//   - status: filter by story status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.StoryStatus(statusFilter) {
		case models.StoryStatusPending, models.StoryStatusGeneratingScript,
			models.StoryStatusGeneratingAssets, models.StoryStatusStitching,
			models.StoryStatusCompleted, models.StoryStatusPartial, models.StoryStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: pending, generating_script, generating_assets, stitching, completed, partial, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountStories(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count stories")
		return
	}

	stories, err := h.db.ListStories(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list stories")
		return
	}

	if stories == nil {
		stories = []models.StorySummary{}
	}

	respondJSON(w, http.StatusOK, models.ListStoriesResponse{
		Stories: stories,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetStory handles GET /v1/stories/{id}
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	story, err := h.db.GetStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Story not found")
		return
	}

	scenes, err := h.db.GetScenesByStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get scenes")
		return
	}

	response := models.StoryResponse{
		Story:    *story,
		Phase:    string(story.Status),
		Progress: storyProgress(story.Status, scenes),
	}
	for _, scene := range scenes {
		response.Scenes = append(response.Scenes, models.SceneResponse{Scene: scene})
	}

	respondJSON(w, http.StatusOK, response)
}

// GetStoryScenes handles GET /v1/stories/{id}/scenes — per-scene status for
// debugging partial results.
func (h *Handler) GetStoryScenes(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	if _, err := h.db.GetStory(r.Context(), storyID); err != nil {
		respondError(w, http.StatusNotFound, "Story not found")
		return
	}

	scenes, err := h.db.GetScenesByStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get scenes")
		return
	}
	if scenes == nil {
		scenes = []models.Scene{}
	}

	respondJSON(w, http.StatusOK, scenes)
}

// GetStoryScene handles GET /v1/stories/{id}/scenes/{index}
func (h *Handler) GetStoryScene(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "Invalid scene index")
		return
	}

	scene, err := h.db.GetScene(r.Context(), storyID, index)
	if err == db.ErrSceneNotFound {
		respondError(w, http.StatusNotFound, "Scene not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get scene")
		return
	}

	respondJSON(w, http.StatusOK, scene)
}

// GetStoryDownload handles GET /v1/stories/{id}/download
func (h *Handler) GetStoryDownload(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	story, err := h.db.GetStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Story not found")
		return
	}

	if story.ArtifactPath == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	// The record can outlive the object (manual bucket cleanup); verify
	// before handing out a dead link.
	ok, err := h.storage.Exists(r.Context(), *story.ArtifactPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check artifact")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "Video artifact is gone")
		return
	}

	// Signed URL valid for one hour
	signedURL, err := h.storage.GetSignedURL(r.Context(), *story.ArtifactPath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// DeleteStory handles DELETE /v1/stories/{id}. Stories still in flight cannot
// be deleted.
func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	story, err := h.db.GetStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Story not found")
		return
	}

	if !story.Status.Terminal() && story.Status != models.StoryStatusPending {
		respondError(w, http.StatusConflict, "Story is still generating")
		return
	}

	if err := h.db.DeleteStory(r.Context(), storyID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete story")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// storyProgress derives a fractional progress figure from persisted state,
// for status polls between push events.
func storyProgress(status models.StoryStatus, scenes []models.Scene) float64 {
	switch status {
	case models.StoryStatusPending:
		return 0
	case models.StoryStatusGeneratingScript:
		return 0.05
	case models.StoryStatusGeneratingAssets:
		if len(scenes) == 0 {
			return 0.15
		}
		done := 0
		for _, scene := range scenes {
			if scene.VideoPath != nil || scene.ErrorMessage != nil {
				done++
			}
		}
		return 0.15 + 0.70*float64(done)/float64(len(scenes))
	case models.StoryStatusStitching:
		return 0.85
	default:
		return 1.0
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
