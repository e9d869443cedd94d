package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

// StoryStatus tracks a story through the generation state machine.
// Statuses only move forward; there is no automatic regression.
type StoryStatus string

const (
	StoryStatusPending          StoryStatus = "pending"
	StoryStatusGeneratingScript StoryStatus = "generating_script"
	StoryStatusGeneratingAssets StoryStatus = "generating_assets"
	StoryStatusStitching        StoryStatus = "stitching"
	StoryStatusCompleted        StoryStatus = "completed"
	StoryStatusPartial          StoryStatus = "partial"
	StoryStatusFailed           StoryStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s StoryStatus) Terminal() bool {
	switch s {
	case StoryStatusCompleted, StoryStatusPartial, StoryStatusFailed:
		return true
	}
	return false
}

// Strategy identifies which generation path produced a scene's video clip.
type Strategy string

const (
	// StrategyPrimary is the external video service seeded with the reference image.
	StrategyPrimary Strategy = "primary"
	// StrategyPrimaryBare is the external video service without a reference image.
	StrategyPrimaryBare Strategy = "primary_bare"
	// StrategyFallback is the locally rendered Ken Burns clip. It never touches
	// the external video service.
	StrategyFallback Strategy = "fallback"
)

// TransitionKind is the transition applied at a scene boundary.
type TransitionKind string

const (
	TransitionNone      TransitionKind = "none"
	TransitionCrossfade TransitionKind = "crossfade"
	TransitionFade      TransitionKind = "fade"
	TransitionSlide     TransitionKind = "slide"
)

// Records

// Story is one generation request: a prompt plus delivery preferences,
// mutated only by the job runner as it advances through the state machine.
type Story struct {
	ID                    uuid.UUID   `json:"id"`
	Prompt                string      `json:"prompt"`
	TargetDurationSeconds float64     `json:"target_duration_seconds"`
	Voice                 *string     `json:"voice,omitempty"`
	VisualStyle           *string     `json:"visual_style,omitempty"`
	PacingProfile         string      `json:"pacing_profile"`
	Status                StoryStatus `json:"status"`
	ErrorMessage          *string     `json:"error_message,omitempty"`
	ArtifactPath          *string     `json:"artifact_path,omitempty"`
	TotalDurationSeconds  *float64    `json:"total_duration_seconds,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Scene is one shot within a story. Scene indices are contiguous 0..N-1.
// Audio/video paths are both nil until generated; a scene that took the
// fallback path may end with video set and audio nil.
type Scene struct {
	ID                     uuid.UUID `json:"id"`
	StoryID                uuid.UUID `json:"story_id"`
	SceneIndex             int       `json:"scene_index"`
	Narration              string    `json:"narration"`
	VisualDescription      string    `json:"visual_description"`
	PlannedDurationSeconds float64   `json:"planned_duration_seconds"`
	AudioPath              *string   `json:"audio_path,omitempty"`
	VideoPath              *string   `json:"video_path,omitempty"`
	ReferenceImagePath     *string   `json:"reference_image_path,omitempty"`
	Strategy               *Strategy `json:"strategy,omitempty"`
	AudioOK                bool      `json:"audio_ok"`
	ErrorMessage           *string   `json:"error_message,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// SceneTiming is the pacing plan for one scene. It is transient: consumed
// immediately to set Scene.PlannedDurationSeconds, never persisted itself.
type SceneTiming struct {
	SceneIndex         int
	DurationSeconds    float64
	EntryTransition    TransitionKind
	ExitTransition     TransitionKind
	TransitionDuration float64
}

// GenerationOutcome is the per-scene result reported by the orchestrator.
type GenerationOutcome struct {
	SceneID  uuid.UUID `json:"scene_id"`
	Index    int       `json:"scene_index"`
	OK       bool      `json:"ok"`
	Strategy Strategy  `json:"strategy,omitempty"`
	AudioOK  bool      `json:"audio_ok"`
	Err      string    `json:"error,omitempty"`
}

// BatchSummary aggregates outcomes for one story's asset generation phase.
// Succeeded counts scenes that ended with a clip from any strategy.
type BatchSummary struct {
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Outcomes  []GenerationOutcome `json:"outcomes"`
}

// DTOs for API responses

type CreateStoryRequest struct {
	Prompt                string   `json:"prompt"`
	TargetDurationSeconds *float64 `json:"target_duration_seconds,omitempty"` // Default: 60
	Voice                 *string  `json:"voice,omitempty"`
	VisualStyle           *string  `json:"visual_style,omitempty"`
	PacingProfile         *string  `json:"pacing_profile,omitempty"` // Default: "medium"
}

type CreateStoryResponse struct {
	StoryID uuid.UUID   `json:"story_id"`
	Status  StoryStatus `json:"status"`
}

type StoryResponse struct {
	Story
	Phase    string          `json:"phase"`
	Progress float64         `json:"progress"`
	Scenes   []SceneResponse `json:"scenes,omitempty"`
}

type SceneResponse struct {
	Scene
}

// StorySummary is a lightweight DTO for the list endpoint: no scenes array.
type StorySummary struct {
	ID                    uuid.UUID   `json:"id"`
	Prompt                string      `json:"prompt"`
	TargetDurationSeconds float64     `json:"target_duration_seconds"`
	Status                StoryStatus `json:"status"`
	ArtifactPath          *string     `json:"artifact_path,omitempty"`
	SceneCount            int         `json:"scene_count"`
	ErrorMessage          *string     `json:"error_message,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

type ListStoriesResponse struct {
	Stories []StorySummary `json:"stories"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}
