package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/pacing"
	"github.com/storyforge/storyforge/internal/progress"
	"github.com/storyforge/storyforge/internal/queue"
	"github.com/storyforge/storyforge/internal/resilience"
	"github.com/storyforge/storyforge/internal/services"
)

// maxJobAttempts caps how often a story is requeued after a fast-fail from an
// open circuit before it is marked failed.
const maxJobAttempts = 3

// Progress fractions at phase boundaries. Asset generation owns the span
// between assetsStart and stitchStart, divided per completed scene.
const (
	scriptProgress = 0.05
	planProgress   = 0.15
	stitchProgress = 0.85
)

// Store is the persistence surface the runner needs.
type Store interface {
	GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error)
	UpdateStoryStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error
	UpdateStoryError(ctx context.Context, id uuid.UUID, status models.StoryStatus, errorMessage string) error
	SetStoryArtifact(ctx context.Context, id uuid.UUID, status models.StoryStatus, artifactPath string, totalSeconds float64) error
	CreateScenes(ctx context.Context, scenes []models.Scene) error
	UpdateSceneAssets(ctx context.Context, scene *models.Scene) error
}

// ScriptGenerator produces the storyboard for a prompt.
type ScriptGenerator interface {
	GenerateStoryboard(ctx context.Context, prompt string, targetDuration float64, visualStyle string) (*services.Storyboard, error)
}

// SceneBatcher runs asset generation across all scenes.
type SceneBatcher interface {
	GenerateAll(ctx context.Context, story *models.Story, scenes []models.Scene, onSceneDone func(models.GenerationOutcome)) models.BatchSummary
}

// Assembler stitches a story's successful scenes into the final artifact and
// returns its storage path and total duration.
type Assembler interface {
	Assemble(ctx context.Context, story *models.Story, scenes []models.Scene) (string, float64, error)
}

// JobQueue is the slice of the queue the runner consumes from and requeues to.
type JobQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	Enqueue(ctx context.Context, queueName string, job *queue.Job) error
}

// Runner drives one story at a time through the generation state machine.
// Run several runners concurrently to process stories in parallel.
type Runner struct {
	store     Store
	jobs      JobQueue
	script    ScriptGenerator
	batcher   SceneBatcher
	assembler Assembler
	registry  *resilience.Registry
	hub       *progress.Hub

	defaultProfile pacing.Profile
}

func NewRunner(
	store Store,
	jobs JobQueue,
	script ScriptGenerator,
	batcher SceneBatcher,
	assembler Assembler,
	registry *resilience.Registry,
	hub *progress.Hub,
	defaultProfile pacing.Profile,
) *Runner {
	return &Runner{
		store:          store,
		jobs:           jobs,
		script:         script,
		batcher:        batcher,
		assembler:      assembler,
		registry:       registry,
		hub:            hub,
		defaultProfile: defaultProfile,
	}
}

// Start consumes generation jobs until ctx is cancelled. Dequeue blocks in
// short intervals so shutdown is prompt.
func (r *Runner) Start(ctx context.Context) {
	log.Printf("[Runner] started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Runner] stopping")
			return
		default:
		}

		job, err := r.jobs.Dequeue(ctx, queue.QueueGenerateStory, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Runner] dequeue error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := r.Process(ctx, job); err != nil {
			log.Printf("[Runner] story %s failed: %v", job.StoryID, err)
		}
	}
}

// Process runs one story through the full pipeline. The returned error is the
// terminal failure, already persisted; callers only log it.
func (r *Runner) Process(ctx context.Context, job *queue.Job) error {
	story, err := r.store.GetStory(ctx, job.StoryID)
	if err != nil {
		return fmt.Errorf("failed to load story %s: %w", job.StoryID, err)
	}

	if story.Status.Terminal() {
		log.Printf("[Runner] story %s already %s, skipping", story.ID, story.Status)
		return nil
	}

	log.Printf("[Runner] story %s: starting (attempt %d)", story.ID, job.Attempts+1)

	scenes, err := r.runScriptPhase(ctx, story)
	if err != nil {
		var scriptErr *ScriptGenerationError
		if errors.As(err, &scriptErr) && errors.Is(scriptErr.Err, resilience.ErrCircuitOpen) && job.Attempts+1 < maxJobAttempts {
			// Circuit open is a backpressure signal, not a verdict on this
			// particular story. Requeue instead of burning an attempt chain.
			log.Printf("[Runner] story %s: script circuit open, requeueing (attempt %d)", story.ID, job.Attempts+1)
			requeued := &queue.Job{ID: uuid.New(), Type: job.Type, StoryID: job.StoryID, Attempts: job.Attempts + 1}
			if qerr := r.jobs.Enqueue(ctx, queue.QueueGenerateStory, requeued); qerr == nil {
				return nil
			}
		}
		return r.fail(ctx, story, err)
	}

	summary, err := r.runAssetPhase(ctx, story, scenes)
	if err != nil {
		return r.fail(ctx, story, err)
	}

	finalStatus, artifactPath, totalSeconds, err := r.runStitchPhase(ctx, story, scenes, summary)
	if err != nil {
		return r.fail(ctx, story, err)
	}

	if err := r.store.SetStoryArtifact(ctx, story.ID, finalStatus, artifactPath, totalSeconds); err != nil {
		return r.fail(ctx, story, fmt.Errorf("failed to record artifact: %w", err))
	}

	r.publish(story.ID, string(finalStatus), 1.0, "story complete")
	r.hub.Forget(story.ID)
	log.Printf("[Runner] story %s: %s (%.1fs artifact)", story.ID, finalStatus, totalSeconds)
	return nil
}

// runScriptPhase generates the storyboard, paces it, and persists the scene
// list.
func (r *Runner) runScriptPhase(ctx context.Context, story *models.Story) ([]models.Scene, error) {
	if err := r.setStatus(ctx, story, models.StoryStatusGeneratingScript); err != nil {
		return nil, err
	}
	r.publish(story.ID, string(models.StoryStatusGeneratingScript), scriptProgress, "writing storyboard")

	visualStyle := ""
	if story.VisualStyle != nil {
		visualStyle = *story.VisualStyle
	}

	var board *services.Storyboard
	err := r.registry.Call(ctx, resilience.ServiceScript, func(ctx context.Context) error {
		var err error
		board, err = r.script.GenerateStoryboard(ctx, story.Prompt, story.TargetDurationSeconds, visualStyle)
		return err
	})
	if err != nil {
		return nil, &ScriptGenerationError{Err: err}
	}

	profile, err := pacing.ParseProfile(story.PacingProfile)
	if err != nil {
		profile = r.defaultProfile
	}

	wordCounts := make([]int, len(board.Scenes))
	for i, scene := range board.Scenes {
		wordCounts[i] = pacing.WordCount(scene.Narration)
	}

	timings, err := pacing.Plan(wordCounts, story.TargetDurationSeconds, profile)
	if err != nil {
		return nil, &ScriptGenerationError{Err: fmt.Errorf("pacing plan failed: %w", err)}
	}

	scenes := make([]models.Scene, len(board.Scenes))
	for i, plan := range board.Scenes {
		scenes[i] = models.Scene{
			ID:                     uuid.New(),
			StoryID:                story.ID,
			SceneIndex:             i,
			Narration:              plan.Narration,
			VisualDescription:      plan.VisualDescription,
			PlannedDurationSeconds: timings[i].DurationSeconds,
		}
	}

	if err := r.store.CreateScenes(ctx, scenes); err != nil {
		return nil, fmt.Errorf("failed to persist scenes: %w", err)
	}

	r.publish(story.ID, string(models.StoryStatusGeneratingScript), planProgress,
		fmt.Sprintf("storyboard ready: %d scenes", len(scenes)))
	return scenes, nil
}

// runAssetPhase generates every scene's assets, persisting and reporting each
// scene as it lands.
func (r *Runner) runAssetPhase(ctx context.Context, story *models.Story, scenes []models.Scene) (models.BatchSummary, error) {
	if err := r.setStatus(ctx, story, models.StoryStatusGeneratingAssets); err != nil {
		return models.BatchSummary{}, err
	}
	r.publish(story.ID, string(models.StoryStatusGeneratingAssets), planProgress, "generating scene assets")

	total := len(scenes)
	var (
		mu   sync.Mutex
		done int
	)

	// Invoked concurrently from worker goroutines.
	summary := r.batcher.GenerateAll(ctx, story, scenes, func(outcome models.GenerationOutcome) {
		if outcome.Index >= 0 && outcome.Index < total {
			if err := r.store.UpdateSceneAssets(ctx, &scenes[outcome.Index]); err != nil {
				log.Printf("[Runner] story %s: failed to persist scene %d: %v", story.ID, outcome.Index, err)
			}
		}

		mu.Lock()
		done++
		fraction := planProgress + (stitchProgress-planProgress)*float64(done)/float64(total)
		mu.Unlock()
		msg := fmt.Sprintf("scene %d done", outcome.Index)
		if !outcome.OK {
			sceneErr := &SceneAssetError{SceneIndex: outcome.Index, Err: errors.New(outcome.Err)}
			log.Printf("[Runner] story %s: %v", story.ID, sceneErr)
			msg = sceneErr.Error()
		}
		r.publish(story.ID, string(models.StoryStatusGeneratingAssets), fraction, msg)
	})

	if summary.Succeeded == 0 {
		return summary, fmt.Errorf("all %d scenes failed asset generation", total)
	}
	return summary, nil
}

// runStitchPhase assembles the successful scenes and decides the terminal
// status: completed when every scene came through the primary path with
// audio, partial when anything was degraded, and the artifact is kept either
// way.
func (r *Runner) runStitchPhase(ctx context.Context, story *models.Story, scenes []models.Scene, summary models.BatchSummary) (models.StoryStatus, string, float64, error) {
	if err := r.setStatus(ctx, story, models.StoryStatusStitching); err != nil {
		return "", "", 0, err
	}
	r.publish(story.ID, string(models.StoryStatusStitching), stitchProgress, "stitching final video")

	var stitchable []models.Scene
	for _, scene := range scenes {
		if scene.VideoPath != nil {
			stitchable = append(stitchable, scene)
		}
	}
	if len(stitchable) == 0 {
		return "", "", 0, &StitchError{Err: fmt.Errorf("no scenes with video to stitch")}
	}

	artifactPath, totalSeconds, err := r.assembler.Assemble(ctx, story, stitchable)
	if err != nil {
		return "", "", 0, &StitchError{Err: err}
	}

	return r.finalStatus(scenes, summary), artifactPath, totalSeconds, nil
}

// finalStatus downgrades completed to partial when any scene failed outright,
// fell back to locally rendered motion, or lost its narration.
func (r *Runner) finalStatus(scenes []models.Scene, summary models.BatchSummary) models.StoryStatus {
	if summary.Failed > 0 {
		return models.StoryStatusPartial
	}
	for _, scene := range scenes {
		if scene.Strategy != nil && *scene.Strategy == models.StrategyFallback {
			return models.StoryStatusPartial
		}
		if !scene.AudioOK {
			return models.StoryStatusPartial
		}
	}
	return models.StoryStatusCompleted
}

func (r *Runner) setStatus(ctx context.Context, story *models.Story, status models.StoryStatus) error {
	if err := r.store.UpdateStoryStatus(ctx, story.ID, status); err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	story.Status = status
	return nil
}

// fail marks the story failed, persists the message, and closes out progress.
func (r *Runner) fail(ctx context.Context, story *models.Story, cause error) error {
	if err := r.store.UpdateStoryError(ctx, story.ID, models.StoryStatusFailed, cause.Error()); err != nil {
		log.Printf("[Runner] story %s: failed to persist error: %v", story.ID, err)
	}
	r.publish(story.ID, string(models.StoryStatusFailed), 1.0, cause.Error())
	r.hub.Forget(story.ID)
	return cause
}

func (r *Runner) publish(storyID uuid.UUID, phase string, fraction float64, message string) {
	r.hub.Publish(progress.Event{
		StoryID:  storyID,
		Phase:    phase,
		Fraction: fraction,
		Message:  message,
	})
}
