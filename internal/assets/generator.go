package assets

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/storyforge/storyforge/internal/media"
	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/resilience"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/storage"
)

// ImageGenerator produces a still reference image for a scene.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description, visualStyle string) ([]byte, error)
}

// AssetStore persists generated bytes and local files.
type AssetStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
}

// Generator produces all assets for a single scene: narration audio on one
// track, and a video clip on the other, with the clip falling through an
// ordered strategy chain until something sticks.
type Generator struct {
	registry *resilience.Registry
	images   ImageGenerator
	video    services.VideoGenerator
	speech   services.SpeechService
	engine   media.Engine
	store    AssetStore
}

func NewGenerator(
	registry *resilience.Registry,
	images ImageGenerator,
	video services.VideoGenerator,
	speech services.SpeechService,
	engine media.Engine,
	store AssetStore,
) *Generator {
	return &Generator{
		registry: registry,
		images:   images,
		video:    video,
		speech:   speech,
		engine:   engine,
		store:    store,
	}
}

// sceneWork carries the in-flight state for one scene's generation.
type sceneWork struct {
	story *models.Story
	scene *models.Scene

	referenceImage []byte // nil when image generation failed
	localImagePath string // set once the reference image is written to disk
}

// strategyStep is one entry in the video fallback chain. available reports
// whether the step's inputs exist; run produces the clip's storage path.
type strategyStep struct {
	name      models.Strategy
	available func(w *sceneWork) bool
	run       func(ctx context.Context, w *sceneWork) (string, error)
}

// GenerateScene produces audio and video for one scene. The audio and visual
// tracks run concurrently and fail independently; a scene succeeds as long as
// it ends with a video clip from any strategy. The scene record is mutated
// with asset paths and outcome fields but not persisted here.
func (g *Generator) GenerateScene(ctx context.Context, story *models.Story, scene *models.Scene) models.GenerationOutcome {
	outcome := models.GenerationOutcome{
		SceneID: scene.ID,
		Index:   scene.SceneIndex,
	}

	work := &sceneWork{story: story, scene: scene}

	grp, grpCtx := errgroup.WithContext(ctx)

	var audioErr error
	grp.Go(func() error {
		audioErr = g.generateAudio(grpCtx, work)
		return nil // audio failure never cancels the visual track
	})

	var videoErr error
	grp.Go(func() error {
		videoErr = g.generateVideo(grpCtx, work)
		return nil
	})

	grp.Wait()

	if work.localImagePath != "" {
		g.engine.Cleanup(work.localImagePath)
	}

	if audioErr != nil {
		log.Printf("[Assets] scene %d: audio failed: %v", scene.SceneIndex, audioErr)
		scene.AudioOK = false
	}

	if videoErr != nil {
		msg := videoErr.Error()
		scene.ErrorMessage = &msg
		outcome.OK = false
		outcome.Err = msg
		outcome.AudioOK = scene.AudioOK
		return outcome
	}

	outcome.OK = true
	outcome.AudioOK = scene.AudioOK
	if scene.Strategy != nil {
		outcome.Strategy = *scene.Strategy
	}
	return outcome
}

// generateAudio synthesizes narration and stores it. Sets AudioPath and
// AudioOK on success.
func (g *Generator) generateAudio(ctx context.Context, w *sceneWork) error {
	voice := ""
	if w.story.Voice != nil {
		voice = *w.story.Voice
	}

	var speech *services.SpeechResponse
	err := g.registry.Call(ctx, resilience.ServiceSpeech, func(ctx context.Context) error {
		var err error
		speech, err = g.speech.GenerateSpeech(ctx, w.scene.Narration, voice)
		return err
	})
	if err != nil {
		return fmt.Errorf("speech generation failed: %w", err)
	}

	path := storage.SavePath(w.story.ID, storage.CategoryAudio, fmt.Sprintf("scene_%d.mp3", w.scene.SceneIndex))
	if err := g.store.Upload(ctx, path, speech.AudioData, "audio/mpeg"); err != nil {
		return fmt.Errorf("audio upload failed: %w", err)
	}

	w.scene.AudioPath = &path
	w.scene.AudioOK = true
	return nil
}

// generateVideo walks the strategy chain in order until one produces a clip.
// The reference image is generated first, best effort: its failure just
// disqualifies the strategies that need it.
func (g *Generator) generateVideo(ctx context.Context, w *sceneWork) error {
	g.generateReferenceImage(ctx, w)

	var lastErr error
	for _, step := range g.strategyChain() {
		if !step.available(w) {
			continue
		}

		clipPath, err := step.run(ctx, w)
		if err != nil {
			log.Printf("[Assets] scene %d: strategy %s failed: %v", w.scene.SceneIndex, step.name, err)
			lastErr = err
			continue
		}

		strategy := step.name
		w.scene.VideoPath = &clipPath
		w.scene.Strategy = &strategy
		log.Printf("[Assets] scene %d: clip produced via %s", w.scene.SceneIndex, step.name)
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("all video strategies failed, last: %w", lastErr)
	}
	return fmt.Errorf("no video strategy was applicable")
}

// strategyChain is the ordered fallback list: external generation seeded with
// the reference image, external generation from the prompt alone, then a
// locally rendered Ken Burns clip. The last step never touches the video
// service, so an open video breaker cannot block it.
func (g *Generator) strategyChain() []strategyStep {
	return []strategyStep{
		{
			name:      models.StrategyPrimary,
			available: func(w *sceneWork) bool { return g.video != nil && w.referenceImage != nil },
			run: func(ctx context.Context, w *sceneWork) (string, error) {
				return g.runExternalVideo(ctx, w, w.referenceImage)
			},
		},
		{
			name:      models.StrategyPrimaryBare,
			available: func(w *sceneWork) bool { return g.video != nil },
			run: func(ctx context.Context, w *sceneWork) (string, error) {
				return g.runExternalVideo(ctx, w, nil)
			},
		},
		{
			name:      models.StrategyFallback,
			available: func(w *sceneWork) bool { return true },
			run:       g.runKenBurns,
		},
	}
}

// generateReferenceImage is best effort: a failed image leaves the chain to
// the bare strategy, it never fails the scene on its own.
func (g *Generator) generateReferenceImage(ctx context.Context, w *sceneWork) {
	if g.images == nil {
		return
	}

	style := ""
	if w.story.VisualStyle != nil {
		style = *w.story.VisualStyle
	}

	var imageData []byte
	err := g.registry.Call(ctx, resilience.ServiceImage, func(ctx context.Context) error {
		var err error
		imageData, err = g.images.GenerateImage(ctx, w.scene.VisualDescription, style)
		return err
	})
	if err != nil {
		log.Printf("[Assets] scene %d: reference image failed, continuing without: %v", w.scene.SceneIndex, err)
		return
	}

	w.referenceImage = imageData

	localPath := g.engine.TempPath(fmt.Sprintf("%s_scene_%d_ref.png", w.story.ID, w.scene.SceneIndex))
	if err := os.WriteFile(localPath, imageData, 0644); err != nil {
		log.Printf("[Assets] scene %d: failed to write reference image locally: %v", w.scene.SceneIndex, err)
	} else {
		w.localImagePath = localPath
	}

	storagePath := storage.SavePath(w.story.ID, storage.CategoryImage, fmt.Sprintf("scene_%d.png", w.scene.SceneIndex))
	if err := g.store.Upload(ctx, storagePath, imageData, "image/png"); err != nil {
		log.Printf("[Assets] scene %d: reference image upload failed: %v", w.scene.SceneIndex, err)
		return
	}
	w.scene.ReferenceImagePath = &storagePath
}

func (g *Generator) runExternalVideo(ctx context.Context, w *sceneWork, referenceImage []byte) (string, error) {
	durationSec := int(w.scene.PlannedDurationSeconds + 0.5)

	var clipData []byte
	err := g.registry.Call(ctx, resilience.ServiceVideo, func(ctx context.Context) error {
		var err error
		clipData, err = g.video.Generate(ctx, w.scene.VisualDescription, referenceImage, durationSec)
		return err
	})
	if err != nil {
		return "", err
	}

	path := storage.SavePath(w.story.ID, storage.CategoryClip, fmt.Sprintf("scene_%d.mp4", w.scene.SceneIndex))
	if err := g.store.Upload(ctx, path, clipData, "video/mp4"); err != nil {
		return "", fmt.Errorf("clip upload failed: %w", err)
	}
	return path, nil
}

func (g *Generator) runKenBurns(ctx context.Context, w *sceneWork) (string, error) {
	// The earlier best-effort attempt may not have produced a still; try once
	// more, since this is the last strategy standing.
	if w.localImagePath == "" {
		g.generateReferenceImage(ctx, w)
	}
	if w.localImagePath == "" {
		return "", fmt.Errorf("no reference image to render from")
	}

	effect := media.EffectForScene(w.scene.SceneIndex)
	durationMs := int(w.scene.PlannedDurationSeconds * 1000)

	localClip := g.engine.TempPath(fmt.Sprintf("%s_scene_%d_kenburns.mp4", w.story.ID, w.scene.SceneIndex))
	defer g.engine.Cleanup(localClip)

	if err := g.engine.RenderKenBurns(ctx, w.localImagePath, localClip, effect, durationMs); err != nil {
		return "", err
	}

	path := storage.SavePath(w.story.ID, storage.CategoryClip, fmt.Sprintf("scene_%d.mp4", w.scene.SceneIndex))
	if err := g.store.UploadFile(ctx, path, localClip, "video/mp4"); err != nil {
		return "", fmt.Errorf("clip upload failed: %w", err)
	}
	return path, nil
}
