package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/storyforge/storyforge/internal/media"
	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/resilience"
	"github.com/storyforge/storyforge/internal/services"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubImages struct {
	mu       sync.Mutex
	fail     bool
	failOnce bool
	calls    int
}

func (s *stubImages) GenerateImage(ctx context.Context, description, visualStyle string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	calls := s.calls
	s.mu.Unlock()
	if s.fail || (s.failOnce && calls == 1) {
		// Permanent so the retry schedule stops immediately in tests.
		return nil, resilience.Permanent(fmt.Errorf("image service down"))
	}
	return []byte("png-bytes"), nil
}

type stubVideo struct {
	mu       sync.Mutex
	fail     bool
	calls    int
	sawImage []bool
	started  chan struct{} // closed when the first call begins, when set
	release  chan struct{} // calls wait here before returning, when set
}

func (s *stubVideo) Name() string { return "stub" }

func (s *stubVideo) Generate(ctx context.Context, prompt string, referenceImage []byte, durationSec int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.sawImage = append(s.sawImage, len(referenceImage) > 0)
	fail := s.fail
	s.mu.Unlock()
	if s.started != nil && first {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	if err := ctx.Err(); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("request aborted: %w", err))
	}
	if fail {
		return nil, resilience.Permanent(fmt.Errorf("video service down"))
	}
	return []byte("mp4-bytes"), nil
}

type stubSpeech struct {
	fail bool
}

func (s *stubSpeech) GenerateSpeech(ctx context.Context, text, voiceID string) (*services.SpeechResponse, error) {
	if s.fail {
		return nil, resilience.Permanent(fmt.Errorf("speech service down"))
	}
	return &services.SpeechResponse{AudioData: []byte("mp3-bytes"), DurationMs: 5000, Format: "mp3"}, nil
}

type stubStore struct {
	mu      sync.Mutex
	uploads []string
}

func (s *stubStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	s.mu.Lock()
	s.uploads = append(s.uploads, path)
	s.mu.Unlock()
	return nil
}

func (s *stubStore) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	return s.Upload(ctx, storagePath, nil, contentType)
}

type stubEngine struct {
	tempDir   string
	renders   int
	renderErr error
	cleaned   []string
	mu        sync.Mutex
}

func (e *stubEngine) RenderKenBurns(ctx context.Context, imagePath, outputPath string, effect media.ClipEffect, durationMs int) error {
	e.mu.Lock()
	e.renders++
	e.mu.Unlock()
	return e.renderErr
}

func (e *stubEngine) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return nil
}
func (e *stubEngine) TrimVideo(ctx context.Context, in, out string, target float64) error { return nil }
func (e *stubEngine) LoopVideo(ctx context.Context, in, out string, target float64) error { return nil }
func (e *stubEngine) StretchVideo(ctx context.Context, in, out string, target float64) error {
	return nil
}
func (e *stubEngine) Concatenate(ctx context.Context, clips []string, out string) error { return nil }
func (e *stubEngine) AudioDuration(ctx context.Context, path string) (int, error)       { return 5000, nil }
func (e *stubEngine) VideoDuration(ctx context.Context, path string) (int, error)       { return 5000, nil }
func (e *stubEngine) TempPath(filename string) string {
	return filepath.Join(e.tempDir, filename)
}
func (e *stubEngine) Cleanup(paths ...string) {
	e.mu.Lock()
	e.cleaned = append(e.cleaned, paths...)
	e.mu.Unlock()
}

func testRegistry() *resilience.Registry {
	return resilience.NewRegistry(
		resilience.RateLimitConfig{Capacity: 1000, PerMinute: 10000, PerHour: 100000},
		resilience.BreakerConfig{FailureThreshold: 100, RecoveryTimeout: 0, SuccessThreshold: 1},
	)
}

func testStoryAndScene(t *testing.T) (*models.Story, *models.Scene) {
	t.Helper()
	story := &models.Story{
		ID:                    uuid.New(),
		Prompt:                "a story about tides",
		TargetDurationSeconds: 60,
		PacingProfile:         "medium",
		Status:                models.StoryStatusGeneratingAssets,
	}
	scene := &models.Scene{
		ID:                     uuid.New(),
		StoryID:                story.ID,
		SceneIndex:             0,
		Narration:              "The tide rolls in.",
		VisualDescription:      "Waves on a dark shore.",
		PlannedDurationSeconds: 6,
	}
	return story, scene
}

func newTestGenerator(t *testing.T, images *stubImages, video *stubVideo, speech *stubSpeech) (*Generator, *stubStore, *stubEngine) {
	t.Helper()
	store := &stubStore{}
	engine := &stubEngine{tempDir: t.TempDir()}
	gen := NewGenerator(testRegistry(), images, video, speech, engine, store)
	return gen, store, engine
}

// ---------------------------------------------------------------------------
// Generator tests
// ---------------------------------------------------------------------------

func TestGenerateSceneHappyPath(t *testing.T) {
	video := &stubVideo{}
	gen, store, _ := newTestGenerator(t, &stubImages{}, video, &stubSpeech{})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if !outcome.OK {
		t.Fatalf("outcome not OK: %+v", outcome)
	}
	if outcome.Strategy != models.StrategyPrimary {
		t.Errorf("strategy = %s, want primary", outcome.Strategy)
	}
	if !outcome.AudioOK {
		t.Error("audio should have succeeded")
	}
	if scene.VideoPath == nil || scene.AudioPath == nil {
		t.Error("scene paths not recorded")
	}
	if scene.ReferenceImagePath == nil {
		t.Error("reference image path not recorded")
	}

	// Primary strategy must have been seeded with the reference image.
	if len(video.sawImage) == 0 || !video.sawImage[0] {
		t.Error("primary call should include the reference image")
	}

	for _, path := range store.uploads {
		if !strings.HasPrefix(path, story.ID.String()) {
			t.Errorf("upload path %q not scoped to story", path)
		}
	}
}

func TestGenerateSceneFallsBackToKenBurns(t *testing.T) {
	// Video always fails; image succeeds, so the chain must land on the
	// locally rendered clip.
	video := &stubVideo{fail: true}
	gen, _, engine := newTestGenerator(t, &stubImages{}, video, &stubSpeech{})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if !outcome.OK {
		t.Fatalf("outcome not OK: %+v", outcome)
	}
	if outcome.Strategy != models.StrategyFallback {
		t.Errorf("strategy = %s, want fallback", outcome.Strategy)
	}
	if scene.VideoPath == nil {
		t.Fatal("fallback must still produce a video clip")
	}
	if engine.renders != 1 {
		t.Errorf("ken burns renders = %d, want 1", engine.renders)
	}

	// Both external strategies were tried before falling back.
	if video.calls != 2 {
		t.Errorf("video calls = %d, want 2 (primary + bare)", video.calls)
	}
	if !video.sawImage[0] || video.sawImage[1] {
		t.Errorf("expected image then bare attempt, got %v", video.sawImage)
	}

	// The local reference still is scratch space and must not be left behind.
	refStill := engine.TempPath(fmt.Sprintf("%s_scene_%d_ref.png", story.ID, scene.SceneIndex))
	cleaned := false
	for _, path := range engine.cleaned {
		if path == refStill {
			cleaned = true
		}
	}
	if !cleaned {
		t.Errorf("reference still %s was not cleaned up", refStill)
	}
}

func TestGenerateSceneBareStrategyWhenImageFails(t *testing.T) {
	video := &stubVideo{}
	gen, _, _ := newTestGenerator(t, &stubImages{fail: true}, video, &stubSpeech{})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if !outcome.OK {
		t.Fatalf("outcome not OK: %+v", outcome)
	}
	if outcome.Strategy != models.StrategyPrimaryBare {
		t.Errorf("strategy = %s, want primary_bare", outcome.Strategy)
	}
	if scene.ReferenceImagePath != nil {
		t.Error("no reference image should be recorded")
	}
	if len(video.sawImage) != 1 || video.sawImage[0] {
		t.Errorf("bare attempt should carry no image, got %v", video.sawImage)
	}
}

func TestGenerateSceneFallbackRegeneratesImage(t *testing.T) {
	// The first image attempt fails, so primary is skipped and the bare call
	// fails too. The local-render step must try the image again before giving
	// up, and here the second attempt succeeds.
	images := &stubImages{failOnce: true}
	video := &stubVideo{fail: true}
	gen, _, engine := newTestGenerator(t, images, video, &stubSpeech{})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if !outcome.OK {
		t.Fatalf("outcome not OK: %+v", outcome)
	}
	if outcome.Strategy != models.StrategyFallback {
		t.Errorf("strategy = %s, want fallback", outcome.Strategy)
	}
	if images.calls != 2 {
		t.Errorf("image calls = %d, want 2 (upfront + retry at fallback)", images.calls)
	}
	if video.calls != 1 {
		t.Errorf("video calls = %d, want 1 (bare only, no reference image)", video.calls)
	}
	if engine.renders != 1 {
		t.Errorf("ken burns renders = %d, want 1", engine.renders)
	}
}

func TestGenerateSceneAudioFailureIsNotFatal(t *testing.T) {
	gen, _, _ := newTestGenerator(t, &stubImages{}, &stubVideo{}, &stubSpeech{fail: true})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if !outcome.OK {
		t.Fatalf("scene should succeed without audio: %+v", outcome)
	}
	if outcome.AudioOK {
		t.Error("audio should be marked failed")
	}
	if scene.AudioPath != nil {
		t.Error("no audio path should be recorded")
	}
	if scene.VideoPath == nil {
		t.Error("video should still be produced")
	}
}

func TestGenerateSceneFailsWhenAllStrategiesExhausted(t *testing.T) {
	// Video and image both down: primary and bare fail, ken burns has no
	// still to render from.
	gen, _, engine := newTestGenerator(t, &stubImages{fail: true}, &stubVideo{fail: true}, &stubSpeech{})
	story, scene := testStoryAndScene(t)

	outcome := gen.GenerateScene(context.Background(), story, scene)

	if outcome.OK {
		t.Fatal("scene should fail with no viable strategy")
	}
	if outcome.Err == "" {
		t.Error("failed outcome must carry an error message")
	}
	if scene.ErrorMessage == nil {
		t.Error("scene error not recorded")
	}
	if scene.VideoPath != nil {
		t.Error("failed scene must not have a video path")
	}
	if engine.renders != 0 {
		t.Error("ken burns must not render without a reference image")
	}

	// Audio is independent and should still have succeeded.
	if !outcome.AudioOK {
		t.Error("audio track should succeed even when video fails")
	}
}

// ---------------------------------------------------------------------------
// Orchestrator tests
// ---------------------------------------------------------------------------

func makeScenes(storyID uuid.UUID, n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			ID:                     uuid.New(),
			StoryID:                storyID,
			SceneIndex:             i,
			Narration:              fmt.Sprintf("Narration %d.", i),
			VisualDescription:      fmt.Sprintf("Visual %d.", i),
			PlannedDurationSeconds: 5,
		}
	}
	return scenes
}

func TestOrchestratorAllScenesSucceed(t *testing.T) {
	gen, _, _ := newTestGenerator(t, &stubImages{}, &stubVideo{}, &stubSpeech{})
	orch := NewOrchestrator(gen, 3)
	story, _ := testStoryAndScene(t)
	scenes := makeScenes(story.ID, 5)

	var mu sync.Mutex
	var completed int
	summary := orch.GenerateAll(context.Background(), story, scenes, func(models.GenerationOutcome) {
		mu.Lock()
		completed++
		mu.Unlock()
	})

	if summary.Succeeded != 5 || summary.Failed != 0 {
		t.Fatalf("summary = %d/%d, want 5/0", summary.Succeeded, summary.Failed)
	}
	if completed != 5 {
		t.Errorf("completion callback fired %d times, want 5", completed)
	}

	// Outcomes come back ordered by scene index.
	for i, outcome := range summary.Outcomes {
		if outcome.Index != i {
			t.Fatalf("outcomes out of order: %+v", summary.Outcomes)
		}
	}

	// Scene records were mutated in place.
	for i := range scenes {
		if scenes[i].VideoPath == nil {
			t.Errorf("scene %d has no video path", i)
		}
	}
}

func TestOrchestratorFailuresAreIndependent(t *testing.T) {
	// All video + image calls fail so every scene fails, but every scene is
	// still attempted and audio still succeeds.
	gen, _, _ := newTestGenerator(t, &stubImages{fail: true}, &stubVideo{fail: true}, &stubSpeech{})
	orch := NewOrchestrator(gen, 2)
	story, _ := testStoryAndScene(t)
	scenes := makeScenes(story.ID, 4)

	summary := orch.GenerateAll(context.Background(), story, scenes, nil)

	if summary.Succeeded != 0 || summary.Failed != 4 {
		t.Fatalf("summary = %d/%d, want 0/4", summary.Succeeded, summary.Failed)
	}
	if len(summary.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(summary.Outcomes))
	}
	for _, outcome := range summary.Outcomes {
		if !outcome.AudioOK {
			t.Errorf("scene %d audio should succeed independently", outcome.Index)
		}
	}
}

func TestOrchestratorCancelledContextReportsUnstarted(t *testing.T) {
	gen, _, _ := newTestGenerator(t, &stubImages{}, &stubVideo{}, &stubSpeech{})
	orch := NewOrchestrator(gen, 2)
	story, _ := testStoryAndScene(t)
	scenes := makeScenes(story.ID, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := orch.GenerateAll(ctx, story, scenes, nil)

	if len(summary.Outcomes) != 3 {
		t.Fatalf("every scene needs an outcome, got %d", len(summary.Outcomes))
	}
}

func TestOrchestratorDrainsAdmittedScenes(t *testing.T) {
	// Cancelling mid-flight must not abort a scene whose external call is
	// already running; the money is spent either way, so the attempt runs to
	// completion.
	video := &stubVideo{started: make(chan struct{}), release: make(chan struct{})}
	gen, _, _ := newTestGenerator(t, &stubImages{}, video, &stubSpeech{})
	orch := NewOrchestrator(gen, 1)
	story, _ := testStoryAndScene(t)
	scenes := makeScenes(story.ID, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan models.BatchSummary, 1)
	go func() { done <- orch.GenerateAll(ctx, story, scenes, nil) }()

	<-video.started
	cancel()
	close(video.release)

	summary := <-done
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %d/%d, want 1/0", summary.Succeeded, summary.Failed)
	}
	if summary.Outcomes[0].Strategy != models.StrategyPrimary {
		t.Errorf("strategy = %s, want primary (no fallback after cancellation)", summary.Outcomes[0].Strategy)
	}
}

func TestOrchestratorClampsConcurrency(t *testing.T) {
	gen, _, _ := newTestGenerator(t, &stubImages{}, &stubVideo{}, &stubSpeech{})
	orch := NewOrchestrator(gen, 0)
	if orch.maxConcurrent != 1 {
		t.Errorf("maxConcurrent = %d, want 1", orch.maxConcurrent)
	}
}
