package media

import (
	"context"
	"fmt"
	"testing"
)

func TestReconcileKeepWithinTolerance(t *testing.T) {
	plan, err := reconcile(5.0, 5.05, PolicyLoop)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan.Action != actionKeep {
		t.Errorf("action = %s, want keep", plan.Action)
	}
}

func TestReconcileTrimsLongVideo(t *testing.T) {
	plan, err := reconcile(5.0, 8.0, PolicyLoop)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan.Action != actionTrim {
		t.Errorf("action = %s, want trim", plan.Action)
	}
	if plan.TargetSeconds != 5.0 {
		t.Errorf("target = %.2f, want 5.0", plan.TargetSeconds)
	}
}

func TestReconcileShortVideoFollowsPolicy(t *testing.T) {
	plan, err := reconcile(10.0, 6.0, PolicyLoop)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan.Action != actionLoop {
		t.Errorf("loop policy: action = %s, want loop", plan.Action)
	}

	plan, err = reconcile(10.0, 6.0, PolicyStretch)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan.Action != actionStretch {
		t.Errorf("stretch policy: action = %s, want stretch", plan.Action)
	}
	if plan.TargetSeconds != 10.0 {
		t.Errorf("target = %.2f, want 10.0", plan.TargetSeconds)
	}
}

func TestReconcileNoTargetKeepsVideo(t *testing.T) {
	plan, err := reconcile(0, 7.0, PolicyLoop)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if plan.Action != actionKeep || plan.TargetSeconds != 7.0 {
		t.Errorf("plan = %+v, want keep at 7.0s", plan)
	}
}

func TestReconcileRejectsEmptyVideo(t *testing.T) {
	if _, err := reconcile(5.0, 0, PolicyLoop); err == nil {
		t.Error("expected error for zero-length video")
	}
}

func TestParseStitchPolicy(t *testing.T) {
	if p, err := ParseStitchPolicy(""); err != nil || p != PolicyLoop {
		t.Errorf("empty policy: got %q, %v; want loop default", p, err)
	}
	if p, err := ParseStitchPolicy("stretch"); err != nil || p != PolicyStretch {
		t.Errorf("stretch: got %q, %v", p, err)
	}
	if _, err := ParseStitchPolicy("bounce"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestEffectForSceneDeterministic(t *testing.T) {
	for i := 0; i < 25; i++ {
		first := EffectForScene(i)
		second := EffectForScene(i)
		if first != second {
			t.Fatalf("effect for scene %d not stable: %s vs %s", i, first, second)
		}
	}
	if EffectForScene(0) == EffectForScene(1) {
		t.Error("consecutive scenes should get different effects")
	}
}

func TestBuildMotionFilterMinimumFrames(t *testing.T) {
	// Very short clips still get at least one second of frames.
	filter := buildMotionFilter(EffectZoomIn, 0)
	if filter == "" {
		t.Fatal("empty filter")
	}
}

// ---------------------------------------------------------------------------
// Fake engine-backed stitch tests
// ---------------------------------------------------------------------------

type fakeEngine struct {
	videoDurations map[string]int // path → ms
	audioDurations map[string]int
	calls          []string
	probeErr       error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		videoDurations: make(map[string]int),
		audioDurations: make(map[string]int),
	}
}

func (f *fakeEngine) RenderKenBurns(ctx context.Context, imagePath, outputPath string, effect ClipEffect, durationMs int) error {
	f.calls = append(f.calls, "kenburns:"+outputPath)
	return nil
}

func (f *fakeEngine) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	f.calls = append(f.calls, fmt.Sprintf("replace:%s+%s", videoPath, audioPath))
	return nil
}

func (f *fakeEngine) TrimVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	f.calls = append(f.calls, fmt.Sprintf("trim:%s@%.1f", inputPath, targetSeconds))
	return nil
}

func (f *fakeEngine) LoopVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	f.calls = append(f.calls, fmt.Sprintf("loop:%s@%.1f", inputPath, targetSeconds))
	return nil
}

func (f *fakeEngine) StretchVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	f.calls = append(f.calls, fmt.Sprintf("stretch:%s@%.1f", inputPath, targetSeconds))
	return nil
}

func (f *fakeEngine) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	f.calls = append(f.calls, fmt.Sprintf("concat:%d", len(clipPaths)))
	return nil
}

func (f *fakeEngine) AudioDuration(ctx context.Context, path string) (int, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.audioDurations[path], nil
}

func (f *fakeEngine) VideoDuration(ctx context.Context, path string) (int, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.videoDurations[path], nil
}

func (f *fakeEngine) TempPath(filename string) string { return "/tmp/fake/" + filename }
func (f *fakeEngine) Cleanup(paths ...string)         {}

func TestStitchTotalsAndOrdering(t *testing.T) {
	engine := newFakeEngine()
	engine.videoDurations["v0.mp4"] = 5000
	engine.videoDurations["v1.mp4"] = 8000
	engine.audioDurations["a0.mp3"] = 5000
	engine.audioDurations["a1.mp3"] = 6000

	stitcher := NewStitcher(engine, PolicyLoop)

	// Clips provided out of order; stitcher must sort by scene index.
	clips := []Clip{
		{SceneIndex: 1, VideoPath: "v1.mp4", AudioPath: "a1.mp3", PlannedDurationSeconds: 6},
		{SceneIndex: 0, VideoPath: "v0.mp4", AudioPath: "a0.mp3", PlannedDurationSeconds: 5},
	}

	total, err := stitcher.Stitch(context.Background(), clips, "/tmp/fake/out.mp4")
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}

	// Scene 0 keeps at 5s, scene 1 trims 8s → 6s.
	if total != 11.0 {
		t.Errorf("total = %.2f, want 11.0", total)
	}

	var sawTrim, sawConcat bool
	for _, call := range engine.calls {
		if call == "trim:v1.mp4@6.0" {
			sawTrim = true
		}
		if call == "concat:2" {
			sawConcat = true
		}
	}
	if !sawTrim {
		t.Errorf("expected trim of scene 1's video, calls: %v", engine.calls)
	}
	if !sawConcat {
		t.Errorf("expected concat of 2 clips, calls: %v", engine.calls)
	}
}

func TestStitchShortVideoLoops(t *testing.T) {
	engine := newFakeEngine()
	engine.videoDurations["v.mp4"] = 4000
	engine.audioDurations["a.mp3"] = 9000

	stitcher := NewStitcher(engine, PolicyLoop)
	total, err := stitcher.Stitch(context.Background(), []Clip{
		{SceneIndex: 0, VideoPath: "v.mp4", AudioPath: "a.mp3", PlannedDurationSeconds: 9},
	}, "/tmp/fake/out.mp4")
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if total != 9.0 {
		t.Errorf("total = %.2f, want 9.0", total)
	}

	found := false
	for _, call := range engine.calls {
		if call == "loop:v.mp4@9.0" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected loop call, calls: %v", engine.calls)
	}
}

func TestStitchMissingVideoIsHardError(t *testing.T) {
	engine := newFakeEngine()
	engine.videoDurations["v.mp4"] = 5000

	stitcher := NewStitcher(engine, PolicyLoop)
	_, err := stitcher.Stitch(context.Background(), []Clip{
		{SceneIndex: 0, VideoPath: "v.mp4", AudioPath: "", PlannedDurationSeconds: 5},
		{SceneIndex: 1, VideoPath: "", AudioPath: "a.mp3", PlannedDurationSeconds: 5},
	}, "/tmp/fake/out.mp4")
	if err == nil {
		t.Fatal("expected error for clip without video")
	}

	// Nothing should have been rendered or concatenated.
	if len(engine.calls) != 0 {
		t.Errorf("no engine work expected before validation, calls: %v", engine.calls)
	}
}

func TestStitchSilentSceneUsesPlannedDuration(t *testing.T) {
	engine := newFakeEngine()
	engine.videoDurations["v.mp4"] = 8000

	stitcher := NewStitcher(engine, PolicyLoop)
	total, err := stitcher.Stitch(context.Background(), []Clip{
		{SceneIndex: 0, VideoPath: "v.mp4", AudioPath: "", PlannedDurationSeconds: 5},
	}, "/tmp/fake/out.mp4")
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if total != 5.0 {
		t.Errorf("total = %.2f, want planned 5.0", total)
	}

	for _, call := range engine.calls {
		if call == "replace:v.mp4+" {
			t.Error("silent scene must not get an audio replace pass")
		}
	}
}

func TestStitchRejectsEmptyClipList(t *testing.T) {
	stitcher := NewStitcher(newFakeEngine(), PolicyLoop)
	if _, err := stitcher.Stitch(context.Background(), nil, "/tmp/fake/out.mp4"); err == nil {
		t.Error("expected error for empty clip list")
	}
}
