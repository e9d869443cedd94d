package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Engine is the rendering surface the stitcher and asset generator depend on.
// The production implementation shells out to ffmpeg/ffprobe; tests substitute
// a fake.
type Engine interface {
	// RenderKenBurns renders a still image into a silent motion clip of
	// roughly durationMs. Narration is muxed in at stitch time.
	RenderKenBurns(ctx context.Context, imagePath, outputPath string, effect ClipEffect, durationMs int) error

	// ReplaceAudio combines a generated video with narration, discarding the
	// video's own audio track. The last frame is frozen if the video runs out
	// before the narration does.
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error

	// TrimVideo cuts a clip down to targetSeconds.
	TrimVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error

	// LoopVideo repeats a clip until it covers targetSeconds, then trims.
	LoopVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error

	// StretchVideo retimes a clip to exactly targetSeconds via setpts.
	StretchVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error

	// Concatenate joins clips in order into a single video.
	Concatenate(ctx context.Context, clipPaths []string, outputPath string) error

	// AudioDuration and VideoDuration probe media length in milliseconds.
	AudioDuration(ctx context.Context, path string) (int, error)
	VideoDuration(ctx context.Context, path string) (int, error)

	// TempPath returns a path inside the engine's scratch directory.
	TempPath(filename string) string

	// Cleanup removes scratch files.
	Cleanup(paths ...string)
}

// FFmpegEngine implements Engine with the ffmpeg and ffprobe binaries.
type FFmpegEngine struct {
	tempDir string
}

var _ Engine = (*FFmpegEngine)(nil)

func NewFFmpegEngine(tempDir string) (*FFmpegEngine, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &FFmpegEngine{tempDir: tempDir}, nil
}

func (e *FFmpegEngine) RenderKenBurns(ctx context.Context, imagePath, outputPath string, effect ClipEffect, durationMs int) error {
	vf := buildMotionFilter(effect, durationMs)

	log.Printf("[Media] rendering ken burns (effect=%s, duration=%dms)", effect, durationMs)

	args := []string{
		"-i", imagePath,
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", float64(durationMs)/1000.0),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg ken burns render failed (effect=%s): %w", effect, err)
	}
	return nil
}

func (e *FFmpegEngine) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	log.Printf("[Media] replacing video audio with narration")

	// tpad clones the last frame so short clips extend until narration ends.
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-filter_complex", "[0:v]tpad=stop_mode=clone:stop_duration=60[v]",
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg replace audio failed: %w", err)
	}
	return nil
}

func (e *FFmpegEngine) TrimVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	args := []string{
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", targetSeconds),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg trim failed: %w", err)
	}
	return nil
}

func (e *FFmpegEngine) LoopVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	args := []string{
		"-stream_loop", "-1",
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", targetSeconds),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg loop failed: %w", err)
	}
	return nil
}

func (e *FFmpegEngine) StretchVideo(ctx context.Context, inputPath, outputPath string, targetSeconds float64) error {
	durationMs, err := e.VideoDuration(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("failed to probe video for stretch: %w", err)
	}
	if durationMs <= 0 {
		return fmt.Errorf("cannot stretch zero-length video %s", inputPath)
	}

	factor := targetSeconds / (float64(durationMs) / 1000.0)

	args := []string{
		"-i", inputPath,
		"-filter:v", fmt.Sprintf("setpts=%.4f*PTS", factor),
		"-an", // retimed video carries no usable audio
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", targetSeconds),
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg stretch failed: %w", err)
	}
	return nil
}

func (e *FFmpegEngine) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(e.tempDir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, path := range clipPaths {
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	if err := e.run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

func (e *FFmpegEngine) AudioDuration(ctx context.Context, path string) (int, error) {
	return e.probeDuration(ctx, path)
}

func (e *FFmpegEngine) VideoDuration(ctx context.Context, path string) (int, error) {
	return e.probeDuration(ctx, path)
}

func (e *FFmpegEngine) probeDuration(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return int(durationSec * 1000), nil
}

func (e *FFmpegEngine) TempPath(filename string) string {
	return filepath.Join(e.tempDir, filename)
}

func (e *FFmpegEngine) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func (e *FFmpegEngine) run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
