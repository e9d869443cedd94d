package media

import (
	"context"
	"fmt"
	"log"
	"sort"
)

// StitchPolicy decides how a clip shorter than its narration is extended.
type StitchPolicy string

const (
	PolicyLoop    StitchPolicy = "loop"    // repeat the clip until the narration ends
	PolicyStretch StitchPolicy = "stretch" // retime the clip to the narration length
)

func ParseStitchPolicy(s string) (StitchPolicy, error) {
	switch StitchPolicy(s) {
	case PolicyLoop, PolicyStretch:
		return StitchPolicy(s), nil
	case "":
		return PolicyLoop, nil
	default:
		return "", fmt.Errorf("unknown stitch policy %q", s)
	}
}

// Clip is one scene's rendered assets on local disk, ready for assembly.
// AudioPath may be empty when narration failed; VideoPath must not be.
type Clip struct {
	SceneIndex             int
	VideoPath              string
	AudioPath              string
	PlannedDurationSeconds float64
}

type clipAction string

const (
	actionKeep    clipAction = "keep"
	actionTrim    clipAction = "trim"
	actionLoop    clipAction = "loop"
	actionStretch clipAction = "stretch"
)

type clipPlan struct {
	Action        clipAction
	TargetSeconds float64
}

// reconcileTolerance is the audio/video mismatch below which a clip passes
// through untouched.
const reconcileTolerance = 0.1

// reconcile decides how to fit a clip's video to its target length. The
// target is the narration duration, or the planned scene duration when there
// is no narration.
func reconcile(targetSec, videoSec float64, policy StitchPolicy) (clipPlan, error) {
	if videoSec <= 0 {
		return clipPlan{}, fmt.Errorf("video has no duration")
	}
	if targetSec <= 0 {
		return clipPlan{Action: actionKeep, TargetSeconds: videoSec}, nil
	}

	diff := videoSec - targetSec
	if diff >= -reconcileTolerance && diff <= reconcileTolerance {
		return clipPlan{Action: actionKeep, TargetSeconds: videoSec}, nil
	}

	if diff > 0 {
		return clipPlan{Action: actionTrim, TargetSeconds: targetSec}, nil
	}

	switch policy {
	case PolicyStretch:
		return clipPlan{Action: actionStretch, TargetSeconds: targetSec}, nil
	default:
		return clipPlan{Action: actionLoop, TargetSeconds: targetSec}, nil
	}
}

// Stitcher assembles per-scene clips into the final story video.
type Stitcher struct {
	engine Engine
	policy StitchPolicy
}

func NewStitcher(engine Engine, policy StitchPolicy) *Stitcher {
	return &Stitcher{engine: engine, policy: policy}
}

// Stitch reconciles each clip's video against its narration and concatenates
// the results into outputPath. Clips are processed in scene order regardless
// of input order. Any clip without a video is a hard error — no artifact is
// produced from an incomplete scene list.
//
// Returns the total duration of the assembled video in seconds.
func (s *Stitcher) Stitch(ctx context.Context, clips []Clip, outputPath string) (float64, error) {
	if len(clips) == 0 {
		return 0, fmt.Errorf("no clips to stitch")
	}

	ordered := make([]Clip, len(clips))
	copy(ordered, clips)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SceneIndex < ordered[j].SceneIndex
	})

	for _, clip := range ordered {
		if clip.VideoPath == "" {
			return 0, fmt.Errorf("scene %d has no video clip", clip.SceneIndex)
		}
	}

	var finalClips []string
	var scratch []string
	defer func() { s.engine.Cleanup(scratch...) }()

	var totalSeconds float64

	for _, clip := range ordered {
		rendered, clipSeconds, err := s.prepareClip(ctx, clip, &scratch)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare scene %d: %w", clip.SceneIndex, err)
		}
		finalClips = append(finalClips, rendered)
		totalSeconds += clipSeconds
	}

	if err := s.engine.Concatenate(ctx, finalClips, outputPath); err != nil {
		return 0, fmt.Errorf("failed to concatenate clips: %w", err)
	}

	log.Printf("[Stitch] assembled %d clips, total %.2fs", len(finalClips), totalSeconds)
	return totalSeconds, nil
}

// prepareClip fits one clip's video to its narration and muxes the narration
// in. Scenes without narration are fitted to their planned duration and stay
// silent.
func (s *Stitcher) prepareClip(ctx context.Context, clip Clip, scratch *[]string) (string, float64, error) {
	videoMs, err := s.engine.VideoDuration(ctx, clip.VideoPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to probe video: %w", err)
	}
	videoSec := float64(videoMs) / 1000.0

	targetSec := clip.PlannedDurationSeconds
	hasAudio := clip.AudioPath != ""
	if hasAudio {
		audioMs, err := s.engine.AudioDuration(ctx, clip.AudioPath)
		if err != nil {
			return "", 0, fmt.Errorf("failed to probe audio: %w", err)
		}
		targetSec = float64(audioMs) / 1000.0
	}

	plan, err := reconcile(targetSec, videoSec, s.policy)
	if err != nil {
		return "", 0, err
	}

	log.Printf("[Stitch] scene %d: video=%.2fs target=%.2fs action=%s", clip.SceneIndex, videoSec, targetSec, plan.Action)

	fitted := clip.VideoPath
	if plan.Action != actionKeep {
		fitted = s.engine.TempPath(fmt.Sprintf("scene_%d_fitted.mp4", clip.SceneIndex))
		*scratch = append(*scratch, fitted)

		switch plan.Action {
		case actionTrim:
			err = s.engine.TrimVideo(ctx, clip.VideoPath, fitted, plan.TargetSeconds)
		case actionLoop:
			err = s.engine.LoopVideo(ctx, clip.VideoPath, fitted, plan.TargetSeconds)
		case actionStretch:
			err = s.engine.StretchVideo(ctx, clip.VideoPath, fitted, plan.TargetSeconds)
		}
		if err != nil {
			return "", 0, err
		}
	}

	if !hasAudio {
		return fitted, plan.TargetSeconds, nil
	}

	muxed := s.engine.TempPath(fmt.Sprintf("scene_%d_final.mp4", clip.SceneIndex))
	*scratch = append(*scratch, muxed)
	if err := s.engine.ReplaceAudio(ctx, fitted, clip.AudioPath, muxed); err != nil {
		return "", 0, err
	}

	return muxed, plan.TargetSeconds, nil
}
