package pacing

import (
	"fmt"
	"strings"

	"github.com/storyforge/storyforge/internal/models"
)

// Profile selects a narration speed for duration planning.
type Profile string

const (
	ProfileSlow    Profile = "slow"
	ProfileMedium  Profile = "medium"
	ProfileFast    Profile = "fast"
	ProfileDynamic Profile = "dynamic"
)

const (
	// Scene duration bounds in seconds, applied before the pacing buffer.
	MinSceneDuration = 3.0
	MaxSceneDuration = 12.0

	// PacingBuffer pads every scene so narration never feels rushed.
	PacingBuffer = 1.15

	// Interior scene boundaries get this transition.
	DefaultTransition         = models.TransitionCrossfade
	DefaultTransitionDuration = 0.5
)

// wordsPerMinute returns the narration speed for the profile, or 0 when the
// profile is unknown.
func (p Profile) wordsPerMinute() float64 {
	switch p {
	case ProfileSlow:
		return 100
	case ProfileMedium, ProfileDynamic:
		return 140
	case ProfileFast:
		return 180
	}
	return 0
}

// ParseProfile validates a profile name, defaulting empty to medium.
func ParseProfile(name string) (Profile, error) {
	if name == "" {
		return ProfileMedium, nil
	}
	p := Profile(name)
	if p.wordsPerMinute() == 0 {
		return "", fmt.Errorf("unknown pacing profile %q", name)
	}
	return p, nil
}

// WordCount counts whitespace-separated words in narration text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Plan computes the per-scene timing plan. targetDuration == 0 means no
// target. Durations are derived from word counts at the profile's speed,
// clamped to [MinSceneDuration, MaxSceneDuration], then padded by
// PacingBuffer. When a target is given, every duration is rescaled by
// target/sum and re-clamped; re-clamping can prevent the sum from hitting
// the target exactly, which is reported through the result rather than
// silently corrected.
//
// Deterministic: identical inputs always produce identical plans.
func Plan(wordCounts []int, targetDuration float64, profile Profile) ([]models.SceneTiming, error) {
	if len(wordCounts) == 0 {
		return nil, fmt.Errorf("no scenes to plan")
	}
	wpm := profile.wordsPerMinute()
	if wpm == 0 {
		return nil, fmt.Errorf("unknown pacing profile %q", profile)
	}
	if targetDuration < 0 {
		return nil, fmt.Errorf("target duration must be >= 0, got %f", targetDuration)
	}

	durations := make([]float64, len(wordCounts))
	total := 0.0
	for i, words := range wordCounts {
		if words < 0 {
			return nil, fmt.Errorf("scene %d has negative word count", i)
		}
		d := clamp(float64(words)/wpm*60, MinSceneDuration, MaxSceneDuration) * PacingBuffer
		durations[i] = d
		total += d
	}

	if targetDuration > 0 && total > 0 {
		scale := targetDuration / total
		for i := range durations {
			durations[i] = clamp(durations[i]*scale, MinSceneDuration, MaxSceneDuration)
		}
	}

	timings := make([]models.SceneTiming, len(durations))
	last := len(durations) - 1
	for i, d := range durations {
		entry := DefaultTransition
		exit := DefaultTransition
		if i == 0 {
			entry = models.TransitionNone
		}
		if i == last {
			exit = models.TransitionNone
		}
		timings[i] = models.SceneTiming{
			SceneIndex:         i,
			DurationSeconds:    d,
			EntryTransition:    entry,
			ExitTransition:     exit,
			TransitionDuration: DefaultTransitionDuration,
		}
	}

	return timings, nil
}

// TotalDuration sums a plan's scene durations.
func TotalDuration(timings []models.SceneTiming) float64 {
	total := 0.0
	for _, t := range timings {
		total += t.DurationSeconds
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
