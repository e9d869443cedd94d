package services

import "context"

// SpeechService converts narration text to audio. voiceID overrides the
// implementation's default voice when non-empty.
type SpeechService interface {
	GenerateSpeech(ctx context.Context, text, voiceID string) (*SpeechResponse, error)
}

// SpeechResponse holds generated audio and its estimated length.
type SpeechResponse struct {
	AudioData  []byte
	DurationMs int
	Format     string
}

// DurationSeconds returns the estimated audio length in seconds.
func (r *SpeechResponse) DurationSeconds() float64 {
	return float64(r.DurationMs) / 1000.0
}

// estimateAudioDuration approximates spoken length from the text. Narration
// averages roughly 150 words per minute at normal speed; the speed multiplier
// scales that baseline.
func estimateAudioDuration(text string, speed float64) int {
	words := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			words++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}

	if speed <= 0 {
		speed = 1.0
	}

	wordsPerMinute := 150.0 * speed
	minutes := float64(words) / wordsPerMinute
	return int(minutes * 60 * 1000)
}
