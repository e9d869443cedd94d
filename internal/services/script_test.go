package services

import (
	"strings"
	"testing"
)

func TestParseStoryboard(t *testing.T) {
	raw := `{
		"scenes": [
			{"scene_index": 0, "narration": "First line.", "visual_description": "A city at dawn."},
			{"scene_index": 1, "narration": "Second line.", "visual_description": "A crowded market."}
		],
		"theme": "a day in the city"
	}`

	board, err := ParseStoryboard(raw)
	if err != nil {
		t.Fatalf("ParseStoryboard failed: %v", err)
	}

	if len(board.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(board.Scenes))
	}
	if board.Theme != "a day in the city" {
		t.Errorf("unexpected theme: %q", board.Theme)
	}
	for i, scene := range board.Scenes {
		if scene.SceneIndex != i {
			t.Errorf("scene %d: index = %d, want %d", i, scene.SceneIndex, i)
		}
	}
}

func TestParseStoryboardNormalizesIndices(t *testing.T) {
	// Models sometimes number from 1 or skip indices.
	raw := `{
		"scenes": [
			{"scene_index": 1, "narration": "a", "visual_description": "x"},
			{"scene_index": 5, "narration": "b", "visual_description": "y"}
		]
	}`

	board, err := ParseStoryboard(raw)
	if err != nil {
		t.Fatalf("ParseStoryboard failed: %v", err)
	}
	if board.Scenes[0].SceneIndex != 0 || board.Scenes[1].SceneIndex != 1 {
		t.Errorf("indices not normalized: %d, %d", board.Scenes[0].SceneIndex, board.Scenes[1].SceneIndex)
	}
}

func TestParseStoryboardRejectsEmptyScenes(t *testing.T) {
	if _, err := ParseStoryboard(`{"scenes": [], "theme": "empty"}`); err == nil {
		t.Error("expected error for empty scene list")
	}
}

func TestParseStoryboardRejectsMissingFields(t *testing.T) {
	raw := `{"scenes": [{"scene_index": 0, "narration": "", "visual_description": "x"}]}`
	_, err := ParseStoryboard(raw)
	if err == nil {
		t.Fatal("expected error for empty narration")
	}
	if !strings.Contains(err.Error(), "narration") {
		t.Errorf("error should name the missing field, got: %v", err)
	}
}

func TestParseStoryboardRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseStoryboard("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEstimateAudioDuration(t *testing.T) {
	// 150 words at speed 1.0 should estimate one minute.
	words := make([]string, 150)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	got := estimateAudioDuration(text, 1.0)
	if got != 60000 {
		t.Errorf("estimateAudioDuration = %dms, want 60000ms", got)
	}

	// Slower speed means longer audio.
	slower := estimateAudioDuration(text, 0.5)
	if slower != 120000 {
		t.Errorf("estimateAudioDuration at 0.5x = %dms, want 120000ms", slower)
	}

	if estimateAudioDuration("", 1.0) != 0 {
		t.Error("empty text should estimate 0ms")
	}
}
