package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

type ScriptService struct {
	client *openai.Client
}

func NewScriptService(apiKey string) *ScriptService {
	return &ScriptService{
		client: openai.NewClient(apiKey),
	}
}

// ScenePlan is a single scene parsed from the script service's output.
type ScenePlan struct {
	SceneIndex        int    `json:"scene_index"`
	Narration         string `json:"narration"`
	VisualDescription string `json:"visual_description"`
}

// Storyboard is the complete scene list for one story.
type Storyboard struct {
	Scenes []ScenePlan `json:"scenes"`
	Theme  string      `json:"theme"`
}

// GenerateStoryboard turns a prompt into an ordered scene list using JSON-mode
// chat completion. visualStyle, when set, is threaded into every scene's
// visual description guidance. Malformed or incomplete output is an error;
// the caller decides whether to retry.
func (s *ScriptService) GenerateStoryboard(ctx context.Context, prompt string, targetDuration float64, visualStyle string) (*Storyboard, error) {
	systemPrompt := buildStoryboardSystemPrompt(targetDuration, visualStyle)
	userPrompt := fmt.Sprintf("Create a short-form video storyboard for: %q\n\nTarget duration: %.0f seconds", prompt, targetDuration)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: "gpt-5-mini",
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})

	if err != nil {
		return nil, fmt.Errorf("script request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from script service")
	}

	rawContent := resp.Choices[0].Message.Content
	board, err := ParseStoryboard(rawContent)
	if err != nil {
		const maxLogLen = 2000
		if len(rawContent) > maxLogLen {
			log.Printf("[Script] parse failed, raw response (truncated): %s...", rawContent[:maxLogLen])
		} else {
			log.Printf("[Script] parse failed, raw response: %s", rawContent)
		}
		return nil, err
	}

	log.Printf("[Script] storyboard generated: %d scenes, theme=%q", len(board.Scenes), board.Theme)
	return board, nil
}

// ParseStoryboard decodes and validates the script service's JSON output.
// Scene indices are normalized to their position so downstream code can rely
// on a contiguous 0..N-1 ordering even when the model misnumbers.
func ParseStoryboard(raw string) (*Storyboard, error) {
	var board Storyboard
	if err := json.Unmarshal([]byte(raw), &board); err != nil {
		return nil, fmt.Errorf("failed to parse storyboard: %w", err)
	}

	if len(board.Scenes) == 0 {
		return nil, fmt.Errorf("storyboard has no scenes")
	}

	for i, scene := range board.Scenes {
		var missing []string
		if scene.Narration == "" {
			missing = append(missing, "narration")
		}
		if scene.VisualDescription == "" {
			missing = append(missing, "visual_description")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("scene %d missing required fields: %v", i, missing)
		}
		board.Scenes[i].SceneIndex = i
	}

	return &board, nil
}

func buildStoryboardSystemPrompt(targetDuration float64, visualStyle string) string {
	styleSection := "Write each visual_description as a complete, self-contained shot description: subject, setting, lighting, and atmosphere."
	if visualStyle != "" {
		styleSection = fmt.Sprintf(`VISUAL STYLE: %s
Every visual_description must describe its scene in the %q aesthetic. Embed the style naturally into each description.`, visualStyle, visualStyle)
	}

	return fmt.Sprintf(`You are an expert short-form video storyteller. Break the user's topic into an ordered list of scenes for a roughly %.0f-second narrated video.

Before writing any scene, compose the whole narrative as one flowing story, then divide it into scenes. Each scene is one shot with its own narration and visuals.

%s

Scene narration rules:
- narration is voiceover text read aloud by speech synthesis. Write to be LISTENED to. Short, punchy sentences. Conversational.
- Each scene's narration should take roughly 5-10 seconds to speak aloud.
- Open with a hook, build momentum scene to scene, end with a payoff.

Respond with JSON only:
{
  "scenes": [
    {"scene_index": 0, "narration": "...", "visual_description": "..."}
  ],
  "theme": "one-line description of the overall arc"
}

Every scene MUST have non-empty narration and visual_description. An empty field makes the storyboard invalid.`, targetDuration, styleSection)
}
