package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo video generation via the Google Gen AI SDK. The reference image is
// passed as the first frame; the prompt describes the motion.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute
)

type VeoVideoService struct {
	apiKey string
	model  string
}

// NewVeoVideoService creates a Veo generator. The Gemini API key covers both
// Gemini and Veo. An empty model defaults to veo-3.1-generate-preview.
func NewVeoVideoService(apiKey, model string) *VeoVideoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoVideoService{
		apiKey: apiKey,
		model:  model,
	}
}

func (s *VeoVideoService) Name() string { return "veo" }

func buildVeoPrompt(rawPrompt string) string {
	return fmt.Sprintf(`%s

Visual style direction: Match the style of the input image exactly. Maintain its color grading, lighting, and rendering quality throughout. Do NOT alter the art style between frames.

Motion direction: Generate subtle, natural, realistic movement. Less is more — favor gentle, grounded motion over dramatic or exaggerated movement. The movement should feel like a living photograph, cinematic and calm.

Important: This is a fictional artistic scene. All subjects are unnamed, generic figures. Do not identify or associate any subject with a real person, celebrity, or public figure.

No generated audio or dialogue. Silent video only.`, rawPrompt)
}

// Generate produces a video clip with the reference image as the first frame.
// The async operation is polled internally; this blocks the calling goroutine,
// which fits the per-scene goroutine model.
func (s *VeoVideoService) Generate(ctx context.Context, prompt string, referenceImage []byte, durationSec int) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	enhancedPrompt := buildVeoPrompt(prompt)

	var firstFrame *genai.Image
	if len(referenceImage) > 0 {
		firstFrame = &genai.Image{
			ImageBytes: referenceImage,
			MIMEType:   "image/png",
		}
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      "9:16",
		Resolution:       "720p",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	log.Printf("[Video:veo] starting generation (model=%s, promptLen=%d, imageSize=%d bytes)", s.model, len(prompt), len(referenceImage))

	operation, err := client.Models.GenerateVideos(ctx, s.model, enhancedPrompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Video:veo] operation started: %s", operation.Name)

	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}

		log.Printf("[Video:veo] poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil {
		if operation.Metadata != nil {
			metaJSON, _ := json.Marshal(operation.Metadata)
			log.Printf("[Video:veo] operation metadata: %s", string(metaJSON))
		}
		return nil, fmt.Errorf("no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name)
	}

	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("video blocked by safety filters: %d video(s) filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		respJSON, _ := json.Marshal(operation.Response)
		return nil, fmt.Errorf("no videos in response (full response: %s)", string(respJSON))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, fmt.Errorf("generated video object is nil")
	}

	log.Printf("[Video:veo] video ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Video:veo] generated %d bytes (%d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}
