package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// VideoGenerator produces a motion clip for a scene. referenceImage may be nil
// for text-only generation. Implementations must respect ctx cancellation.
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string, referenceImage []byte, durationSec int) ([]byte, error)
	Name() string
}

// ---------------------------------------------------------------------------
// xAI Grok Imagine video generation.
// Deferred request pattern: submit generation → poll by request_id → download.
// ---------------------------------------------------------------------------

const (
	grokBaseURL           = "https://api.x.ai/v1"
	grokVideoModel        = "grok-imagine-video"
	grokInitialDelay      = 15 * time.Second // videos typically take 30-40s, skip guaranteed-pending polls
	grokPollMinInterval   = 5 * time.Second
	grokPollMaxInterval   = 20 * time.Second
	grokPollBackoffFactor = 1.5
	grokMaxPollDuration   = 5 * time.Minute
	grokMinDuration       = 1
	grokMaxDuration       = 15
	grokDefaultDuration   = 8
	grokAspectRatio       = "9:16"
	grokResolution        = "720p"
)

type GrokVideoService struct {
	apiKey     string
	httpClient *http.Client
}

func NewGrokVideoService(apiKey string) *GrokVideoService {
	return &GrokVideoService{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
	}
}

func (s *GrokVideoService) Name() string { return "grok" }

type grokGenerationRequest struct {
	Prompt      string          `json:"prompt"`
	Model       string          `json:"model"`
	Image       *grokImageInput `json:"image,omitempty"`
	Duration    int             `json:"duration,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
	Resolution  string          `json:"resolution,omitempty"`
}

type grokImageInput struct {
	URL string `json:"url"`
}

type grokGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// grokVideoResult is the response from GET /v1/videos/{request_id}.
// The API returns different shapes per state:
//   - pending:   {"status":"pending"}
//   - completed: {"video":{"url":"...","duration":8},"model":"..."} (no status field)
//   - failed:    {"status":"failed","error":"..."}
type grokVideoResult struct {
	Status string           `json:"status"`
	Video  *grokVideoOutput `json:"video,omitempty"`
	Model  string           `json:"model,omitempty"`
	Error  string           `json:"error"`
}

type grokVideoOutput struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"`
}

// Generate produces a video clip for the scene. When referenceImage is set it
// is passed inline as a data URL so the clip animates the reference frame
// rather than inventing its own composition.
func (s *GrokVideoService) Generate(ctx context.Context, prompt string, referenceImage []byte, durationSec int) ([]byte, error) {
	if durationSec <= 0 {
		durationSec = grokDefaultDuration
	}
	if durationSec < grokMinDuration {
		durationSec = grokMinDuration
	}
	if durationSec > grokMaxDuration {
		durationSec = grokMaxDuration
	}

	reqBody := grokGenerationRequest{
		Prompt:      buildMotionPrompt(prompt),
		Model:       grokVideoModel,
		Duration:    durationSec,
		AspectRatio: grokAspectRatio,
		Resolution:  grokResolution,
	}

	if len(referenceImage) > 0 {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(referenceImage)
		reqBody.Image = &grokImageInput{URL: dataURL}
	}

	log.Printf("[Video:grok] submitting generation (promptLen=%d, hasImage=%v, duration=%ds)",
		len(prompt), len(referenceImage) > 0, durationSec)

	requestID, err := s.submitGeneration(ctx, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to submit video generation: %w", err)
	}

	log.Printf("[Video:grok] generation submitted, request_id=%s", requestID)

	result, err := s.pollForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Video:grok] video ready (duration=%ds), downloading...", result.Video.Duration)

	videoBytes, err := s.downloadVideo(ctx, result.Video.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Video:grok] downloaded %d bytes", len(videoBytes))
	return videoBytes, nil
}

func buildMotionPrompt(rawPrompt string) string {
	return fmt.Sprintf(`%s

Maintain visual consistency with the input image throughout the video. Preserve the color palette, lighting, and artistic quality from the source frame.

Generate natural, cinematic movement that brings the scene to life. Silent video only — no generated audio or dialogue.`, rawPrompt)
}

func (s *GrokVideoService) submitGeneration(ctx context.Context, reqBody grokGenerationRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", grokBaseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("xAI returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp grokGenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w (body: %s)", err, string(body))
	}

	if genResp.RequestID == "" {
		return "", fmt.Errorf("no request_id in generation response: %s", string(body))
	}

	return genResp.RequestID, nil
}

// pollForResult polls until the video is ready. Intervals back off 5s → 7.5s
// → 11.25s → 16.8s → 20s (capped), with a hard 5 minute deadline per clip.
func (s *GrokVideoService) pollForResult(ctx context.Context, requestID string) (*grokVideoResult, error) {
	deadline := time.Now().Add(grokMaxPollDuration)
	pollCount := 0
	currentInterval := grokPollMinInterval

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("video generation cancelled during initial wait: %w", ctx.Err())
	case <-time.After(grokInitialDelay):
	}

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times, request_id=%s)", grokMaxPollDuration, pollCount, requestID)
		}

		pollCount++

		result, err := s.getVideoResult(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll video result (attempt %d): %w", pollCount, err)
		}

		// Completed responses carry a video object and no status field.
		if result.Video != nil && result.Video.URL != "" {
			log.Printf("[Video:grok] poll %d: completed (duration=%ds)", pollCount, result.Video.Duration)
			return result, nil
		}

		log.Printf("[Video:grok] poll %d: status=%s (next poll in %v)", pollCount, result.Status, currentInterval)

		switch result.Status {
		case "failed":
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			return nil, fmt.Errorf("video generation failed: %s (request_id=%s)", errMsg, requestID)

		default:
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
			case <-time.After(currentInterval):
			}

			next := time.Duration(float64(currentInterval) * grokPollBackoffFactor)
			if next > grokPollMaxInterval {
				next = grokPollMaxInterval
			}
			currentInterval = next
		}
	}
}

func (s *GrokVideoService) getVideoResult(ctx context.Context, requestID string) (*grokVideoResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/videos/%s", grokBaseURL, requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// 202 with {"status":"pending"} is a valid poll response.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("xAI returned status %d: %s", resp.StatusCode, string(body))
	}

	var result grokVideoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse video result: %w (body: %s)", err, string(body))
	}

	return &result, nil
}

func (s *GrokVideoService) downloadVideo(ctx context.Context, videoURL string) ([]byte, error) {
	// Longer timeout for the download itself, clips can be large.
	downloadClient := &http.Client{Timeout: 120 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "GET", videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video data: %w", err)
	}

	return data, nil
}
