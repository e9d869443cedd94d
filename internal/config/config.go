package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Artifact store (Supabase-compatible object storage)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// OpenAI (script generation)
	OpenAIKey string

	// Gemini (reference image generation)
	GeminiKey string

	// Video generation provider: "grok" (deferred REST) or "veo" (Gen AI SDK)
	VideoProvider string
	XAIAPIKey     string
	VeoModel      string

	// ElevenLabs (speech synthesis)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Pipeline
	MaxConcurrentScenes  int    // Worker pool size for per-scene asset generation
	MaxConcurrentStories int    // Parallel story jobs pulled from the queue
	StitchPolicy         string // "loop" or "stretch" when audio outruns video
	DefaultPacingProfile string // "slow", "medium", "fast", "dynamic"
	TempDir              string

	// Rate limiting (admission control for external calls, per service)
	RateLimitCapacity  int // Token bucket capacity; refills capacity/60 per second
	RateLimitPerMinute int // Sliding-window per-minute ceiling
	RateLimitPerHour   int // Sliding-window per-hour ceiling
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "storyforge-artifacts"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		VideoProvider:      getEnv("VIDEO_PROVIDER", "grok"),
		XAIAPIKey:          getEnv("XAI_API_KEY", ""),
		VeoModel:           getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),

		MaxConcurrentScenes:  getEnvInt("MAX_CONCURRENT_SCENES", 3),
		MaxConcurrentStories: getEnvInt("MAX_CONCURRENT_STORIES", 2),
		StitchPolicy:         getEnv("STITCH_POLICY", "loop"),
		DefaultPacingProfile: getEnv("PACING_PROFILE", "medium"),
		TempDir:              getEnv("TEMP_DIR", "/tmp/storyforge"),

		RateLimitCapacity:  getEnvInt("RATE_LIMIT_CAPACITY", 30),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitPerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 600),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}

	switch cfg.VideoProvider {
	case "grok":
		if cfg.XAIAPIKey == "" {
			return nil, fmt.Errorf("XAI_API_KEY is required when VIDEO_PROVIDER=grok")
		}
	case "veo":
		// Veo shares the Gemini API key, already validated above
	default:
		return nil, fmt.Errorf("VIDEO_PROVIDER must be \"grok\" or \"veo\", got %q", cfg.VideoProvider)
	}

	if cfg.StitchPolicy != "loop" && cfg.StitchPolicy != "stretch" {
		return nil, fmt.Errorf("STITCH_POLICY must be \"loop\" or \"stretch\", got %q", cfg.StitchPolicy)
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	if cfg.MaxConcurrentScenes < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SCENES must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
