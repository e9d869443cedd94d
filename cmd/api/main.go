package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyforge/storyforge/internal/api"
	"github.com/storyforge/storyforge/internal/assets"
	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/db"
	"github.com/storyforge/storyforge/internal/job"
	"github.com/storyforge/storyforge/internal/media"
	"github.com/storyforge/storyforge/internal/pacing"
	"github.com/storyforge/storyforge/internal/progress"
	"github.com/storyforge/storyforge/internal/queue"
	"github.com/storyforge/storyforge/internal/resilience"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/storage"
)

func main() {
	log.Println("Starting StoryForge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize object storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Println("Initialized object storage")

	// Progress hub fans out generation events to WebSocket subscribers
	hub := progress.NewHub()

	// Create API handler
	handler := api.NewHandler(database, q, stor, hub)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start workers if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Shared admission control and circuit breakers for external calls
		registry := resilience.NewRegistry(resilience.RateLimitConfig{
			Capacity:  cfg.RateLimitCapacity,
			PerMinute: cfg.RateLimitPerMinute,
			PerHour:   cfg.RateLimitPerHour,
		}, resilience.DefaultBreakerConfig)

		// Initialize generation services
		scriptSvc := services.NewScriptService(cfg.OpenAIKey)
		imageSvc := services.NewImageService(cfg.GeminiKey)
		speechSvc := services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)

		var videoSvc services.VideoGenerator
		switch cfg.VideoProvider {
		case "veo":
			videoSvc = services.NewVeoVideoService(cfg.GeminiKey, cfg.VeoModel)
			log.Printf("Video provider: Veo (model: %s)", cfg.VeoModel)
		default:
			videoSvc = services.NewGrokVideoService(cfg.XAIAPIKey)
			log.Println("Video provider: xAI Grok Imagine")
		}

		engine, err := media.NewFFmpegEngine(cfg.TempDir)
		if err != nil {
			log.Fatalf("Failed to initialize media engine: %v", err)
		}

		policy, err := media.ParseStitchPolicy(cfg.StitchPolicy)
		if err != nil {
			log.Fatalf("Invalid stitch policy: %v", err)
		}
		stitcher := media.NewStitcher(engine, policy)

		profile, err := pacing.ParseProfile(cfg.DefaultPacingProfile)
		if err != nil {
			log.Fatalf("Invalid pacing profile: %v", err)
		}

		generator := assets.NewGenerator(registry, imageSvc, videoSvc, speechSvc, engine, stor)
		batcher := assets.NewOrchestrator(generator, cfg.MaxConcurrentScenes)
		assembler := job.NewStorageAssembler(stor, engine, stitcher)

		runner := job.NewRunner(database, q, scriptSvc, batcher, assembler, registry, hub, profile)

		workerCtx, workerCancel = context.WithCancel(context.Background())
		for i := 0; i < cfg.MaxConcurrentStories; i++ {
			go runner.Start(workerCtx)
		}
		log.Printf("Started %d story workers (%d concurrent scenes each)", cfg.MaxConcurrentStories, cfg.MaxConcurrentScenes)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown workers
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
