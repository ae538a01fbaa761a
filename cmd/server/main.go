package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwkim-hr/intervox/internal/analysis"
	"github.com/dwkim-hr/intervox/internal/api"
	"github.com/dwkim-hr/intervox/internal/audio"
	"github.com/dwkim-hr/intervox/internal/buffer"
	"github.com/dwkim-hr/intervox/internal/config"
	"github.com/dwkim-hr/intervox/internal/session"
	"github.com/dwkim-hr/intervox/internal/storage/sqlite"
	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/internal/vad"
	"github.com/dwkim-hr/intervox/internal/websocket"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load .env before reading secrets from the environment
	_ = godotenv.Load()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading secrets: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Intervox server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Generate today's database filename
	today := time.Now().Format("2006-01-02")
	dbFilename := fmt.Sprintf("intervox-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	// Ensure the directory exists
	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	log.Info("Using daily database", logger.String("path", dbPath))

	db, err := sqlite.Open(dbPath)
	if err != nil {
		log.Error("Failed to open SQLite database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	segmentStorage := sqlite.NewSegmentStorage(db, log)
	sessionStorage, err := sqlite.NewSessionStorage(db)
	if err != nil {
		log.Error("Failed to create session storage", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	events := websocket.NewEvents(wsServer)

	// Assemble the transcription fallback chain in order
	var providers []transcription.Provider
	if secrets.OpenAIAPIKey != "" {
		providers = append(providers, transcription.NewOpenAIProvider(
			secrets.OpenAIAPIKey,
			cfg.Transcription.OpenAIBaseURL,
			cfg.Transcription.Model,
			cfg.Transcription.Language,
			log,
		))
	} else {
		log.Warn("OPENAI_API_KEY not set, primary transcription tier disabled")
	}
	if cfg.Transcription.BackendURL != "" {
		providers = append(providers, transcription.NewBackendProvider(
			cfg.Transcription.BackendURL,
			secrets.BackendAPIKey,
			time.Duration(cfg.Transcription.TierTimeoutSecs)*time.Second,
			log,
		))
	}
	if cfg.Transcription.DegradedEnabled {
		providers = append(providers, transcription.NewDegradedProvider())
	}
	if len(providers) == 0 {
		log.Error("No transcription providers configured")
		os.Exit(1)
	}

	results := buffer.NewRolling[transcription.Segment](cfg.Buffer.Capacity)
	dispatcher := transcription.NewDispatcher(
		providers,
		time.Duration(cfg.Transcription.TierTimeoutSecs)*time.Second,
		results,
		segmentStorage,
		events,
		log,
	)

	// Analysis service: backend similarity always, summaries only with a key
	var generator analysis.Generator
	if secrets.GeminiAPIKey != "" {
		geminiClient, err := analysis.NewGeminiClient(context.Background(), secrets.GeminiAPIKey, cfg.Analysis.GeminiModel, log)
		if err != nil {
			log.Error("Failed to create Gemini client", logger.Error(err))
		} else {
			generator = geminiClient
		}
	} else {
		log.Warn("GEMINI_API_KEY not set, transcript summaries disabled")
	}
	var analysisService *analysis.Service
	if cfg.Analysis.SimilarityURL != "" || generator != nil {
		analysisService = analysis.NewService(
			cfg.Analysis.SimilarityURL,
			secrets.BackendAPIKey,
			time.Duration(cfg.Analysis.TimeoutSecs)*time.Second,
			generator,
			log,
		)
	}

	// Live pipeline run per session: meter the stream, watch for voice, and
	// dispatch a fixed-length segment on each trigger
	segmentDuration := time.Duration(cfg.Capture.SegmentMs) * time.Millisecond
	pipeline := func(ctx context.Context, sessionID string, stream *audio.Stream) {
		if !cfg.VAD.Enabled {
			return
		}

		meter, err := audio.NewLevelMeter(stream)
		if err != nil {
			log.Error("Failed to attach level meter", logger.Error(err))
			return
		}
		defer meter.Close()

		capturer := audio.NewCapturer(stream, log)
		monitor := vad.NewMonitor(vad.Config{
			Threshold:    cfg.VAD.Threshold,
			Cooldown:     time.Duration(cfg.VAD.CooldownMs) * time.Millisecond,
			PollInterval: time.Duration(cfg.VAD.PollIntervalMs) * time.Millisecond,
		}, log)

		monitor.Start(ctx, meter, func() {
			go func() {
				captureCtx, cancel := context.WithTimeout(ctx, segmentDuration+5*time.Second)
				defer cancel()

				seg, err := capturer.CaptureSegment(captureCtx, segmentDuration)
				if err != nil {
					log.Warn("Segment capture failed", logger.Error(err))
					return
				}
				if _, err := dispatcher.Dispatch(ctx, sessionID, seg.WAV, seg.CapturedAt); err != nil {
					log.Error("Segment transcription failed", logger.Error(err))
				}
			}()
		})
		defer monitor.Cancel()

		<-ctx.Done()
	}

	acquire := func() (audio.Device, error) {
		return audio.AcquireDevice(cfg.Audio.SampleRate, cfg.Audio.Channels, log)
	}

	uploader := session.NewHTTPUploader(
		cfg.Upload.URL,
		secrets.BackendAPIKey,
		time.Duration(cfg.Upload.TimeoutSecs)*time.Second,
		log,
	)

	controller := session.NewController(
		acquire,
		pipeline,
		uploader,
		&sessionStoreAdapter{storage: sessionStorage},
		events,
		log,
	)

	// Create API router
	handler := api.NewHandler(controller, analysisService, results, segmentStorage, sessionStorage, cfg, log, wsServer)
	router := api.NewRouter(handler, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// End any active session first so the recording is not lost
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.Stop(stopCtx); err != nil {
		log.Error("Error stopping active session", logger.Error(err))
	}
	stopCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}

// sessionStoreAdapter maps the controller's persistence surface onto the
// SQLite session storage
type sessionStoreAdapter struct {
	storage *sqlite.SessionStorage
}

func (a *sessionStoreAdapter) SaveSession(ctx context.Context, id, applicationID, interviewType string, startedAt time.Time) error {
	return a.storage.SaveSession(ctx, &sqlite.SessionRecord{
		ID:            id,
		ApplicationID: applicationID,
		InterviewType: interviewType,
		State:         string(session.StateRecording),
		StartedAt:     startedAt,
	})
}

func (a *sessionStoreAdapter) UpdateSessionState(ctx context.Context, id, state, errorReason string) error {
	return a.storage.UpdateSessionState(ctx, id, state, errorReason)
}

func (a *sessionStoreAdapter) MarkSessionEnded(ctx context.Context, id string, endedAt time.Time) error {
	return a.storage.MarkSessionEnded(ctx, id, endedAt)
}

func (a *sessionStoreAdapter) MarkSessionUploaded(ctx context.Context, id string, uploadedAt time.Time) error {
	return a.storage.MarkSessionUploaded(ctx, id, uploadedAt)
}
