package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Storage       StorageConfig       `toml:"storage"`       // Data persistence settings
	Audio         AudioConfig         `toml:"audio"`         // Capture device settings
	VAD           VADConfig           `toml:"vad"`           // Voice activity monitor settings
	Capture       CaptureConfig       `toml:"capture"`       // Segment capture settings
	Transcription TranscriptionConfig `toml:"transcription"` // Transcription tier settings
	Buffer        BufferConfig        `toml:"buffer"`        // Rolling transcript buffer settings
	Upload        UploadConfig        `toml:"upload"`        // Session recording upload settings
	Analysis      AnalysisConfig      `toml:"analysis"`      // Deduplicated analysis settings
}

// Secrets are loaded from the environment, never from the TOML file
type Secrets struct {
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	BackendAPIKey string `envconfig:"BACKEND_API_KEY"`
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, needed for WebSocket)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLiteBasePath string `toml:"sqlite_base_path"` // Base path for SQLite database files (filename generated as intervox-YYYY-MM-DD.db)
}

// AudioConfig contains capture device configuration
type AudioConfig struct {
	SampleRate int `toml:"sample_rate"` // Capture sample rate in Hz (16000 works for whisper)
	Channels   int `toml:"channels"`    // Number of capture channels (1 for mono)
}

// VADConfig contains voice activity monitor configuration
type VADConfig struct {
	Enabled        bool    `toml:"enabled"`          // Enable live transcription during recording sessions
	Threshold      float64 `toml:"threshold"`        // Activity level that counts as speech, on a 0-255 scale
	CooldownMs     int     `toml:"cooldown_ms"`      // Minimum time between triggers in milliseconds
	PollIntervalMs int     `toml:"poll_interval_ms"` // How often the signal level is sampled in milliseconds (must stay >= 10 Hz)
}

// CaptureConfig contains segment capture configuration
type CaptureConfig struct {
	SegmentMs int `toml:"segment_ms"` // Duration of each captured segment in milliseconds
}

// TranscriptionConfig contains settings for the tiered transcription chain
type TranscriptionConfig struct {
	Model           string `toml:"model"`             // OpenAI transcription model for the primary tier (e.g., "whisper-1")
	Language        string `toml:"language"`          // Language hint passed to the primary tier (e.g., "ko")
	OpenAIBaseURL   string `toml:"openai_base_url"`   // Optional OpenAI base URL override (e.g., for proxies)
	BackendURL      string `toml:"backend_url"`       // Internal transcription endpoint for the secondary tier
	TierTimeoutSecs int    `toml:"tier_timeout_secs"` // Timeout applied to each tier attempt; a timeout advances to the next tier
	DegradedEnabled bool   `toml:"degraded_enabled"`  // Synthesize a labeled placeholder when all real tiers fail
}

// BufferConfig contains rolling transcript buffer configuration
type BufferConfig struct {
	Capacity int `toml:"capacity"` // Maximum number of live transcript segments kept for the UI
}

// UploadConfig contains session recording upload configuration
type UploadConfig struct {
	URL         string `toml:"url"`          // Backend endpoint receiving the finalized session recording
	TimeoutSecs int    `toml:"timeout_secs"` // HTTP timeout for the upload request
}

// AnalysisConfig contains settings for the deduplicated analysis consumers
type AnalysisConfig struct {
	SimilarityURL string `toml:"similarity_url"` // Backend endpoint for content-similarity checks
	GeminiModel   string `toml:"gemini_model"`   // Gemini model used for transcript summaries (e.g., "gemini-2.0-flash")
	TimeoutSecs   int    `toml:"timeout_secs"`   // HTTP timeout for analysis requests
}

// Default returns a configuration populated with working defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "127.0.0.1",
			ReadTimeoutSecs: 30,
			IdleTimeoutSecs: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			SQLiteBasePath: "data",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		VAD: VADConfig{
			Enabled:        true,
			Threshold:      30,
			CooldownMs:     1000,
			PollIntervalMs: 50,
		},
		Capture: CaptureConfig{
			SegmentMs: 2000,
		},
		Transcription: TranscriptionConfig{
			Model:           "whisper-1",
			Language:        "ko",
			TierTimeoutSecs: 15,
			DegradedEnabled: true,
		},
		Buffer: BufferConfig{
			Capacity: 20,
		},
		Upload: UploadConfig{
			TimeoutSecs: 120,
		},
		Analysis: AnalysisConfig{
			GeminiModel: "gemini-2.0-flash",
			TimeoutSecs: 30,
		},
	}
}

// Load loads configuration from the given TOML file
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadWithFallback loads configuration from the given path, or searches
// configs/ and the working directory for config.toml when no path is given.
// If no file is found anywhere, defaults are used.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	candidates := []string{
		filepath.Join("configs", "config.toml"),
		"config.toml",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}

	return Default(), nil
}

// LoadSecrets reads API keys from the environment
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("intervox", &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	return &s, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sample rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("invalid audio channel count: %d", c.Audio.Channels)
	}

	if c.VAD.Threshold < 0 || c.VAD.Threshold > 255 {
		return fmt.Errorf("vad threshold must be within 0-255, got %f", c.VAD.Threshold)
	}
	if c.VAD.CooldownMs < 0 {
		return fmt.Errorf("vad cooldown must not be negative, got %d", c.VAD.CooldownMs)
	}
	// Polling slower than 100ms can miss short utterances entirely
	if c.VAD.PollIntervalMs <= 0 || c.VAD.PollIntervalMs > 100 {
		return fmt.Errorf("vad poll interval must be within 1-100 ms, got %d", c.VAD.PollIntervalMs)
	}

	if c.Capture.SegmentMs <= 0 {
		return fmt.Errorf("capture segment duration must be positive, got %d", c.Capture.SegmentMs)
	}

	if c.Transcription.TierTimeoutSecs <= 0 {
		return fmt.Errorf("transcription tier timeout must be positive, got %d", c.Transcription.TierTimeoutSecs)
	}

	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity)
	}

	return nil
}
