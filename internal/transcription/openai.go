package transcription

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// OpenAIProvider transcribes audio through the OpenAI audio transcription
// API. It is the primary tier of the fallback chain.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	language string
	logger   *logger.Logger
}

// NewOpenAIProvider creates the primary provider. model is the transcription
// model name (e.g. whisper-1); language is an ISO-639-1 hint passed through
// to the API. baseURL overrides the API endpoint when non-empty.
func NewOpenAIProvider(apiKey, baseURL, model, language string, log *logger.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
		logger:   log.Named("stt-openai"),
	}
}

// Name implements Provider
func (p *OpenAIProvider) Name() string { return "openai" }

// Tier implements Provider
func (p *OpenAIProvider) Tier() SourceTier { return TierPrimary }

// Transcribe implements Provider
func (p *OpenAIProvider) Transcribe(ctx context.Context, wavData []byte) (Result, error) {
	req := openai.AudioRequest{
		Model:    p.model,
		Reader:   bytes.NewReader(wavData),
		FilePath: "segment.wav",
		Language: p.language,
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("openai transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	p.logger.Debug("Transcription received",
		logger.String("model", p.model),
		logger.Int("chars", len(text)))

	return Result{Text: text, Confidence: 0.9}, nil
}
