package analysis

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Generator produces a text completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiClient generates analysis text through the Gemini API
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *logger.Logger
}

// NewGeminiClient creates a Gemini-backed generator using the given model
func NewGeminiClient(ctx context.Context, apiKey, model string, log *logger.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: log.Named("gemini"),
	}, nil
}

// Generate implements Generator
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generation: %w", err)
	}

	text := resp.Text()
	c.logger.Debug("Generation complete",
		logger.String("model", c.model),
		logger.Int("chars", len(text)))
	return text, nil
}
