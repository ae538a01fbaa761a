package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// BackendProvider posts audio to the self-hosted transcription endpoint. It
// is the secondary tier, used when the managed API fails.
type BackendProvider struct {
	url    string
	apiKey string
	client *http.Client
	logger *logger.Logger
}

// NewBackendProvider creates the secondary provider targeting the given
// transcription endpoint
func NewBackendProvider(url, apiKey string, timeout time.Duration, log *logger.Logger) *BackendProvider {
	return &BackendProvider{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: log.Named("stt-backend"),
	}
}

// Name implements Provider
func (p *BackendProvider) Name() string { return "backend" }

// Tier implements Provider
func (p *BackendProvider) Tier() SourceTier { return TierSecondary }

// backendResponse tolerates both field names the endpoint has used for the
// transcribed text across versions
type backendResponse struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
}

// Transcribe implements Provider
func (p *BackendProvider) Transcribe(ctx context.Context, wavData []byte) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio", "segment.wav")
	if err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return Result{}, fmt.Errorf("writing audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("posting audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed backendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}

	text := strings.TrimSpace(parsed.Transcription)
	if text == "" {
		text = strings.TrimSpace(parsed.Text)
	}

	p.logger.Debug("Transcription received", logger.Int("chars", len(text)))
	return Result{Text: text, Confidence: 0.8}, nil
}
