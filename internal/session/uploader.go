package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dwkim-hr/intervox/internal/metrics"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Recording is a finalized session recording awaiting upload
type Recording struct {
	SessionID     string
	ApplicationID string
	InterviewType string
	WAV           []byte
	RecordedAt    time.Time
}

// Uploader delivers finalized recordings to the backend
type Uploader interface {
	Upload(ctx context.Context, rec *Recording) error
}

// HTTPUploader posts recordings as multipart form data to the backend
// recording endpoint
type HTTPUploader struct {
	url    string
	apiKey string
	client *http.Client
	logger *logger.Logger
}

// NewHTTPUploader creates an uploader targeting the given endpoint
func NewHTTPUploader(url, apiKey string, timeout time.Duration, log *logger.Logger) *HTTPUploader {
	return &HTTPUploader{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: log.Named("uploader"),
	}
}

// Upload implements Uploader
func (u *HTTPUploader) Upload(ctx context.Context, rec *Recording) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio_file", fmt.Sprintf("interview-%s.wav", rec.SessionID))
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(rec.WAV); err != nil {
		return fmt.Errorf("writing audio part: %w", err)
	}
	if err := mw.WriteField("application_id", rec.ApplicationID); err != nil {
		return fmt.Errorf("writing application_id field: %w", err)
	}
	if err := mw.WriteField("interview_type", rec.InterviewType); err != nil {
		return fmt.Errorf("writing interview_type field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		metrics.RecordUpload(false)
		return fmt.Errorf("posting recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.RecordUpload(false)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(snippet))
	}

	metrics.RecordUpload(true)
	u.logger.Info("Recording uploaded",
		logger.String("session_id", rec.SessionID),
		logger.String("application_id", rec.ApplicationID),
		logger.Int("bytes", len(rec.WAV)))
	return nil
}
