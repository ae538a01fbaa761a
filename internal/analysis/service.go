// Package analysis runs the evaluations the interview dashboard requests:
// resume-to-transcript similarity checks against the backend, and AI
// transcript summaries. Results for a given subject are requested once even
// when several dashboard components ask concurrently.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dwkim-hr/intervox/internal/dedupe"
	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

const summaryPrompt = `Summarize the following interview transcript in a few short paragraphs.
Focus on the candidate's answers, technical depth, and communication.

Transcript:
%s`

// Service exposes the analysis operations used by the dashboard
type Service struct {
	similarityURL string
	apiKey        string
	client        *http.Client
	generator     Generator
	similarity    *dedupe.Cache[float64]
	summaries     *dedupe.Cache[string]
	logger        *logger.Logger
}

// NewService creates an analysis service. similarityURL is the backend
// similarity endpoint; {id} in the URL is replaced by the application ID.
// generator may be nil, which disables summaries.
func NewService(similarityURL, apiKey string, timeout time.Duration, generator Generator, log *logger.Logger) *Service {
	return &Service{
		similarityURL: similarityURL,
		apiKey:        apiKey,
		client:        &http.Client{Timeout: timeout},
		generator:     generator,
		similarity:    dedupe.New[float64](log),
		summaries:     dedupe.New[string](log),
		logger:        log.Named("analysis"),
	}
}

// similarityResponse tolerates the field names the backend has used for the
// score across versions
type similarityResponse struct {
	Similarity *float64 `json:"similarity"`
	Score      *float64 `json:"score"`
}

// CheckSimilarity fetches the resume-to-transcript similarity score for an
// application from the backend. Concurrent calls for the same application
// share one in-flight request; the score is not cached once settled.
func (s *Service) CheckSimilarity(ctx context.Context, applicationID string) (float64, error) {
	key := "similarity:" + applicationID
	return s.similarity.Do(ctx, key, func(ctx context.Context) (float64, error) {
		url := strings.ReplaceAll(s.similarityURL, "{id}", applicationID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, fmt.Errorf("creating similarity request: %w", err)
		}
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fetching similarity: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return 0, fmt.Errorf("similarity endpoint returned %d: %s", resp.StatusCode, string(snippet))
		}

		var parsed similarityResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return 0, fmt.Errorf("decoding similarity response: %w", err)
		}

		var score float64
		switch {
		case parsed.Similarity != nil:
			score = *parsed.Similarity
		case parsed.Score != nil:
			score = *parsed.Score
		default:
			return 0, fmt.Errorf("similarity response carries no score")
		}

		s.logger.Info("Similarity checked",
			logger.String("application_id", applicationID),
			logger.Float64("score", score))
		return score, nil
	})
}

// SummarizeTranscript produces a prose summary of a session's segments,
// ordered by capture time. Concurrent calls for the same session share one
// in-flight request.
func (s *Service) SummarizeTranscript(ctx context.Context, sessionID string, segments []transcription.Segment) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("summaries are not configured")
	}

	key := "summary:" + sessionID
	return s.summaries.Do(ctx, key, func(ctx context.Context) (string, error) {
		text := joinSegments(segments)
		if text == "" {
			return "", fmt.Errorf("no transcript content for session %s", sessionID)
		}

		summary, err := s.generator.Generate(ctx, fmt.Sprintf(summaryPrompt, text))
		if err != nil {
			return "", fmt.Errorf("transcript summary: %w", err)
		}
		return strings.TrimSpace(summary), nil
	})
}

// joinSegments flattens segments into chronological transcript text,
// skipping degraded placeholders
func joinSegments(segments []transcription.Segment) string {
	ordered := make([]transcription.Segment, len(segments))
	copy(ordered, segments)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].CapturedAt.Before(ordered[j-1].CapturedAt); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	var b strings.Builder
	for _, seg := range ordered {
		if seg.SourceTier == transcription.TierDegraded {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
