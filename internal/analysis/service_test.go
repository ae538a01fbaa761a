package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

func newSimilarityServer(t *testing.T, delay time.Duration, calls *atomic.Int32, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckSimilarityParsesScore(t *testing.T) {
	var calls atomic.Int32
	srv := newSimilarityServer(t, 0, &calls, map[string]float64{"similarity": 0.85})
	s := NewService(srv.URL+"/api/applications/{id}/similarity", "", 5*time.Second, nil, logger.NewNop())

	score, err := s.CheckSimilarity(context.Background(), "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.85 {
		t.Errorf("score: got %f, want 0.85", score)
	}
}

func TestCheckSimilarityToleratesScoreField(t *testing.T) {
	var calls atomic.Int32
	srv := newSimilarityServer(t, 0, &calls, map[string]float64{"score": 0.72})
	s := NewService(srv.URL+"/{id}", "", 5*time.Second, nil, logger.NewNop())

	score, err := s.CheckSimilarity(context.Background(), "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if score != 0.72 {
		t.Errorf("score: got %f, want 0.72", score)
	}
}

func TestCheckSimilarityRejectsScorelessResponse(t *testing.T) {
	var calls atomic.Int32
	srv := newSimilarityServer(t, 0, &calls, map[string]string{"status": "pending"})
	s := NewService(srv.URL+"/{id}", "", 5*time.Second, nil, logger.NewNop())

	if _, err := s.CheckSimilarity(context.Background(), "app-1"); err == nil {
		t.Error("expected an error for a response without a score")
	}
}

func TestCheckSimilaritySurfacesBackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	s := NewService(srv.URL+"/{id}", "", 5*time.Second, nil, logger.NewNop())

	if _, err := s.CheckSimilarity(context.Background(), "app-1"); err == nil {
		t.Error("expected the backend error to surface")
	}
}

func TestCheckSimilarityDeduplicatesConcurrentCallers(t *testing.T) {
	var calls atomic.Int32
	srv := newSimilarityServer(t, 100*time.Millisecond, &calls, map[string]float64{"similarity": 0.9})
	s := NewService(srv.URL+"/{id}", "", 5*time.Second, nil, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score, err := s.CheckSimilarity(context.Background(), "app-1")
			if err != nil {
				t.Errorf("caller failed: %v", err)
			}
			if score != 0.9 {
				t.Errorf("score: got %f, want 0.9", score)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestCheckSimilarityDifferentApplicationsDoNotShare(t *testing.T) {
	var calls atomic.Int32
	srv := newSimilarityServer(t, 30*time.Millisecond, &calls, map[string]float64{"similarity": 0.5})
	s := NewService(srv.URL+"/{id}", "", 5*time.Second, nil, logger.NewNop())

	var wg sync.WaitGroup
	for _, id := range []string{"app-1", "app-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.CheckSimilarity(context.Background(), id); err != nil {
				t.Errorf("caller %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if got := calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2 (one per application)", got)
	}
}

type promptCapturingGenerator struct {
	response string
	calls    atomic.Int32
	mu       sync.Mutex
	prompt   string
}

func (g *promptCapturingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompt = prompt
	g.mu.Unlock()
	return g.response, nil
}

func (g *promptCapturingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompt
}

func newSummaryService(gen Generator) *Service {
	return NewService("http://unused/{id}", "", time.Second, gen, logger.NewNop())
}

func TestSummarizeTranscriptOrdersAndFilters(t *testing.T) {
	gen := &promptCapturingGenerator{response: "A solid interview."}
	s := newSummaryService(gen)

	base := time.Now()
	segments := []transcription.Segment{
		{Text: "second answer", SourceTier: transcription.TierPrimary, CapturedAt: base.Add(time.Second)},
		{Text: "(transcription unavailable for this segment)", SourceTier: transcription.TierDegraded, CapturedAt: base.Add(2 * time.Second)},
		{Text: "first answer", SourceTier: transcription.TierSecondary, CapturedAt: base},
	}

	summary, err := s.SummarizeTranscript(context.Background(), "sess-1", segments)
	if err != nil {
		t.Fatal(err)
	}
	if summary != "A solid interview." {
		t.Errorf("summary: got %q", summary)
	}

	prompt := gen.lastPrompt()
	first := strings.Index(prompt, "first answer")
	second := strings.Index(prompt, "second answer")
	if first == -1 || second == -1 || first > second {
		t.Errorf("prompt must contain answers in capture order:\n%s", prompt)
	}
	if strings.Contains(prompt, "unavailable for this segment") {
		t.Error("degraded placeholders must not reach the model")
	}
}

func TestSummarizeTranscriptRejectsEmptyContent(t *testing.T) {
	gen := &promptCapturingGenerator{response: "unused"}
	s := newSummaryService(gen)

	segments := []transcription.Segment{
		{Text: "x", SourceTier: transcription.TierDegraded, CapturedAt: time.Now()},
	}
	if _, err := s.SummarizeTranscript(context.Background(), "sess-1", segments); err == nil {
		t.Error("expected an error when only degraded segments exist")
	}
	if got := gen.calls.Load(); got != 0 {
		t.Errorf("generator must not run with no content, ran %d times", got)
	}
}

func TestSummarizeTranscriptWithoutGenerator(t *testing.T) {
	s := NewService("http://unused/{id}", "", time.Second, nil, logger.NewNop())
	if _, err := s.SummarizeTranscript(context.Background(), "sess-1", nil); err == nil {
		t.Error("expected an error when no generator is configured")
	}
}
