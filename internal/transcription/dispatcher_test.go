package transcription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dwkim-hr/intervox/internal/buffer"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

type stubProvider struct {
	name  string
	tier  SourceTier
	text  string
	err   error
	delay time.Duration
	calls int
}

func (s *stubProvider) Name() string     { return s.name }
func (s *stubProvider) Tier() SourceTier { return s.tier }

func (s *stubProvider) Transcribe(ctx context.Context, wavData []byte) (Result, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Text: s.text, Confidence: 0.9}, nil
}

func newTestDispatcher(providers ...Provider) (*Dispatcher, *buffer.Rolling[Segment]) {
	results := buffer.NewRolling[Segment](20)
	d := NewDispatcher(providers, 100*time.Millisecond, results, nil, nil, logger.NewNop())
	return d, results
}

func TestDispatchUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, text: "hello world"}
	secondary := &stubProvider{name: "s", tier: TierSecondary, text: "unused"}
	d, results := newTestDispatcher(primary, secondary)

	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if seg.SourceTier != TierPrimary || seg.Text != "hello world" {
		t.Errorf("got tier %s text %q", seg.SourceTier, seg.Text)
	}
	if secondary.calls != 0 {
		t.Error("secondary must not run when the primary succeeds")
	}
	if results.Len() != 1 {
		t.Errorf("expected one buffered result, got %d", results.Len())
	}
}

func TestDispatchFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, err: errors.New("quota exceeded")}
	secondary := &stubProvider{name: "s", tier: TierSecondary, text: "hello"}
	d, _ := newTestDispatcher(primary, secondary)

	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if seg.SourceTier != TierSecondary || seg.Text != "hello" {
		t.Errorf("expected secondary result, got tier %s text %q", seg.SourceTier, seg.Text)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("call counts: primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestDispatchTreatsEmptyTextAsFailure(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, text: "   \n\t "}
	secondary := &stubProvider{name: "s", tier: TierSecondary, text: "real words"}
	d, _ := newTestDispatcher(primary, secondary)

	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if seg.SourceTier != TierSecondary {
		t.Errorf("whitespace-only text should advance the chain, got tier %s", seg.SourceTier)
	}
}

func TestDispatchTimeoutAdvancesChain(t *testing.T) {
	slow := &stubProvider{name: "p", tier: TierPrimary, text: "late", delay: time.Second}
	fast := &stubProvider{name: "s", tier: TierSecondary, text: "on time"}
	d, _ := newTestDispatcher(slow, fast)

	start := time.Now()
	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if seg.SourceTier != TierSecondary {
		t.Errorf("timed-out primary should be skipped, got tier %s", seg.SourceTier)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("dispatch waited past the tier timeout: %v", elapsed)
	}
}

func TestDispatchFullDegradationAppendsExactlyOnePlaceholder(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, err: errors.New("down")}
	secondary := &stubProvider{name: "s", tier: TierSecondary, err: errors.New("also down")}
	d, results := newTestDispatcher(primary, secondary, NewDegradedProvider())

	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if seg.SourceTier != TierDegraded {
		t.Errorf("expected degraded tier, got %s", seg.SourceTier)
	}
	if seg.Confidence != 0 {
		t.Errorf("degraded results carry zero confidence, got %f", seg.Confidence)
	}
	if results.Len() != 1 {
		t.Errorf("full degradation must append exactly one result, got %d", results.Len())
	}
}

func TestDispatchErrorsWhenEveryProviderFails(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, err: errors.New("down")}
	d, results := newTestDispatcher(primary)

	if _, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), time.Now()); err == nil {
		t.Error("expected an error with no surviving provider")
	}
	if results.Len() != 0 {
		t.Errorf("failed dispatch must not buffer anything, got %d", results.Len())
	}
}

func TestDispatchPreservesCaptureTimestamp(t *testing.T) {
	primary := &stubProvider{name: "p", tier: TierPrimary, text: "hi"}
	d, _ := newTestDispatcher(primary)

	capturedAt := time.Now().Add(-3 * time.Second)
	seg, err := d.Dispatch(context.Background(), "sess-1", []byte("wav"), capturedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !seg.CapturedAt.Equal(capturedAt) {
		t.Errorf("capture timestamp rewritten: got %v, want %v", seg.CapturedAt, capturedAt)
	}
}
