package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dwkim-hr/intervox/internal/buffer"
	"github.com/dwkim-hr/intervox/internal/metrics"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Store persists settled transcript segments
type Store interface {
	SaveSegment(ctx context.Context, seg Segment) error
}

// Broadcaster pushes settled segments to connected listeners
type Broadcaster interface {
	BroadcastSegment(seg Segment)
}

// Dispatcher runs captured audio through an ordered chain of providers until
// one yields usable text. Usable means non-empty after trimming whitespace.
// Each provider attempt gets its own timeout; a timeout counts as a failure
// and the chain advances. With a degraded provider as the final tier the
// dispatcher always produces a segment.
type Dispatcher struct {
	providers   []Provider
	tierTimeout time.Duration
	results     *buffer.Rolling[Segment]
	store       Store
	broadcaster Broadcaster
	logger      *logger.Logger
}

// NewDispatcher creates a dispatcher over the given provider chain, in
// fallback order. store and broadcaster may be nil.
func NewDispatcher(providers []Provider, tierTimeout time.Duration, results *buffer.Rolling[Segment], store Store, broadcaster Broadcaster, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		providers:   providers,
		tierTimeout: tierTimeout,
		results:     results,
		store:       store,
		broadcaster: broadcaster,
		logger:      log.Named("dispatcher"),
	}
}

// Dispatch transcribes one WAV segment and fans the settled result out to the
// rolling buffer, the store, and connected listeners. It returns an error
// only when every provider in the chain fails.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, wavData []byte, capturedAt time.Time) (Segment, error) {
	start := time.Now()

	for _, p := range d.providers {
		res, err := d.attempt(ctx, p, wavData)
		if err != nil {
			d.logger.Warn("Provider failed, advancing chain",
				logger.String("provider", p.Name()),
				logger.String("tier", string(p.Tier())),
				logger.Error(err))
			continue
		}

		seg := NewSegment(sessionID, res.Text, p.Tier(), res.Confidence, capturedAt)
		d.settle(ctx, seg)
		metrics.RecordDispatchLatency(time.Since(start))

		d.logger.Info("Segment transcribed",
			logger.String("segment_id", seg.ID),
			logger.String("tier", string(seg.SourceTier)),
			logger.Duration("elapsed", time.Since(start)))
		return seg, nil
	}

	return Segment{}, fmt.Errorf("all %d transcription providers failed", len(d.providers))
}

// attempt runs a single provider under the per-tier timeout and validates
// that it produced usable text
func (d *Dispatcher) attempt(ctx context.Context, p Provider, wavData []byte) (Result, error) {
	attemptCtx := ctx
	if d.tierTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.tierTimeout)
		defer cancel()
	}

	res, err := p.Transcribe(attemptCtx, wavData)
	if err != nil {
		metrics.RecordTierAttempt(string(p.Tier()), false)
		return Result{}, err
	}

	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		metrics.RecordTierAttempt(string(p.Tier()), false)
		return Result{}, fmt.Errorf("provider %s returned empty text", p.Name())
	}

	metrics.RecordTierAttempt(string(p.Tier()), true)
	return res, nil
}

// settle records a finished segment everywhere downstream consumers look for
// it. Persistence failures are logged, not propagated: the live feed must not
// stall on storage.
func (d *Dispatcher) settle(ctx context.Context, seg Segment) {
	d.results.Push(seg)
	metrics.RecordSegment(string(seg.SourceTier))

	if d.store != nil {
		if err := d.store.SaveSegment(ctx, seg); err != nil {
			d.logger.Error("Failed to persist segment",
				logger.String("segment_id", seg.ID),
				logger.Error(err))
		}
	}
	if d.broadcaster != nil {
		d.broadcaster.BroadcastSegment(seg)
	}
}

// Results exposes the rolling buffer the dispatcher settles into
func (d *Dispatcher) Results() *buffer.Rolling[Segment] {
	return d.results
}
