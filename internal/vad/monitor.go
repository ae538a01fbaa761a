// Package vad watches a live audio level and fires a trigger whenever speech
// rises above a configured loudness threshold, rate-limited by a cooldown so
// one utterance produces one trigger.
package vad

import (
	"context"
	"sync"
	"time"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

// LevelSource yields the current audio loudness on the 0-255 scale
type LevelSource interface {
	Level() float64
}

// LevelFunc adapts a plain function to LevelSource
type LevelFunc func() float64

// Level implements LevelSource
func (f LevelFunc) Level() float64 { return f() }

// Config tunes the monitor's detection behavior
type Config struct {
	// Threshold is the loudness (0-255) a sample must exceed to count as voice
	Threshold float64
	// Cooldown is the minimum interval between consecutive triggers
	Cooldown time.Duration
	// PollInterval is how often the level source is sampled
	PollInterval time.Duration
}

// Monitor polls a level source and invokes a callback when voice is detected.
// Detection is strictly-greater-than the threshold; a sample landing exactly
// on the threshold does not trigger. After a trigger the monitor stays silent
// for the cooldown window no matter how loud the input is.
type Monitor struct {
	cfg    Config
	logger *logger.Logger

	// now is replaceable for deterministic cooldown tests
	now func() time.Time

	mu          sync.Mutex
	cancel      context.CancelFunc
	running     bool
	lastTrigger time.Time
}

// NewMonitor creates a monitor with the given detection parameters
func NewMonitor(cfg Config, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: log.Named("vad"),
		now:    time.Now,
	}
}

// Start begins polling src every PollInterval, calling onTrigger whenever
// voice is detected outside the cooldown window. It returns immediately;
// polling runs until Cancel is called or ctx ends. Only one polling loop runs
// at a time.
func (m *Monitor) Start(ctx context.Context, src LevelSource, onTrigger func()) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.lastTrigger = time.Time{}
	m.mu.Unlock()

	m.logger.Info("Voice activity monitoring started",
		logger.Float64("threshold", m.cfg.Threshold),
		logger.Duration("cooldown", m.cfg.Cooldown),
		logger.Duration("poll_interval", m.cfg.PollInterval))

	go m.poll(ctx, src, onTrigger)
}

func (m *Monitor) poll(ctx context.Context, src LevelSource, onTrigger func()) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			m.logger.Info("Voice activity monitoring stopped")
			return
		case <-ticker.C:
			m.Sample(src.Level(), onTrigger)
		}
	}
}

// Sample evaluates a single loudness reading against the threshold and
// cooldown, firing onTrigger when both gates pass. Exposed so callers that
// already own a polling loop can drive detection directly.
func (m *Monitor) Sample(level float64, onTrigger func()) bool {
	if level <= m.cfg.Threshold {
		return false
	}

	m.mu.Lock()
	now := m.now()
	if !m.lastTrigger.IsZero() && now.Sub(m.lastTrigger) < m.cfg.Cooldown {
		m.mu.Unlock()
		return false
	}
	m.lastTrigger = now
	m.mu.Unlock()

	m.logger.Debug("Voice detected", logger.Float64("level", level))
	onTrigger()
	return true
}

// Cancel stops the polling loop. Safe to call repeatedly or before Start.
func (m *Monitor) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
