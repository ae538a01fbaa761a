package vad

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

func testConfig() Config {
	return Config{
		Threshold:    30,
		Cooldown:     1000 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	}
}

func TestSampleTriggersAboveThresholdOnly(t *testing.T) {
	m := NewMonitor(testConfig(), logger.NewNop())

	var fired int
	onTrigger := func() { fired++ }

	if m.Sample(29, onTrigger) {
		t.Error("level below threshold must not trigger")
	}
	if m.Sample(30, onTrigger) {
		t.Error("level exactly at threshold must not trigger")
	}
	if !m.Sample(31, onTrigger) {
		t.Error("level above threshold must trigger")
	}
	if fired != 1 {
		t.Errorf("expected 1 trigger, got %d", fired)
	}
}

func TestSampleCooldownSuppressesRepeatTriggers(t *testing.T) {
	m := NewMonitor(testConfig(), logger.NewNop())

	// Drive time manually: loud samples at t, t+100ms and t+2000ms with a
	// 1000ms cooldown must yield exactly two triggers.
	base := time.Now()
	current := base
	m.now = func() time.Time { return current }

	var fired int
	onTrigger := func() { fired++ }

	m.Sample(200, onTrigger)
	current = base.Add(100 * time.Millisecond)
	m.Sample(200, onTrigger)
	current = base.Add(2000 * time.Millisecond)
	m.Sample(200, onTrigger)

	if fired != 2 {
		t.Errorf("expected 2 triggers (t and t+2000ms), got %d", fired)
	}
}

func TestSampleCooldownBoundary(t *testing.T) {
	m := NewMonitor(testConfig(), logger.NewNop())

	base := time.Now()
	current := base
	m.now = func() time.Time { return current }

	var fired int
	onTrigger := func() { fired++ }

	m.Sample(200, onTrigger)
	// Exactly at the cooldown boundary the gate reopens
	current = base.Add(1000 * time.Millisecond)
	m.Sample(200, onTrigger)

	if fired != 2 {
		t.Errorf("expected the boundary sample to trigger, got %d triggers", fired)
	}
}

func TestStartPollsAndTriggers(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	m := NewMonitor(cfg, logger.NewNop())

	var fired atomic.Int32
	src := LevelFunc(func() float64 { return 100 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, src, func() { fired.Add(1) })
	defer m.Cancel()

	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("monitor never triggered on a loud source")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Cooldown keeps it at one trigger despite constant loudness
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected cooldown to hold triggers at 1, got %d", got)
	}
}

func TestCancelStopsPolling(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Cooldown = 0
	m := NewMonitor(cfg, logger.NewNop())

	var fired atomic.Int32
	m.Start(context.Background(), LevelFunc(func() float64 { return 100 }), func() { fired.Add(1) })

	time.Sleep(30 * time.Millisecond)
	m.Cancel()
	// Cancel again is harmless
	m.Cancel()

	time.Sleep(20 * time.Millisecond)
	settled := fired.Load()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != settled {
		t.Error("monitor kept triggering after Cancel")
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	m := NewMonitor(cfg, logger.NewNop())

	var first, second atomic.Int32
	m.Start(context.Background(), LevelFunc(func() float64 { return 100 }), func() { first.Add(1) })
	defer m.Cancel()
	m.Start(context.Background(), LevelFunc(func() float64 { return 100 }), func() { second.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if second.Load() != 0 {
		t.Error("second Start while running must be a no-op")
	}
	if first.Load() == 0 {
		t.Error("original polling loop should still be live")
	}
}
