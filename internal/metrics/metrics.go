// Package metrics exposes Prometheus instrumentation for the interview
// signal pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transcription metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intervox_transcript_segments_total",
		Help: "Transcript segments produced, by source tier",
	}, []string{"tier"})

	tierAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intervox_stt_tier_attempts_total",
		Help: "Provider attempts in the transcription fallback chain",
	}, []string{"tier", "status"}) // status: "success" or "error"

	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intervox_stt_dispatch_latency_seconds",
		Help:    "Time from segment capture to a settled transcription result",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 15.0, 30.0},
	})

	// Request dedup metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intervox_dedup_cache_hits_total",
		Help: "Callers that attached to an already in-flight operation",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intervox_dedup_cache_misses_total",
		Help: "Callers that started a fresh operation",
	})

	// Session metrics
	activeSession = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intervox_recording_session_active",
		Help: "Whether a recording session is currently active (0 or 1)",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intervox_recording_uploads_total",
		Help: "Recording upload attempts, by outcome",
	}, []string{"status"})
)

// RecordSegment counts a produced transcript segment
func RecordSegment(tier string) {
	segmentsTotal.WithLabelValues(tier).Inc()
}

// RecordTierAttempt counts one provider attempt
func RecordTierAttempt(tier string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	tierAttempts.WithLabelValues(tier, status).Inc()
}

// RecordDispatchLatency observes end-to-end dispatch time
func RecordDispatchLatency(d time.Duration) {
	dispatchLatency.Observe(d.Seconds())
}

// RecordCacheHit counts a deduplicated caller
func RecordCacheHit() { cacheHits.Inc() }

// RecordCacheMiss counts a fresh operation start
func RecordCacheMiss() { cacheMisses.Inc() }

// SetSessionActive flips the active-session gauge
func SetSessionActive(active bool) {
	if active {
		activeSession.Set(1)
	} else {
		activeSession.Set(0)
	}
}

// RecordUpload counts one upload attempt
func RecordUpload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
}
