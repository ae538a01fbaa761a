package transcription

import "context"

// Result is a provider's answer for one audio segment
type Result struct {
	Text       string
	Confidence float64
}

// Provider turns a WAV-encoded audio segment into text. Implementations are
// expected to be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string
	// Tier reports where the provider sits in the fallback chain
	Tier() SourceTier
	// Transcribe converts the WAV blob to text, honoring ctx for cancellation
	Transcribe(ctx context.Context, wavData []byte) (Result, error)
}
