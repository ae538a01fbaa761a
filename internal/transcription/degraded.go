package transcription

import "context"

// degradedNotice is what listeners see when no provider could transcribe the
// segment. Surfacing a placeholder keeps the result feed moving instead of
// silently dropping audio.
const degradedNotice = "(transcription unavailable for this segment)"

// DegradedProvider is the terminal tier of the fallback chain. It always
// succeeds, returning a fixed placeholder with zero confidence.
type DegradedProvider struct{}

// NewDegradedProvider creates the placeholder provider
func NewDegradedProvider() *DegradedProvider { return &DegradedProvider{} }

// Name implements Provider
func (p *DegradedProvider) Name() string { return "degraded" }

// Tier implements Provider
func (p *DegradedProvider) Tier() SourceTier { return TierDegraded }

// Transcribe implements Provider. It never fails.
func (p *DegradedProvider) Transcribe(ctx context.Context, wavData []byte) (Result, error) {
	return Result{Text: degradedNotice, Confidence: 0}, nil
}
