package transcription

import (
	"time"

	"github.com/google/uuid"
)

// SourceTier identifies which provider in the fallback chain produced a result
type SourceTier string

const (
	// TierPrimary is the managed speech-to-text API
	TierPrimary SourceTier = "primary"
	// TierSecondary is the self-hosted backend transcription endpoint
	TierSecondary SourceTier = "secondary"
	// TierDegraded is the canned placeholder used when every provider fails
	TierDegraded SourceTier = "degraded"
)

// Segment is one transcribed slice of interview audio
type Segment struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id,omitempty"`
	Text       string     `json:"text"`
	SourceTier SourceTier `json:"source_tier"`
	Confidence float64    `json:"confidence"`
	CapturedAt time.Time  `json:"captured_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewSegment builds a segment with a fresh identifier
func NewSegment(sessionID, text string, tier SourceTier, confidence float64, capturedAt time.Time) Segment {
	return Segment{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Text:       text,
		SourceTier: tier,
		Confidence: confidence,
		CapturedAt: capturedAt,
		CreatedAt:  time.Now(),
	}
}
