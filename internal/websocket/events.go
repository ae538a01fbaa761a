package websocket

import (
	"github.com/dwkim-hr/intervox/internal/transcription"
)

// Events adapts the hub to the push surfaces the pipeline components expect
type Events struct {
	server *Server
}

// NewEvents wraps a server for pipeline use
func NewEvents(server *Server) *Events {
	return &Events{server: server}
}

// BroadcastSegment pushes a settled transcript segment to all clients
func (e *Events) BroadcastSegment(seg transcription.Segment) {
	e.server.Broadcast(&Message{
		Type: MessageTypeTranscriptSegment,
		Data: map[string]any{
			"id":          seg.ID,
			"session_id":  seg.SessionID,
			"text":        seg.Text,
			"source_tier": string(seg.SourceTier),
			"confidence":  seg.Confidence,
			"captured_at": seg.CapturedAt,
			"created_at":  seg.CreatedAt,
		},
	})
}

// BroadcastSessionState pushes a recording session state change
func (e *Events) BroadcastSessionState(sessionID, state, errorReason string) {
	data := map[string]any{
		"session_id": sessionID,
		"state":      state,
	}
	if errorReason != "" {
		data["error_reason"] = errorReason
	}
	e.server.Broadcast(&Message{Type: MessageTypeSessionState, Data: data})
}

// BroadcastUploadResult pushes the outcome of a recording upload
func (e *Events) BroadcastUploadResult(sessionID string, success bool, detail string) {
	e.server.Broadcast(&Message{
		Type: MessageTypeUploadResult,
		Data: map[string]any{
			"session_id": sessionID,
			"success":    success,
			"detail":     detail,
		},
	})
}
