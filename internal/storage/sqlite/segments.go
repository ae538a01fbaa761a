package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// SegmentStorage handles storage of transcript segments
type SegmentStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSegmentStorage creates a new SQLite segment storage
func NewSegmentStorage(db *sql.DB, logger *logger.Logger) *SegmentStorage {
	storage := &SegmentStorage{
		db:     db,
		logger: logger.Named("sqlite-segments"),
	}

	// Initialize database
	if err := storage.initDB(); err != nil {
		logger.Error("Failed to initialize segment storage", Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *SegmentStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_segments (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			text TEXT NOT NULL,
			source_tier TEXT NOT NULL,
			confidence REAL NOT NULL,
			captured_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_segments table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_segments_session_id ON transcript_segments(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session_id index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_segments_captured_at ON transcript_segments(captured_at)`)
	if err != nil {
		return fmt.Errorf("failed to create captured_at index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_segments_source_tier ON transcript_segments(source_tier)`)
	if err != nil {
		return fmt.Errorf("failed to create source_tier index: %w", err)
	}

	return nil
}

// SaveSegment stores a transcript segment
func (s *SegmentStorage) SaveSegment(ctx context.Context, seg transcription.Segment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_segments
		(id, session_id, text, source_tier, confidence, captured_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seg.ID,
		seg.SessionID,
		seg.Text,
		string(seg.SourceTier),
		seg.Confidence,
		seg.CapturedAt.Format(time.RFC3339),
		seg.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert segment: %w", err)
	}

	return nil
}

// GetSegments returns segments newest-first with pagination
func (s *SegmentStorage) GetSegments(ctx context.Context, limit, offset int) ([]*transcription.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, source_tier, confidence, captured_at, created_at
		FROM transcript_segments
		ORDER BY captured_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	return scanSegments(rows)
}

// GetSegmentsBySession returns segments for one recording session
func (s *SegmentStorage) GetSegmentsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*transcription.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, source_tier, confidence, captured_at, created_at
		FROM transcript_segments
		WHERE session_id = ?
		ORDER BY captured_at DESC
		LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments by session: %w", err)
	}
	defer rows.Close()

	return scanSegments(rows)
}

// CountSegmentsBySession returns the number of stored segments for a session
func (s *SegmentStorage) CountSegmentsBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_segments WHERE session_id = ?`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count segments by session: %w", err)
	}

	return count, nil
}

// GetSegmentsByTimeRange returns segments captured within a time range
func (s *SegmentStorage) GetSegmentsByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*transcription.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, source_tier, confidence, captured_at, created_at
		FROM transcript_segments
		WHERE captured_at BETWEEN ? AND ?
		ORDER BY captured_at DESC
		LIMIT ? OFFSET ?`,
		startTime.Format(time.RFC3339), endTime.Format(time.RFC3339), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments by time range: %w", err)
	}
	defer rows.Close()

	return scanSegments(rows)
}

// scanSegments parses query rows into segments
func scanSegments(rows *sql.Rows) ([]*transcription.Segment, error) {
	var segments []*transcription.Segment
	for rows.Next() {
		var seg transcription.Segment
		var sessionID sql.NullString
		var tier string
		var capturedAt, createdAt string

		if err := rows.Scan(
			&seg.ID,
			&sessionID,
			&seg.Text,
			&tier,
			&seg.Confidence,
			&capturedAt,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}

		var err error
		seg.CapturedAt, err = time.Parse(time.RFC3339, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse captured_at: %w", err)
		}
		seg.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		seg.SourceTier = transcription.SourceTier(tier)
		if sessionID.Valid {
			seg.SessionID = sessionID.String
		}

		segments = append(segments, &seg)
	}

	return segments, nil
}
