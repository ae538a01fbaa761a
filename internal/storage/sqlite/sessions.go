package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord represents one recording session in the database
type SessionRecord struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	InterviewType string     `json:"interview_type"`
	State         string     `json:"state"`
	ErrorReason   string     `json:"error_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	UploadedAt    *time.Time `json:"uploaded_at,omitempty"`
}

// SessionStorage handles storage of recording session records
type SessionStorage struct {
	db *sql.DB
}

// NewSessionStorage creates a new SQLite session storage
func NewSessionStorage(db *sql.DB) (*SessionStorage, error) {
	storage := &SessionStorage{db: db}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *SessionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recording_sessions (
			id TEXT PRIMARY KEY,
			application_id TEXT NOT NULL,
			interview_type TEXT NOT NULL,
			state TEXT NOT NULL,
			error_reason TEXT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			uploaded_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create recording_sessions table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_application_id ON recording_sessions(application_id)`)
	if err != nil {
		return fmt.Errorf("failed to create application_id index: %w", err)
	}

	return nil
}

// SaveSession inserts a new session record
func (s *SessionStorage) SaveSession(ctx context.Context, record *SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recording_sessions
		(id, application_id, interview_type, state, error_reason, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ApplicationID,
		record.InterviewType,
		record.State,
		record.ErrorReason,
		record.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// UpdateSessionState updates the state (and error reason) of a session
func (s *SessionStorage) UpdateSessionState(ctx context.Context, id, state, errorReason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recording_sessions SET state = ?, error_reason = ? WHERE id = ?`,
		state, errorReason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}

	return nil
}

// MarkSessionEnded records the end of capture for a session
func (s *SessionStorage) MarkSessionEnded(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recording_sessions SET ended_at = ? WHERE id = ?`,
		endedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session ended: %w", err)
	}

	return nil
}

// MarkSessionUploaded records a completed upload for a session
func (s *SessionStorage) MarkSessionUploaded(ctx context.Context, id string, uploadedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recording_sessions SET uploaded_at = ? WHERE id = ?`,
		uploadedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session uploaded: %w", err)
	}

	return nil
}

// GetSession returns a single session by ID
func (s *SessionStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, interview_type, state, error_reason, started_at, ended_at, uploaded_at
		FROM recording_sessions
		WHERE id = ?`,
		id,
	)

	record, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetSessions returns sessions newest-first with pagination
func (s *SessionStorage) GetSessions(ctx context.Context, limit, offset int) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, interview_type, state, error_reason, started_at, ended_at, uploaded_at
		FROM recording_sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// rowScanner covers both sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession parses one session row
func scanSession(row rowScanner) (*SessionRecord, error) {
	var record SessionRecord
	var errorReason sql.NullString
	var startedAt string
	var endedAt, uploadedAt sql.NullString

	if err := row.Scan(
		&record.ID,
		&record.ApplicationID,
		&record.InterviewType,
		&record.State,
		&errorReason,
		&startedAt,
		&endedAt,
		&uploadedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	var err error
	record.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	if errorReason.Valid {
		record.ErrorReason = errorReason.String
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		record.EndedAt = &t
	}
	if uploadedAt.Valid {
		t, err := time.Parse(time.RFC3339, uploadedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uploaded_at: %w", err)
		}
		record.UploadedAt = &t
	}

	return &record, nil
}
