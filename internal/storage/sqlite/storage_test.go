package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dwkim-hr/intervox/internal/transcription"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSegmentStorageRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSegmentStorage(db, logger.NewNop())
	ctx := context.Background()

	captured := time.Now().Add(-2 * time.Second).UTC().Truncate(time.Second)
	seg := transcription.NewSegment("sess-1", "tell me about your last project", transcription.TierPrimary, 0.9, captured)
	if err := store.SaveSegment(ctx, seg); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSegmentsBySession(ctx, "sess-1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0].ID != seg.ID || got[0].Text != seg.Text || got[0].SourceTier != transcription.TierPrimary {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if !got[0].CapturedAt.Equal(captured) {
		t.Errorf("captured_at: got %v, want %v", got[0].CapturedAt, captured)
	}
}

func TestSegmentStorageOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	store := NewSegmentStorage(db, logger.NewNop())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		seg := transcription.NewSegment("sess-1", "answer", transcription.TierSecondary, 0.8, base.Add(time.Duration(i)*time.Second))
		if err := store.SaveSegment(ctx, seg); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetSegments(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CapturedAt.After(got[i-1].CapturedAt) {
			t.Error("segments not ordered newest-first")
		}
	}
}

func TestCountSegmentsBySession(t *testing.T) {
	db := openTestDB(t)
	store := NewSegmentStorage(db, logger.NewNop())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 25; i++ {
		seg := transcription.NewSegment("sess-1", "answer", transcription.TierPrimary, 0.9, base.Add(time.Duration(i)*time.Second))
		if err := store.SaveSegment(ctx, seg); err != nil {
			t.Fatal(err)
		}
	}
	other := transcription.NewSegment("sess-2", "noise", transcription.TierSecondary, 0.8, base)
	if err := store.SaveSegment(ctx, other); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountSegmentsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 25 {
		t.Errorf("expected 25 segments for sess-1, got %d", n)
	}

	n, err = store.CountSegmentsBySession(ctx, "sess-3")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 segments for an unknown session, got %d", n)
	}
}

func TestSessionStorageLifecycle(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSessionStorage(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	record := &SessionRecord{
		ID:            "sess-1",
		ApplicationID: "app-77",
		InterviewType: "technical",
		State:         "recording",
		StartedAt:     started,
	}
	if err := store.SaveSession(ctx, record); err != nil {
		t.Fatal(err)
	}

	ended := started.Add(time.Minute)
	if err := store.MarkSessionEnded(ctx, "sess-1", ended); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateSessionState(ctx, "sess-1", "uploading", ""); err != nil {
		t.Fatal(err)
	}
	uploaded := ended.Add(10 * time.Second)
	if err := store.MarkSessionUploaded(ctx, "sess-1", uploaded); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != "uploading" || got.ApplicationID != "app-77" {
		t.Errorf("unexpected session record: %+v", got)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("ended_at: got %v, want %v", got.EndedAt, ended)
	}
	if got.UploadedAt == nil || !got.UploadedAt.Equal(uploaded) {
		t.Errorf("uploaded_at: got %v, want %v", got.UploadedAt, uploaded)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSessionStorage(db)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetSession(context.Background(), "nope"); err == nil {
		t.Error("expected an error for a missing session")
	}
}
