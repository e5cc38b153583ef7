package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LogAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"Ev1", "Ev2", "Ev3"} {
		at := base.Add(time.Duration(i) * time.Second)
		s.WithClock(func() time.Time { return at })
		err := s.LogAudit(ctx, domain.AuditEntry{
			EventID:   id,
			ChannelID: "C1",
			AuthorID:  "U1",
			Outcome:   domain.OutcomeAnswered,
			LatencyMs: int64(10 * (i + 1)),
		})
		if err != nil {
			t.Fatalf("LogAudit %s: %v", id, err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].EventID != "Ev3" || recent[1].EventID != "Ev2" {
		t.Fatalf("expected newest first, got %s, %s", recent[0].EventID, recent[1].EventID)
	}
	if recent[0].LatencyMs != 30 || recent[0].ChannelID != "C1" || recent[0].AuthorID != "U1" {
		t.Fatalf("unexpected record: %+v", recent[0])
	}
	if !recent[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("created_at: %v", recent[0].CreatedAt)
	}
}

func TestStore_Summary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.WithClock(func() time.Time { return now.Add(-2 * time.Hour) })
	s.LogAudit(ctx, domain.AuditEntry{EventID: "old", Outcome: domain.OutcomeBlocked})

	s.WithClock(func() time.Time { return now })
	s.LogAudit(ctx, domain.AuditEntry{EventID: "a", Outcome: domain.OutcomeAnswered})
	s.LogAudit(ctx, domain.AuditEntry{EventID: "b", Outcome: domain.OutcomeAnswered})
	s.LogAudit(ctx, domain.AuditEntry{EventID: "c", Outcome: domain.OutcomeFallback, Reason: "backend_failure"})

	counts, err := s.Summary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.OutcomeAnswered] != 2 || counts[domain.OutcomeFallback] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if _, ok := counts[domain.OutcomeBlocked]; ok {
		t.Fatalf("entries before since must be excluded: %v", counts)
	}
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.WithClock(func() time.Time { return now.Add(-48 * time.Hour) })
	s.LogAudit(ctx, domain.AuditEntry{EventID: "stale", Outcome: domain.OutcomeAnswered})
	s.WithClock(func() time.Time { return now })
	s.LogAudit(ctx, domain.AuditEntry{EventID: "fresh", Outcome: domain.OutcomeAnswered})

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned row, got %d", n)
	}
	recent, _ := s.Recent(ctx, 10)
	if len(recent) != 1 || recent[0].EventID != "fresh" {
		t.Fatalf("unexpected remaining rows: %+v", recent)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.LogAudit(context.Background(), domain.AuditEntry{EventID: "Ev1", Outcome: domain.OutcomeIgnored}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	recent, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Outcome != domain.OutcomeIgnored {
		t.Fatalf("unexpected rows after reopen: %+v", recent)
	}
}

var _ domain.AuditLogger = (*Store)(nil)
