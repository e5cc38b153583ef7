// Package audit keeps an optional SQLite trail of pipeline outcomes. It stores
// ids, outcomes and latency only, never message text.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"relaybot/internal/domain"
)

// Store implements domain.AuditLogger on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Record is one stored audit row.
type Record struct {
	domain.AuditEntry
	CreatedAt time.Time
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// WithClock replaces the clock used for created_at and pruning.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) LogAudit(ctx context.Context, e domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_id, channel_id, author_id, outcome, reason, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.ChannelID, e.AuthorID, e.Outcome, e.Reason, e.LatencyMs, s.now().UnixMilli(),
	)
	return err
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, channel_id, author_id, outcome, reason, latency_ms, created_at
		 FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var channel, author, reason sql.NullString
		var created int64
		if err := rows.Scan(&r.EventID, &channel, &author, &r.Outcome, &reason, &r.LatencyMs, &created); err != nil {
			return nil, err
		}
		r.ChannelID, r.AuthorID, r.Reason = channel.String, author.String, reason.String
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary counts outcomes recorded since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM audit_log WHERE created_at >= ? GROUP BY outcome`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune deletes entries older than the retention period.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, s.now().Add(-retention).UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned audit log", "deleted", n, "retention", retention)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
