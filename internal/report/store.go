// Package report provides PostgreSQL-backed storage for the audit trail:
// abuse reports, issued bans, and warnings. The relay itself never reads
// these tables; they exist for moderator review through the admin console.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store manages the audit archive.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Report is one archived abuse report.
type Report struct {
	ID       string
	Reporter int64
	Target   int64
	Count    int64 // target's report counter at filing time
	FiledAt  time.Time
}

// CreateReport archives an abuse report.
func (s *Store) CreateReport(ctx context.Context, r Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.FiledAt.IsZero() {
		r.FiledAt = time.Now()
	}

	const query = `
		INSERT INTO abuse_reports (id, reporter_id, target_id, report_count, filed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, r.ID, r.Reporter, r.Target, r.Count, r.FiledAt)
	if err != nil {
		return fmt.Errorf("report: insert report: %w", err)
	}
	return nil
}

// BanEntry is one archived ban.
type BanEntry struct {
	Target    int64
	Reason    string
	BannedBy  string
	Permanent bool
	AutoBan   bool
	ExpiresAt time.Time // zero for permanent
	IssuedAt  time.Time
}

// CreateBan archives an issued ban.
func (s *Store) CreateBan(ctx context.Context, b BanEntry) error {
	if b.IssuedAt.IsZero() {
		b.IssuedAt = time.Now()
	}

	var expires sql.NullTime
	if !b.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: b.ExpiresAt, Valid: true}
	}

	const query = `
		INSERT INTO ban_audit (target_id, reason, banned_by, is_permanent, is_auto_ban, expires_at, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		b.Target, b.Reason, b.BannedBy, b.Permanent, b.AutoBan, expires, b.IssuedAt)
	if err != nil {
		return fmt.Errorf("report: insert ban: %w", err)
	}
	return nil
}

// WarningEntry is one archived warning.
type WarningEntry struct {
	Target   int64
	Reason   string
	WarnedBy string
	IssuedAt time.Time
}

// CreateWarning archives an issued warning.
func (s *Store) CreateWarning(ctx context.Context, w WarningEntry) error {
	if w.IssuedAt.IsZero() {
		w.IssuedAt = time.Now()
	}

	const query = `
		INSERT INTO warning_audit (target_id, reason, warned_by, issued_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, w.Target, w.Reason, w.WarnedBy, w.IssuedAt)
	if err != nil {
		return fmt.Errorf("report: insert warning: %w", err)
	}
	return nil
}

// CountRecentReports returns how many reports were filed against a target
// within the window. Useful for moderator review of report brigading.
func (s *Store) CountRecentReports(ctx context.Context, target int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE target_id = $1
		  AND filed_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, target, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
