package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, triggered_by, outcome, style, news_link, news_title, post_id, post_text,
	credential_source, error, started_at, finished_at`

// InsertRun journals a finished run and returns its ID.
func (db *DB) InsertRun(ctx context.Context, r Run) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (triggered_by, outcome, style, news_link, news_title, post_id, post_text,
		credential_source, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Trigger, r.Outcome, r.Style, r.NewsLink, r.NewsTitle, r.PostID, r.PostText,
		r.CredentialSource, r.Error, formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return result.LastInsertId()
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestPublished returns the most recent successful run, or nil.
func (db *DB) LatestPublished(ctx context.Context) (*Run, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE outcome = ? ORDER BY id DESC LIMIT 1`, OutcomePublished,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetStats returns aggregate journal statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.TotalRuns},
		{"SELECT COUNT(*) FROM runs WHERE outcome = 'published'", &s.Published},
		{"SELECT COUNT(*) FROM runs WHERE outcome = 'failed'", &s.Failed},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var started, finished string
	if err := row.Scan(&r.ID, &r.Trigger, &r.Outcome, &r.Style, &r.NewsLink, &r.NewsTitle,
		&r.PostID, &r.PostText, &r.CredentialSource, &r.Error, &started, &finished); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return &r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
