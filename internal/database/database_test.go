package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestInsertRun(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	id, err := db.InsertRun(context.Background(), Run{
		Trigger:          TriggerManual,
		Outcome:          OutcomePublished,
		Style:            ptr("expert"),
		NewsLink:         ptr("https://ex.com/1"),
		NewsTitle:        ptr("Model shipped"),
		PostID:           ptr("urn:li:share:1"),
		PostText:         ptr("Post body"),
		CredentialSource: ptr("oauth"),
		StartedAt:        started,
		FinishedAt:       started.Add(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero run ID")
	}

	runs, err := db.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.Trigger != TriggerManual || *r.PostID != "urn:li:share:1" || r.Error != nil {
		t.Errorf("unexpected run: %+v", r)
	}
	if !r.StartedAt.Equal(started) || !r.FinishedAt.Equal(started.Add(3*time.Second)) {
		t.Errorf("timestamps not preserved: %v %v", r.StartedAt, r.FinishedAt)
	}
}

func TestInsertRunRejectsUnknownTrigger(t *testing.T) {
	db := openTestDB(t)
	_, err := db.InsertRun(context.Background(), Run{Trigger: "cron", Outcome: OutcomeFailed})
	if err == nil {
		t.Error("expected constraint violation for unknown trigger")
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, link := range []string{"a", "b", "c"} {
		db.InsertRun(ctx, Run{Trigger: TriggerScheduled, Outcome: OutcomeFailed, NewsLink: ptr(link), Error: ptr("boom")})
	}

	runs, err := db.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if *runs[0].NewsLink != "c" || *runs[1].NewsLink != "b" {
		t.Errorf("expected newest first, got %s, %s", *runs[0].NewsLink, *runs[1].NewsLink)
	}
}

func TestLatestPublished(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestPublished(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != nil {
		t.Error("expected nil on empty journal")
	}

	db.InsertRun(ctx, Run{Trigger: TriggerManual, Outcome: OutcomePublished, PostID: ptr("first")})
	db.InsertRun(ctx, Run{Trigger: TriggerManual, Outcome: OutcomePublished, PostID: ptr("second")})
	db.InsertRun(ctx, Run{Trigger: TriggerScheduled, Outcome: OutcomeFailed, Error: ptr("no fresh news")})

	latest, err = db.LatestPublished(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || *latest.PostID != "second" {
		t.Errorf("expected second published run, got %+v", latest)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalRuns != 0 {
		t.Errorf("expected 0 runs, got %d", stats.TotalRuns)
	}

	db.InsertRun(ctx, Run{Trigger: TriggerManual, Outcome: OutcomePublished})
	db.InsertRun(ctx, Run{Trigger: TriggerScheduled, Outcome: OutcomeFailed})
	db.InsertRun(ctx, Run{Trigger: TriggerScheduled, Outcome: OutcomeFailed})

	stats, _ = db.GetStats(ctx)
	if stats.TotalRuns != 3 || stats.Published != 1 || stats.Failed != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
