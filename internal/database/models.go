package database

import "time"

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Run outcomes.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
)

// Run is one journaled autopost execution.
type Run struct {
	ID               int64
	Trigger          string
	Outcome          string
	Style            *string
	NewsLink         *string
	NewsTitle        *string
	PostID           *string
	PostText         *string
	CredentialSource *string
	Error            *string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Stats contains aggregate journal statistics.
type Stats struct {
	TotalRuns int
	Published int
	Failed    int
}
