package state

import (
	"context"
	"errors"

	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("resume store is closed")

// ResumeStore persists per-fingerprint completion so an interrupted crawl can
// skip finished units on restart. Implementations are safe for concurrent use.
type ResumeStore interface {
	IsDone(ctx context.Context, fingerprint string) (bool, error)
	MarkPending(ctx context.Context, fingerprint string) error
	// MarkDone is idempotent.
	MarkDone(ctx context.Context, fingerprint string) error
	// MarkFailed never downgrades a done fingerprint.
	MarkFailed(ctx context.Context, fingerprint, reason string) error
	// Load returns every known record. Unreadable state yields an empty map
	// and a logged warning, never an error the session has to stop on.
	Load(ctx context.Context) (map[string]domain.ResumeRecord, error)
	Close() error
}

// FailureRecorder is implemented by stores that also keep a replayable log of
// the failed units themselves, not only their fingerprints.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, unit task.Task, reason string) error
}
