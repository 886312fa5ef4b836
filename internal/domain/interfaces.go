package domain

import (
	"context"
	"time"
)

// PriceSource fetches quotes from one venue. Implementations normalise the
// venue's response into Quote and must be safe for concurrent use.
//
// FetchQuotes returns the quotes it could build. A non-nil error may coexist
// with quotes; per-asset failures are joined with errors.Join.
type PriceSource interface {
	Venue() Venue
	FetchQuotes(ctx context.Context, assets []string) ([]Quote, error)
}

// ResultSink persists one finished cycle.
type ResultSink interface {
	Persist(ctx context.Context, result *ScanCycleResult) error
}

// SessionInfo describes one continuous scanning session.
type SessionInfo struct {
	StartedAt time.Time
	StoppedAt time.Time
	Interval  time.Duration
	Assets    []string
	Venues    []Venue
	Cycles    int
	Reason    string
}

// SessionRecorder is implemented by sinks that mark session boundaries.
type SessionRecorder interface {
	SessionStarted(ctx context.Context, info SessionInfo) error
	SessionStopped(ctx context.Context, info SessionInfo) error
}
