package service

import (
	"context"
	"errors"
	"testing"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

type recordingSink struct {
	err      error
	persists int
	started  int
	stopped  int
	closed   bool
}

func (s *recordingSink) Persist(ctx context.Context, r *domain.ScanCycleResult) error {
	s.persists++
	return s.err
}

func (s *recordingSink) SessionStarted(ctx context.Context, info domain.SessionInfo) error {
	s.started++
	return nil
}

func (s *recordingSink) SessionStopped(ctx context.Context, info domain.SessionInfo) error {
	s.stopped++
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type persistOnly struct{ panics bool }

func (p persistOnly) Persist(ctx context.Context, r *domain.ScanCycleResult) error {
	if p.panics {
		panic("sink exploded")
	}
	return nil
}

func TestFanoutSink_IndependentSinks(t *testing.T) {
	metrics := &infra.Metrics{}
	failing := &recordingSink{err: errors.New("disk full")}
	healthy := &recordingSink{}

	fan := NewFanoutSink(metrics,
		NamedSink{Name: "opportunity_log", Sink: failing},
		NamedSink{Name: "sql", Sink: healthy},
		NamedSink{Name: "panicky", Sink: persistOnly{panics: true}},
	)

	err := fan.Persist(context.Background(), &domain.ScanCycleResult{ID: "c"})

	if healthy.persists != 1 {
		t.Error("A failing sink must not prevent the others")
	}
	var sinkErr *domain.SinkError
	if !errors.As(err, &sinkErr) || sinkErr.Sink != "opportunity_log" {
		t.Fatalf("Expected SinkError for opportunity_log, got %v", err)
	}
	if metrics.Snapshot().SinkErrors != 2 {
		t.Errorf("Expected 2 sink errors counted, got %d", metrics.Snapshot().SinkErrors)
	}
}

func TestFanoutSink_SessionsAndClose(t *testing.T) {
	rec := &recordingSink{}
	fan := NewFanoutSink(&infra.Metrics{}, NamedSink{Name: "activity", Sink: rec}, NamedSink{Name: "plain", Sink: persistOnly{}})

	ctx := context.Background()
	if err := fan.SessionStarted(ctx, domain.SessionInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := fan.SessionStopped(ctx, domain.SessionInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := fan.Close(); err != nil {
		t.Fatal(err)
	}
	if rec.started != 1 || rec.stopped != 1 || !rec.closed {
		t.Errorf("unexpected recorder state %+v", rec)
	}
	if names := fan.Names(); len(names) != 2 || names[0] != "activity" {
		t.Errorf("Names = %v", names)
	}
}
