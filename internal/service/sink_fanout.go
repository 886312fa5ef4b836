package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

// NamedSink pairs a sink with the name used in logs and SinkError.
type NamedSink struct {
	Name string
	Sink domain.ResultSink
}

// FanoutSink hands each cycle to every sink in order. Sinks are independent:
// a failure is wrapped in a SinkError, counted, and the remaining sinks still
// run. Nothing is buffered for a later cycle.
type FanoutSink struct {
	sinks   []NamedSink
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewFanoutSink creates a fan-out over sinks. A nil metrics uses GlobalMetrics.
func NewFanoutSink(metrics *infra.Metrics, sinks ...NamedSink) *FanoutSink {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &FanoutSink{
		sinks:   sinks,
		metrics: metrics,
		logger:  slog.Default().With("module", "sink_fanout"),
	}
}

// Names lists the configured sinks.
func (f *FanoutSink) Names() []string {
	out := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		out[i] = s.Name
	}
	return out
}

// Persist implements domain.ResultSink.
func (f *FanoutSink) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	var errs []error
	for _, s := range f.sinks {
		if err := safeCall(func() error { return s.Sink.Persist(ctx, result) }); err != nil {
			errs = append(errs, f.fail(s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SessionStarted forwards to every sink that records sessions.
func (f *FanoutSink) SessionStarted(ctx context.Context, info domain.SessionInfo) error {
	return f.eachRecorder(func(r domain.SessionRecorder) error { return r.SessionStarted(ctx, info) })
}

// SessionStopped forwards to every sink that records sessions.
func (f *FanoutSink) SessionStopped(ctx context.Context, info domain.SessionInfo) error {
	return f.eachRecorder(func(r domain.SessionRecorder) error { return r.SessionStopped(ctx, info) })
}

func (f *FanoutSink) eachRecorder(call func(domain.SessionRecorder) error) error {
	var errs []error
	for _, s := range f.sinks {
		r, ok := s.Sink.(domain.SessionRecorder)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return call(r) }); err != nil {
			errs = append(errs, f.fail(s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (f *FanoutSink) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.Sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, &domain.SinkError{Sink: s.Name, Err: err})
			}
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutSink) fail(name string, err error) error {
	f.metrics.RecordSinkError()
	sinkErr := &domain.SinkError{Sink: name, Err: err}
	f.logger.Error("Sink write failed", slog.String("sink", name), slog.Any("error", err))
	return sinkErr
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
