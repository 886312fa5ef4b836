package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
	"arbscan/internal/service"

	"github.com/google/uuid"
)

// DefaultInterval is the pause between cycle starts in continuous mode.
const DefaultInterval = 15 * time.Second

// State is the scanner lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// QuoteFetcher is the fetch stage of a cycle.
type QuoteFetcher interface {
	Venues() []domain.Venue
	FetchQuotes(ctx context.Context, assets []string) (domain.QuoteBook, []error)
}

// PairEvaluator is the evaluation stage of a cycle.
type PairEvaluator interface {
	Evaluate(cycleID string, assets []string, venues []domain.Venue, book domain.QuoteBook, now time.Time) service.Evaluation
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithMetrics replaces GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithIDGenerator replaces the random cycle id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scanner) { s.newID = fn }
}

// Scanner runs scan cycles: fetch, evaluate, persist. Cycles never overlap.
type Scanner struct {
	assets    []string
	fetcher   QuoteFetcher
	evaluator PairEvaluator
	sink      domain.ResultSink

	clock   Clock
	metrics *infra.Metrics
	logger  *slog.Logger
	newID   func() string

	state  atomic.Int32
	cycles atomic.Int64

	mu   sync.RWMutex // guards last (external reads)
	last *domain.ScanCycleResult
}

// NewScanner creates a scanner. sink may be nil.
func NewScanner(assets []string, fetcher QuoteFetcher, evaluator PairEvaluator, sink domain.ResultSink, opts ...Option) *Scanner {
	s := &Scanner{
		assets:    append([]string(nil), assets...),
		fetcher:   fetcher,
		evaluator: evaluator,
		sink:      sink,
		clock:     SystemClock,
		metrics:   infra.GlobalMetrics,
		logger:    slog.Default().With("module", "scanner"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Cycles returns how many cycles have completed.
func (s *Scanner) Cycles() int {
	return int(s.cycles.Load())
}

// LastResult returns the most recent cycle result, or nil before the first.
func (s *Scanner) LastResult() *domain.ScanCycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Stop moves the scanner to Stopped. Further scans fail with ErrScannerStopped.
func (s *Scanner) Stop() {
	s.state.Store(int32(StateStopped))
}

// ScanOnce runs a single cycle: Idle -> Scanning -> Idle.
func (s *Scanner) ScanOnce(ctx context.Context) (*domain.ScanCycleResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		if s.State() == StateStopped {
			return nil, domain.ErrScannerStopped
		}
		return nil, domain.ErrScanInProgress
	}
	defer s.state.CompareAndSwap(int32(StateScanning), int32(StateIdle))

	return s.runCycle(ctx), nil
}

// Run repeats cycles until ctx is cancelled, starting one every interval
// (sooner never, later only when a cycle overruns). Cancellation is observed
// after a cycle has been persisted and while sleeping. Run leaves the scanner
// Stopped.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if s.State() == StateStopped {
		return domain.ErrScannerStopped
	}

	session := domain.SessionInfo{
		StartedAt: s.clock.Now(),
		Interval:  interval,
		Assets:    s.assets,
		Venues:    s.fetcher.Venues(),
	}
	s.recordSession(ctx, session, true)
	s.logger.Info("🚀 Continuous scanning started",
		slog.Duration("interval", interval),
		slog.Any("assets", s.assets),
		slog.Int("venues", len(session.Venues)),
	)

	defer func() {
		s.Stop()
		session.StoppedAt = s.clock.Now()
		session.Cycles = s.Cycles()
		session.Reason = stopReason(ctx)
		s.recordSession(ctx, session, false)
		s.logger.Info("🛑 Continuous scanning stopped",
			slog.Int("cycles", session.Cycles),
			slog.String("reason", session.Reason),
		)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		start := s.clock.Now()
		if _, err := s.ScanOnce(ctx); err != nil {
			if errors.Is(err, domain.ErrScannerStopped) {
				return err
			}
			s.logger.Warn("Scan skipped", slog.Any("error", err))
		}

		if ctx.Err() != nil {
			return nil
		}

		wait := interval - s.clock.Now().Sub(start)
		if wait < 0 {
			s.logger.Warn("Cycle overran interval", slog.Duration("overrun", -wait))
			wait = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// runCycle never panics: a panic in fetch or evaluation becomes a CycleFault
// on the result, which is still persisted.
func (s *Scanner) runCycle(ctx context.Context) *domain.ScanCycleResult {
	start := s.clock.Now()
	result := &domain.ScanCycleResult{
		ID:        s.newID(),
		StartedAt: start,
		Assets:    s.assets,
		Quotes:    domain.QuoteBook{},
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				fault := &domain.CycleFault{CycleID: result.ID, Panic: r, Stack: debug.Stack()}
				s.logger.Error("CYCLE_PANIC_RECOVERED",
					slog.String("cycle_id", result.ID),
					slog.Any("panic", r),
					slog.String("stack", string(fault.Stack)),
				)
				s.metrics.RecordCycleFault()
				result.Errors = append(result.Errors, fault)
			}
		}()

		result.Venues = s.fetcher.Venues()
		book, fetchErrs := s.fetcher.FetchQuotes(ctx, s.assets)
		if book != nil {
			result.Quotes = book
		}
		result.Errors = append(result.Errors, fetchErrs...)
		for _, err := range fetchErrs {
			s.logger.Warn("Quote fetch failed", slog.String("cycle_id", result.ID), slog.Any("error", err))
		}

		ev := s.evaluator.Evaluate(result.ID, s.assets, result.Venues, result.Quotes, s.clock.Now())
		result.Opportunities = ev.Opportunities
		result.Skipped = ev.Skipped
		result.Summaries = ev.Summaries
		result.Errors = append(result.Errors, ev.Faults...)
	}()

	result.Duration = s.clock.Now().Sub(start)
	s.record(result)

	if s.sink != nil {
		if err := s.persist(ctx, result); err != nil {
			s.logger.Error("Cycle persisted with sink errors", slog.String("cycle_id", result.ID), slog.Any("error", err))
		}
	}

	s.cycles.Add(1)
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	s.logger.Info("Scan cycle complete",
		slog.String("cycle_id", result.ID),
		slog.Duration("duration", result.Duration),
		slog.Int("quotes", len(result.Quotes)),
		slog.Int("opportunities", len(result.Opportunities)),
		slog.Int("skipped_pairs", len(result.Skipped)),
		slog.Int("errors", len(result.Errors)),
	)
	return result
}

// persist hands the result to the sink on a detached context so a cancelled
// run still flushes this cycle. A sink panic is returned as an error.
func (s *Scanner) persist(ctx context.Context, result *domain.ScanCycleResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSinkError()
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.sink.Persist(context.WithoutCancel(ctx), result)
}

func (s *Scanner) record(r *domain.ScanCycleResult) {
	s.metrics.RecordCycle(r.Duration)
	s.metrics.RecordFetchErrors(len(r.FetchErrors()))
	s.metrics.RecordOpportunities(len(r.Opportunities))
	s.metrics.RecordSkippedPairs(len(r.Skipped))

	faults := 0
	for _, err := range r.Faults() {
		var ef *domain.EvaluationFault
		if errors.As(err, &ef) {
			faults++
		}
	}
	s.metrics.RecordEvaluationFaults(faults)
}

func (s *Scanner) recordSession(ctx context.Context, info domain.SessionInfo, start bool) {
	rec, ok := s.sink.(domain.SessionRecorder)
	if !ok {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if start {
		err = rec.SessionStarted(ctx, info)
	} else {
		err = rec.SessionStopped(ctx, info)
	}
	if err != nil {
		s.logger.Error("Session marker failed", slog.Bool("start", start), slog.Any("error", err))
	}
}

func stopReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "stopped"
}
