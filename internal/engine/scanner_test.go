package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
	"arbscan/internal/service"

	"github.com/shopspring/decimal"
)

var (
	venueA = domain.Venue{Exchange: domain.ExchangeBinance, Market: domain.MarketPerpetual}
	venueB = domain.Venue{Exchange: domain.ExchangeBybit, Market: domain.MarketPerpetual}
)

// scriptedFetcher returns a fixed book and can simulate work by advancing
// the manual clock.
type scriptedFetcher struct {
	clock   *manualClock
	work    time.Duration
	onFetch func(call int)

	mu     sync.Mutex
	calls  int
	starts []time.Time
}

func (f *scriptedFetcher) Venues() []domain.Venue { return []domain.Venue{venueA, venueB} }

func (f *scriptedFetcher) FetchQuotes(ctx context.Context, assets []string) (domain.QuoteBook, []error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	if f.clock != nil {
		f.starts = append(f.starts, f.clock.Now())
	}
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(call)
	}
	if f.clock != nil && f.work > 0 {
		f.clock.Advance(f.work)
	}

	book := domain.QuoteBook{}
	buy, _ := domain.NewQuote(venueA, "BTC", decimal.RequireFromString("49990"), decimal.RequireFromString("50000"), time.Unix(0, 0))
	sell, _ := domain.NewQuote(venueB, "BTC", decimal.RequireFromString("50300"), decimal.RequireFromString("50310"), time.Unix(0, 0))
	book.Put(buy)
	book.Put(sell)
	return book, []error{domain.NewFetchError(domain.Venue{Exchange: domain.ExchangeBitstamp, Market: domain.MarketSpot}, "request", errors.New("down"))}
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panickingEvaluator struct {
	inner     PairEvaluator
	panicOnce sync.Once
}

func (p *panickingEvaluator) Evaluate(id string, assets []string, venues []domain.Venue, book domain.QuoteBook, now time.Time) service.Evaluation {
	panicked := false
	p.panicOnce.Do(func() { panicked = true })
	if panicked {
		panic("evaluation blew up")
	}
	return p.inner.Evaluate(id, assets, venues, book, now)
}

type memorySink struct {
	mu       sync.Mutex
	results  []*domain.ScanCycleResult
	sessions []domain.SessionInfo
	stopped  []domain.SessionInfo
	err      error
}

func (m *memorySink) Persist(ctx context.Context, r *domain.ScanCycleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.results = append(m.results, r)
	return m.err
}

func (m *memorySink) SessionStarted(ctx context.Context, info domain.SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, info)
	return nil
}

func (m *memorySink) SessionStopped(ctx context.Context, info domain.SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, info)
	return nil
}

func (m *memorySink) Results() []*domain.ScanCycleResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ScanCycleResult(nil), m.results...)
}

func newEvaluator(t *testing.T) PairEvaluator {
	t.Helper()
	rate := domain.FeeRate{Taker: decimal.RequireFromString("0.001"), Maker: decimal.RequireFromString("0.001")}
	schedule, err := domain.NewFeeSchedule(map[domain.Venue]domain.FeeRate{venueA: rate, venueB: rate})
	if err != nil {
		t.Fatal(err)
	}
	return service.NewEvaluator(service.EvaluatorConfig{Notional: decimal.NewFromInt(1000), AllowCrossMarket: true},
		service.NewFeeModel(schedule, domain.DefaultFeeBasis()))
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("cycle-%d", n)
	}
}

func TestScanner_ScanOnce(t *testing.T) {
	sink := &memorySink{}
	metrics := &infra.Metrics{}
	s := NewScanner([]string{"BTC"}, &scriptedFetcher{}, newEvaluator(t), sink, WithMetrics(metrics), WithIDGenerator(sequentialIDs()))

	if s.State() != StateIdle {
		t.Fatalf("initial state = %s", s.State())
	}

	res, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state after ScanOnce = %s, want idle", s.State())
	}
	if res.ID != "cycle-1" || len(res.Venues) != 2 || len(res.Quotes) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Opportunities) != 1 || !res.Opportunities[0].Profit.Net.Equal(decimal.NewFromInt(4)) {
		t.Errorf("opportunities = %+v", res.Opportunities)
	}
	if len(res.FetchErrors()) != 1 {
		t.Errorf("fetch errors = %v", res.Errors)
	}
	if len(sink.Results()) != 1 {
		t.Error("Expected the cycle to be persisted")
	}
	if s.LastResult() != res {
		t.Error("LastResult should return the latest cycle")
	}

	snap := metrics.Snapshot()
	if snap.CyclesTotal != 1 || snap.Opportunities != 1 || snap.FetchErrors != 1 {
		t.Errorf("metrics = %+v", snap)
	}

	s.Stop()
	if _, err := s.ScanOnce(context.Background()); !errors.Is(err, domain.ErrScannerStopped) {
		t.Errorf("err = %v, want ErrScannerStopped", err)
	}
}

func TestScanner_PacingWithoutDrift(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newManualClock(start)
	fetcher := &scriptedFetcher{clock: clock, work: 3 * time.Second}
	sink := &memorySink{}
	s := NewScanner([]string{"BTC"}, fetcher, newEvaluator(t), sink, WithClock(clock), WithMetrics(&infra.Metrics{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 10*time.Second) }()

	for i := 0; i < 4; i++ {
		if !clock.waitForSleeper(2 * time.Second) {
			t.Fatalf("scanner never slept after cycle %d", i+1)
		}
		clock.Advance(7 * time.Second)
	}
	if !clock.waitForSleeper(2 * time.Second) {
		t.Fatal("scanner never slept after cycle 5")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if fetcher.Calls() != 5 {
		t.Fatalf("Expected 5 cycles, got %d", fetcher.Calls())
	}
	for i, ts := range fetcher.starts {
		want := start.Add(time.Duration(i) * 10 * time.Second)
		if !ts.Equal(want) {
			t.Errorf("cycle %d started at %v, want %v", i+1, ts, want)
		}
	}
	for _, d := range clock.Sleeps() {
		if d != 7*time.Second {
			t.Errorf("sleep = %v, want 7s", d)
		}
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if len(sink.Results()) != 5 {
		t.Errorf("persisted %d cycles, want 5", len(sink.Results()))
	}
}

func TestScanner_OverrunStartsImmediately(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{clock: clock, work: 12 * time.Second, onFetch: func(call int) {
		if call == 3 {
			cancel()
		}
	}}
	s := NewScanner([]string{"BTC"}, fetcher, newEvaluator(t), nil, WithClock(clock), WithMetrics(&infra.Metrics{}))

	if err := s.Run(ctx, 10*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fetcher.Calls() != 3 {
		t.Errorf("calls = %d, want 3", fetcher.Calls())
	}
	for _, d := range clock.Sleeps() {
		if d != 0 {
			t.Errorf("sleep = %v, want 0 after an overrun", d)
		}
	}
}

func TestScanner_CancelDuringSleep(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	fetcher := &scriptedFetcher{clock: clock, work: time.Second}
	sink := &memorySink{}
	s := NewScanner([]string{"BTC"}, fetcher, newEvaluator(t), sink, WithClock(clock), WithMetrics(&infra.Metrics{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 15*time.Second) }()

	if !clock.waitForSleeper(2 * time.Second) {
		t.Fatal("scanner never slept")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop during sleep")
	}

	if fetcher.Calls() != 1 {
		t.Errorf("a new cycle started after cancel: %d calls", fetcher.Calls())
	}
	if len(sink.Results()) != 1 {
		t.Errorf("records from the finished cycle must be kept, got %d", len(sink.Results()))
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if len(sink.sessions) != 1 || len(sink.stopped) != 1 || sink.stopped[0].Cycles != 1 {
		t.Errorf("session markers = %+v / %+v", sink.sessions, sink.stopped)
	}
	if err := s.Run(context.Background(), time.Second); !errors.Is(err, domain.ErrScannerStopped) {
		t.Errorf("Run after stop = %v, want ErrScannerStopped", err)
	}
}

func TestScanner_CancelDuringCycleStillFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{onFetch: func(int) { cancel() }}
	sink := &memorySink{}
	s := NewScanner([]string{"BTC"}, fetcher, newEvaluator(t), sink, WithMetrics(&infra.Metrics{}))

	if err := s.Run(ctx, time.Hour); err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := sink.Results()
	if len(results) != 1 || len(results[0].Opportunities) != 1 {
		t.Fatalf("partial cycle must be flushed before stopping, got %d results", len(results))
	}
}

func TestScanner_PanicIsCycleFault(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{clock: clock, onFetch: func(call int) {
		if call == 2 {
			cancel()
		}
	}}
	metrics := &infra.Metrics{}
	sink := &memorySink{}
	s := NewScanner([]string{"BTC"}, fetcher, &panickingEvaluator{inner: newEvaluator(t)}, sink, WithClock(clock), WithMetrics(metrics))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Second) }()

	if !clock.waitForSleeper(2 * time.Second) {
		t.Fatal("scanner did not survive the panic")
	}
	clock.Advance(5 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	results := sink.Results()
	if len(results) != 2 {
		t.Fatalf("Expected 2 persisted cycles, got %d", len(results))
	}
	var fault *domain.CycleFault
	if !errors.As(results[0].Faults()[0], &fault) {
		t.Errorf("first cycle should carry a CycleFault, got %v", results[0].Errors)
	}
	if len(results[1].Opportunities) != 1 {
		t.Error("loop should continue normally after a fault")
	}
	if metrics.Snapshot().CycleFaults != 1 {
		t.Errorf("cycle faults = %d", metrics.Snapshot().CycleFaults)
	}
}

func TestScanner_SinkErrorDoesNotStopLoop(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	s := NewScanner([]string{"BTC"}, &scriptedFetcher{}, newEvaluator(t), sink, WithMetrics(&infra.Metrics{}))

	for i := 0; i < 2; i++ {
		if _, err := s.ScanOnce(context.Background()); err != nil {
			t.Fatalf("ScanOnce: %v", err)
		}
	}
	if s.Cycles() != 2 {
		t.Errorf("cycles = %d", s.Cycles())
	}
}

type panickingSink struct{}

func (panickingSink) Persist(ctx context.Context, r *domain.ScanCycleResult) error {
	panic("sink blew up")
}

func TestScanner_SinkPanicIsRecovered(t *testing.T) {
	metrics := &infra.Metrics{}
	s := NewScanner([]string{"BTC"}, &scriptedFetcher{}, newEvaluator(t), panickingSink{}, WithMetrics(metrics))

	result, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if result == nil || s.Cycles() != 1 {
		t.Fatalf("expected the cycle to complete, cycles = %d", s.Cycles())
	}
	if got := metrics.Snapshot().SinkErrors; got != 1 {
		t.Errorf("sink errors = %d, want 1", got)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestScanner_RunSurvivesScanInProgress(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &scriptedFetcher{clock: clock, onFetch: func(call int) { cancel() }}
	s := NewScanner([]string{"BTC"}, fetcher, newEvaluator(t), nil, WithClock(clock), WithMetrics(&infra.Metrics{}))

	// Another caller holds the scanner when the loop starts
	s.state.Store(int32(StateScanning))
	if _, err := s.ScanOnce(ctx); !errors.Is(err, domain.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 10*time.Second) }()

	if !clock.waitForSleeper(2 * time.Second) {
		t.Fatal("Run did not keep looping after a busy scanner")
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("calls = %d, want 0 while busy", fetcher.Calls())
	}

	s.state.Store(int32(StateIdle))
	clock.Advance(10 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if fetcher.Calls() != 1 {
		t.Errorf("calls = %d, want 1", fetcher.Calls())
	}
}
