package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"arbscan/internal/domain"

	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds one venue's fetch when none is configured.
const DefaultFetchTimeout = 5 * time.Second

// PriceService fans a quote request out to every configured venue and keeps
// the most recent book for read-only consumers.
type PriceService struct {
	sources       []domain.PriceSource
	timeout       time.Duration
	maxConcurrent int
	logger        *slog.Logger

	mu       sync.RWMutex
	latest   domain.QuoteBook
	latestAt time.Time
}

// NewPriceService creates a new PriceService instance.
// maxConcurrent <= 0 runs one goroutine per venue.
func NewPriceService(sources []domain.PriceSource, timeout time.Duration, maxConcurrent int) *PriceService {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	sorted := make([]domain.PriceSource, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Venue().String() < sorted[j].Venue().String()
	})
	return &PriceService{
		sources:       sorted,
		timeout:       timeout,
		maxConcurrent: maxConcurrent,
		logger:        slog.Default().With("module", "price_service"),
		latest:        domain.QuoteBook{},
	}
}

// Venues returns the queried venues sorted for consistent ordering.
func (s *PriceService) Venues() []domain.Venue {
	out := make([]domain.Venue, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Venue()
	}
	return out
}

// FetchQuotes queries every venue concurrently and returns whatever could be
// fetched. A failing venue never aborts the others; its failures come back as
// *domain.FetchError values.
//
// Fetches run on a context detached from ctx's cancellation so a shutdown
// does not truncate a cycle; each venue is bounded by the fetch timeout.
func (s *PriceService) FetchQuotes(ctx context.Context, assets []string) (domain.QuoteBook, []error) {
	fetchCtx := context.WithoutCancel(ctx)
	wanted := make(map[string]bool, len(assets))
	for _, a := range assets {
		wanted[a] = true
	}

	var (
		mu   sync.Mutex
		book = domain.QuoteBook{}
		errs []error
	)

	var g errgroup.Group
	if s.maxConcurrent > 0 {
		g.SetLimit(s.maxConcurrent)
	}
	for _, src := range s.sources {
		src := src
		g.Go(func() error {
			quotes, err := s.fetchVenue(fetchCtx, src, assets)

			mu.Lock()
			defer mu.Unlock()
			for _, q := range quotes {
				if q.Venue() != src.Venue() || !wanted[q.Asset] {
					continue
				}
				book.Put(q)
			}
			errs = append(errs, splitFetchErrors(src.Venue(), err)...)
			// Errors are collected, never returned, so one venue cannot cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })

	s.mu.Lock()
	s.latest = book
	s.latestAt = time.Now()
	s.mu.Unlock()

	return book, errs
}

// fetchVenue runs one source under the per-venue timeout and turns a panic
// into a fetch error.
func (s *PriceService) fetchVenue(ctx context.Context, src domain.PriceSource, assets []string) (quotes []domain.Quote, err error) {
	venue := src.Venue()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Price source panic recovered",
				slog.String("venue", venue.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			quotes = nil
			err = &domain.FetchError{Venue: venue, Op: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	start := time.Now()
	quotes, err = src.FetchQuotes(ctx, assets)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &domain.FetchError{Venue: venue, Op: "timeout", Err: fmt.Errorf("no answer within %s: %w", s.timeout, err), Retriable: true}
	}
	s.logger.Debug("Venue fetched",
		slog.String("venue", venue.String()),
		slog.Int("quotes", len(quotes)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("failed", err != nil),
	)
	return quotes, err
}

// splitFetchErrors flattens an errors.Join result so each venue or asset
// failure is reported on its own, wrapping anything that is not already a
// FetchError.
func splitFetchErrors(venue domain.Venue, err error) []error {
	if err == nil {
		return nil
	}
	var fe *domain.FetchError
	if errors.As(err, &fe) && fe == err {
		return []error{err}
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, splitFetchErrors(venue, e)...)
		}
		return out
	}
	if errors.As(err, &fe) {
		return []error{err}
	}
	return []error{domain.NewFetchError(venue, "fetch", err)}
}

// Latest returns the quotes of the most recent cycle sorted by asset then
// venue, and when they were fetched.
func (s *PriceService) Latest() ([]domain.Quote, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Quote, 0, len(s.latest))
	for _, q := range s.latest {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Asset != result[j].Asset {
			return result[i].Asset < result[j].Asset
		}
		return result[i].Venue().String() < result[j].Venue().String()
	})
	return result, s.latestAt
}
