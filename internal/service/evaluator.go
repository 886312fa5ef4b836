package service

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"arbscan/internal/domain"

	"github.com/shopspring/decimal"
)

// EvaluatorConfig holds the per-process evaluation settings.
type EvaluatorConfig struct {
	Notional         decimal.Decimal
	MinProfitPercent decimal.Decimal // compared against net profit percent
	Inclusive        bool            // net percent == threshold also qualifies
	AllowCrossMarket bool            // pair spot with perpetual venues
}

// Evaluation is the evaluator's output for one cycle.
type Evaluation struct {
	Opportunities []domain.Opportunity
	Skipped       []domain.SkippedPair
	Faults        []error
	Summaries     []domain.AssetSummary
}

// Evaluator turns a cycle's quotes into opportunities.
type Evaluator struct {
	cfg    EvaluatorConfig
	fees   *FeeModel
	logger *slog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg EvaluatorConfig, fees *FeeModel) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		fees:   fees,
		logger: slog.Default().With("module", "evaluator"),
	}
}

// Evaluate checks every ordered pair of venues with different exchanges for
// every asset. Pairs lacking a quote are skipped, never treated as zero
// profit. A failing pair is recorded as an EvaluationFault and the rest are
// still evaluated.
func (e *Evaluator) Evaluate(cycleID string, assets []string, venues []domain.Venue, book domain.QuoteBook, now time.Time) Evaluation {
	var out Evaluation
	for _, asset := range assets {
		found := 0
		for _, buy := range venues {
			for _, sell := range venues {
				if buy.Exchange == sell.Exchange {
					continue
				}
				if !e.cfg.AllowCrossMarket && buy.Market != sell.Market {
					continue
				}

				buyQ, okBuy := book.Get(buy, asset)
				sellQ, okSell := book.Get(sell, asset)
				if !okBuy || !okSell {
					out.Skipped = append(out.Skipped, domain.SkippedPair{
						Asset:  asset,
						Buy:    buy,
						Sell:   sell,
						Reason: missingReason(okBuy, okSell),
					})
					continue
				}

				profit, err := e.evaluatePair(buyQ, sellQ)
				if err != nil {
					fault := &domain.EvaluationFault{Asset: asset, Buy: buy, Sell: sell, Err: err}
					e.logger.Warn("Pair evaluation failed", slog.Any("error", fault))
					out.Faults = append(out.Faults, fault)
					continue
				}
				if !e.passes(profit.Net) {
					continue
				}

				found++
				out.Opportunities = append(out.Opportunities, domain.Opportunity{
					CycleID:    cycleID,
					Asset:      asset,
					BuyVenue:   buy,
					SellVenue:  sell,
					BuyPrice:   buyQ.Ask,
					SellPrice:  sellQ.Bid,
					Notional:   e.cfg.Notional,
					Profit:     profit,
					DetectedAt: now.UTC(),
				})
			}
		}
		out.Summaries = append(out.Summaries, summarize(asset, book.ForAsset(asset), found))
	}

	sortOpportunities(out.Opportunities)
	return out
}

// evaluatePair computes the breakdown, converting a panic into an error so
// one bad pair cannot take down the cycle.
func (e *Evaluator) evaluatePair(buy, sell domain.Quote) (p domain.ProfitBreakdown, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.fees.NetProfit(buy, sell, e.cfg.Notional)
}

// passes compares the unrounded net percent with the threshold. The rounded
// NetPercent is for display only.
func (e *Evaluator) passes(net decimal.Decimal) bool {
	netPercent := net.Mul(hundred).Div(e.cfg.Notional)
	if e.cfg.Inclusive {
		return netPercent.GreaterThanOrEqual(e.cfg.MinProfitPercent)
	}
	return netPercent.GreaterThan(e.cfg.MinProfitPercent)
}

func missingReason(okBuy, okSell bool) string {
	switch {
	case !okBuy && !okSell:
		return "no quote on either venue"
	case !okBuy:
		return "no quote on buy venue"
	default:
		return "no quote on sell venue"
	}
}

// summarize finds the best bid and best ask across venues. The gross spread
// ignores fees and is only set when both sides exist.
func summarize(asset string, quotes []domain.Quote, opportunities int) domain.AssetSummary {
	s := domain.AssetSummary{Asset: asset, Quotes: len(quotes), Opportunities: opportunities}
	for i := range quotes {
		q := quotes[i]
		if s.BestBid == nil || q.Bid.GreaterThan(s.BestBid.Bid) {
			s.BestBid = &q
		}
		if s.BestAsk == nil || q.Ask.LessThan(s.BestAsk.Ask) {
			s.BestAsk = &q
		}
	}
	if s.BestBid != nil && s.BestAsk != nil {
		s.GrossSpread = s.BestBid.Bid.Sub(s.BestAsk.Ask).Mul(hundred).Div(s.BestAsk.Ask).Round(4)
	}
	return s
}

// sortOpportunities orders by net percent descending; ties fall back to asset,
// then buy venue, then sell venue.
func sortOpportunities(ops []domain.Opportunity) {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if c := a.Profit.NetPercent.Cmp(b.Profit.NetPercent); c != 0 {
			return c > 0
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		if a.BuyVenue.Exchange != b.BuyVenue.Exchange {
			return a.BuyVenue.Exchange < b.BuyVenue.Exchange
		}
		if a.SellVenue.Exchange != b.SellVenue.Exchange {
			return a.SellVenue.Exchange < b.SellVenue.Exchange
		}
		if a.BuyVenue.Market != b.BuyVenue.Market {
			return a.BuyVenue.Market < b.BuyVenue.Market
		}
		return a.SellVenue.Market < b.SellVenue.Market
	})
}
