package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"arbscan/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func sampleOpportunity() domain.Opportunity {
	return domain.Opportunity{
		CycleID:   "c1",
		Asset:     "ETH",
		BuyVenue:  domain.Venue{Exchange: domain.ExchangeBitstamp, Market: domain.MarketSpot},
		SellVenue: domain.Venue{Exchange: domain.ExchangeBinance, Market: domain.MarketPerpetual},
		BuyPrice:  decimal.RequireFromString("3000"),
		SellPrice: decimal.RequireFromString("3030"),
		Notional:  decimal.NewFromInt(1000),
		Profit: domain.ProfitBreakdown{
			Gross:      decimal.RequireFromString("10"),
			Fees:       decimal.RequireFromString("4.4"),
			Net:        decimal.RequireFromString("5.6"),
			NetPercent: decimal.RequireFromString("0.56"),
		},
		DetectedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEncodeRecords(t *testing.T) {
	payloads, err := encodeRecords([]domain.Opportunity{sampleOpportunity()})
	if err != nil {
		t.Fatalf("encodeRecords failed: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}

	var rec map[string]any
	if err := json.Unmarshal(payloads[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec["base_currency"] != "ETH" || rec["buy_exchange"] != "bitstamp" || rec["net_profit_percent"] != 0.56 {
		t.Errorf("unexpected payload %s", payloads[0])
	}
}

func TestStreamArgs(t *testing.T) {
	args := streamArgs("arbscan:stream", 500, sampleOpportunity(), []byte(`{}`))
	if args.Stream != "arbscan:stream" || args.MaxLen != 500 || !args.Approx {
		t.Errorf("unexpected args %+v", args)
	}
	values := args.Values.(map[string]any)
	if values["cycle_id"] != "c1" || values["asset"] != "ETH" || values["payload"] != "{}" {
		t.Errorf("unexpected values %v", values)
	}
}

func TestPersist_NothingToPublish(t *testing.T) {
	// Unreachable address: Persist must not touch the network without opportunities
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	p := NewPublisherWithClient(rdb, PublisherConfig{Channel: "ch", Stream: "st"})
	defer rdb.Close()

	if err := p.Persist(context.Background(), &domain.ScanCycleResult{ID: "c1"}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if p.cfg.StreamMaxLen != defaultStreamMaxLen {
		t.Errorf("expected default max len, got %d", p.cfg.StreamMaxLen)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close of borrowed client should be a no-op, got %v", err)
	}
}

func TestPersist_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer rdb.Close()
	p := NewPublisherWithClient(rdb, PublisherConfig{Channel: "ch"})

	r := &domain.ScanCycleResult{ID: "c1", Opportunities: []domain.Opportunity{sampleOpportunity()}}
	if err := p.Persist(context.Background(), r); err == nil {
		t.Error("expected error from unreachable server")
	}
}
