package infra

import (
	"errors"
	"testing"
	"time"

	"arbscan/internal/domain"
)

func TestParseQuote(t *testing.T) {
	venue := domain.Venue{Exchange: domain.ExchangeBybit, Market: domain.MarketSpot}
	now := time.Now()

	tests := []struct {
		name    string
		bid     string
		ask     string
		wantErr error
	}{
		{"valid", "100.5", "100.6", nil},
		{"missing bid", "", "100.6", domain.ErrNonPositivePrice},
		{"zero ask", "100.5", "0", domain.ErrNonPositivePrice},
		{"garbage", "abc", "100.6", domain.ErrInvalidQuote},
		{"crossed", "101", "100", domain.ErrInvalidQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuote(venue, "BTC", tt.bid, tt.ask, now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if q.Bid.String() != tt.bid {
					t.Errorf("Bid = %s, want %s", q.Bid, tt.bid)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMillis(t *testing.T) {
	fallback := time.Unix(1, 0)
	if got := ParseMillis("1700000000000", fallback); !got.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("ParseMillis = %v", got)
	}
	if got := ParseMillis("", fallback); !got.Equal(fallback) {
		t.Errorf("Expected fallback for empty timestamp, got %v", got)
	}
	if got := MillisToTime(0, fallback); !got.Equal(fallback) {
		t.Errorf("Expected fallback for zero timestamp, got %v", got)
	}
}

func TestSymbolFor(t *testing.T) {
	rule := func(a string) string { return a + "USDT" }
	if got := SymbolFor(nil, "BTC", rule); got != "BTCUSDT" {
		t.Errorf("SymbolFor default = %q", got)
	}
	if got := SymbolFor(map[string]string{"BTC": "XBTUSDT"}, "BTC", rule); got != "XBTUSDT" {
		t.Errorf("SymbolFor override = %q", got)
	}
}
