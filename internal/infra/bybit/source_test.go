package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"
)

func TestSource_FetchQuotes(t *testing.T) {
	tests := []struct {
		market   string
		category string
	}{
		{"spot", "spot"},
		{"perpetual", "linear"},
	}

	for _, tt := range tests {
		t.Run(tt.market, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tickersPath {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("category"); got != tt.category {
					t.Errorf("category = %s, want %s", got, tt.category)
				}
				w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"` + tt.category + `","list":[
					{"symbol":"BTCUSDT","bid1Price":"50300","ask1Price":"50301","lastPrice":"50300.5"},
					{"symbol":"ETHUSDT","bid1Price":"","ask1Price":"3001","lastPrice":"3000"}
				]},"time":1700000000123}`))
			}))
			defer server.Close()

			src := NewSource(infra.ExchangeConfig{ID: "bybit", Market: tt.market, RestURL: server.URL}, infra.NewHTTPClient(time.Second), 0)
			quotes, err := src.FetchQuotes(context.Background(), []string{"BTC", "ETH"})

			if len(quotes) != 1 || quotes[0].Asset != "BTC" {
				t.Fatalf("unexpected quotes %+v", quotes)
			}
			if !quotes[0].Timestamp.Equal(time.UnixMilli(1700000000123)) {
				t.Errorf("Timestamp = %v", quotes[0].Timestamp)
			}
			if string(quotes[0].Market) != tt.market {
				t.Errorf("Market = %s", quotes[0].Market)
			}

			var fe *domain.FetchError
			if !errors.As(err, &fe) || fe.Asset != "ETH" {
				t.Errorf("Expected ETH asset error, got %v", err)
			}
		})
	}
}

func TestSource_BusinessError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{},"time":1}`))
	}))
	defer server.Close()

	src := NewSource(infra.ExchangeConfig{ID: "bybit", Market: "spot", RestURL: server.URL}, infra.NewHTTPClient(time.Second), 0)
	quotes, err := src.FetchQuotes(context.Background(), []string{"BTC"})
	if len(quotes) != 0 || err == nil {
		t.Fatalf("Expected business error, got %v / %v", quotes, err)
	}
	if domain.IsRetriable(err) {
		t.Error("Business errors should not be retriable")
	}
}
