package bitget

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

func TestClient_FetchQuotes_Futures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != futuresTickersPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("productType") != productTypeUSDT {
			t.Errorf("productType = %s", r.URL.Query().Get("productType"))
		}
		if r.Header.Get("ACCESS-KEY") != "" {
			t.Error("Request without credentials should not be signed")
		}
		w.Write([]byte(`{"code":"00000","msg":"success","requestTime":1700000000000,"data":[
			{"symbol":"BTCUSDT","lastPr":"50200","askPr":"50201","bidPr":"50199","ts":"1700000000999"}
		]}`))
	}))
	defer server.Close()

	c := NewClient(infra.ExchangeConfig{ID: "bitget", Market: "perpetual", RestURL: server.URL}, infra.NewHTTPClient(time.Second), 0)
	quotes, err := c.FetchQuotes(context.Background(), []string{"BTC", "ETH"})

	if len(quotes) != 1 {
		t.Fatalf("Expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].Market != domain.MarketPerpetual || quotes[0].Ask.String() != "50201" {
		t.Errorf("unexpected quote %+v", quotes[0])
	}
	if !quotes[0].Timestamp.Equal(time.UnixMilli(1700000000999)) {
		t.Errorf("Timestamp = %v", quotes[0].Timestamp)
	}
	if !errors.Is(err, domain.ErrSymbolNotListed) {
		t.Errorf("Expected ETH not listed, got %v", err)
	}
}

func TestClient_FetchQuotes_SignedSpot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != spotTickersPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("ACCESS-KEY") != "key" || r.Header.Get("ACCESS-SIGN") == "" {
			t.Error("Expected signed request")
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[{"symbol":"SOLUSDT","askPr":"101.2","bidPr":"101.1","ts":""}]}`))
	}))
	defer server.Close()

	cfg := infra.ExchangeConfig{ID: "bitget", Market: "spot", RestURL: server.URL, AccessKey: "key", SecretKey: "secret", Passphrase: "pass"}
	c := NewClient(cfg, infra.NewHTTPClient(time.Second), 0)
	fixed := time.Unix(1700000000, 0)
	c.now = func() time.Time { return fixed }

	quotes, err := c.FetchQuotes(context.Background(), []string{"SOL"})
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	if len(quotes) != 1 || !quotes[0].Timestamp.Equal(fixed) {
		t.Errorf("Expected receive time fallback, got %+v", quotes)
	}
}

func TestClient_BusinessError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40034","msg":"Parameter does not exist","data":null}`))
	}))
	defer server.Close()

	c := NewClient(infra.ExchangeConfig{ID: "bitget", Market: "spot", RestURL: server.URL}, infra.NewHTTPClient(time.Second), 0)
	_, err := c.FetchQuotes(context.Background(), []string{"BTC"})

	var fe *domain.FetchError
	if !errors.As(err, &fe) || fe.Op != "request" {
		t.Fatalf("Expected venue FetchError, got %v", err)
	}
}
