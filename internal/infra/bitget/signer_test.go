package bitget

import (
	"testing"
	"time"
)

func TestSigner_GenerateHeaders(t *testing.T) {
	signer := NewSigner("key", "secret", "pass")
	signer.now = func() time.Time { return time.UnixMilli(1600000000000) }

	headers := signer.GenerateHeaders("GET", "/api/v2/test", "", "")

	if headers["ACCESS-KEY"] != "key" {
		t.Errorf("Expected ACCESS-KEY to be 'key', got %s", headers["ACCESS-KEY"])
	}
	if headers["ACCESS-PASSPHRASE"] != "pass" {
		t.Errorf("Expected ACCESS-PASSPHRASE to be 'pass', got %s", headers["ACCESS-PASSPHRASE"])
	}
	if headers["ACCESS-TIMESTAMP"] != "1600000000000" {
		t.Errorf("Expected fixed timestamp, got %s", headers["ACCESS-TIMESTAMP"])
	}

	// Payload: "1600000000000GET/api/v2/test"
	want := computeHmacSha256("1600000000000GET/api/v2/test", "secret")
	if headers["ACCESS-SIGN"] != want {
		t.Errorf("ACCESS-SIGN = %s, want %s", headers["ACCESS-SIGN"], want)
	}

	withQuery := signer.GenerateHeaders("GET", "/api/v2/mix/market/tickers", "productType=USDT-FUTURES", "")
	want = computeHmacSha256("1600000000000GET/api/v2/mix/market/tickers?productType=USDT-FUTURES", "secret")
	if withQuery["ACCESS-SIGN"] != want {
		t.Error("Query string must be part of the signed path")
	}
}

func TestSigner_Enabled(t *testing.T) {
	if NewSigner("", "", "").Enabled() {
		t.Error("Signer without credentials should be disabled")
	}
	if !NewSigner("k", "s", "").Enabled() {
		t.Error("Signer with credentials should be enabled")
	}
}

func TestComputeHmacSha256(t *testing.T) {
	// Standard HMAC-SHA256 Test Vector
	key := "key"
	data := "The quick brown fox jumps over the lazy dog"
	// Hex: f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8
	expected := "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg="
	result := computeHmacSha256(data, key)

	if result != expected {
		t.Errorf("HMAC Mismatch. Expected %s, got %s", expected, result)
	}
}
