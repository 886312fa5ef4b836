package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer handles Bitget V2 API authentication signatures
type Signer struct {
	accessKey  string
	secretKey  string
	passphrase string
	now        func() time.Time
}

// NewSigner creates a new Signer instance
func NewSigner(accessKey, secretKey, passphrase string) *Signer {
	return &Signer{
		accessKey:  accessKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		now:        time.Now,
	}
}

// Enabled reports whether credentials were configured. Public market data
// does not need them.
func (s *Signer) Enabled() bool {
	return s != nil && s.accessKey != "" && s.secretKey != ""
}

// GenerateHeaders creates the necessary headers for a request
// method: GET, POST, etc.
// path: /api/v2/spot/market/tickers (no host)
// query: productType=USDT-FUTURES (empty if none)
// body: json string (empty if none)
func (s *Signer) GenerateHeaders(method, path, query, body string) map[string]string {
	// Bitget V2 Requirement: Unix Timestamp in Milliseconds
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	// Format: timestamp + method + requestPath + "?" + queryString + body
	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}

	payload := timestamp + method + fullPath + body

	return map[string]string{
		"ACCESS-KEY":        s.accessKey,
		"ACCESS-SIGN":       computeHmacSha256(payload, s.secretKey),
		"ACCESS-TIMESTAMP":  timestamp,
		"ACCESS-PASSPHRASE": s.passphrase,
		"Content-Type":      "application/json",
		"locale":            "en-US",
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
