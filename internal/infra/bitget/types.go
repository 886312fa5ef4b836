package bitget

// Bitget V2 REST constants
const (
	BaseURL            = "https://api.bitget.com"
	spotTickersPath    = "/api/v2/spot/market/tickers"
	futuresTickersPath = "/api/v2/mix/market/tickers"
	productTypeUSDT    = "USDT-FUTURES"
	successCode        = "00000" // Bitget Success Code
)

// tickersResponse is the envelope of both ticker endpoints.
type tickersResponse struct {
	Code        string       `json:"code"`
	Msg         string       `json:"msg"`
	RequestTime int64        `json:"requestTime"`
	Data        []tickerData `json:"data"`
}

// tickerData carries the fields shared by spot and futures tickers.
type tickerData struct {
	Symbol string `json:"symbol"` // e.g. BTCUSDT
	LastPr string `json:"lastPr"` // 최근 체결가
	AskPr  string `json:"askPr"`  // 매도 1호가
	BidPr  string `json:"bidPr"`  // 매수 1호가
	Ts     string `json:"ts"`     // ms
}
