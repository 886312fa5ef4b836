package domain

import "sort"

// Supported exchange identifiers.
const (
	ExchangeBinance  = "binance"
	ExchangeBybit    = "bybit"
	ExchangeBitget   = "bitget"
	ExchangeBitstamp = "bitstamp"
	ExchangeUpbit    = "upbit"
)

var supportedMarkets = map[string][]MarketType{
	ExchangeBinance:  {MarketSpot, MarketPerpetual},
	ExchangeBybit:    {MarketSpot, MarketPerpetual},
	ExchangeBitget:   {MarketSpot, MarketPerpetual},
	ExchangeBitstamp: {MarketSpot},
	ExchangeUpbit:    {MarketSpot},
}

// IsSupportedExchange reports whether a price source exists for the exchange.
func IsSupportedExchange(exchange string) bool {
	_, ok := supportedMarkets[exchange]
	return ok
}

// SupportsVenue reports whether the exchange offers the venue's market type.
func SupportsVenue(v Venue) bool {
	for _, m := range supportedMarkets[v.Exchange] {
		if m == v.Market {
			return true
		}
	}
	return false
}

// SupportedExchanges lists exchange ids in alphabetical order.
func SupportedExchanges() []string {
	ids := make([]string, 0, len(supportedMarkets))
	for id := range supportedMarkets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
