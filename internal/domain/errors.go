package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// FetchError represents a failure to get a quote from one venue.
// The cycle continues without the venue's quotes.
type FetchError struct {
	Venue     Venue
	Asset     string // Empty when the whole venue failed
	Op        string // Operation that failed (e.g., "request", "decode", "normalize")
	Err       error  // Underlying error
	Retriable bool   // Whether a later attempt may succeed
}

func (e *FetchError) Error() string {
	if e.Asset == "" {
		return "fetch " + e.Venue.String() + " " + e.Op + ": " + e.Err.Error()
	}
	return "fetch " + e.Venue.String() + " " + e.Asset + " " + e.Op + ": " + e.Err.Error()
}

func (e *FetchError) IsRetriable() bool {
	return e.Retriable
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a retriable fetch error for the whole venue
func NewFetchError(venue Venue, op string, err error) *FetchError {
	return &FetchError{Venue: venue, Op: op, Err: err, Retriable: true}
}

// NewAssetFetchError creates a non-retriable error for one asset on a venue
func NewAssetFetchError(venue Venue, asset, op string, err error) *FetchError {
	return &FetchError{Venue: venue, Asset: asset, Op: op, Err: err, Retriable: false}
}

// EvaluationFault is an unexpected failure while evaluating one pair.
// The pair is skipped, the cycle continues.
type EvaluationFault struct {
	Asset string
	Buy   Venue
	Sell  Venue
	Err   error
}

func (e *EvaluationFault) Error() string {
	return fmt.Sprintf("evaluate %s buy %s sell %s: %v", e.Asset, e.Buy, e.Sell, e.Err)
}

func (e *EvaluationFault) Unwrap() error {
	return e.Err
}

// CycleFault is a panic recovered from a scan cycle.
type CycleFault struct {
	CycleID string
	Panic   any
	Stack   []byte
}

func (e *CycleFault) Error() string {
	return fmt.Sprintf("cycle %s fault: %v", e.CycleID, e.Panic)
}

// SinkError is a persistence failure of one result sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return "sink " + e.Sink + ": " + e.Err.Error()
}

func (e *SinkError) IsRetriable() bool {
	return false
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrFeeNotFound is returned when the fee schedule has no entry for a venue.
	ErrFeeNotFound = errors.New("fee rate not found")

	// ErrInvalidQuote is returned when a venue reports a crossed or malformed book.
	ErrInvalidQuote = errors.New("invalid quote")

	// ErrNonPositivePrice is returned when a bid or ask is missing, zero or negative.
	ErrNonPositivePrice = errors.New("non-positive price")

	// ErrSymbolNotListed is returned when a venue does not list an asset's instrument.
	ErrSymbolNotListed = errors.New("symbol not listed")

	// ErrUnknownExchange is returned when configuration names an unsupported exchange.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrNoAssets is returned when no asset is configured
	ErrNoAssets = errors.New("no assets configured")

	// ErrScannerStopped is returned when a stopped scanner is asked to scan again.
	ErrScannerStopped = errors.New("scanner stopped")

	// ErrScanInProgress is returned when a cycle is requested while one runs.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
