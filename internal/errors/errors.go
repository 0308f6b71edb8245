// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	// ErrInvalidTicker means the symbol is malformed or the provider
	// cannot resolve it.
	ErrInvalidTicker = errors.New("invalid ticker symbol")
	// ErrProviderUnavailable is a transient provider failure (network,
	// rate limit). Distinct from ErrInvalidTicker: callers may retry.
	ErrProviderUnavailable = errors.New("price provider unavailable")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoHoldings          = errors.New("no holdings")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrWatchlistNotFound   = errors.New("ticker not in watchlist")
	ErrStorage             = errors.New("storage error")
)

// TradeError represents an error raised while executing a trade.
type TradeError struct {
	UserID string
	Ticker string
	Side   string
	Reason string
	Err    error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error [%s %s %s]: %s: %v", e.UserID, e.Side, e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error [%s %s %s]: %s", e.UserID, e.Side, e.Ticker, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(userID, ticker, side, reason string, err error) *TradeError {
	return &TradeError{
		UserID: userID,
		Ticker: ticker,
		Side:   side,
		Reason: reason,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ProviderError represents an error from the price provider.
type ProviderError struct {
	Ticker  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s]: %s: %v", e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s]: %s", e.Ticker, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(ticker, message string, err error) *ProviderError {
	return &ProviderError{
		Ticker:  ticker,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
