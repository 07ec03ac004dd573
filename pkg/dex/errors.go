package dex

import (
	"errors"
	"fmt"
)

// Failure kinds shared by every adapter. Match them with errors.Is.
var (
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrDeadlineExpired       = errors.New("deadline expired")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrProviderTimeout       = errors.New("provider timeout")
	ErrValidation            = errors.New("validation error")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrDeadlineExpired, "DeadlineExpired"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrQuoteUnavailable, "QuoteUnavailable"},
	{ErrProviderTimeout, "ProviderTimeout"},
	{ErrProviderUnavailable, "ProviderUnavailable"},
}

// Error attaches a failure kind and the failing operation to a cause.
type Error struct {
	Op    string // adapter operation, e.g. "GetExpectedOutput"
	Venue string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	prefix := e.Op
	if e.Venue != "" {
		prefix = e.Venue + ": " + e.Op
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", prefix, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error. cause may be nil.
func NewError(venue, op string, kind error, cause error) *Error {
	return &Error{Op: op, Venue: venue, Kind: kind, Err: cause}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(venue, op string, kind error, format string, args ...any) *Error {
	return NewError(venue, op, kind, fmt.Errorf(format, args...))
}

// KindOf returns the name of the failure kind carried by err, or "" when
// err carries none.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return ""
}

// IsProviderFailure reports whether err stems from the RPC boundary.
func IsProviderFailure(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderTimeout)
}
