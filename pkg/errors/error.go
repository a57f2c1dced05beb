// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, zero position size, unsupported order types
//   - Data/Resource errors (200-299): Data not found, query and write failures
//   - Strategy errors (400-499): Strategy loading and runtime errors
//   - Trade lifecycle errors (500-599): Order submission, venue rejection and protocol violations
//   - Backtest errors (600-649): Backtesting engine and state errors
//   - Fill matching errors (650-699): Registration calls referencing unknown trades
//   - Callback errors (800-899): Callback execution failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeZeroQuantity, "calculated a quantity of 0 for trade")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeUnknownOrderID, "unexpected order event %d", orderID)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeOrderFailed, "failed to place entry order", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeUnknownOrderID) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsProtocolViolation reports whether err was caused by a caller referencing an
// order or trade id that the receiver never issued. Such errors never mutate state.
func IsProtocolViolation(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnknownOrderID, ErrCodeUnknownTradeID:
		return true
	default:
		return false
	}
}

// IsConfigurationError reports whether err aborts a trade because of its setup
// (zero position size, unsupported entry order type, invalid prices).
func IsConfigurationError(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeInvalidParameter && code < ErrCodeDataNotFound
}
