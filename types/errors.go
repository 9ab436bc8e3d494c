package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every error that leaves this module.
type ErrorCode string

const (
	ErrCodeUnsupportedChain      ErrorCode = "UNSUPPORTED_CHAIN"
	ErrCodeInsufficientBalance   ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeAmountTooSmall        ErrorCode = "AMOUNT_TOO_SMALL"
	ErrCodeAttestationRejected   ErrorCode = "ATTESTATION_REJECTED"
	ErrCodeUserRejectedSignature ErrorCode = "USER_REJECTED_SIGNATURE"
	ErrCodeOnChainRevert         ErrorCode = "ONCHAIN_REVERT"
	ErrCodeNetworkTransient      ErrorCode = "NETWORK_TRANSIENT"
	ErrCodeUnconfiguredAddress   ErrorCode = "UNCONFIGURED_ADDRESS"
	ErrCodeChainMismatch         ErrorCode = "CHAIN_MISMATCH"
	ErrCodeInvalidSignature      ErrorCode = "INVALID_SIGNATURE"
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
)

// Error is the coded error type returned by every component.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	ChainID ChainID   `json:"chainId,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the package sentinels work
// with errors.Is regardless of message or chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may rerun the whole operation.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeNetworkTransient
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedChain      = &Error{Code: ErrCodeUnsupportedChain}
	ErrInsufficientBalance   = &Error{Code: ErrCodeInsufficientBalance}
	ErrAmountTooSmall        = &Error{Code: ErrCodeAmountTooSmall}
	ErrAttestationRejected   = &Error{Code: ErrCodeAttestationRejected}
	ErrUserRejectedSignature = &Error{Code: ErrCodeUserRejectedSignature}
	ErrOnChainRevert         = &Error{Code: ErrCodeOnChainRevert}
	ErrNetworkTransient      = &Error{Code: ErrCodeNetworkTransient}
	ErrUnconfiguredAddress   = &Error{Code: ErrCodeUnconfiguredAddress}
	ErrChainMismatch         = &Error{Code: ErrCodeChainMismatch}
	ErrInvalidSignature      = &Error{Code: ErrCodeInvalidSignature}
	ErrInvalidRequest        = &Error{Code: ErrCodeInvalidRequest}
)

// NewError builds a coded error.
func NewError(code ErrorCode, chain ChainID, format string, args ...any) *Error {
	return &Error{Code: code, ChainID: chain, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a coded error around cause.
func WrapError(code ErrorCode, chain ChainID, cause error, format string, args ...any) *Error {
	return &Error{Code: code, ChainID: chain, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUserRejection reports whether err is a declined wallet prompt.
func IsUserRejection(err error) bool {
	return errors.Is(err, ErrUserRejectedSignature)
}

// IsRetryable reports whether err is a transient network failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkTransient)
}
