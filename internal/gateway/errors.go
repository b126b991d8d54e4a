package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the chain-facing services.
type ErrorCode string

const (
	CodeAPI      ErrorCode = "API_ERROR"
	CodeWallet   ErrorCode = "WALLET_ERROR"
	CodeContract ErrorCode = "CONTRACT_ERROR"
	CodeNetwork  ErrorCode = "NETWORK_ERROR"
	CodeUnknown  ErrorCode = "UNKNOWN_ERROR"
)

// TonError is the error type returned by the gateway and the layers above it.
type TonError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates a TonError.
func NewError(code ErrorCode, message string, cause error) *TonError {
	return &TonError{Code: code, Message: message, Cause: cause}
}

func (e *TonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TonError) Unwrap() error {
	return e.Cause
}

// HandleError converts err into a TonError. TonErrors pass through unchanged;
// anything else becomes UNKNOWN_ERROR carrying context and the original cause.
func HandleError(err error, context string) *TonError {
	if err == nil {
		return nil
	}
	var te *TonError
	if errors.As(err, &te) {
		return te
	}
	return NewError(CodeUnknown, "error in "+context, err)
}

// IsCode reports whether err is a TonError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var te *TonError
	return errors.As(err, &te) && te.Code == code
}
