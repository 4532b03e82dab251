// Package apperror carries the error taxonomy exposed by the HTTP API.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable codes clients branch on. PAY_002 doubles as the request
// validation code.
const (
	CodeInsufficientFunds     = "PAY_001"
	CodeInvalidAmount         = "PAY_002"
	CodeNotFound              = "PAY_004"
	CodeCounterpartyInactive  = "PAY_008"
	CodeIllegalTransition     = "PAY_009"
	CodeNoActiveChannelConfig = "PAY_010"
	CodeNoEligibleChannel     = "PAY_011"
	CodeRequestNotPayable     = "PAY_012"
	CodeRequestExpired        = "PAY_013"
	CodeInvalidToken          = "AUTH_003"
	CodeInvalidSignature      = "AUTH_004"
	CodeForbidden             = "AUTH_005"
	CodeUnknown               = "SYS_000"
	CodeInternal              = "SYS_001"
	CodeProviderUnavailable   = "SYS_002"
)

// AppError pairs a client-facing code and message with the HTTP status it
// renders as. Err is logged, never serialized.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return "[" + e.Code + "] " + e.Message
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap is New with an underlying cause.
func Wrap(code, message string, httpStatus int, err error) *AppError {
	e := New(code, message, httpStatus)
	e.Err = err
	return e
}

// Payment rules.

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

// Validation reports a malformed request under the invalid-amount code.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, entity+" not found", http.StatusNotFound)
}

func ErrCounterpartyInactive(accountID string) *AppError {
	return New(CodeCounterpartyInactive, "Account "+accountID+" is not active", http.StatusUnprocessableEntity)
}

// ErrIllegalTransition names the status that blocked op.
func ErrIllegalTransition(op, status string) *AppError {
	return New(CodeIllegalTransition, fmt.Sprintf("Cannot %s payment in status %s", op, status), http.StatusConflict)
}

func ErrNoActiveChannelConfig() *AppError {
	return New(CodeNoActiveChannelConfig, "No active channel configuration", http.StatusUnprocessableEntity)
}

func ErrNoEligibleChannel() *AppError {
	return New(CodeNoEligibleChannel, "No settlement channel can carry this amount", http.StatusUnprocessableEntity)
}

func ErrPaymentRequestNotPayable(status string) *AppError {
	return New(CodeRequestNotPayable, "Payment request is "+status, http.StatusConflict)
}

func ErrPaymentRequestExpired() *AppError {
	return New(CodeRequestExpired, "Payment request has expired", http.StatusGone)
}

// Authentication.

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid callback signature", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Not allowed to act for this account", http.StatusForbidden)
}

// Infrastructure.

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrProviderUnavailable(err error) *AppError {
	return Wrap(CodeProviderUnavailable, "Settlement provider unavailable", http.StatusBadGateway, err)
}

func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// As extracts the *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// IsValidation reports whether err is a caller-side rejection (4xx).
func IsValidation(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}

// Code returns the code carried by err, or "".
func Code(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}
