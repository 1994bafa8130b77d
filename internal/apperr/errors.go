// Package apperr defines the structured error shared by all services.
//
// Every error that crosses an HTTP boundary is an *Error. Handlers serialise
// it as {code, message, details} and the service clients decode the same body
// back, so a code raised by the customer service reaches the purchase
// orchestrator intact.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeCustomerNotFound   Code = "CUSTOMER_NOT_FOUND"
	CodeItemNotFound       Code = "ITEM_NOT_FOUND"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeTransactionFailed  Code = "TRANSACTION_FAILED"
	CodeCompensationFailed Code = "COMPENSATION_FAILED"
	CodeRequestInProgress  Code = "REQUEST_IN_PROGRESS"
	CodeIdempotencyReused  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeConflict           Code = "CONFLICT"
	CodeOperationCancelled Code = "OPERATION_CANCELLED"
	CodeInvalidVersion     Code = "INVALID_VERSION"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is a typed application error.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With returns the error with an additional detail entry.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to its response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInsufficientFunds, CodeInsufficientStock, CodeInvalidVersion:
		return http.StatusBadRequest
	case CodeCustomerNotFound, CodeItemNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeRequestInProgress, CodeConflict, CodeOperationCancelled:
		return http.StatusConflict
	case CodeIdempotencyReused:
		return http.StatusUnprocessableEntity
	case CodeTransactionFailed:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus picks a fallback code for a response that carried no error body.
func FromStatus(status int) Code {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status >= 500:
		return CodeServiceUnavailable
	default:
		return CodeValidation
	}
}

// Response returns the status and body to send for err. Errors without a
// code are reported as INTERNAL_ERROR without exposing their text.
func Response(err error) (int, *Error) {
	if ae, ok := As(err); ok {
		return HTTPStatus(ae.Code), ae
	}
	return http.StatusInternalServerError, New(CodeInternal, "internal server error")
}
