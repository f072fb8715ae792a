package vkapi

import (
	"errors"
	"fmt"
)

// APIError is the decoded {"error": {...}} envelope of a failed method call.
// Callers can use errors.As to inspect it:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.Code == ErrCodeAccessDenied { ... }
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
	Method  string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vkapi: %s: error %d: %s", e.Method, e.Code, e.Message)
}

// Error codes the bot reacts to.
const (
	ErrCodeUnknown         = 1
	ErrCodeTooManyRequests = 6
	ErrCodeAccessDenied    = 15
	ErrCodeInvalidParam    = 100
	ErrCodeCannotSend      = 901
)

// IsAPIError reports whether err is an *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// DecodeError means a response did not have the expected shape.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "vkapi: decode " + e.What
	}
	return fmt.Sprintf("vkapi: decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any request is made when the
// arguments of a call are unusable.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "vkapi: " + e.Message
}
