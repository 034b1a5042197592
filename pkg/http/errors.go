package http

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is answered with Status and a stable Code clients can switch on.
// Payload, when set, is still returned in data next to the error.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`

	Status     int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Payload    interface{}   `json:"-"`
	Err        error         `json:"-"`
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithPayload(v interface{}) *AppError {
	e.Payload = v
	return e
}

// ConflictError reports a request that is valid but cannot be honoured in
// the current market, like a purchase that leaves no margin.
func ConflictError(code, message string) *AppError {
	return NewAppError(http.StatusConflict, code, message)
}

func ServiceUnavailableError(message string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", message)
}

// RateLimitedError sets Retry-After to the whole seconds until a token is
// free again.
func RateLimitedError(retryAfter time.Duration) *AppError {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	e := NewAppError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", "rate limit exceeded")
	e.RetryAfter = time.Duration(secs) * time.Second
	return e.WithParam("retry_after_seconds", secs)
}
