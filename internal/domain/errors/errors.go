package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors wrapped by AppError, matched with errors.Is at call sites.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrIdempotencyKeyNeeded = errors.New("idempotency key required")
	ErrConcurrentRequest    = errors.New("another request with this idempotency key is in flight")
	ErrConcurrentModify     = errors.New("row was modified concurrently")
	ErrInvalidState         = errors.New("operation not valid for current state")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrExcessiveAmount      = errors.New("amount exceeds what remains refundable")
	ErrNoEligibleProvider   = errors.New("no eligible provider for this currency")
	ErrWebhookSignature     = errors.New("webhook signature invalid")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrProviderUnavailable  = errors.New("provider unavailable")
)

// Code is a stable machine-readable error code, distinct from the HTTP status.
type Code string

const (
	CodeValidation          Code = "INVALID_ARGUMENT"
	CodeIdempotencyRequired Code = "IDEMPOTENCY_KEY_REQUIRED"
	CodeConcurrentRequest   Code = "CONCURRENT_REQUEST"
	CodeConcurrentModify    Code = "CONCURRENT_MODIFICATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeExcessiveAmount     Code = "EXCESSIVE_AMOUNT"
	CodeNoEligibleProvider  Code = "NO_ELIGIBLE_PROVIDER"
	CodeWebhookSignature    Code = "WEBHOOK_SIGNATURE_INVALID"
	CodeRateLimited         Code = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInternal            Code = "INTERNAL"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeProviderError       Code = "PROVIDER_ERROR"
)

// AppError is the application error surfaced at the API boundary: a stable
// code, an HTTP status, a caller-safe message, and the wrapped cause.
type AppError struct {
	Code    Code   `json:"error"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(status int, code Code, message string, err error) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: err}
}

func Validation(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeValidation, message, ErrInvalidInput)
}

func IdempotencyKeyRequired() *AppError {
	return NewAppError(http.StatusBadRequest, CodeIdempotencyRequired, "Idempotency-Key header is required", ErrIdempotencyKeyNeeded)
}

func ConcurrentRequest() *AppError {
	return NewAppError(http.StatusConflict, CodeConcurrentRequest, "another request with this idempotency key is being processed", ErrConcurrentRequest)
}

func ConcurrentModification() *AppError {
	return NewAppError(http.StatusConflict, CodeConcurrentModify, "resource was modified concurrently, retry", ErrConcurrentModify)
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func InvalidState(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidState, message, ErrInvalidState)
}

func ExcessiveAmount(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeExcessiveAmount, message, ErrExcessiveAmount)
}

func NoEligibleProvider(currency string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeNoEligibleProvider, "no eligible provider supports currency "+currency, ErrNoEligibleProvider)
}

func WebhookSignatureInvalid() *AppError {
	return NewAppError(http.StatusBadRequest, CodeWebhookSignature, "invalid request", ErrWebhookSignature)
}

func RateLimited() *AppError {
	return NewAppError(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", ErrRateLimited)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func ProviderUnavailable(provider string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeProviderUnavailable, "provider "+provider+" is temporarily unavailable", ErrProviderUnavailable)
}

// ProviderHTTPError wraps a provider adapter's raw HTTP error response,
// carrying the upstream status verbatim so the resilience pipeline's
// isPermanent check can suppress retries on a 4xx rejection while still
// retrying 5xx/timeout failures.
func ProviderHTTPError(status int, provider, body string) *AppError {
	return NewAppError(status, CodeProviderError, provider+": provider returned an error",
		fmt.Errorf("%s: api error (status %d): %s", provider, status, body))
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternal, "internal server error", err)
}

// As reports whether err (or one it wraps) is an *AppError, writing it into target.
func As(err error, target **AppError) bool {
	return errors.As(err, target)
}
