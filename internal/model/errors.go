package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ACP failure taxonomy.
// Use errors.Is() to check against these. Each kind is distinct and is
// never collapsed into a neighbour (Unauthorized vs Forbidden vs Unknown
// matter to callers).
var (
	ErrMalformedEnvelope    = errors.New("malformed envelope")
	ErrUnsupportedVersion   = errors.New("unsupported protocol version")
	ErrUnauthorized         = errors.New("unauthorized")         // bad or missing signature
	ErrForbidden            = errors.New("forbidden")            // inactive agent or insufficient reputation
	ErrUnknownAgent         = errors.New("unknown agent")        // agent_id not registered
	ErrPropertyUnavailable  = errors.New("property unavailable") // paused or unregistered entity
	ErrRateLimited          = errors.New("rate limited")
	ErrCircuitOpen          = errors.New("circuit open")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrNegotiationExhausted = errors.New("negotiation exhausted")
	ErrPriceMismatch        = errors.New("price mismatch")
	ErrNotFound             = errors.New("not found")
	ErrInvalidRequest       = errors.New("invalid request")

	// ErrDuplicateRequest is informational, not a failure: an idempotent
	// replay was detected and the stored result is being returned.
	ErrDuplicateRequest = errors.New("duplicate request")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewMalformedEnvelopeError creates a 400 error for envelope shape problems.
func NewMalformedEnvelopeError(field, reason string) *APIError {
	return &APIError{
		Code:       "MALFORMED_ENVELOPE",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrMalformedEnvelope,
	}
}

// NewUnsupportedVersionError creates a 400 error for unknown protocol versions.
// Version validation runs before any other processing, so this never carries
// transaction context.
func NewUnsupportedVersionError(version string) *APIError {
	return &APIError{
		Code:       "UNSUPPORTED_VERSION",
		Message:    fmt.Sprintf("protocol version %q is not supported", version),
		StatusCode: 400,
		Err:        ErrUnsupportedVersion,
	}
}

// NewUnauthorizedError creates a 401 error for signature failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewForbiddenError creates a 403 error for inactive agents or reputation
// below the floor for the requested intent.
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:       "FORBIDDEN",
		Message:    reason,
		StatusCode: 403,
		Err:        ErrForbidden,
	}
}

// NewUnknownAgentError creates a 401 error for unregistered agent IDs.
// Kept distinct from UNAUTHORIZED so callers can tell "bad signature" from
// "who are you" without string matching.
func NewUnknownAgentError(agentID string) *APIError {
	return &APIError{
		Code:       "UNKNOWN_AGENT",
		Message:    fmt.Sprintf("agent %q is not registered", agentID),
		StatusCode: 401,
		Err:        ErrUnknownAgent,
	}
}

// NewPropertyUnavailableError creates a 409 error for paused properties.
func NewPropertyUnavailableError(entityID string) *APIError {
	return &APIError{
		Code:       "PROPERTY_UNAVAILABLE",
		Message:    fmt.Sprintf("property %q is not accepting requests", entityID),
		StatusCode: 409,
		Err:        ErrPropertyUnavailable,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewRateLimitError creates a 429 error after upstream retries are exhausted.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewCircuitOpenError creates a 503 error for fail-fast rejections while the
// upstream circuit is open.
func NewCircuitOpenError(service string) *APIError {
	return &APIError{
		Code:       "CIRCUIT_OPEN",
		Message:    fmt.Sprintf("%s is temporarily unreachable, failing fast", service),
		StatusCode: 503,
		Err:        ErrCircuitOpen,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err),
	}
}

// NewPriceMismatchError creates a 409 error when the charged price deviates
// from the agreed offer beyond tolerance. Never silently accepted.
func NewPriceMismatchError(offered, charged int64, currency string) *APIError {
	return &APIError{
		Code:       "PRICE_MISMATCH",
		Message:    fmt.Sprintf("charged %d %s deviates from offered %d %s beyond tolerance", charged, currency, offered, currency),
		StatusCode: 409,
		Err:        ErrPriceMismatch,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}
