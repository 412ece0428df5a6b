package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIErrorUnwrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		sentinel error
		status   int
	}{
		{"unauthorized", NewUnauthorizedError("bad signature"), ErrUnauthorized, 401},
		{"forbidden", NewForbiddenError("agent suspended"), ErrForbidden, 403},
		{"unknown agent", NewUnknownAgentError("ghost"), ErrUnknownAgent, 401},
		{"unsupported version", NewUnsupportedVersionError("acp.1999.v0"), ErrUnsupportedVersion, 400},
		{"property unavailable", NewPropertyUnavailableError("prop_1"), ErrPropertyUnavailable, 409},
		{"rate limited", NewRateLimitError("PMS"), ErrRateLimited, 429},
		{"circuit open", NewCircuitOpenError("PMS"), ErrCircuitOpen, 503},
		{"upstream", NewUpstreamError("PMS", errors.New("boom")), ErrUpstreamUnavailable, 502},
		{"price mismatch", NewPriceMismatchError(30000, 32000, "AUD"), ErrPriceMismatch, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if tt.err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.status)
			}
		})
	}
}

func TestAPIErrorSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("during booking: %w", NewCircuitOpenError("PMS"))

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As failed to find APIError in chain")
	}
	if apiErr.Code != "CIRCUIT_OPEN" {
		t.Errorf("Code = %s, want CIRCUIT_OPEN", apiErr.Code)
	}
	if !errors.Is(wrapped, ErrCircuitOpen) {
		t.Error("sentinel lost through wrapping")
	}
}

func TestDistinctTrustErrorKinds(t *testing.T) {
	// Unauthorized, Forbidden, and Unknown are distinct kinds and must never
	// satisfy each other's checks.
	if errors.Is(NewUnauthorizedError("x"), ErrForbidden) {
		t.Error("Unauthorized matched Forbidden")
	}
	if errors.Is(NewForbiddenError("x"), ErrUnknownAgent) {
		t.Error("Forbidden matched UnknownAgent")
	}
	if errors.Is(NewUnknownAgentError("x"), ErrUnauthorized) {
		t.Error("UnknownAgent matched Unauthorized")
	}
}
