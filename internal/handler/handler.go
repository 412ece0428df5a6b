// Package handler provides HTTP handlers for the ACP gateway API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"acp-gateway/internal/model"
	"acp-gateway/internal/negotiation"
	"acp-gateway/internal/protocol"
	"acp-gateway/internal/registry"
	"acp-gateway/internal/trust"
	"acp-gateway/internal/txn"
)

// UpstreamStatus reports the health of the connection to the property
// management system. Satisfied by the PMS adapter.
type UpstreamStatus interface {
	CircuitState() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	validator     *protocol.Validator
	authenticator *trust.Authenticator
	registry      *registry.Registry
	manager       *txn.Manager
	policy        negotiation.Policy
	upstream      UpstreamStatus
	logger        *slog.Logger
}

// New creates a Handler wired to the full request pipeline. The upstream
// status source may be nil; health reporting then omits the circuit state.
func New(
	validator *protocol.Validator,
	authenticator *trust.Authenticator,
	reg *registry.Registry,
	manager *txn.Manager,
	policy negotiation.Policy,
	upstream UpstreamStatus,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		validator:     validator,
		authenticator: authenticator,
		registry:      reg,
		manager:       manager,
		policy:        policy,
		upstream:      upstream,
		logger:        logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Discovery endpoint
	mux.HandleFunc("GET /.well-known/acp", h.handleWellKnown)

	// REST transport - intent envelope intake and transaction queries
	mux.HandleFunc("POST /acp/requests", h.handleIntent)
	mux.HandleFunc("GET /transactions/{id}", h.handleGetTransaction)

	// Operator control plane
	mux.HandleFunc("POST /control/properties/{id}/pause", h.handlePauseProperty)
	mux.HandleFunc("POST /control/properties/{id}/resume", h.handleResumeProperty)
	mux.HandleFunc("GET /control/properties", h.handleListProperties)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
	} else {
		// Wrap unexpected errors
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
