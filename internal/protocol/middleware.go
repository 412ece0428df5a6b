package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is the type for context values to avoid collisions.
type contextKey string

// agentHelloKey is the context key for the parsed ACP-Agent header.
const agentHelloKey contextKey = "acp.agent_hello"

// HelloFromContext returns the parsed ACP-Agent header for the request, or
// nil when the request arrived on an exempt path.
func HelloFromContext(ctx context.Context) *AgentHello {
	hello, _ := ctx.Value(agentHelloKey).(*AgentHello)
	return hello
}

// Middleware enforces the ACP-Agent header on protocol routes and stores the
// parsed result in the request context. Discovery, health, and metrics
// endpoints are exempt.
func Middleware(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(AgentHeader)
			if header == "" {
				writeProtocolError(w, http.StatusBadRequest, "acp_agent_required",
					"ACP-Agent header is required for all protocol requests")
				return
			}

			hello, err := ParseAgentHeader(header)
			if err != nil {
				logger.Warn("invalid ACP-Agent header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeProtocolError(w, http.StatusBadRequest, "acp_agent_required",
					"Invalid ACP-Agent header: "+err.Error())
				return
			}

			if err := validator.CheckClientVersion(hello); err != nil {
				writeProtocolError(w, http.StatusBadRequest, "acp_client_unsupported", err.Error())
				return
			}

			reqCtx := context.WithValue(r.Context(), agentHelloKey, hello)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		})
	}
}

// isExemptPath reports whether a path is served without an ACP-Agent header.
// MCP requests carry the equivalent identification in meta, checked by the
// tool handlers.
func isExemptPath(path string) bool {
	switch path {
	case "/.well-known/acp", "/health", "/healthz", "/metrics", "/mcp":
		return true
	}
	// Control plane is operator-facing, not agent-facing.
	return strings.HasPrefix(path, "/control/")
}

// writeProtocolError sends a protocol-level error in the standard shape.
func writeProtocolError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
