package handler

import (
	"net/http"

	"acp-gateway/internal/model"
	"acp-gateway/internal/resilience"
)

// discoveryDoc is the gateway's published capability profile.
type discoveryDoc struct {
	ProtocolVersion string          `json:"protocol_version"`
	Intents         []string        `json:"intents"`
	SignatureTypes  []string        `json:"signature_types"`
	Negotiation     negotiationInfo `json:"negotiation"`
	CacheTTLSeconds int             `json:"cache_ttl_seconds"`
	Endpoints       endpointInfo    `json:"endpoints"`
}

type negotiationInfo struct {
	RoundDiscountPct int64 `json:"round_discount_pct"`
	MaxDiscountPct   int64 `json:"max_discount_pct"`
	MaxRounds        int   `json:"max_rounds"`
}

type endpointInfo struct {
	Requests     string `json:"requests"`
	Transactions string `json:"transactions"`
	MCP          string `json:"mcp"`
}

// handleWellKnown returns the ACP discovery profile: supported protocol
// revision, intents, and the negotiation policy agents will be held to.
// GET /.well-known/acp
func (h *Handler) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, discoveryDoc{
		ProtocolVersion: model.ProtocolVersion,
		Intents:         []string{"discover", "negotiate", "execute"},
		SignatureTypes:  []string{"ed25519", "hmac-sha256"},
		Negotiation: negotiationInfo{
			RoundDiscountPct: h.policy.RoundDiscountPct,
			MaxDiscountPct:   h.policy.MaxDiscountPct,
			MaxRounds:        h.policy.MaxRounds,
		},
		CacheTTLSeconds: int(resilience.DefaultAvailabilityTTL.Seconds()),
		Endpoints: endpointInfo{
			Requests:     "/acp/requests",
			Transactions: "/transactions/{id}",
			MCP:          "/mcp",
		},
	})
}

// handleHealth returns a simple health check response, including the
// upstream circuit state when an upstream is wired.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.upstream != nil {
		resp.Upstream = h.upstream.CircuitState()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream,omitempty"`
}
