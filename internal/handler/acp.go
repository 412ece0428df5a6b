package handler

import (
	"log/slog"
	"net/http"

	"acp-gateway/internal/model"
	"acp-gateway/internal/protocol"
)

// handleIntent accepts a signed request envelope and runs it through the
// full pipeline: structural validation, trust checks, property resolution,
// then the transaction manager.
// POST /acp/requests
func (h *Handler) handleIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var env model.RequestEnvelope
	if err := decodeJSON(r, &env); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.validator.ValidateEnvelope(&env); err != nil {
		h.writeError(w, err)
		return
	}

	decision, err := h.authenticator.Authorize(ctx, &env)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Paused or unknown properties are rejected before any transaction
	// bookkeeping happens.
	if _, err := h.registry.Resolve(ctx, env.TargetEntityID); err != nil {
		h.writeError(w, err)
		return
	}

	logAttrs := []any{
		slog.String("request_id", env.RequestID),
		slog.String("agent_id", env.AgentID),
		slog.String("intent", string(env.IntentType)),
		slog.String("entity_id", env.TargetEntityID),
		slog.Float64("reputation", decision.Agent.Reputation),
	}
	if hello := protocol.HelloFromContext(ctx); hello != nil {
		logAttrs = append(logAttrs, slog.String("agent_profile", hello.ProfileURL))
	}
	h.logger.InfoContext(ctx, "handling intent", logAttrs...)

	resp, err := h.manager.Handle(ctx, &env)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleGetTransaction returns the current state of a transaction.
// GET /transactions/{id}
func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := r.PathValue("id")

	if txID == "" {
		h.writeError(w, model.NewValidationError("id", "transaction ID required"))
		return
	}

	tx, err := h.manager.GetTransaction(ctx, txID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}
