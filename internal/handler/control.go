package handler

import (
	"log/slog"
	"net/http"

	"acp-gateway/internal/model"
)

// controlRequest is the operator-supplied body for pause/resume calls.
type controlRequest struct {
	Reason string `json:"reason"`
}

// controlResponse acknowledges a control-plane state change.
type controlResponse struct {
	EntityID string `json:"entity_id"`
	Active   bool   `json:"active"`
	Reason   string `json:"reason,omitempty"`
}

// handlePauseProperty takes a property out of rotation. In-flight
// transactions continue; new intents targeting it are rejected.
// POST /control/properties/{id}/pause
func (h *Handler) handlePauseProperty(w http.ResponseWriter, r *http.Request) {
	h.setPropertyActive(w, r, false)
}

// handleResumeProperty puts a paused property back into rotation.
// POST /control/properties/{id}/resume
func (h *Handler) handleResumeProperty(w http.ResponseWriter, r *http.Request) {
	h.setPropertyActive(w, r, true)
}

func (h *Handler) setPropertyActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()
	entityID := r.PathValue("id")

	if entityID == "" {
		h.writeError(w, model.NewValidationError("id", "property ID required"))
		return
	}

	// Body is optional; an absent reason is recorded as empty.
	var req controlRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	var err error
	if active {
		err = h.registry.Resume(ctx, entityID, req.Reason)
	} else {
		err = h.registry.Pause(ctx, entityID, req.Reason)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, controlResponse{
		EntityID: entityID,
		Active:   active,
		Reason:   req.Reason,
	})
}

// handleListProperties returns all registered properties and their state.
// GET /control/properties
func (h *Handler) handleListProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	props, err := h.registry.List(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]propertySummary, 0, len(props))
	for _, p := range props {
		out = append(out, propertySummary{
			EntityID: p.EntityID,
			Name:     p.Name,
			Active:   p.IsActive,
		})
	}

	h.logger.InfoContext(ctx, "listing properties", slog.Int("count", len(out)))
	h.writeJSON(w, http.StatusOK, propertyList{Properties: out})
}

type propertyList struct {
	Properties []propertySummary `json:"properties"`
}

type propertySummary struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}
