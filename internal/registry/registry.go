// Package registry gates requests on property registration and pause state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"acp-gateway/internal/model"
	"acp-gateway/internal/store"
)

// PropertyStore is the slice of the store the registry reads and writes.
type PropertyStore interface {
	GetProperty(ctx context.Context, entityID string) (*store.Property, error)
	ListProperties(ctx context.Context) ([]*store.Property, error)
	SetPropertyActive(ctx context.Context, entityID string, active bool, reason string) error
}

// Registry answers whether a target entity may receive requests and applies
// pause/resume control actions.
type Registry struct {
	props  PropertyStore
	logger *slog.Logger
}

func New(props PropertyStore, logger *slog.Logger) *Registry {
	return &Registry{props: props, logger: logger}
}

// Resolve fetches the property for a target entity and rejects requests to
// paused or unregistered entities. Unknown entities map to a not-found
// error, paused ones to property-unavailable.
func (r *Registry) Resolve(ctx context.Context, entityID string) (*store.Property, error) {
	prop, err := r.props.GetProperty(ctx, entityID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewNotFoundError(fmt.Sprintf("property %s", entityID))
		}
		return nil, fmt.Errorf("resolving property %s: %w", entityID, err)
	}
	if !prop.IsActive {
		return nil, model.NewPropertyUnavailableError(entityID)
	}
	return prop, nil
}

// Pause marks a property as unavailable for new requests. In-flight
// transactions are not interrupted; they run to completion.
func (r *Registry) Pause(ctx context.Context, entityID, reason string) error {
	if err := r.props.SetPropertyActive(ctx, entityID, false, reason); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewNotFoundError(fmt.Sprintf("property %s", entityID))
		}
		return fmt.Errorf("pausing property %s: %w", entityID, err)
	}
	r.logger.Info("property paused", "entity_id", entityID, "reason", reason)
	return nil
}

// Resume re-opens a paused property for new requests.
func (r *Registry) Resume(ctx context.Context, entityID, reason string) error {
	if err := r.props.SetPropertyActive(ctx, entityID, true, reason); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewNotFoundError(fmt.Sprintf("property %s", entityID))
		}
		return fmt.Errorf("resuming property %s: %w", entityID, err)
	}
	r.logger.Info("property resumed", "entity_id", entityID, "reason", reason)
	return nil
}

// List returns every registered property with its pause state.
func (r *Registry) List(ctx context.Context) ([]*store.Property, error) {
	return r.props.ListProperties(ctx)
}
