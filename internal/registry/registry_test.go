package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"acp-gateway/internal/model"
	"acp-gateway/internal/store"
)

type memProps struct {
	props  map[string]*store.Property
	audits []string
}

func (m *memProps) GetProperty(_ context.Context, entityID string) (*store.Property, error) {
	p, ok := m.props[entityID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

func (m *memProps) ListProperties(_ context.Context) ([]*store.Property, error) {
	var out []*store.Property
	for _, p := range m.props {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProps) SetPropertyActive(_ context.Context, entityID string, active bool, reason string) error {
	p, ok := m.props[entityID]
	if !ok {
		return model.ErrNotFound
	}
	p.IsActive = active
	m.audits = append(m.audits, reason)
	return nil
}

func newTestRegistry(props map[string]*store.Property) (*Registry, *memProps) {
	m := &memProps{props: props}
	return New(m, slog.New(slog.DiscardHandler)), m
}

func TestResolveActiveProperty(t *testing.T) {
	reg, _ := newTestRegistry(map[string]*store.Property{
		"hotel-1": {EntityID: "hotel-1", IsActive: true},
	})

	prop, err := reg.Resolve(context.Background(), "hotel-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if prop.EntityID != "hotel-1" {
		t.Errorf("Resolve() entity = %s, want hotel-1", prop.EntityID)
	}
}

func TestResolvePausedProperty(t *testing.T) {
	reg, _ := newTestRegistry(map[string]*store.Property{
		"hotel-1": {EntityID: "hotel-1", IsActive: false},
	})

	_, err := reg.Resolve(context.Background(), "hotel-1")
	if !errors.Is(err, model.ErrPropertyUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrPropertyUnavailable", err)
	}
}

func TestResolveUnknownProperty(t *testing.T) {
	reg, _ := newTestRegistry(map[string]*store.Property{})

	_, err := reg.Resolve(context.Background(), "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestPauseResumeCycle(t *testing.T) {
	reg, m := newTestRegistry(map[string]*store.Property{
		"hotel-1": {EntityID: "hotel-1", IsActive: true},
	})
	ctx := context.Background()

	if err := reg.Pause(ctx, "hotel-1", "maintenance window"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := reg.Resolve(ctx, "hotel-1"); !errors.Is(err, model.ErrPropertyUnavailable) {
		t.Errorf("Resolve() after pause error = %v, want ErrPropertyUnavailable", err)
	}

	if err := reg.Resume(ctx, "hotel-1", "maintenance done"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if _, err := reg.Resolve(ctx, "hotel-1"); err != nil {
		t.Errorf("Resolve() after resume error = %v", err)
	}

	if len(m.audits) != 2 {
		t.Errorf("control actions recorded = %d, want 2", len(m.audits))
	}
}

func TestPauseUnknownProperty(t *testing.T) {
	reg, _ := newTestRegistry(map[string]*store.Property{})
	if err := reg.Pause(context.Background(), "nope", ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Pause() error = %v, want ErrNotFound", err)
	}
}
