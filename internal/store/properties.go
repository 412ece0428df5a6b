package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"acp-gateway/internal/model"
)

// Property is a registered bookable entity and its adapter configuration.
type Property struct {
	EntityID      string
	Name          string
	IsActive      bool
	AdapterConfig json.RawMessage
	UpdatedAt     time.Time
}

// UpsertProperty registers a property or replaces its configuration.
func (s *Store) UpsertProperty(ctx context.Context, p *Property) error {
	cfg := "null"
	if p.AdapterConfig != nil {
		cfg = string(p.AdapterConfig)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (entity_id, name, is_active, adapter_config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			adapter_config = excluded.adapter_config,
			updated_at = CURRENT_TIMESTAMP`,
		p.EntityID, p.Name, boolToInt(p.IsActive), cfg)
	if err != nil {
		return fmt.Errorf("upserting property %s: %w", p.EntityID, err)
	}
	return nil
}

// GetProperty fetches a property by entity ID.
func (s *Store) GetProperty(ctx context.Context, entityID string) (*Property, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, name, is_active, adapter_config, updated_at
		FROM properties WHERE entity_id = ?`, entityID)
	return scanProperty(row)
}

// ListProperties returns all registered properties, active and paused.
func (s *Store) ListProperties(ctx context.Context) ([]*Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, name, is_active, adapter_config, updated_at
		FROM properties ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer rows.Close()

	var props []*Property
	for rows.Next() {
		var p Property
		var active int
		var cfg sql.NullString
		if err := rows.Scan(&p.EntityID, &p.Name, &active, &cfg, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		p.IsActive = active != 0
		if cfg.Valid {
			p.AdapterConfig = json.RawMessage(cfg.String)
		}
		props = append(props, &p)
	}
	return props, rows.Err()
}

// SetPropertyActive flips the pause/resume flag and records the action in
// the control audit log, in one database transaction.
func (s *Store) SetPropertyActive(ctx context.Context, entityID string, active bool, reason string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning control tx: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx, `
		UPDATE properties SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE entity_id = ?`, boolToInt(active), entityID)
	if err != nil {
		return fmt.Errorf("updating property %s: %w", entityID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}

	action := "pause"
	if active {
		action = "resume"
	}
	if _, err := dbTx.ExecContext(ctx, `
		INSERT INTO control_audit (entity_id, action, reason) VALUES (?, ?, ?)`,
		entityID, action, reason); err != nil {
		return fmt.Errorf("recording control audit: %w", err)
	}

	return dbTx.Commit()
}

func scanProperty(row *sql.Row) (*Property, error) {
	var p Property
	var active int
	var cfg sql.NullString
	err := row.Scan(&p.EntityID, &p.Name, &active, &cfg, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning property: %w", err)
	}
	p.IsActive = active != 0
	if cfg.Valid {
		p.AdapterConfig = json.RawMessage(cfg.String)
	}
	return &p, nil
}
