package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"acp-gateway/internal/model"
)

// KeyType identifies how an agent signs envelopes.
type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519" // key_material is the hex public key
	KeyTypeHMAC    KeyType = "hmac"    // key_material is the hex shared secret
)

// AgentStatus is the lifecycle state of a registered agent.
// Agents are never deleted, only suspended.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentSuspended AgentStatus = "suspended"
)

// AgentIdentity is a registered agent as stored in the trust store.
type AgentIdentity struct {
	AgentID     string
	KeyType     KeyType
	KeyMaterial string // hex-encoded
	Reputation  float64
	Status      AgentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the agent may submit requests at all.
func (a *AgentIdentity) Active() bool {
	return a.Status == AgentActive
}

// UpsertAgent registers an agent or replaces its key material. Reputation is
// preserved on re-registration so a key rotation doesn't reset trust.
func (s *Store) UpsertAgent(ctx context.Context, a *AgentIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, key_type, key_material, reputation, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			key_type = excluded.key_type,
			key_material = excluded.key_material,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		a.AgentID, a.KeyType, a.KeyMaterial, a.Reputation, a.Status)
	if err != nil {
		return fmt.Errorf("upserting agent %s: %w", a.AgentID, err)
	}
	return nil
}

// GetAgent fetches an agent identity by ID.
// Returns model.ErrUnknownAgent if no such agent is registered.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*AgentIdentity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, key_type, key_material, reputation, status, created_at, updated_at
		FROM agents WHERE agent_id = ?`, agentID)

	var a AgentIdentity
	err := row.Scan(&a.AgentID, &a.KeyType, &a.KeyMaterial, &a.Reputation, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrUnknownAgent
	}
	if err != nil {
		return nil, fmt.Errorf("fetching agent %s: %w", agentID, err)
	}
	return &a, nil
}

// SetAgentStatus activates or suspends an agent.
func (s *Store) SetAgentStatus(ctx context.Context, agentID string, status AgentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = ?`, status, agentID)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrUnknownAgent
	}
	return nil
}

// AdjustReputation applies a delta to an agent's reputation score, clamped
// to [0, 1] in SQL so concurrent adjustments never escape the range.
func (s *Store) AdjustReputation(ctx context.Context, agentID string, delta float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents
		SET reputation = MIN(1.0, MAX(0.0, reputation + ?)),
		    updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = ?`, delta, agentID)
	if err != nil {
		return fmt.Errorf("adjusting reputation for %s: %w", agentID, err)
	}
	return nil
}
