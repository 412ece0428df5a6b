package store

import (
	"context"
	"fmt"
)

// AuthDecisionRecord is one row of the append-only authorization audit log.
// Every envelope, accepted or rejected, produces exactly one record keyed
// by request_id.
type AuthDecisionRecord struct {
	RequestID  string
	AgentID    string
	IntentType string
	Allowed    bool
	Reason     string
}

// AppendAuthAudit records an authorization decision. The table is
// append-only; nothing in the gateway updates or deletes these rows.
func (s *Store) AppendAuthAudit(ctx context.Context, rec *AuthDecisionRecord) error {
	decision := "deny"
	if rec.Allowed {
		decision = "allow"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_audit (request_id, agent_id, intent_type, decision, reason)
		VALUES (?, ?, ?, ?, ?)`,
		rec.RequestID, rec.AgentID, rec.IntentType, decision, rec.Reason)
	if err != nil {
		return fmt.Errorf("appending auth audit: %w", err)
	}
	return nil
}

// CountAuthAudit returns the number of audit rows for a request_id.
// Used by tests to verify the one-record-per-envelope contract.
func (s *Store) CountAuthAudit(ctx context.Context, requestID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM auth_audit WHERE request_id = ?`, requestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting auth audit: %w", err)
	}
	return n, nil
}
