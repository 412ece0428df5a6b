package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"acp-gateway/internal/model"
)

// CreateTransaction inserts a new transaction row. The UNIQUE(agent_id,
// request_id) index is the idempotency guard: a second insert for the same
// pair returns model.ErrDuplicateRequest, and the caller replays the stored
// result instead.
func (s *Store) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	offers, err := json.Marshal(tx.Offers)
	if err != nil {
		return fmt.Errorf("marshaling offers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (tx_id, agent_id, request_id, target_entity_id, state, round, dry_run, offers, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.TxID, tx.AgentID, tx.RequestID, tx.TargetEntityID, tx.State, tx.Round,
		boolToInt(tx.DryRun), string(offers), tx.Reason)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateRequest
		}
		return fmt.Errorf("creating transaction: %w", err)
	}
	return nil
}

// UpdateTransaction writes the mutable fields of an in-flight transaction.
// Used for intermediate (non-terminal) progress; terminal states go through
// FinalizeTransaction so the result write is part of the same commit.
func (s *Store) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	offers, finalOffer, booking, err := marshalTxBlobs(tx)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = ?, round = ?, offers = ?, final_offer = ?, booking = ?, reason = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE tx_id = ?`,
		tx.State, tx.Round, offers, finalOffer, booking, tx.Reason, tx.TxID)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", tx.TxID, err)
	}
	return nil
}

// FinalizeTransaction commits a terminal state, the stored result payload
// for the responding request, and the agent's reputation adjustment in ONE
// database transaction. A crash can therefore never be observed as "booking
// confirmed but idempotency lookup misses the result".
func (s *Store) FinalizeTransaction(ctx context.Context, tx *model.Transaction, requestID string, result []byte, reputationDelta float64) error {
	offers, finalOffer, booking, err := marshalTxBlobs(tx)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning finalize tx: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET state = ?, round = ?, offers = ?, final_offer = ?, booking = ?, reason = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE tx_id = ?`,
		tx.State, tx.Round, offers, finalOffer, booking, tx.Reason, tx.TxID)
	if err != nil {
		return fmt.Errorf("finalizing transaction %s: %w", tx.TxID, err)
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT OR REPLACE INTO request_results (agent_id, request_id, tx_id, result)
		VALUES (?, ?, ?, ?)`,
		tx.AgentID, requestID, tx.TxID, string(result))
	if err != nil {
		return fmt.Errorf("storing result for request %s: %w", requestID, err)
	}

	if reputationDelta != 0 {
		_, err = dbTx.ExecContext(ctx, `
			UPDATE agents
			SET reputation = MIN(1.0, MAX(0.0, reputation + ?)),
			    updated_at = CURRENT_TIMESTAMP
			WHERE agent_id = ?`, reputationDelta, tx.AgentID)
		if err != nil {
			return fmt.Errorf("adjusting reputation in finalize: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing finalize: %w", err)
	}
	return nil
}

// GetTransaction fetches a transaction by tx_id.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, txSelectColumns+` WHERE tx_id = ?`, txID)
	return scanTransaction(row)
}

// GetTransactionByRequest fetches a transaction by its idempotency key.
func (s *Store) GetTransactionByRequest(ctx context.Context, agentID, requestID string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, txSelectColumns+` WHERE agent_id = ? AND request_id = ?`, agentID, requestID)
	return scanTransaction(row)
}

// SaveRequestResult stores the response for a non-terminal request so an
// exact duplicate replays instead of re-advancing the negotiation.
func (s *Store) SaveRequestResult(ctx context.Context, agentID, requestID, txID string, result []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO request_results (agent_id, request_id, tx_id, result)
		VALUES (?, ?, ?, ?)`, agentID, requestID, txID, string(result))
	if err != nil {
		return fmt.Errorf("storing result for request %s: %w", requestID, err)
	}
	return nil
}

// GetRequestResult returns the stored response payload for an idempotency
// key. Returns model.ErrNotFound when the request has never completed.
func (s *Store) GetRequestResult(ctx context.Context, agentID, requestID string) ([]byte, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM request_results WHERE agent_id = ? AND request_id = ?`,
		agentID, requestID).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching stored result: %w", err)
	}
	return []byte(result), nil
}

const txSelectColumns = `
	SELECT tx_id, agent_id, request_id, target_entity_id, state, round, dry_run,
	       offers, final_offer, booking, reason, created_at, updated_at
	FROM transactions`

// scanTransaction hydrates a model.Transaction from a SELECT row.
func scanTransaction(row *sql.Row) (*model.Transaction, error) {
	var tx model.Transaction
	var dryRun int
	var offers, finalOffer, booking sql.NullString

	err := row.Scan(&tx.TxID, &tx.AgentID, &tx.RequestID, &tx.TargetEntityID,
		&tx.State, &tx.Round, &dryRun, &offers, &finalOffer, &booking, &tx.Reason,
		&tx.CreatedAt, &tx.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	tx.DryRun = dryRun != 0
	if offers.Valid && offers.String != "" {
		if err := json.Unmarshal([]byte(offers.String), &tx.Offers); err != nil {
			return nil, fmt.Errorf("parsing offer history: %w", err)
		}
	}
	if finalOffer.Valid && finalOffer.String != "" && finalOffer.String != "null" {
		tx.FinalOffer = &model.Offer{}
		if err := json.Unmarshal([]byte(finalOffer.String), tx.FinalOffer); err != nil {
			return nil, fmt.Errorf("parsing final offer: %w", err)
		}
	}
	if booking.Valid && booking.String != "" && booking.String != "null" {
		tx.Booking = &model.BookingResult{}
		if err := json.Unmarshal([]byte(booking.String), tx.Booking); err != nil {
			return nil, fmt.Errorf("parsing booking: %w", err)
		}
	}
	return &tx, nil
}

// marshalTxBlobs encodes the JSON columns of a transaction row.
func marshalTxBlobs(tx *model.Transaction) (offers, finalOffer, booking string, err error) {
	o, err := json.Marshal(tx.Offers)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling offers: %w", err)
	}
	f, err := json.Marshal(tx.FinalOffer)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling final offer: %w", err)
	}
	b, err := json.Marshal(tx.Booking)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling booking: %w", err)
	}
	return string(o), string(f), string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
