// Package store provides SQLite persistence for the ACP gateway: the
// identity/trust store, the transaction/idempotency store, the property
// registry, and the append-only audit log.
package store

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// New initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	// WAL mode lets the gateway serve reads while a booking commit is in
	// flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		key_type TEXT NOT NULL,         -- "ed25519" or "hmac"
		key_material TEXT NOT NULL,     -- hex-encoded public key / shared secret
		reputation REAL NOT NULL DEFAULT 0.5,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- The idempotency invariant lives here: at most one transaction per
	-- (agent_id, request_id) pair, enforced by the backing store rather
	-- than application logic.
	CREATE TABLE IF NOT EXISTS transactions (
		tx_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		target_entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		round INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		offers JSON,
		final_offer JSON,
		booking JSON,
		reason TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(agent_id, request_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity ON transactions(target_entity_id);

	-- One stored response per mutating request, creating and continuation
	-- rounds alike. Duplicates replay from here.
	CREATE TABLE IF NOT EXISTS request_results (
		agent_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		tx_id TEXT NOT NULL,
		result JSON NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (agent_id, request_id)
	);

	CREATE TABLE IF NOT EXISTS properties (
		entity_id TEXT PRIMARY KEY,
		name TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		adapter_config JSON,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Append-only: rows are never updated or deleted.
	CREATE TABLE IF NOT EXISTS auth_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		agent_id TEXT,
		intent_type TEXT,
		decision TEXT NOT NULL,        -- "allow" or "deny"
		reason TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_auth_audit_request ON auth_audit(request_id);

	CREATE TABLE IF NOT EXISTS control_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,          -- "pause" or "resume"
		reason TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	return ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
