// Package storage provides the durable SQLite archive for terminal
// transactions pruned from the in-memory transaction logger.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ArchivedTransaction is one archived terminal transaction.
type ArchivedTransaction struct {
	ID      string          `json:"id"`
	Stage   string          `json:"stage"`
	Payload json.RawMessage `json:"payload"`
	EndedAt time.Time       `json:"ended_at"`
}

// TransactionArchive appends terminal transactions to a SQLite database.
// It is safe for concurrent use; database/sql serializes access.
type TransactionArchive struct {
	db *sql.DB
}

// NewTransactionArchive opens (creating if needed) the archive at path.
func NewTransactionArchive(path string) (*TransactionArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory; %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transaction archive; %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		payload BLOB NOT NULL,
		ended_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transaction archive; %w", err)
	}

	return &TransactionArchive{db: db}, nil
}

// Append stores one terminal transaction. Re-appending an id replaces the
// previous row, so repeated terminal updates stay idempotent.
func (a *TransactionArchive) Append(id, stage string, payload any, endedAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transaction %s; %w", id, err)
	}

	if _, err := a.db.Exec(
		`INSERT OR REPLACE INTO transactions (id, stage, payload, ended_at) VALUES (?, ?, ?, ?)`,
		id, stage, body, endedAt,
	); err != nil {
		return fmt.Errorf("archive transaction %s; %w", id, err)
	}
	return nil
}

// List returns up to limit archived transactions, most recently ended first.
func (a *TransactionArchive) List(limit int) ([]ArchivedTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.Query(
		`SELECT id, stage, payload, ended_at FROM transactions ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived transactions; %w", err)
	}
	defer rows.Close()

	var out []ArchivedTransaction
	for rows.Next() {
		var tx ArchivedTransaction
		if err := rows.Scan(&tx.ID, &tx.Stage, &tx.Payload, &tx.EndedAt); err != nil {
			return nil, fmt.Errorf("scan archived transaction; %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Count returns the number of archived transactions.
func (a *TransactionArchive) Count() (int, error) {
	var count int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count)
	return count, err
}

// Close releases the database handle.
func (a *TransactionArchive) Close() error {
	return a.db.Close()
}
