package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a
// proper migration library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS approval_records (
			record_key VARCHAR(80) PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			approval_amount TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			transaction_hash VARCHAR(66),
			status VARCHAR(20) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS approval_outbox (
			event_id UUID PRIMARY KEY,
			event_type VARCHAR(40) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			wallet_address VARCHAR(64) NOT NULL,
			record_status VARCHAR(20) NOT NULL,
			amount TEXT NOT NULL,
			tx_hash VARCHAR(66),
			event_blob JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_outbox_status ON approval_outbox (status, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
