package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/store"
)

// ApprovalRepository is the Postgres-backed RecordStore. Each record mutation
// also writes a lifecycle event into the approval_outbox table in the same
// transaction; the event publisher drains those to Kafka.
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

func (r *ApprovalRepository) Put(ctx context.Context, record model.ApprovalRecord) (model.ApprovalRecord, error) {
	record.Timestamp = time.Now().UnixMilli()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("failed to begin put transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_records (record_key, wallet_address, approval_amount, timestamp_ms, transaction_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_key) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			approval_amount = EXCLUDED.approval_amount,
			timestamp_ms = EXCLUDED.timestamp_ms,
			transaction_hash = EXCLUDED.transaction_hash,
			status = EXCLUDED.status
	`, model.RecordKey(record.WalletAddress), record.WalletAddress, record.ApprovalAmount,
		record.Timestamp, nullableHash(record.TransactionHash), record.Status)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("failed to upsert approval record: %w", err)
	}

	if err := r.insertOutboxEvent(ctx, tx, model.EventApprovalCreated, record); err != nil {
		return model.ApprovalRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("failed to commit approval record: %w", err)
	}

	r.logger.Info("Saved approval record",
		zap.String("wallet_address", record.WalletAddress),
		zap.String("approval_amount", record.ApprovalAmount),
		zap.String("status", string(record.Status)))
	return record, nil
}

func (r *ApprovalRepository) Get(ctx context.Context, walletAddress string) (*model.ApprovalRecord, error) {
	record, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT wallet_address, approval_amount, timestamp_ms, transaction_hash, status
		FROM approval_records
		WHERE record_key = $1
	`, model.RecordKey(walletAddress)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	return record, nil
}

func (r *ApprovalRepository) UpdateStatus(ctx context.Context, walletAddress string, status model.ApprovalStatus, txHash string) (*model.ApprovalRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT wallet_address, approval_amount, timestamp_ms, transaction_hash, status
		FROM approval_records
		WHERE record_key = $1
		FOR UPDATE
	`, model.RecordKey(walletAddress)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read approval record for update: %w", err)
	}

	record.Status = status
	if txHash != "" {
		record.TransactionHash = txHash
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approval_records
		SET status = $1, transaction_hash = $2
		WHERE record_key = $3
	`, record.Status, nullableHash(record.TransactionHash), model.RecordKey(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to update approval status: %w", err)
	}

	if err := r.insertOutboxEvent(ctx, tx, model.EventApprovalStatusChanged, *record); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	r.logger.Info("Updated approval status",
		zap.String("wallet_address", walletAddress),
		zap.String("status", string(status)),
		zap.String("tx_hash", txHash))
	return record, nil
}

func (r *ApprovalRepository) ListAll(ctx context.Context) ([]model.ApprovalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT wallet_address, approval_amount, timestamp_ms, transaction_hash, status
		FROM approval_records
		WHERE record_key LIKE $1
	`, model.RecordKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	var records []model.ApprovalRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval records: %w", err)
	}
	return records, nil
}

func (r *ApprovalRepository) insertOutboxEvent(ctx context.Context, tx *sql.Tx, eventType string, record model.ApprovalRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox blob: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_outbox (event_id, event_type, status, wallet_address, record_status, amount, tx_hash, event_blob)
		VALUES ($1, $2, 'unsent', $3, $4, $5, $6, $7)
	`, uuid.New().String(), eventType, record.WalletAddress, record.Status,
		record.ApprovalAmount, nullableHash(record.TransactionHash), blob)
	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}
	return nil
}

// GetUnsentEventsForProcessing claims up to limit unsent outbox events,
// marking them 'processing' so concurrent publishers skip them.
func (r *ApprovalRepository) GetUnsentEventsForProcessing(limit int) ([]model.ApprovalOutboxEvent, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT event_id, event_type, status, wallet_address, record_status, amount, tx_hash, event_blob, created_at
		FROM approval_outbox
		WHERE status = 'unsent'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ApprovalOutboxEvent
	for rows.Next() {
		var event model.ApprovalOutboxEvent
		var txHash sql.NullString
		if err := rows.Scan(&event.EventID, &event.EventType, &event.Status, &event.WalletAddress,
			&event.RecordStatus, &event.Amount, &txHash, &event.EventBlob, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.TxHash = txHash.String
		events = append(events, event)
	}
	rows.Close()

	for _, event := range events {
		if _, err := tx.Exec(`
			UPDATE approval_outbox SET status = 'processing' WHERE event_id = $1 AND status = 'unsent'
		`, event.EventID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *ApprovalRepository) MarkEventAsSent(eventID string) error {
	_, err := r.db.Exec(`UPDATE approval_outbox SET status = 'sent' WHERE event_id = $1`, eventID)
	return err
}

// MarkEventAsFailed returns the event to 'unsent' for retry.
func (r *ApprovalRepository) MarkEventAsFailed(eventID string) error {
	_, err := r.db.Exec(`UPDATE approval_outbox SET status = 'unsent' WHERE event_id = $1`, eventID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.ApprovalRecord, error) {
	var record model.ApprovalRecord
	var txHash sql.NullString
	if err := row.Scan(&record.WalletAddress, &record.ApprovalAmount, &record.Timestamp,
		&txHash, &record.Status); err != nil {
		return nil, err
	}
	record.TransactionHash = txHash.String
	return &record, nil
}

func nullableHash(hash string) sql.NullString {
	return sql.NullString{String: hash, Valid: hash != ""}
}
