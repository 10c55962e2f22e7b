package model

import (
	"encoding/json"
	"time"
)

// Outbox event types emitted on approval lifecycle transitions.
const (
	EventApprovalCreated       = "approval_created"
	EventApprovalStatusChanged = "approval_status_changed"
)

// ApprovalOutboxEvent is a pending lifecycle notification written in the same
// transaction as the record mutation and drained to Kafka by the publisher.
type ApprovalOutboxEvent struct {
	EventID       string          `db:"event_id"`
	EventType     string          `db:"event_type"`
	Status        string          `db:"status"` // unsent | processing | sent
	WalletAddress string          `db:"wallet_address"`
	RecordStatus  ApprovalStatus  `db:"record_status"`
	Amount        string          `db:"amount"`
	TxHash        string          `db:"tx_hash"`
	EventBlob     json.RawMessage `db:"event_blob"`
	CreatedAt     time.Time       `db:"created_at"`
}
