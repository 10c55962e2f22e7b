package events

import (
	"encoding/json"
	"time"
)

// ApprovalEvent is the Kafka payload emitted for each approval lifecycle
// transition.
type ApprovalEvent struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	WalletAddress string          `json:"wallet_address"`
	RecordStatus  string          `json:"record_status"`
	Amount        string          `json:"amount"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Record        json.RawMessage `json:"record"`
	Timestamp     time.Time       `json:"timestamp"`
}
