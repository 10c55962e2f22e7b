package model

// ApprovalStatus tracks the lifecycle of a spending approval. A record starts
// pending and moves to exactly one terminal status; the orchestrator is the
// only writer and enforces that terminal records are not revived.
type ApprovalStatus string

const (
	StatusPending ApprovalStatus = "pending"
	StatusSuccess ApprovalStatus = "success"
	StatusFailed  ApprovalStatus = "failed"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// ApprovalRecord is the persisted lifecycle of one approval attempt, keyed by
// wallet address (at most one live record per address, last write wins).
// ApprovalAmount is a human-unit decimal string kept for display; it is never
// parsed back into on-chain integer math.
type ApprovalRecord struct {
	WalletAddress   string         `json:"walletAddress" db:"wallet_address"`
	ApprovalAmount  string         `json:"approvalAmount" db:"approval_amount"`
	Timestamp       int64          `json:"timestamp" db:"timestamp_ms"` // ms since epoch, set once on create
	TransactionHash string         `json:"transactionHash,omitempty" db:"transaction_hash"`
	Status          ApprovalStatus `json:"status" db:"status"`
}

// RecordKeyPrefix namespaces approval records in the store.
const RecordKeyPrefix = "approval:"

// RecordKey returns the storage key for a wallet's approval record.
func RecordKey(walletAddress string) string {
	return RecordKeyPrefix + walletAddress
}
