package store

import (
	"context"
	"errors"

	"payguard/apps/payguard/internal/model"
)

// ErrNotFound is returned by UpdateStatus when no record exists for the
// address. An update without a prior create is a caller error, not something
// to silently ignore.
var ErrNotFound = errors.New("approval record not found")

// RecordStore is the durable, address-keyed persistence contract for approval
// records. Writes are last-writer-wins per address; the orchestrator is the
// sole writer for any one address and invocations are user-triggered, so no
// compare-and-swap semantics are needed.
type RecordStore interface {
	// Put creates or unconditionally replaces the record for its wallet
	// address, stamping the creation timestamp. The stored record is returned.
	Put(ctx context.Context, record model.ApprovalRecord) (model.ApprovalRecord, error)

	// Get returns the record for the address, or nil when absent. Absence is
	// a normal outcome, not an error.
	Get(ctx context.Context, walletAddress string) (*model.ApprovalRecord, error)

	// UpdateStatus rewrites the status and, when txHash is non-empty, the
	// transaction hash of an existing record, preserving everything else.
	// Returns ErrNotFound when there is no record for the address.
	UpdateStatus(ctx context.Context, walletAddress string, status model.ApprovalStatus, txHash string) (*model.ApprovalRecord, error)

	// ListAll returns every stored record; ordering is unspecified. Intended
	// for operational and audit visibility, not the hot path.
	ListAll(ctx context.Context) ([]model.ApprovalRecord, error)
}
