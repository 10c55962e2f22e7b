package orchestrator

import (
	"payguard/apps/payguard/internal/model"
)

// Phase is the orchestrator's position in the check/approve flow, exposed so
// a UI can render per-phase progress.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseNetworkCheck Phase = "network_check"
	PhaseConnecting   Phase = "connecting"
	PhaseBalanceCheck Phase = "balance_check"
	PhaseApproving    Phase = "approving"
	PhaseSettled      Phase = "settled"
)

// TxOutcome is the last transaction result shown to the user.
type TxOutcome struct {
	Hash    string
	Status  model.ApprovalStatus
	Message string
}

// Snapshot is the UI-facing orchestrator state. Everything here is derived
// from the flow; none of it is persisted.
type Snapshot struct {
	WalletDetected bool
	Session        *model.WalletSession
	Phase          Phase
	Busy           bool

	NativeBalance string
	TokenBalance  string
	Allowance     string
	Approved      bool

	// Notice is a transient, auto-dismissed message ("no tokens" and the
	// like), distinct from errors.
	Notice string

	LastError *FlowError
	LastTx    *TxOutcome
}
