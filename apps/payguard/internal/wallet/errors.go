package wallet

import "errors"

// Sentinel errors surfaced by the connector. Each maps to a distinct
// user-facing message upstream.
var (
	// ErrNoProvider means no wallet extension is present at all.
	ErrNoProvider = errors.New("no wallet provider detected")

	// ErrNoAccounts means the account request returned zero accounts.
	ErrNoAccounts = errors.New("no accounts authorized")

	// ErrSwitchRejected means the user declined a chain-switch or chain-add
	// prompt.
	ErrSwitchRejected = errors.New("chain switch rejected by user")

	// ErrChainSwitchFailed is a technical failure of wallet_switchEthereumChain.
	ErrChainSwitchFailed = errors.New("failed to switch to target chain")

	// ErrChainAddFailed is a technical failure of wallet_addEthereumChain.
	ErrChainAddFailed = errors.New("failed to add target chain to wallet")

	// ErrNotVerified means a connect reported success but the provider could
	// not confirm an authorized account on the target chain afterwards.
	ErrNotVerified = errors.New("wallet connection could not be verified")
)
