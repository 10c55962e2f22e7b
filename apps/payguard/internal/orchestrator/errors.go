package orchestrator

import (
	"errors"
	"strings"

	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/wallet"
)

// Category is the closed set of user-facing failure classes. Every error that
// escapes the flow is folded into exactly one of these.
type Category string

const (
	CategoryNoProvider          Category = "no_provider"
	CategoryConnectionRejected  Category = "connection_rejected"
	CategoryNotVerified         Category = "connection_unverified"
	CategoryTxRejected          Category = "transaction_rejected"
	CategoryChainSwitchRejected Category = "chain_switch_rejected"
	CategoryChainSwitchFailed   Category = "chain_switch_failed"
	CategoryChainAddFailed      Category = "chain_add_failed"
	CategoryInsufficientGas     Category = "insufficient_gas_funds"
	CategoryReverted            Category = "contract_reverted"
	CategoryRPC                 Category = "rpc_failure"
	CategoryBalanceRead         Category = "balance_read_failed"
	CategoryBusy                Category = "busy"
	CategoryGeneric             Category = "generic"
)

// maxRawMessageLen bounds how much raw provider text may reach the user.
// Longer or unrecognized messages collapse to the generic fallback.
const maxRawMessageLen = 100

// FlowError pairs a failure category with its short user-facing message. The
// underlying cause stays attached for logging and errors.Is checks.
type FlowError struct {
	Category Category
	Message  string
	cause    error
}

func (e *FlowError) Error() string {
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

// errBalanceReadExhausted marks a balance-read failure that survived the
// bounded retry.
var errBalanceReadExhausted = errors.New("balance check failed")

// classify normalizes any flow error into a FlowError. Classification happens
// once, here; nothing upstream branches on raw provider shapes.
func classify(err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, wallet.ErrNoProvider):
		return &FlowError{CategoryNoProvider, "No wallet detected. Please install MetaMask or another wallet.", err}
	case errors.Is(err, wallet.ErrNoAccounts):
		return &FlowError{CategoryConnectionRejected, "No accounts found", err}
	case errors.Is(err, wallet.ErrNotVerified):
		return &FlowError{CategoryNotVerified, "Wallet connection verification failed", err}
	case errors.Is(err, wallet.ErrSwitchRejected):
		return &FlowError{CategoryChainSwitchRejected, "Network switch was cancelled", err}
	case errors.Is(err, wallet.ErrChainAddFailed):
		return &FlowError{CategoryChainAddFailed, "Please add BSC Mainnet to your wallet", err}
	case errors.Is(err, wallet.ErrChainSwitchFailed):
		return &FlowError{CategoryChainSwitchFailed, "Please switch to BSC Mainnet in your wallet", err}
	case errors.Is(err, chain.ErrTxReverted):
		return &FlowError{CategoryReverted, "Transaction reverted - check your input", err}
	case errors.Is(err, errBalanceReadExhausted):
		return &FlowError{CategoryBalanceRead, "Failed to check balance. Please try again.", err}
	case errors.Is(err, ErrBusy):
		return &FlowError{CategoryBusy, "A check is already in progress", err}
	}

	if pe, ok := wallet.AsProviderError(err); ok {
		switch {
		case pe.UserRejected():
			return &FlowError{CategoryTxRejected, "Transaction was rejected by user", err}
		case pe.Code == wallet.CodeInternalRPC:
			return &FlowError{CategoryRPC, "RPC Error - Please check your network connection and try again", err}
		}
	}

	message := err.Error()
	switch {
	case strings.Contains(message, "insufficient funds"):
		return &FlowError{CategoryInsufficientGas, "Insufficient funds for transaction", err}
	case strings.Contains(message, "execution reverted"):
		return &FlowError{CategoryReverted, "Transaction reverted - check your input", err}
	case strings.Contains(message, "gas"):
		return &FlowError{CategoryInsufficientGas, "Gas estimation failed", err}
	case strings.Contains(message, "Internal JSON-RPC error"):
		return &FlowError{CategoryRPC, "Network error - Please try again", err}
	case len(message) > maxRawMessageLen:
		return &FlowError{CategoryGeneric, "Transaction failed - please try again", err}
	default:
		return &FlowError{CategoryGeneric, message, err}
	}
}
