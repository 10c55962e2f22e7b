package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known provider error codes (EIP-1193 / MetaMask conventions).
const (
	CodeUserRejected      = 4001
	CodeUnsupportedMethod = 4200
	CodeUnrecognizedChain = 4902
	CodeInternalRPC       = -32603
)

// Notification channels exposed by wallet providers.
const (
	EventChainChanged    = "chainChanged"
	EventAccountsChanged = "accountsChanged"
)

// Provider is the injected wallet capability: one request/response channel
// plus subscribable notifications, mirroring what a browser extension
// exposes. Keeping it an interface lets the connector and orchestrator run
// against a scripted implementation in tests.
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	On(event string, handler func(payload json.RawMessage))
	RemoveListener(event string)
}

// ProviderError is the normalized shape of a provider rejection. Providers
// emit polymorphic errors (code-bearing, message-bearing, or neither), so
// everything crossing the Provider boundary is folded into this one type
// before any logic branches on it.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// UserRejected reports whether the user declined a wallet prompt, as opposed
// to a technical failure.
func (e *ProviderError) UserRejected() bool {
	return e.Code == CodeUserRejected
}

// AsProviderError unwraps err to a ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
