package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/assets"
	"payguard/apps/payguard/internal/model"
)

// SwitchChainParams is the argument of a wallet_switchEthereumChain request.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// AddChainParams is the full chain descriptor sent with
// wallet_addEthereumChain when the provider does not know the target chain.
type AddChainParams struct {
	ChainID           string                `json:"chainId"`
	ChainName         string                `json:"chainName"`
	NativeCurrency    assets.NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string              `json:"rpcUrls"`
	BlockExplorerURLs []string              `json:"blockExplorerUrls"`
}

// Connector bridges to the injected wallet provider and guarantees the active
// chain is the target chain before any read or transaction. The session is a
// single replace-whole value: set on connect, cleared wholesale on
// disconnect, chain change, or the account list going empty.
type Connector struct {
	provider Provider
	network  assets.Network
	logger   *zap.Logger

	mu         sync.Mutex
	session    *model.WalletSession
	invalidate func()
}

// NewConnector wires the connector to provider and subscribes to its chain
// and account notifications for the lifetime of the process. A nil provider
// models the no-extension environment; every operation then fails with
// ErrNoProvider.
func NewConnector(provider Provider, network assets.Network, logger *zap.Logger) *Connector {
	c := &Connector{
		provider: provider,
		network:  network,
		logger:   logger,
	}
	if provider != nil {
		provider.On(EventChainChanged, c.onChainChanged)
		provider.On(EventAccountsChanged, c.onAccountsChanged)
	}
	return c
}

// Detected reports whether a wallet provider is present.
func (c *Connector) Detected() bool {
	return c.provider != nil
}

// Provider exposes the underlying provider for read clients.
func (c *Connector) Provider() Provider {
	return c.provider
}

// OnInvalidate registers fn to run whenever the provider reports a chain
// change or the account list goes empty. Callers must treat cached balances,
// allowance, and the approval-satisfied flag as stale when it fires.
func (c *Connector) OnInvalidate(fn func()) {
	c.mu.Lock()
	c.invalidate = fn
	c.mu.Unlock()
}

// Session returns the live session, or nil when not connected.
func (c *Connector) Session() *model.WalletSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect requests account access, establishes the session, and enforces the
// target chain before returning.
func (c *Connector) Connect(ctx context.Context) (*model.WalletSession, error) {
	if c.provider == nil {
		return nil, ErrNoProvider
	}

	raw, err := c.provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, fmt.Errorf("requesting accounts: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("decoding account list: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	chainID, err := c.currentChainID(ctx)
	if err != nil {
		return nil, err
	}
	if chainID != c.network.ChainID {
		if err := c.EnsureTargetChain(ctx); err != nil {
			return nil, err
		}
		chainID = c.network.ChainID
	}

	session := &model.WalletSession{
		Address:     accounts[0],
		ChainID:     chainID,
		IsConnected: true,
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.Info("wallet connected",
		zap.String("address", session.Address),
		zap.Int64("chain_id", session.ChainID))
	return session, nil
}

// EnsureTargetChain reads the active chain id and, when it differs from the
// target, issues a switch request. A provider that does not know the chain
// (code 4902) gets an add-chain request carrying the full descriptor; the
// switch is satisfied once the add succeeds. User rejection of either prompt
// is distinguished from technical failure.
func (c *Connector) EnsureTargetChain(ctx context.Context) error {
	if c.provider == nil {
		return ErrNoProvider
	}

	chainID, err := c.currentChainID(ctx)
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	if chainID == c.network.ChainID {
		return nil
	}

	c.logger.Info("switching to target chain",
		zap.Int64("current_chain_id", chainID),
		zap.Int64("target_chain_id", c.network.ChainID))

	_, err = c.provider.Request(ctx, "wallet_switchEthereumChain",
		SwitchChainParams{ChainID: c.network.ChainIDHex()})
	if err == nil {
		return nil
	}

	pe, ok := AsProviderError(err)
	switch {
	case ok && pe.Code == CodeUnrecognizedChain:
		if _, addErr := c.provider.Request(ctx, "wallet_addEthereumChain", c.addChainParams()); addErr != nil {
			if ape, isProvider := AsProviderError(addErr); isProvider && ape.UserRejected() {
				return fmt.Errorf("%w: %s", ErrSwitchRejected, ape.Message)
			}
			return fmt.Errorf("%w: %v", ErrChainAddFailed, addErr)
		}
		return nil
	case ok && pe.UserRejected():
		return fmt.Errorf("%w: %s", ErrSwitchRejected, pe.Message)
	default:
		return fmt.Errorf("%w: %v", ErrChainSwitchFailed, err)
	}
}

// VerifyConnected reports whether an account is currently authorized and the
// active chain equals the target chain. It has no side effects and never
// returns an error; any failure collapses to false.
func (c *Connector) VerifyConnected(ctx context.Context) bool {
	if c.provider == nil {
		return false
	}

	raw, err := c.provider.Request(ctx, "eth_accounts")
	if err != nil {
		return false
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil || len(accounts) == 0 {
		return false
	}

	chainID, err := c.currentChainID(ctx)
	return err == nil && chainID == c.network.ChainID
}

// Disconnect drops the session. Idempotent.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func (c *Connector) currentChainID(ctx context.Context) (int64, error) {
	raw, err := c.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	var hexID string
	if err := json.Unmarshal(raw, &hexID); err != nil {
		return 0, fmt.Errorf("decoding chain id: %w", err)
	}
	id, err := hexutil.DecodeUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("parsing chain id %q: %w", hexID, err)
	}
	return int64(id), nil
}

func (c *Connector) addChainParams() AddChainParams {
	return AddChainParams{
		ChainID:           c.network.ChainIDHex(),
		ChainName:         c.network.ChainName,
		NativeCurrency:    c.network.NativeCurrency,
		RPCURLs:           []string{c.network.RPCURL},
		BlockExplorerURLs: []string{c.network.ExplorerURL},
	}
}

func (c *Connector) onChainChanged(payload json.RawMessage) {
	var hexID string
	_ = json.Unmarshal(payload, &hexID)
	c.logger.Info("provider reported chain change, invalidating session",
		zap.String("new_chain_id", hexID))
	c.clearSession()
}

func (c *Connector) onAccountsChanged(payload json.RawMessage) {
	var accounts []string
	_ = json.Unmarshal(payload, &accounts)
	if len(accounts) > 0 {
		return
	}
	// An empty account list is a full disconnect.
	c.logger.Info("provider reported empty account list, disconnecting")
	c.clearSession()
}

func (c *Connector) clearSession() {
	c.mu.Lock()
	c.session = nil
	fn := c.invalidate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
