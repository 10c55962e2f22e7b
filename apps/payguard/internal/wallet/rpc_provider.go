package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider is a server-side Provider backed by a plain JSON-RPC endpoint.
// It serves the read/audit paths; there is no user and no signer behind it,
// so account requests report an empty account list and wallet_* prompts are
// unsupported.
type RPCProvider struct {
	client *rpc.Client
	url    string
}

// DialRPC connects to the first reachable endpoint in urls.
func DialRPC(ctx context.Context, urls ...string) (*RPCProvider, error) {
	var lastErr error
	for _, url := range urls {
		client, err := rpc.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		return &RPCProvider{client: client, url: url}, nil
	}
	return nil, fmt.Errorf("no reachable RPC endpoint: %w", lastErr)
}

// URL returns the endpoint this provider is connected to.
func (p *RPCProvider) URL() string {
	return p.url
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.RawMessage("[]"), nil
	case "wallet_switchEthereumChain", "wallet_addEthereumChain", "eth_sendTransaction":
		return nil, &ProviderError{Code: CodeUnsupportedMethod, Message: method + " is not supported without a wallet"}
	}

	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, normalizeRPCError(err)
	}
	return result, nil
}

// On is a no-op: a plain RPC endpoint pushes no notifications.
func (p *RPCProvider) On(event string, handler func(payload json.RawMessage)) {}

// RemoveListener is a no-op for the same reason as On.
func (p *RPCProvider) RemoveListener(event string) {}

// Close releases the underlying RPC connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}

func normalizeRPCError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}
