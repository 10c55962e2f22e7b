package wallet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payguard/apps/payguard/internal/wallet"
)

// newRPCEndpoint serves a minimal JSON-RPC node answering eth_chainId.
func newRPCEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_chainId":
			result = "0x38"
		default:
			result = "0x0"
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDialRPCFallsBackToNextEndpoint(t *testing.T) {
	ts := newRPCEndpoint(t)

	provider, err := wallet.DialRPC(context.Background(), "ftp://not-an-rpc-endpoint", ts.URL)
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ts.URL, provider.URL())

	raw, err := provider.Request(context.Background(), "eth_chainId")
	require.NoError(t, err)
	var chainID string
	require.NoError(t, json.Unmarshal(raw, &chainID))
	assert.Equal(t, "0x38", chainID)
}

func TestDialRPCNoReachableEndpoint(t *testing.T) {
	_, err := wallet.DialRPC(context.Background(), "ftp://not-an-rpc-endpoint")
	assert.Error(t, err)
}

func TestRPCProviderHasNoWalletSurface(t *testing.T) {
	ts := newRPCEndpoint(t)

	provider, err := wallet.DialRPC(context.Background(), ts.URL)
	require.NoError(t, err)
	defer provider.Close()

	// No user behind this provider: account requests report an empty list.
	for _, method := range []string{"eth_requestAccounts", "eth_accounts"} {
		raw, err := provider.Request(context.Background(), method)
		require.NoError(t, err)
		var accounts []string
		require.NoError(t, json.Unmarshal(raw, &accounts))
		assert.Empty(t, accounts)
	}

	// Signing and chain-management prompts are unsupported.
	for _, method := range []string{"wallet_switchEthereumChain", "wallet_addEthereumChain", "eth_sendTransaction"} {
		_, err := provider.Request(context.Background(), method)
		pe, ok := wallet.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, wallet.CodeUnsupportedMethod, pe.Code)
	}

	// Notification hooks are accepted as no-ops.
	provider.On(wallet.EventChainChanged, func(json.RawMessage) {})
	provider.RemoveListener(wallet.EventChainChanged)
}
