package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/assets"
	"payguard/apps/payguard/internal/wallet"
)

// ErrTxReverted means the transaction was mined but reverted on-chain.
var ErrTxReverted = errors.New("transaction reverted on-chain")

// callMsg is the eth_call / eth_sendTransaction parameter object.
type callMsg struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// Receipt is the subset of a transaction receipt the approval flow needs.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

// Client issues reads against the fixed token and payment contracts through a
// wallet provider, plus the single write the flow needs: approve.
//
// Reads fail closed: on any provider or contract-call failure they return the
// zero value ("0" or false) together with the error, so callers that only
// display values are never broken by a flaky node while the orchestrator can
// still apply its retry policy. "Genuinely zero" and "read failed" are not
// distinguishable at this layer.
type Client struct {
	provider   wallet.Provider
	logger     *zap.Logger
	token      assets.Asset
	spender    common.Address
	tokenABI   abi.ABI
	paymentABI abi.ABI
}

// NewClient builds a client over provider for the fixed USDT/payment-contract
// pair.
func NewClient(provider wallet.Provider, logger *zap.Logger) (*Client, error) {
	tokenABI, err := abi.JSON(strings.NewReader(assets.USDTTokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	paymentABI, err := abi.JSON(strings.NewReader(assets.PaymentContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment contract ABI: %w", err)
	}

	return &Client{
		provider:   provider,
		logger:     logger,
		token:      assets.USDT,
		spender:    assets.PaymentContractAddress,
		tokenABI:   tokenABI,
		paymentABI: paymentABI,
	}, nil
}

// NativeBalance returns the BNB balance of address in human units.
func (c *Client) NativeBalance(ctx context.Context, address string) (string, error) {
	raw, err := c.provider.Request(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		c.logger.Warn("native balance read failed", zap.String("address", address), zap.Error(err))
		return "0", err
	}
	wei, err := decodeQuantity(raw)
	if err != nil {
		return "0", err
	}
	return FormatUnits(wei, assets.BSCMainnet.NativeCurrency.Decimals), nil
}

// TokenBalance returns the USDT balance of address in human units. The token
// contract is probed first so a broken call path short-circuits instead of
// reporting a misleading zero straight from an unpack failure.
func (c *Client) TokenBalance(ctx context.Context, address string) (string, error) {
	if !c.VerifyTokenContract(ctx) {
		return "0", fmt.Errorf("token contract probe failed for %s", c.token.Address.Hex())
	}
	balance, err := c.RawTokenBalance(ctx, address)
	if err != nil {
		c.logger.Warn("token balance read failed", zap.String("address", address), zap.Error(err))
		return "0", err
	}
	return FormatUnits(balance, c.token.Decimals), nil
}

// RawTokenBalance returns the USDT balance of address in smallest units.
// The approval amount is always re-derived from this at call time.
func (c *Client) RawTokenBalance(ctx context.Context, address string) (*big.Int, error) {
	out, err := c.callTokenContract(ctx, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	if err := c.tokenABI.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	return balance, nil
}

// Allowance returns the spending allowance owner has granted to the fixed
// payment contract, in human units.
func (c *Client) Allowance(ctx context.Context, owner string) (string, error) {
	out, err := c.callTokenContract(ctx, "allowance", common.HexToAddress(owner), c.spender)
	if err != nil {
		c.logger.Warn("allowance read failed", zap.String("owner", owner), zap.Error(err))
		return "0", err
	}
	var allowance *big.Int
	if err := c.tokenABI.UnpackIntoInterface(&allowance, "allowance", out); err != nil {
		return "0", fmt.Errorf("failed to unpack allowance result: %w", err)
	}
	return FormatUnits(allowance, c.token.Decimals), nil
}

// VerifyTokenContract reads the token's static metadata as a sanity probe of
// the contract call path. Any failure yields false, never an error.
func (c *Client) VerifyTokenContract(ctx context.Context) bool {
	for _, method := range []string{"name", "symbol", "decimals", "totalSupply"} {
		if _, err := c.callTokenContract(ctx, method); err != nil {
			c.logger.Warn("token contract probe failed",
				zap.String("method", method),
				zap.Error(err))
			return false
		}
	}
	return true
}

// Approve submits an approve(spender, amount) transaction from the given
// account through the provider's signer and returns the transaction hash.
// Confirmation is awaited separately with WaitMined.
func (c *Client) Approve(ctx context.Context, from string, amount *big.Int) (string, error) {
	data, err := c.tokenABI.Pack("approve", c.spender, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve call: %w", err)
	}

	raw, err := c.provider.Request(ctx, "eth_sendTransaction", callMsg{
		From: from,
		To:   c.token.Address.Hex(),
		Data: hexutil.Encode(data),
	})
	if err != nil {
		return "", fmt.Errorf("sending approve transaction: %w", err)
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("decoding transaction hash: %w", err)
	}

	c.logger.Info("approve transaction submitted",
		zap.String("from", from),
		zap.String("spender", c.spender.Hex()),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", hash))
	return hash, nil
}

// WaitMined polls for the transaction receipt until the transaction is
// included or ctx expires. A mined transaction with status 0x0 returns the
// receipt together with ErrTxReverted.
func (c *Client) WaitMined(ctx context.Context, txHash string, pollInterval time.Duration) (*Receipt, error) {
	for {
		raw, err := c.provider.Request(ctx, "eth_getTransactionReceipt", txHash)
		if err != nil {
			return nil, fmt.Errorf("fetching receipt for %s: %w", txHash, err)
		}
		if len(raw) > 0 && string(raw) != "null" {
			var receipt Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return nil, fmt.Errorf("decoding receipt for %s: %w", txHash, err)
			}
			if receipt.Status == "0x0" {
				return &receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash)
			}
			return &receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// VerifyPaymentContract probes the payment contract's view surface. The audit
// sweep uses it to gate allowance reads on a working call path.
func (c *Client) VerifyPaymentContract(ctx context.Context) bool {
	data, err := c.paymentABI.Pack("getAdmin")
	if err != nil {
		return false
	}
	if _, err := c.ethCall(ctx, assets.PaymentContractAddress, data); err != nil {
		c.logger.Warn("payment contract probe failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) callTokenContract(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := c.tokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	return c.ethCall(ctx, c.token.Address, data)
}

func (c *Client) ethCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	raw, err := c.provider.Request(ctx, "eth_call", callMsg{
		To:   to.Hex(),
		Data: hexutil.Encode(data),
	}, "latest")
	if err != nil {
		return nil, err
	}
	var hexOut string
	if err := json.Unmarshal(raw, &hexOut); err != nil {
		return nil, fmt.Errorf("decoding eth_call result: %w", err)
	}
	out, err := hexutil.Decode(hexOut)
	if err != nil {
		return nil, fmt.Errorf("decoding eth_call payload: %w", err)
	}
	return out, nil
}

func decodeQuantity(raw json.RawMessage) (*big.Int, error) {
	var hexValue string
	if err := json.Unmarshal(raw, &hexValue); err != nil {
		return nil, fmt.Errorf("decoding quantity: %w", err)
	}
	value, err := hexutil.DecodeBig(hexValue)
	if err != nil {
		return nil, fmt.Errorf("parsing quantity %q: %w", hexValue, err)
	}
	return value, nil
}

// FormatUnits converts a smallest-unit amount to its human decimal
// representation.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	wholePart := new(big.Int).Div(amount, divisor)
	remainder := new(big.Int).Mod(amount, divisor)

	if remainder.Cmp(big.NewInt(0)) == 0 {
		return wholePart.String()
	}

	// Pad remainder with leading zeros to match decimal places
	remainderStr := remainder.String()
	for len(remainderStr) < decimals {
		remainderStr = "0" + remainderStr
	}
	// Remove trailing zeros
	remainderStr = strings.TrimRight(remainderStr, "0")
	if remainderStr == "" {
		return wholePart.String()
	}
	return wholePart.String() + "." + remainderStr
}
