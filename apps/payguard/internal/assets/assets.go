package assets

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Asset represents a token with its on-chain properties
type Asset struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// NativeCurrency describes the chain's gas currency
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network is the full descriptor of the target chain, carrying everything a
// wallet needs for a wallet_addEthereumChain request.
type Network struct {
	ChainID         int64
	ChainName       string
	NativeCurrency  NativeCurrency
	RPCURL          string
	FallbackRPCURLs []string
	ExplorerURL     string
}

// ChainIDHex returns the chain id in the 0x-prefixed form wallet providers expect.
func (n Network) ChainIDHex() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

// BSCMainnet is the single target chain. Chain correctness is re-validated
// against this descriptor on every orchestrator invocation.
var BSCMainnet = Network{
	ChainID:   56,
	ChainName: "Binance Smart Chain",
	NativeCurrency: NativeCurrency{
		Name:     "BNB",
		Symbol:   "BNB",
		Decimals: 18,
	},
	RPCURL: "https://bsc-dataseed.binance.org/",
	FallbackRPCURLs: []string{
		"https://bsc-dataseed1.binance.org/",
		"https://bsc-dataseed2.binance.org/",
		"https://bsc-dataseed3.binance.org/",
		"https://bsc-dataseed4.binance.org/",
	},
	ExplorerURL: "https://bscscan.com/",
}

// Fixed contract addresses on BSC mainnet.
var (
	// PaymentContractAddress is the sole spender authorized to draw down
	// approved USDT.
	PaymentContractAddress = common.HexToAddress("0x11E4e896C6Bc7C39082E79B97722A4C973441556")

	// AdminAddress administers the payment contract.
	AdminAddress = common.HexToAddress("0x754Cda8029484677F63016b979ed3107056Ef008")
)

// USDT is the single managed token. USDT on BSC uses 18 decimals, unlike its
// Ethereum mainnet counterpart.
var USDT = Asset{
	Symbol:   "USDT",
	Name:     "Tether USD",
	Address:  common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
	Decimals: 18,
}

// USDTTokenABI covers the read surface plus approve for the BEP-20 USDT token.
const USDTTokenABI = `[
	{"constant": true, "inputs": [], "name": "name", "outputs": [{"name": "", "type": "string"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "symbol", "outputs": [{"name": "", "type": "string"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "decimals", "outputs": [{"name": "", "type": "uint8"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "totalSupply", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
	{"constant": true, "inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
	{"constant": true, "inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
	{"constant": false, "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "approve", "outputs": [{"name": "", "type": "bool"}], "type": "function"}
]`

// PaymentContractABI covers the payment contract's view functions used by the
// contract sanity probe.
const PaymentContractABI = `[
	{"constant": true, "inputs": [], "name": "getAdmin", "outputs": [{"name": "", "type": "address"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "getUSDTToken", "outputs": [{"name": "", "type": "address"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "getTotalDepositedBNB", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
	{"constant": true, "inputs": [{"name": "user", "type": "address"}], "name": "getUserBNBBalance", "outputs": [{"name": "", "type": "uint256"}], "type": "function"},
	{"constant": true, "inputs": [], "name": "getContractBalance", "outputs": [{"name": "", "type": "uint256"}], "type": "function"}
]`
