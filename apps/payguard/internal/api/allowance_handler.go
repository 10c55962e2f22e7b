package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/orchestrator"
)

// AllowanceHandler serves live on-chain allowance state for a wallet through
// the server-side RPC provider. Reads are fail-closed, so a flaky node shows
// up as zeros rather than a 5xx.
type AllowanceHandler struct {
	chain  *chain.Client
	logger *zap.Logger
}

// NewAllowanceHandler creates a new AllowanceHandler
func NewAllowanceHandler(chainClient *chain.Client, logger *zap.Logger) *AllowanceHandler {
	return &AllowanceHandler{chain: chainClient, logger: logger}
}

// GetAllowance handles GET /api/allowance/{wallet_address}
func (h *AllowanceHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	walletAddress := vars["wallet_address"]

	if !common.IsHexAddress(walletAddress) {
		h.writeJSON(w, http.StatusBadRequest, Envelope{Success: false, Error: "Invalid wallet address"})
		return
	}

	nativeBalance, _ := h.chain.NativeBalance(r.Context(), walletAddress)
	tokenBalance, _ := h.chain.TokenBalance(r.Context(), walletAddress)
	allowance, _ := h.chain.Allowance(r.Context(), walletAddress)

	response := AllowanceResponse{
		WalletAddress: walletAddress,
		NativeBalance: nativeBalance,
		TokenBalance:  tokenBalance,
		Allowance:     allowance,
		Sufficient:    orchestrator.Sufficient(tokenBalance, allowance),
	}

	h.logger.Info("Retrieved on-chain allowance state",
		zap.String("wallet_address", walletAddress),
		zap.String("token_balance", tokenBalance),
		zap.String("allowance", allowance))

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: response})
}

func (h *AllowanceHandler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}
