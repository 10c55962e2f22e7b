package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/store"
)

// ApprovalHandler serves the approval-record persistence API.
type ApprovalHandler struct {
	store  store.RecordStore
	logger *zap.Logger
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(recordStore store.RecordStore, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{store: recordStore, logger: logger}
}

// SaveApproval handles POST /api/approval
func (h *ApprovalHandler) SaveApproval(w http.ResponseWriter, r *http.Request) {
	var req SaveApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WalletAddress == "" {
		h.writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}
	status := model.ApprovalStatus(req.Status)
	if !status.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid approval status")
		return
	}

	record, err := h.store.Put(r.Context(), model.ApprovalRecord{
		WalletAddress:   req.WalletAddress,
		ApprovalAmount:  req.ApprovalAmount,
		TransactionHash: req.TransactionHash,
		Status:          status,
	})
	if err != nil {
		h.logger.Error("Error saving approval data", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to save approval data")
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: record})
}

// GetApproval handles GET /api/approval?walletAddress=...
func (h *ApprovalHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	walletAddress := r.URL.Query().Get("walletAddress")
	if walletAddress == "" {
		h.writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}

	record, err := h.store.Get(r.Context(), walletAddress)
	if err != nil {
		h.logger.Error("Error getting approval data",
			zap.String("wallet_address", walletAddress),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to get approval data")
		return
	}

	// Absence is an empty success, not an error.
	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: record})
}

// UpdateApproval handles PUT /api/approval
func (h *ApprovalHandler) UpdateApproval(w http.ResponseWriter, r *http.Request) {
	var req UpdateApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WalletAddress == "" {
		h.writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}
	status := model.ApprovalStatus(req.Status)
	if !status.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid approval status")
		return
	}

	record, err := h.store.UpdateStatus(r.Context(), req.WalletAddress, status, req.TransactionHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Approval record not found")
			return
		}
		h.logger.Error("Error updating approval status",
			zap.String("wallet_address", req.WalletAddress),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to update approval status")
		return
	}

	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: record})
}

// ListApprovals handles GET /api/approval/all
func (h *ApprovalHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Error getting all approval data", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to get all approval data")
		return
	}
	if records == nil {
		records = []model.ApprovalRecord{}
	}

	h.logger.Info("Retrieved approval records", zap.Int("count", len(records)))
	h.writeJSON(w, http.StatusOK, Envelope{Success: true, Data: records})
}

func (h *ApprovalHandler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (h *ApprovalHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, Envelope{Success: false, Error: message})
}
