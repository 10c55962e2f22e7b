package api

// Envelope is the uniform response shape of the persistence API.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SaveApprovalRequest is the body of POST /api/approval. The server stamps
// the creation timestamp; callers never supply one.
type SaveApprovalRequest struct {
	WalletAddress   string `json:"walletAddress"`
	ApprovalAmount  string `json:"approvalAmount"`
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// UpdateApprovalRequest is the body of PUT /api/approval.
type UpdateApprovalRequest struct {
	WalletAddress   string `json:"walletAddress"`
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// AllowanceResponse is the payload of GET /api/allowance/{wallet_address}.
type AllowanceResponse struct {
	WalletAddress string `json:"walletAddress"`
	NativeBalance string `json:"nativeBalance"`
	TokenBalance  string `json:"tokenBalance"`
	Allowance     string `json:"allowance"`
	Sufficient    bool   `json:"sufficient"`
}
