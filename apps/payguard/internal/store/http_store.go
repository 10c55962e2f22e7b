package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"payguard/apps/payguard/internal/model"
)

// HTTPStore is a RecordStore client of the approval persistence API. It is
// what a UI host uses when the store runs behind the REST surface instead of
// in-process.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPStore(baseURL string, logger *zap.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// envelope mirrors the API's uniform response shape.
type envelope struct {
	Success bool                  `json:"success"`
	Data    *model.ApprovalRecord `json:"data"`
	Error   string                `json:"error"`
}

type listEnvelope struct {
	Success bool                   `json:"success"`
	Data    []model.ApprovalRecord `json:"data"`
	Error   string                 `json:"error"`
}

func (s *HTTPStore) Put(ctx context.Context, record model.ApprovalRecord) (model.ApprovalRecord, error) {
	body := map[string]string{
		"walletAddress":  record.WalletAddress,
		"approvalAmount": record.ApprovalAmount,
		"status":         string(record.Status),
	}
	if record.TransactionHash != "" {
		body["transactionHash"] = record.TransactionHash
	}

	env, _, err := s.do(ctx, http.MethodPost, s.baseURL+"/api/approval", body)
	if err != nil {
		return model.ApprovalRecord{}, err
	}
	if env.Data == nil {
		return model.ApprovalRecord{}, fmt.Errorf("save approval returned no record")
	}
	return *env.Data, nil
}

func (s *HTTPStore) Get(ctx context.Context, walletAddress string) (*model.ApprovalRecord, error) {
	endpoint := s.baseURL + "/api/approval?walletAddress=" + url.QueryEscape(walletAddress)
	env, _, err := s.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (s *HTTPStore) UpdateStatus(ctx context.Context, walletAddress string, status model.ApprovalStatus, txHash string) (*model.ApprovalRecord, error) {
	body := map[string]string{
		"walletAddress": walletAddress,
		"status":        string(status),
	}
	if txHash != "" {
		body["transactionHash"] = txHash
	}

	env, statusCode, err := s.do(ctx, http.MethodPut, s.baseURL+"/api/approval", body)
	if statusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (s *HTTPStore) ListAll(ctx context.Context) ([]model.ApprovalRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/approval/all", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing approval records: %w", err)
	}
	defer resp.Body.Close()

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding approval list response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("approval API error: %s", env.Error)
	}
	return env.Data, nil
}

func (s *HTTPStore) do(ctx context.Context, method, endpoint string, body interface{}) (*envelope, int, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("approval API request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding approval API response: %w", err)
	}
	if !env.Success {
		s.logger.Warn("approval API reported failure",
			zap.String("method", method),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error", env.Error))
		return &env, resp.StatusCode, fmt.Errorf("approval API error: %s", env.Error)
	}
	return &env, resp.StatusCode, nil
}
