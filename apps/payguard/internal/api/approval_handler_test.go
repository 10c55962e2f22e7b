package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/api"
	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/store"
)

const testAddress = "0x1234567890abcdef1234567890abcdef12345678"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	server := api.NewServer(0, memStore, nil, zap.NewNop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, memStore
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func putJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSaveApproval(t *testing.T) {
	ts, memStore := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/approval", api.SaveApprovalRequest{
		WalletAddress:  testAddress,
		ApprovalAmount: "100.5",
		Status:         "pending",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, testAddress, data["walletAddress"])
	assert.Equal(t, "100.5", data["approvalAmount"])
	assert.Equal(t, "pending", data["status"])
	assert.NotZero(t, data["timestamp"])

	record, err := memStore.Get(context.Background(), testAddress)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusPending, record.Status)
}

func TestSaveApprovalValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("missing wallet address", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/approval", api.SaveApprovalRequest{
			ApprovalAmount: "1",
			Status:         "pending",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Wallet address is required", body["error"])
	})

	t.Run("unknown status", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/approval", api.SaveApprovalRequest{
			WalletAddress:  testAddress,
			ApprovalAmount: "1",
			Status:         "done",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Invalid approval status", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/approval", "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestGetApprovalAbsentIsNullData(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/approval?walletAddress=" + testAddress)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	data, present := body["data"]
	assert.True(t, present, "absent record should still carry an explicit null data field")
	assert.Nil(t, data)
}

func TestGetApprovalRequiresWalletAddress(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/approval")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Wallet address is required", body["error"])
}

func TestUpdateApproval(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/approval", api.SaveApprovalRequest{
		WalletAddress:  testAddress,
		ApprovalAmount: "10",
		Status:         "pending",
	})
	resp.Body.Close()

	resp = putJSON(t, ts.URL+"/api/approval", api.UpdateApprovalRequest{
		WalletAddress:   testAddress,
		Status:          "success",
		TransactionHash: "0xdeadbeef",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "0xdeadbeef", data["transactionHash"])
}

func TestUpdateApprovalNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := putJSON(t, ts.URL+"/api/approval", api.UpdateApprovalRequest{
		WalletAddress: testAddress,
		Status:        "failed",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Approval record not found", body["error"])
}

func TestListApprovals(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("empty store yields empty array", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/approval/all")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		data, ok := body["data"].([]interface{})
		require.True(t, ok, "data should be an array, not null")
		assert.Empty(t, data)
	})

	t.Run("returns every record", func(t *testing.T) {
		for _, addr := range []string{"0xaaa", "0xbbb"} {
			resp := postJSON(t, ts.URL+"/api/approval", api.SaveApprovalRequest{
				WalletAddress:  addr,
				ApprovalAmount: "5",
				Status:         "success",
			})
			resp.Body.Close()
		}

		resp, err := http.Get(ts.URL + "/api/approval/all")
		require.NoError(t, err)
		body := decodeBody(t, resp)
		data, ok := body["data"].([]interface{})
		require.True(t, ok)
		assert.Len(t, data, 2)
	})
}

func TestHealthCheck(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}
