package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/assets"
	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/orchestrator"
	"payguard/apps/payguard/internal/store"
	"payguard/apps/payguard/internal/wallet"
	"payguard/apps/payguard/internal/wallet/wallettest"
)

const testAccount = "0x1234567890abcdef1234567890abcdef12345678"

const targetChainHex = "0x38"

const (
	selBalanceOf = "0x70a08231"
	selAllowance = "0xdd62ed3e"
)

var oneUSDT = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func usdt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneUSDT)
}

// chainScript is a scripted wallet-plus-node: it answers provider requests
// from mutable state so tests can stage wrong chains, failing reads, and
// transaction outcomes.
type chainScript struct {
	mu sync.Mutex

	chainID   string
	accounts  []string
	tokenRaw  *big.Int
	allowance *big.Int
	nativeWei *big.Int

	switchErr error
	addErr    error
	sendTxErr error

	// hideAccounts makes eth_accounts report an empty list while
	// eth_requestAccounts still succeeds, staging a wallet whose connect
	// prompt resolves but whose authorization cannot be verified.
	hideAccounts bool

	balanceOfFailures int // first N balanceOf calls fail
	balanceOfCalls    int

	txHash        string
	receiptStatus string
}

func newScript() *chainScript {
	return &chainScript{
		chainID:       targetChainHex,
		accounts:      []string{testAccount},
		tokenRaw:      usdt(10),
		allowance:     big.NewInt(0),
		nativeWei:     big.NewInt(1000000000000000000),
		txHash:        "0xtxhash",
		receiptStatus: "0x1",
	}
}

func (s *chainScript) handle(_ context.Context, method string, params []interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch method {
	case "eth_chainId":
		return s.chainID, nil
	case "eth_requestAccounts":
		return s.accounts, nil
	case "eth_accounts":
		if s.hideAccounts {
			return []string{}, nil
		}
		return s.accounts, nil
	case "wallet_switchEthereumChain":
		if s.switchErr != nil {
			return nil, s.switchErr
		}
		s.chainID = targetChainHex
		return nil, nil
	case "wallet_addEthereumChain":
		if s.addErr != nil {
			return nil, s.addErr
		}
		s.chainID = targetChainHex
		return nil, nil
	case "eth_getBalance":
		return "0x" + s.nativeWei.Text(16), nil
	case "eth_call":
		data := callData(params)
		switch {
		case strings.HasPrefix(data, selBalanceOf):
			s.balanceOfCalls++
			if s.balanceOfCalls <= s.balanceOfFailures {
				return nil, &wallet.ProviderError{Code: wallet.CodeInternalRPC, Message: "Internal JSON-RPC error"}
			}
			return encodeWord(s.tokenRaw), nil
		case strings.HasPrefix(data, selAllowance):
			return encodeWord(s.allowance), nil
		default:
			return encodeWord(big.NewInt(1)), nil
		}
	case "eth_sendTransaction":
		if s.sendTxErr != nil {
			return nil, s.sendTxErr
		}
		// Approving the full balance raises the allowance to match.
		s.allowance = new(big.Int).Set(s.tokenRaw)
		return s.txHash, nil
	case "eth_getTransactionReceipt":
		return map[string]string{
			"transactionHash": s.txHash,
			"blockNumber":     "0x100",
			"status":          s.receiptStatus,
		}, nil
	default:
		return nil, &wallet.ProviderError{Code: wallet.CodeUnsupportedMethod, Message: "unsupported: " + method}
	}
}

func encodeWord(v *big.Int) string {
	return fmt.Sprintf("0x%064x", v)
}

func callData(params []interface{}) string {
	raw, _ := json.Marshal(params[0])
	var msg struct {
		Data string `json:"data"`
	}
	_ = json.Unmarshal(raw, &msg)
	return msg.Data
}

// fastOptions keeps retry and poll delays out of test runtime.
func fastOptions() orchestrator.Options {
	return orchestrator.Options{
		BalanceRetries:      3,
		BalanceRetryDelay:   time.Millisecond,
		NoticeDuration:      time.Minute,
		ReceiptPollInterval: time.Millisecond,
	}
}

type fixture struct {
	script   *chainScript
	provider *wallettest.Provider
	store    store.RecordStore
	orch     *orchestrator.Orchestrator
}

func newFixture(t *testing.T, script *chainScript, recordStore store.RecordStore) *fixture {
	t.Helper()
	return newFixtureWithOptions(t, script, recordStore, fastOptions())
}

func newFixtureWithOptions(t *testing.T, script *chainScript, recordStore store.RecordStore, opts orchestrator.Options) *fixture {
	t.Helper()
	provider := wallettest.New(script.handle)
	connector := wallet.NewConnector(provider, assets.BSCMainnet, zap.NewNop())
	chainClient, err := chain.NewClient(provider, zap.NewNop())
	require.NoError(t, err)
	if recordStore == nil {
		recordStore = store.NewMemoryStore()
	}
	return &fixture{
		script:   script,
		provider: provider,
		store:    recordStore,
		orch:     orchestrator.New(connector, chainClient, recordStore, zap.NewNop(), opts),
	}
}

func flowCategory(t *testing.T, err error) orchestrator.Category {
	t.Helper()
	var fe *orchestrator.FlowError
	require.ErrorAs(t, err, &fe)
	return fe.Category
}

func TestCheckWithoutProvider(t *testing.T) {
	connector := wallet.NewConnector(nil, assets.BSCMainnet, zap.NewNop())
	chainClient, err := chain.NewClient(wallettest.New(nil), zap.NewNop())
	require.NoError(t, err)
	orch := orchestrator.New(connector, chainClient, store.NewMemoryStore(), zap.NewNop(), fastOptions())

	checkErr := orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryNoProvider, flowCategory(t, checkErr))

	snapshot := orch.Snapshot()
	assert.False(t, snapshot.WalletDetected)
	assert.Equal(t, orchestrator.PhaseSettled, snapshot.Phase)
	require.NotNil(t, snapshot.LastError)
	assert.Contains(t, snapshot.LastError.Message, "No wallet detected")
}

func TestCheckApprovesFullBalance(t *testing.T) {
	script := newScript()
	script.tokenRaw = usdt(10)
	script.allowance = usdt(5)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	record, err := f.store.Get(context.Background(), testAccount)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusSuccess, record.Status)
	assert.Equal(t, "10", record.ApprovalAmount)
	assert.Equal(t, "0xtxhash", record.TransactionHash)

	snapshot := f.orch.Snapshot()
	assert.Equal(t, orchestrator.PhaseSettled, snapshot.Phase)
	assert.True(t, snapshot.Approved)
	assert.Equal(t, "10", snapshot.TokenBalance)
	assert.Equal(t, "10", snapshot.Allowance)
	require.NotNil(t, snapshot.LastTx)
	assert.Equal(t, model.StatusSuccess, snapshot.LastTx.Status)
	assert.Equal(t, "0xtxhash", snapshot.LastTx.Hash)

	assert.Equal(t, 1, f.provider.Calls("eth_sendTransaction"))
}

func TestCheckSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	script := newScript()
	script.tokenRaw = usdt(10)
	script.allowance = usdt(10)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	assert.Zero(t, f.provider.Calls("eth_sendTransaction"))
	record, err := f.store.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Nil(t, record, "no record is written when no approval runs")

	snapshot := f.orch.Snapshot()
	assert.True(t, snapshot.Approved)
	assert.Equal(t, orchestrator.PhaseSettled, snapshot.Phase)
}

func TestCheckZeroBalanceShortCircuits(t *testing.T) {
	script := newScript()
	script.tokenRaw = big.NewInt(0)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	assert.Zero(t, f.provider.Calls("eth_sendTransaction"))
	record, err := f.store.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Nil(t, record)

	snapshot := f.orch.Snapshot()
	assert.Equal(t, "You have no USDT to approve", snapshot.Notice)
	assert.Equal(t, orchestrator.PhaseSettled, snapshot.Phase)
	assert.Nil(t, snapshot.LastError)
}

func TestCheckConnectUnverified(t *testing.T) {
	script := newScript()
	script.hideAccounts = true
	f := newFixture(t, script, nil)

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryNotVerified, flowCategory(t, err))

	var fe *orchestrator.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Wallet connection verification failed", fe.Message)

	// The flow stops before any balance read.
	assert.Zero(t, f.provider.Calls("eth_call"))
	assert.Nil(t, f.orch.Snapshot().Session)
}

func TestCheckReconnectUnverified(t *testing.T) {
	script := newScript()
	script.allowance = usdt(10)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))
	require.NotNil(t, f.orch.Snapshot().Session)

	// The wallet silently deauthorizes between checks; the reconnect
	// resolves but re-verification must still fail the flow.
	f.script.mu.Lock()
	f.script.hideAccounts = true
	f.script.mu.Unlock()

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryNotVerified, flowCategory(t, err))
}

func TestNoticeAutoDismisses(t *testing.T) {
	script := newScript()
	script.tokenRaw = big.NewInt(0)
	opts := fastOptions()
	opts.NoticeDuration = 20 * time.Millisecond
	f := newFixtureWithOptions(t, script, nil, opts)

	require.NoError(t, f.orch.Check(context.Background()))
	assert.Equal(t, "You have no USDT to approve", f.orch.Snapshot().Notice)

	require.Eventually(t, func() bool {
		return f.orch.Snapshot().Notice == ""
	}, time.Second, 5*time.Millisecond)
}

func TestCheckSwitchesFromWrongChain(t *testing.T) {
	script := newScript()
	script.chainID = "0x1"
	script.allowance = usdt(10)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	assert.Equal(t, 1, f.provider.Calls("wallet_switchEthereumChain"))
	assert.Zero(t, f.provider.Calls("wallet_addEthereumChain"))

	snapshot := f.orch.Snapshot()
	require.NotNil(t, snapshot.Session)
	assert.Equal(t, int64(56), snapshot.Session.ChainID)
}

func TestCheckAddsUnrecognizedChain(t *testing.T) {
	script := newScript()
	script.chainID = "0x1"
	script.allowance = usdt(10)
	script.switchErr = &wallet.ProviderError{Code: wallet.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	assert.Equal(t, 1, f.provider.Calls("wallet_addEthereumChain"))
}

func TestCheckChainSwitchRejected(t *testing.T) {
	script := newScript()
	script.chainID = "0x1"
	script.switchErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request"}
	f := newFixture(t, script, nil)

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryChainSwitchRejected, flowCategory(t, err))

	// The flow never reaches balance reads.
	assert.Zero(t, f.provider.Calls("eth_call"))
	assert.Zero(t, f.provider.Calls("eth_sendTransaction"))
}

func TestBalanceRetrySucceedsOnThirdAttempt(t *testing.T) {
	script := newScript()
	script.allowance = usdt(10)
	script.balanceOfFailures = 2
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))

	snapshot := f.orch.Snapshot()
	assert.Equal(t, "10", snapshot.TokenBalance)
	assert.True(t, snapshot.Approved)
}

func TestBalanceRetryExhausted(t *testing.T) {
	script := newScript()
	script.balanceOfFailures = 1000
	f := newFixture(t, script, nil)

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryBalanceRead, flowCategory(t, err))

	var fe *orchestrator.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Failed to check balance. Please try again.", fe.Message)

	// Exactly three read attempts, then give up.
	f.script.mu.Lock()
	attempts := f.script.balanceOfCalls
	f.script.mu.Unlock()
	assert.Equal(t, 3, attempts)

	assert.Zero(t, f.provider.Calls("eth_sendTransaction"))
}

func TestCheckTransactionRejected(t *testing.T) {
	script := newScript()
	script.sendTxErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request"}
	f := newFixture(t, script, nil)

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryTxRejected, flowCategory(t, err))

	record, getErr := f.store.Get(context.Background(), testAccount)
	require.NoError(t, getErr)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusFailed, record.Status)
	assert.Empty(t, record.TransactionHash)

	snapshot := f.orch.Snapshot()
	require.NotNil(t, snapshot.LastTx)
	assert.Equal(t, model.StatusFailed, snapshot.LastTx.Status)
	assert.Equal(t, "Transaction was rejected by user", snapshot.LastTx.Message)
}

func TestCheckTransactionReverted(t *testing.T) {
	script := newScript()
	script.receiptStatus = "0x0"
	f := newFixture(t, script, nil)

	err := f.orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryReverted, flowCategory(t, err))

	record, getErr := f.store.Get(context.Background(), testAccount)
	require.NoError(t, getErr)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusFailed, record.Status)
}

func TestSufficient(t *testing.T) {
	tests := []struct {
		name      string
		balance   string
		allowance string
		want      bool
	}{
		{"zero balance is always satisfied", "0", "0", true},
		{"allowance equals balance", "10", "10", true},
		{"allowance exceeds balance", "10", "11", true},
		{"allowance just below balance", "1", "0.999999", false},
		{"zero allowance", "10", "0", false},
		{"unparseable balance treated as zero", "garbage", "0", true},
		{"unparseable allowance treated as zero", "1", "garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orchestrator.Sufficient(tt.balance, tt.allowance))
		})
	}
}

func TestConcurrentCheckRejected(t *testing.T) {
	script := newScript()
	script.allowance = usdt(10)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	provider := wallettest.New(func(ctx context.Context, method string, params []interface{}) (interface{}, error) {
		if method == "eth_chainId" {
			once.Do(func() {
				close(started)
				<-release
			})
		}
		return script.handle(ctx, method, params)
	})

	connector := wallet.NewConnector(provider, assets.BSCMainnet, zap.NewNop())
	chainClient, err := chain.NewClient(provider, zap.NewNop())
	require.NoError(t, err)
	orch := orchestrator.New(connector, chainClient, store.NewMemoryStore(), zap.NewNop(), fastOptions())

	done := make(chan error, 1)
	go func() {
		done <- orch.Check(context.Background())
	}()

	<-started
	assert.True(t, orch.Snapshot().Busy)

	// A second trigger while the first is in flight is rejected, not queued.
	err = orch.Check(context.Background())
	assert.Equal(t, orchestrator.CategoryBusy, flowCategory(t, err))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, orch.Snapshot().Busy)
}

// failingStore wraps a RecordStore and fails every UpdateStatus call.
type failingStore struct {
	store.RecordStore
}

func (f *failingStore) UpdateStatus(ctx context.Context, walletAddress string, status model.ApprovalStatus, txHash string) (*model.ApprovalRecord, error) {
	return nil, errors.New("store unavailable")
}

func TestStoreFailureNeverMasksTransactionError(t *testing.T) {
	script := newScript()
	script.sendTxErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request"}
	f := newFixture(t, script, &failingStore{RecordStore: store.NewMemoryStore()})

	err := f.orch.Check(context.Background())

	// The surfaced error is the transaction rejection, not the store failure.
	assert.Equal(t, orchestrator.CategoryTxRejected, flowCategory(t, err))
}

func TestStoreFailureDoesNotBlockApproval(t *testing.T) {
	script := newScript()
	f := newFixture(t, script, &failingStore{RecordStore: store.NewMemoryStore()})

	// Pending write succeeds but the success update fails; the approval
	// itself still completes.
	require.NoError(t, f.orch.Check(context.Background()))
	assert.Equal(t, 1, f.provider.Calls("eth_sendTransaction"))

	snapshot := f.orch.Snapshot()
	require.NotNil(t, snapshot.LastTx)
	assert.Equal(t, model.StatusSuccess, snapshot.LastTx.Status)
}

func TestInvalidationClearsCachedState(t *testing.T) {
	script := newScript()
	script.allowance = usdt(10)
	f := newFixture(t, script, nil)

	require.NoError(t, f.orch.Check(context.Background()))
	require.True(t, f.orch.Snapshot().Approved)

	f.provider.Emit(wallet.EventChainChanged, "0x1")

	snapshot := f.orch.Snapshot()
	assert.Nil(t, snapshot.Session)
	assert.False(t, snapshot.Approved)
	assert.Equal(t, "0", snapshot.TokenBalance)
	assert.Equal(t, "0", snapshot.Allowance)
}
