package auditor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/model"
	"payguard/apps/payguard/internal/orchestrator"
	"payguard/apps/payguard/internal/store"
)

// Auditor periodically re-reads the on-chain allowance behind each settled
// approval record and logs drift (an approval later lowered or spent down).
// Visibility only: terminal record statuses are never rewritten.
type Auditor struct {
	store    store.RecordStore
	chain    *chain.Client
	logger   *zap.Logger
	interval time.Duration
}

func New(recordStore store.RecordStore, chainClient *chain.Client, logger *zap.Logger, interval time.Duration) *Auditor {
	return &Auditor{
		store:    recordStore,
		chain:    chainClient,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the audit loop until ctx is cancelled.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *Auditor) runOnce(ctx context.Context) {
	// A dead contract call path would turn every allowance read into a
	// misleading drift warning, so probe it once and sit the sweep out.
	if !a.chain.VerifyPaymentContract(ctx) {
		a.logger.Warn("payment contract probe failed, skipping audit sweep")
		return
	}

	records, err := a.store.ListAll(ctx)
	if err != nil {
		a.logger.Error("audit sweep failed to list approval records", zap.Error(err))
		return
	}

	drifted := 0
	for _, record := range records {
		if record.Status != model.StatusSuccess {
			continue
		}
		allowance, err := a.chain.Allowance(ctx, record.WalletAddress)
		if err != nil {
			a.logger.Warn("audit allowance read failed",
				zap.String("wallet_address", record.WalletAddress),
				zap.Error(err))
			continue
		}
		if !orchestrator.Sufficient(record.ApprovalAmount, allowance) {
			drifted++
			a.logger.Warn("on-chain allowance drifted below approved amount",
				zap.String("wallet_address", record.WalletAddress),
				zap.String("approved_amount", record.ApprovalAmount),
				zap.String("current_allowance", allowance),
				zap.String("tx_hash", record.TransactionHash))
		}
	}

	a.logger.Info("audit sweep complete",
		zap.Int("records", len(records)),
		zap.Int("drifted", drifted))
}
