package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/api"
	"payguard/apps/payguard/internal/assets"
	"payguard/apps/payguard/internal/auditor"
	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/config"
	"payguard/apps/payguard/internal/event_publisher"
	"payguard/apps/payguard/internal/repository"
	"payguard/apps/payguard/internal/wallet"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting payguard service")

	cfg := config.NewConfig()

	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to open database connection", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	if err := repository.InitMigration(db); err != nil {
		logger.Fatal("Failed to run database migration", zap.Error(err))
	}

	approvalRepository := repository.NewApprovalRepository(db, logger)

	eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger, approvalRepository)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer eventPublisher.Close()
	go eventPublisher.StartPublishing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Read-only RPC access for the allowance endpoint and the audit sweep.
	// The configured endpoint is tried first, then the public fallbacks.
	var chainClient *chain.Client
	rpcURLs := append([]string{cfg.RpcURL}, assets.BSCMainnet.FallbackRPCURLs...)
	provider, err := wallet.DialRPC(ctx, rpcURLs...)
	if err != nil {
		logger.Warn("No RPC endpoint reachable, on-chain reads disabled", zap.Error(err))
	} else {
		defer provider.Close()
		logger.Info("Connected to RPC endpoint", zap.String("url", provider.URL()))
		chainClient, err = chain.NewClient(provider, logger)
		if err != nil {
			logger.Fatal("Failed to create chain client", zap.Error(err))
		}

		allowanceAuditor := auditor.New(approvalRepository, chainClient, logger, cfg.AuditInterval)
		go allowanceAuditor.Start(ctx)
	}

	apiServer := api.NewServer(cfg.APIPort, approvalRepository, chainClient, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down payguard service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	logger.Info("Service stopped")
}
