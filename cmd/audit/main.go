package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nft-gate/backend/internal/config"
	"github.com/nft-gate/backend/internal/db"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/indexer"
	"github.com/nft-gate/backend/internal/logger"
	"github.com/nft-gate/backend/internal/repositories"
	"github.com/nft-gate/backend/internal/services"
	"go.uber.org/zap"
)

// One-shot role audit, for cron or manual runs outside the API process.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg.Validate(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log); err == nil {
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, log)
	} else {
		log.Warn("redis unavailable, audit events are dropped", zap.Error(err))
	}

	queue := indexer.NewQueue(cfg.IndexerMinInterval, 0, log)
	defer queue.Close()
	client := indexer.NewClient(cfg.IndexerBaseURL, cfg.IndexerAPIKey, cfg.IndexerChain, queue, log)
	holdings := indexer.NewHoldingsMatcher(client, indexer.HoldingsConfig{
		Contract: cfg.NFTContractAddress,
		Strategies: indexer.DefaultStrategies(indexer.StrategyConfig{
			Contract:     cfg.NFTContractAddress,
			Keywords:     cfg.NFTNameKeywords,
			PrefixMatch:  cfg.NFTPrefixMatch,
			PrefixLength: cfg.NFTPrefixLength,
		}),
	}, log)

	auditRepo := repositories.NewAuditRepo(pool)
	botClient := services.NewBotClient(cfg.BotInternalURL, cfg.RoleID, log)

	// Transactions are never checked during an audit.
	verificationService := services.NewVerificationService(repositories.NewPostgresUserStore(pool), nil, holdings, auditRepo, publisher, services.VerificationConfig{
		Window:         cfg.VerificationWindow,
		RefreshBackoff: time.Second,
	}, log)
	roleService := services.NewRoleService(botClient, auditRepo, publisher, log)
	auditor := services.NewRoleAuditor(botClient, verificationService, roleService, publisher, services.AuditConfig{
		Revoke:      cfg.RevokeOnAudit(),
		Concurrency: cfg.AuditConcurrency,
	}, log)

	report, err := auditor.RunOnce(ctx)
	if err != nil {
		log.Error("role audit failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("role audit finished",
		zap.String("mode", cfg.AuditMode),
		zap.Int("members", report.Members),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Int("findings", len(report.Findings)),
	)
}
