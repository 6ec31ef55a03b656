package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nft-gate/backend/internal/config"
	"github.com/nft-gate/backend/internal/db"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/failover"
	apphttp "github.com/nft-gate/backend/internal/http"
	"github.com/nft-gate/backend/internal/http/handlers"
	"github.com/nft-gate/backend/internal/indexer"
	"github.com/nft-gate/backend/internal/logger"
	"github.com/nft-gate/backend/internal/repositories"
	"github.com/nft-gate/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

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

	// Database: the process starts even when postgres is down and serves
	// from memory until the watcher gets it back.
	pool, err := db.NewLazyPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("invalid postgres dsn", zap.Error(err))
	}
	defer pool.Close()

	pinger := &migratingPinger{pool: pool, dir: cfg.MigrationsDir, log: log}
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	pingErr := pinger.Ping(pingCtx)
	cancelPing()
	startInMemory := pingErr != nil
	if startInMemory {
		log.Warn("postgres unavailable at startup, serving from memory", zap.Error(pingErr))
	}

	// Redis is optional: without it there is no rate limiting and events
	// go to NATS or nowhere.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without it", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var nc *nats.Conn
	if cfg.EventsBackend == config.EventsBackendNATS {
		nc, err = db.NewNATSConn(cfg.NATSURL, log)
		if err != nil {
			log.Warn("nats unavailable, falling back", zap.Error(err))
			nc = nil
		} else {
			defer nc.Drain()
		}
	}

	publisher, subscriber := eventBus(nc, rdb, log)

	// Indexer
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
	txs := indexer.NewTransactionMatcher(client, indexer.TransactionConfig{Window: cfg.VerificationWindow}, log)

	// Storage
	store := failover.NewStore(repositories.NewPostgresUserStore(pool), repositories.NewMemoryUserStore(), failover.Config{
		StartInMemory: startInMemory,
		OnModeChange: func(from, to failover.Mode, reason string) {
			_ = publisher.Publish(context.Background(), events.StreamStorage, events.Event{
				Type: events.EventStorageModeChanged,
				Payload: map[string]any{
					"from":   from.String(),
					"to":     to.String(),
					"reason": reason,
				},
			})
		},
	}, log)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	botClient := services.NewBotClient(cfg.BotInternalURL, cfg.RoleID, log)
	verificationService := services.NewVerificationService(store, txs, holdings, auditRepo, publisher, services.VerificationConfig{
		Window:         cfg.VerificationWindow,
		RefreshBackoff: time.Second,
	}, log)
	roleService := services.NewRoleService(botClient, auditRepo, publisher, log)
	poller := services.NewPoller(verificationService, roleService, store, services.PollerConfig{
		Interval: cfg.PollInterval,
		Window:   cfg.VerificationWindow,
	}, log)
	auditor := services.NewRoleAuditor(botClient, verificationService, roleService, publisher, services.AuditConfig{
		Interval:    cfg.AuditInterval,
		Revoke:      cfg.RevokeOnAudit(),
		Concurrency: cfg.AuditConcurrency,
	}, log)
	watcher := failover.NewWatcher(store, pinger, cfg.StorageProbeInterval, log)

	if _, err := poller.Restore(ctx); err != nil {
		log.Warn("failed to restore pending verifications", zap.Error(err))
	}

	// Handlers
	verificationHandler := handlers.NewVerificationHandler(verificationService, poller, log)
	walletHandler := handlers.NewWalletHandler(verificationService, roleService, log)
	adminHandler := handlers.NewAdminHandler(verificationService, store, auditor, poller, log)
	var wsHub *handlers.WSHub
	if subscriber != nil {
		wsHub = handlers.NewWSHub(cfg.JWTSecret, subscriber, log)
		if err := wsHub.Start(ctx); err != nil {
			log.Warn("failed to start ws hub", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	apphttp.SetupRouter(app, cfg, log, rdb, verificationHandler, walletHandler, adminHandler, wsHub)

	if err := auditor.Start(ctx); err != nil {
		log.Fatal("failed to start role audit", zap.Error(err))
	}
	defer auditor.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.APIPort)
		log.Info("starting API server", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error("exited with error", zap.Error(err))
	}
}

func eventBus(nc *nats.Conn, rdb *redis.Client, log *zap.Logger) (events.Publisher, events.Subscriber) {
	switch {
	case nc != nil:
		return events.NewNATSPublisher(nc, log), events.NewNATSSubscriber(nc, log)
	case rdb != nil:
		return events.NewRedisPublisher(rdb, log), events.NewRedisSubscriber(rdb, log)
	default:
		log.Warn("no event bus configured, events are dropped")
		return events.NopPublisher{}, nil
	}
}

// migratingPinger applies pending migrations the first time postgres
// answers, so a database that was down at startup gets its schema before
// the watcher resyncs into it.
type migratingPinger struct {
	pool *pgxpool.Pool
	dir  string
	log  *zap.Logger

	mu       sync.Mutex
	migrated bool
}

func (p *migratingPinger) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.migrated {
		return nil
	}
	if err := db.RunMigrations(ctx, p.pool, p.dir, p.log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	p.migrated = true
	return nil
}
