package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/nft-gate/backend/internal/config"
	"github.com/nft-gate/backend/internal/db"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/logger"
	"github.com/nft-gate/backend/internal/services"
	"go.uber.org/zap"
)

// Bot notify bridge: forwards member-facing events to the bot as direct
// messages. Events without a user_id and text are ignored.

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

	var subscriber events.Subscriber
	if cfg.EventsBackend == config.EventsBackendNATS {
		nc, err := db.NewNATSConn(cfg.NATSURL, log)
		if err != nil {
			log.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer nc.Drain()
		subscriber = events.NewNATSSubscriber(nc, log)
	} else {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	bot := services.NewBotClient(cfg.BotInternalURL, cfg.RoleID, log)

	forward := func(event events.Event) {
		userID, _ := event.Payload["user_id"].(string)
		text, _ := event.Payload["text"].(string)
		if userID == "" || text == "" {
			return
		}
		log.Info("forwarding event to bot", zap.String("type", event.Type), zap.String("user_id", userID))

		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := bot.SendNotification(sendCtx, userID, text); err != nil {
			log.Warn("failed to forward notification", zap.String("user_id", userID), zap.Error(err))
		}
	}

	for _, stream := range []string{events.StreamVerification, events.StreamRoles} {
		if err := subscriber.Subscribe(ctx, stream, forward); err != nil {
			log.Fatal("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}

	log.Info("bot-notify-bridge started")
	<-ctx.Done()
	log.Info("shutting down bot-notify-bridge")
}
