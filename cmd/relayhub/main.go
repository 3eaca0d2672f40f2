// Command relayhub runs the notification trigger service: the HTTP API,
// the job runner and the configured storage and queue backends.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/api"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/provider"
	"github.com/kart-io/relayhub/pkg/queue"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/trigger"
	"github.com/kart-io/relayhub/pkg/workflow"
)

func main() {
	cfg, err := config.New(config.FromEnv())
	if err != nil {
		os.Stderr.WriteString("relayhub: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := cfg.GetLogger()

	telemetry, err := observability.NewTelemetryProvider(&cfg.Telemetry)
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	stores, cleanup, err := buildStores(cfg)
	if err != nil {
		log.Error("store init failed", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	q, err := buildQueue(cfg, log)
	if err != nil {
		log.Error("queue init failed", "backend", cfg.Queue.Backend, "error", err)
		os.Exit(1)
	}
	defer q.Close()

	providers := provider.NewRegistry(log)
	for _, ch := range []notification.Channel{
		notification.ChannelEmail,
		notification.ChannelSMS,
		notification.ChannelPush,
		notification.ChannelChat,
	} {
		providers.Register(ch, provider.NewNoopSender(ch.String()))
	}

	workflows := workflow.NewRegistry()

	pipeline := trigger.NewPipeline(workflows, stores, q, log,
		trigger.WithTopicNotifications(cfg.Features.TopicNotificationsEnabled),
		trigger.WithTelemetry(telemetry),
	)

	handler := trigger.NewJobHandler(stores, providers, log, telemetry)
	runner := queue.NewRunner(q, handler, cfg.Queue.Workers, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Start(ctx); err != nil {
		log.Error("runner start failed", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, pipeline, stores, workflows, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		log.Error("http server stopped", "error", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}

	if err := runner.Stop(); err != nil {
		log.Warn("runner stop", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn("telemetry shutdown", "error", err)
	}
}

func buildStores(cfg *config.Config) (*store.Stores, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := store.OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewSQLiteStores(db), func() { db.Close() }, nil
	default:
		return store.NewMemoryStores(), func() {}, nil
	}
}

func buildQueue(cfg *config.Config, log logger.Logger) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case config.QueueRedis:
		return queue.NewRedisQueue(&queue.RedisOptions{
			Addr:      cfg.Queue.Redis.Addr,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			KeyPrefix: cfg.Queue.Redis.KeyPrefix,
		}, cfg.Queue.Capacity, log)
	default:
		return queue.NewMemoryQueue(cfg.Queue.Capacity, log), nil
	}
}
