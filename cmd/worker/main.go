package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadbridge/bridge/common/id"
	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/common/otel"
	"github.com/leadbridge/bridge/core/config"
	"github.com/leadbridge/bridge/core/db"
	"github.com/leadbridge/bridge/internal/cache"
	"github.com/leadbridge/bridge/internal/crm"
	"github.com/leadbridge/bridge/internal/dedup"
	"github.com/leadbridge/bridge/internal/dispatch"
	"github.com/leadbridge/bridge/internal/enrich"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/processor"
	"github.com/leadbridge/bridge/internal/queue"
	"github.com/leadbridge/bridge/internal/service"
	"github.com/leadbridge/bridge/internal/store"
	"github.com/leadbridge/bridge/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "bridge worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Queue.Group,
		"consumer_name", cfg.Queue.Consumer)

	// Different node ID than the server so snowflakes never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	producer := queue.NewRedisProducer(redisClient, map[model.Source]string{
		model.SourceAmoCRM:    cfg.Queue.AmoStream,
		model.SourceLPTracker: cfg.Queue.LPTrackerStream,
	}, slog.Default())

	stores := store.NewStores(database.Pool())
	configCache := cache.New(redisClient, cache.Config{
		Namespace:   cfg.Cache.Namespace,
		RulesTTL:    cfg.Cache.RulesTTL,
		SettingsTTL: cfg.Cache.SettingsTTL,
		MetadataTTL: cfg.Cache.MetadataTTL,
	})
	configService := service.NewServices(stores, configCache).Config()

	amoClient := crm.NewAmoClient(crm.AmoConfig{
		Domain:         cfg.CRM.AmoDomain,
		RequestTimeout: cfg.CRM.RequestTimeout,
	}, configService)
	lpClient := crm.NewLPClient(crm.LPConfig{
		BaseURL:        cfg.CRM.LPTrackerBaseURL,
		RequestTimeout: cfg.CRM.RequestTimeout,
	}, configService)

	proc := processor.New(
		producer,
		configService,
		stores.Settings(),
		enrich.New(amoClient),
		dedup.NewStore(redisClient, dedup.Config{
			Namespace: cfg.Dedup.Namespace,
			TTL:       cfg.Dedup.TTL,
		}),
		dispatch.New(amoClient, lpClient),
		stores.Rules(),
	)

	// One pool + reclaimer per webhook stream.
	var workers []*worker.Worker
	var reclaimers []*worker.RedisReclaimer
	errCh := make(chan error, 4)

	for _, stream := range []string{cfg.Queue.AmoStream, cfg.Queue.LPTrackerStream} {
		consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
			Stream:      stream,
			Group:       cfg.Queue.Group,
			Consumer:    cfg.Queue.Consumer,
			DLQStream:   cfg.Queue.DLQ(stream),
			BatchSize:   1,
			Block:       cfg.Queue.Block,
			MaxAttempts: cfg.Queue.MaxAttempts,
			BackoffBase: cfg.Queue.BackoffBase,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create consumer", "error", err, "stream", stream)
			os.Exit(1)
		}

		w := worker.New(consumer, proc, worker.Config{
			Concurrency: cfg.Queue.Concurrency,
			MaxAttempts: cfg.Queue.MaxAttempts,
		})
		workers = append(workers, w)

		reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
			Stream:    stream,
			Group:     cfg.Queue.Group,
			Consumer:  cfg.Queue.Consumer + "-reclaimer",
			MinIdle:   cfg.Queue.ReclaimMinIdle,
			Interval:  cfg.Queue.ReclaimInterval,
			BatchSize: 10,
		}, consumer, w.ProcessMessage)
		reclaimers = append(reclaimers, reclaimer)

		go func(w *worker.Worker) {
			errCh <- w.Run(ctx)
		}(w)
		go func(r *worker.RedisReclaimer) {
			r.Run(ctx)
			errCh <- nil
		}(reclaimer)
	}

	slog.InfoContext(ctx, "worker initialized and running",
		"streams", []string{cfg.Queue.AmoStream, cfg.Queue.LPTrackerStream},
		"concurrency", cfg.Queue.Concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimers first (quick), then drain the pools.
	for _, r := range reclaimers {
		r.Stop()
	}
	for _, w := range workers {
		w.Stop()
	}

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗    ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗      ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝      ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗    ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝     ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
