package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

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
	httphandler "github.com/leadbridge/bridge/internal/http/handler"
	"github.com/leadbridge/bridge/internal/http/middleware"
	httprouter "github.com/leadbridge/bridge/internal/http/router"
	"github.com/leadbridge/bridge/internal/model"
	"github.com/leadbridge/bridge/internal/processor"
	"github.com/leadbridge/bridge/internal/queue"
	"github.com/leadbridge/bridge/internal/service"
	"github.com/leadbridge/bridge/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "bridge server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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
	services := service.NewServices(stores, configCache)

	// The server only enqueues; the full pipeline wiring exists so admin
	// endpoints and future synchronous processing share one construction.
	configService := services.Config()
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

	statsSources, err := statsConsumers(redisClient, cfg.Queue)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create stats consumers", "error", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, proc, statsSources)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// statsConsumers builds read-only consumers for the admin stats endpoint.
// Creating them also ensures the consumer groups exist before any worker
// starts.
func statsConsumers(client *redis.Client, qcfg config.QueueConfig) ([]httphandler.StatsSource, error) {
	var sources []httphandler.StatsSource
	for _, stream := range []string{qcfg.AmoStream, qcfg.LPTrackerStream} {
		consumer, err := queue.NewRedisConsumer(client, queue.ConsumerConfig{
			Stream:      stream,
			Group:       qcfg.Group,
			Consumer:    qcfg.Consumer,
			DLQStream:   qcfg.DLQ(stream),
			BatchSize:   1,
			Block:       qcfg.Block,
			MaxAttempts: qcfg.MaxAttempts,
			BackoffBase: qcfg.BackoffBase,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, consumer)
	}
	return sources, nil
}

func setupRouter(cfg config.Config, services *service.Services, proc *processor.Processor, statsSources []httphandler.StatsSource) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, proc, statsSources, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
	})

	return router
}

const banner = `
██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗
██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝
██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗
██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝
██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗
╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝
`
