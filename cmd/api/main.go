// Command api runs the mind-map synchronization server: the REST and
// WebSocket surfaces over the shared merge, rollback and sync engines.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/services"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/infrastructure/config"
	ddb "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/infrastructure/persistence/dynamodb"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/infrastructure/persistence/memory"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/http/rest"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/http/rest/handlers"
	ws "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/websocket"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/auth"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	repo, opLog, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	locks := appsync.NewLockRegistry()
	engine := appsync.NewMergeEngine(repo, opLog, services.NewGraphChecker(), locks, cfg.Limits, logger, metrics)
	rollback := appsync.NewRollbackEngine(repo, opLog, locks, logger, metrics)
	service := appsync.NewSyncService(repo, opLog, locks, logger)

	if cfg.LimitsFile != "" {
		watcher, err := config.NewLimitsWatcher(cfg.LimitsFile, logger)
		if err != nil {
			logger.Fatal("failed to watch limits file", zap.Error(err))
		}
		engine.SetLimits(watcher.Current())
		watcher.OnChange(engine.SetLimits)
		watcher.Start()
		defer watcher.Stop()
	}

	var jwtService *auth.JWTService
	if cfg.JWTSecret != "" {
		jwtService = auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, 24*time.Hour)
	}
	allowAnon := cfg.IsDevelopment() || jwtService == nil

	hub := ws.NewHub(logger, metrics)
	go hub.Run()
	defer hub.Stop()

	wsServer := ws.NewServer(hub, engine, service, jwtService, allowAnon, logger)
	broadcaster := ws.NewBroadcaster(hub, logger)

	handler := rest.NewRouter(rest.RouterConfig{
		MapHandler:       handlers.NewMapHandler(service, logger),
		OperationHandler: handlers.NewOperationHandler(engine, rollback, broadcaster, logger),
		WSServer:         wsServer,
		JWTService:       jwtService,
		AllowAnon:        allowAnon,
		EnableCORS:       cfg.EnableCORS,
		EnableMetrics:    cfg.EnableMetrics,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageDriver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.MapRepository, ports.OperationLog, error) {
	switch cfg.StorageDriver {
	case config.StorageDynamoDB:
		client, err := ddb.NewClient(ctx, ddb.ClientConfig{
			TableName: cfg.DynamoDBTable,
			Region:    cfg.AWSRegion,
			Endpoint:  cfg.DynamoDBEndpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return ddb.NewMapStore(client, cfg.DynamoDBTable, logger),
			ddb.NewOperationLog(client, cfg.DynamoDBTable, logger), nil
	default:
		return memory.NewMapStore(), memory.NewOperationLog(), nil
	}
}
