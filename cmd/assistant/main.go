// cmd/assistant/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"workshop-assistant/internal/assistant/engine"
	"workshop-assistant/internal/assistant/nlu"
	"workshop-assistant/internal/capabilities"
	"workshop-assistant/internal/common/auth"
	awsclient "workshop-assistant/internal/common/aws"
	"workshop-assistant/internal/common/camunda"
	"workshop-assistant/internal/common/config"
	"workshop-assistant/internal/common/database"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/common/observability"
	"workshop-assistant/internal/server"
	processmessage "workshop-assistant/internal/workers/conversation/process-message"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting workshop assistant...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Capabilities ---
	deps := capabilities.Dependencies{
		DB:     pg.DB,
		Redis:  rdb.Client,
		Search: esClient,
	}
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		if cfg.Notifications.Email.Enabled {
			deps.Email = awsclient.NewSESClient(awsCfg)
		}
		if cfg.Notifications.SMS.Enabled {
			deps.SMS = awsclient.NewSNSClient(awsCfg)
		}
		zapLog.Info("AWS notification clients initialized", zap.String("region", cfg.Notifications.AWS.Region))
	}

	registry, err := capabilities.Build(cfg, capabilities.NewHandlers(cfg, deps, log), log)
	if err != nil {
		zapLog.Fatal("capability registry build failed", zap.Error(err))
	}

	// --- Engine ---
	classifier, err := nlu.NewClassifier(cfg.NLU.Strategy, nlu.Options{SpecificThreshold: cfg.NLU.SpecificThreshold})
	if err != nil {
		zapLog.Fatal("unknown classifier strategy", zap.Error(err), zap.Strings("available", nlu.Strategies()))
	}

	sessions := engine.NewRedisSessionStore(rdb.Client, cfg.Engine.SessionHistory, cfg.Engine.SessionTTLDuration())
	recorder := engine.NewInteractionRecorder(pg, sessions, cfg.Engine.RecordTimeoutDuration(), log)

	assistant := engine.New(engine.Dependencies{
		Classifier:    classifier,
		Registry:      registry,
		Enricher:      engine.NewContextEnricher(sessions, engine.NewPostgresWorkshopStore(pg), log),
		Recorder:      recorder,
		Observability: obs,
	}, engine.OptionsFromConfig(cfg.NLU, cfg.Engine), log)

	// --- HTTP API ---
	srvDeps := server.Dependencies{
		Engine:       assistant,
		Capabilities: registry,
		Checks: map[string]server.Check{
			"postgres":      pg.Ping,
			"redis":         rdb.Ping,
			"elasticsearch": esClient.Ping,
		},
	}
	if cfg.Auth.Keycloak.Enabled {
		srvDeps.Tokens = auth.NewKeycloakClient(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
		)
		zapLog.Info("Keycloak token validation enabled", zap.String("realm", cfg.Auth.Keycloak.Realm))
	}

	// --- Zeebe worker ---
	var (
		zeebeClient *camunda.Client
		jobWorker   *camunda.Worker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.Dial(ctx, cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		handler := processmessage.NewHandler(processmessage.LoadConfig(), assistant, log)
		jobWorker = camunda.NewWorker(
			zeebeClient.Zeebe(),
			processmessage.TaskType,
			cfg.Camunda.MaxJobsActive,
			config.GetDuration(cfg.Camunda.Timeout),
			handler,
			log,
		)
		srvDeps.Checks["zeebe"] = zeebeClient.Ping
	}

	srv := server.New(&server.Config{
		Addr:           cfg.Server.Addr,
		ReadTimeout:    config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout:   config.GetDuration(cfg.Server.WriteTimeout),
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
	}, srvDeps, log)

	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping assistant...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	recorder.Wait()
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Workshop assistant stopped gracefully")
}
