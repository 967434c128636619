// Package main starts the IoT device message router.
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibs-source/iot-router/internal/api"
	"github.com/ibs-source/iot-router/internal/command"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/downstream"
	"github.com/ibs-source/iot-router/internal/forward"
	"github.com/ibs-source/iot-router/internal/history"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/method"
	"github.com/ibs-source/iot-router/internal/mqtt"
	"github.com/ibs-source/iot-router/internal/redis"
	"github.com/ibs-source/iot-router/internal/router"
	"github.com/ibs-source/iot-router/internal/storage"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/ibs-source/iot-router/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsPrefix = "iot_router"

// services holds everything closed on shutdown.
type services struct {
	db       *sql.DB
	redis    *redis.Client
	mqttPool *mqtt.Pool
	router   *router.Router
}

func run() int {
	logger := log.New()
	logger.Info("Starting IoT router")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return 1
	}
	defer closeServices(svc, logger)

	return runMainLoop(svc.router, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, shadow prefix %s, TTL %s", cfg.Redis.Address, cfg.Shadow.KeyPrefix, cfg.Shadow.TTL)
	logger.Info("MQTT: %s, subscribe %s, %d publish connections", cfg.MQTT.Broker, cfg.MQTT.SubscribeTopic, cfg.MQTT.PoolSize)
	logger.Info("Pipeline: workers=%d queue=%d", cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	logger.Info("HTTP API: %s", cfg.HTTP.Address)
	if len(cfg.Kafka.Brokers) > 0 {
		logger.Info("Kafka: %v, topic %s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	return cfg, nil
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	svc := &services{}
	fail := func(format string, err error) (*services, error) {
		logger.Error(format, err)
		closeServices(svc, logger)
		return nil, err
	}

	registry, err := topic.NewRegistry(topic.Catalog()...)
	if err != nil {
		return fail("Invalid topic catalog: %v", err)
	}

	db, err := history.Open(context.Background(), cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns, cfg.Postgres.PingTimeout)
	if err != nil {
		return fail("Failed to connect to PostgreSQL: %v", err)
	}
	svc.db = db
	logger.Info("Connected to PostgreSQL")

	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		return fail("Failed to create Redis client: %v", err)
	}
	svc.redis = redisClient
	logger.Info("Connected to Redis")

	mqttPool, err := mqtt.NewPool(&cfg.MQTT, logger)
	if err != nil {
		return fail("Failed to create MQTT pool: %v", err)
	}
	svc.mqttPool = mqttPool
	logger.Info("Connected to MQTT broker with %d connections", mqttPool.Size())

	dir := redis.NewDeviceCache(redisClient, directory.NewSQL(db), &cfg.Shadow)
	shadow := redis.NewShadowCache(redisClient, &cfg.Shadow)
	normalizer := method.New(logger)

	pool := worker.NewTaskPool(
		cfg.Pipeline.Workers,
		cfg.Pipeline.QueueSize,
		cfg.Pipeline.TaskTimeout,
		worker.WithMetrics[worker.Task](prometheus.DefaultRegisterer, metricsPrefix),
	)

	sender := downstream.NewSender(
		mqttPool,
		registry,
		normalizer,
		dir,
		downstream.NewBrokerAPI(&cfg.BrokerAPI, logger),
		logger,
	)
	dispatcher := command.NewDispatcher(registry, dir, sender, pool, cfg.Dispatcher.SendTimeout, logger)

	apiServer, err := api.New(dispatcher, sender, shadow, prometheus.DefaultGatherer, logger)
	if err != nil {
		return fail("Failed to build HTTP API: %v", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = cfg.MQTT.ClientID
	}

	r, err := router.New(cfg, router.Deps{
		Registry:   registry,
		Directory:  dir,
		Normalizer: normalizer,
		Writer:     storage.NewWriter(history.New(db, logger), shadow, dir, logger),
		Forwarder:  forward.New(&cfg.Kafka, logger),
		Transport:  mqttPool,
		Pool:       pool,
		Handler:    apiServer.Handler(),
		ServerID:   hostname,
	}, logger)
	if err != nil {
		return fail("Failed to build router: %v", err)
	}
	svc.router = r
	return svc, nil
}

func closeServices(svc *services, logger *log.Logger) {
	if svc.router != nil {
		if err := svc.router.Close(); err != nil {
			logger.Error("Error closing router: %v", err)
		}
	}
	if svc.mqttPool != nil {
		if err := svc.mqttPool.Close(); err != nil {
			logger.Error("Error closing MQTT pool: %v", err)
		}
	}
	if svc.redis != nil {
		if err := svc.redis.Close(); err != nil {
			logger.Error("Error closing Redis client: %v", err)
		}
	}
	if svc.db != nil {
		if err := svc.db.Close(); err != nil {
			logger.Error("Error closing PostgreSQL: %v", err)
		}
	}
}

func runMainLoop(r *router.Router, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run(ctx)
	}()

	logger.Info("Router started")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
		cancel()
		return handleGracefulShutdown(errChan, logger)

	case err := <-errChan:
		logger.Error("Router error: %v", err)
		return 1
	}
}

// handleGracefulShutdown waits for Run to return. Run itself bounds the
// HTTP shutdown and the pool drain by the configured shutdown timeout.
func handleGracefulShutdown(errChan <-chan error, logger *log.Logger) int {
	err := <-errChan
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Shutdown error: %v", err)
		return 1
	}
	logger.Info("Graceful shutdown completed")
	logger.Info("Router stopped")
	return 0
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
