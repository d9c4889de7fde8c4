// Package main is the entry point for the OrderBus order pipeline service.
// It initializes all components and starts the HTTP server and delivery loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"orderbus-go/internal/api"
	"orderbus-go/internal/banner"
	"orderbus-go/internal/config"
	"orderbus-go/internal/harness"
	"orderbus-go/internal/notification"
	"orderbus-go/internal/processor"
	"orderbus-go/internal/publisher"
	"orderbus-go/internal/queue"
	memoryqueue "orderbus-go/internal/queue/memory"
	redisqueue "orderbus-go/internal/queue/redis"
	"orderbus-go/internal/store"
	memorystor "orderbus-go/internal/store/memory"
	postgresstor "orderbus-go/internal/store/postgres"
	redisstor "orderbus-go/internal/store/redis"
	"orderbus-go/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file (empty: environment only)")
	seed := flag.Int("seed", 0, "publish N sample orders at startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := initLogger(&cfg.Logger)
	banner.Fprint(os.Stdout, string(cfg.Storage.Mode), cfg.Queue.Name)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"queue", cfg.Queue.Name,
	)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if *seed > 0 {
		orders, err := publisher.SampleOrders(*seed)
		if err == nil {
			var n int
			n, err = deps.publisher.PublishAll(ctx, orders)
			logger.Info("seeded sample orders", "published", n)
		}
		if err != nil {
			logger.Error("failed to seed sample orders", "error", err)
		}
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := deps.loop.Run(ctx); err != nil {
			logger.Error("worker loop error", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("OrderBus started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// In-flight deliveries settle before the queue client is closed.
	<-workerDone

	logger.Info("OrderBus stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server    *api.Server
	publisher *publisher.Service
	loop      *worker.Loop
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		client       queue.Client
		ledger       store.ProcessedStore
		repo         store.OrderRepository
		notifier     notification.Notifier
		cleanupFuncs []func()
	)

	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	queueOpts := queue.Options{
		Name:             cfg.Queue.Name,
		LockDuration:     cfg.Queue.LockDuration,
		MaxDeliveryCount: cfg.Queue.MaxDeliveryCount,
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")

		memQueue := memoryqueue.NewQueue(queueOpts)
		client = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })

		memLedger := memorystor.NewProcessedStore(cfg.Processor.ProcessedTTL)
		ledger = memLedger
		cleanupFuncs = append(cleanupFuncs, func() { _ = memLedger.Close() })

		repo = memorystor.NewOrderRepository()
		notifier = notification.NewStubNotifier(logger)
	} else {
		logger.Info("initializing production storage (Redis, PostgreSQL, Kafka)")

		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")
		repo = postgresstor.NewOrderRepository(db)

		redisQueue, err := redisqueue.Dial(ctx, &cfg.Redis, queueOpts)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		client = redisQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisQueue.Close() })

		redisLedger, err := redisstor.NewProcessedStore(&cfg.Redis, cfg.Processor.ProcessedTTL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		ledger = redisLedger
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisLedger.Close() })

		kafkaNotifier := notification.NewKafkaNotifier(&cfg.Kafka, logger)
		notifier = kafkaNotifier
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaNotifier.Close() })
	}

	policy, err := processor.PolicyFromConfig(cfg.Processor.DiscountPercent)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	publisherService := publisher.NewService(client, cfg.Queue.Name, logger)

	processorService := processor.NewService(
		processor.NewRepositorySink(repo, notifier, logger),
		ledger,
		logger,
		processor.WithDiscountPolicy(policy),
		processor.WithCacheSize(cfg.Processor.DedupCacheSize),
	)

	loop := worker.NewLoop(client, processorService, cfg.Queue.Name, cfg.Worker, logger)

	inspector := harness.NewInspector(client, cfg.Queue.Name, logger)

	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		OrderHandler: api.NewOrderHandler(publisherService, repo, logger),
		QueueHandler: api.NewQueueHandler(inspector, logger),
	})

	return &dependencies{
		server:    server,
		publisher: publisherService,
		loop:      loop,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
