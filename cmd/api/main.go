package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wms-platform/nursery-fulfillment/internal/application"
	"github.com/wms-platform/nursery-fulfillment/internal/infrastructure/events"
	mongoRepo "github.com/wms-platform/nursery-fulfillment/internal/infrastructure/mongodb"
	"github.com/wms-platform/nursery-fulfillment/internal/infrastructure/reference"
	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
	"github.com/wms-platform/nursery-fulfillment/pkg/kafka"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
	"github.com/wms-platform/nursery-fulfillment/pkg/middleware"
	"github.com/wms-platform/nursery-fulfillment/pkg/mongodb"
	"github.com/wms-platform/nursery-fulfillment/pkg/outbox"
	outboxMongo "github.com/wms-platform/nursery-fulfillment/pkg/outbox/mongodb"
	"github.com/wms-platform/nursery-fulfillment/pkg/resilience"
	"github.com/wms-platform/nursery-fulfillment/pkg/tracing"
)

const serviceName = "nursery-fulfillment"

func main() {
	// a missing .env is fine; the process environment wins
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting nursery-fulfillment API")

	config := loadConfig()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = config.Environment
	tracingConfig.Enabled = config.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := mongoClient.Database()
	inst := mongodb.NewInstrumentation(config.MongoDB.Database, m, logger)

	outboxRepo := outboxMongo.NewOutboxRepository(db)
	outboxWriter := mongoRepo.NewOutboxWriter(outboxRepo, cloudevents.NewEventFactory(cloudevents.SourceFulfillment))

	batchRepo := mongoRepo.NewBatchRepository(db, inst)
	orderRepo := mongoRepo.NewOrderRepository(db, outboxWriter, inst)
	pickListRepo := mongoRepo.NewPickListRepository(db, outboxWriter, inst)
	packingRepo := mongoRepo.NewPackingRepository(db, outboxWriter, inst)
	runRepo := mongoRepo.NewDeliveryRunRepository(db, outboxWriter, inst)
	referenceRepo := mongoRepo.NewReferenceRepository(db, inst)
	transactor := mongoRepo.NewTransactor(mongoClient.Client())

	indexers := []interface {
		EnsureIndexes(ctx context.Context) error
	}{outboxRepo, batchRepo, orderRepo, pickListRepo, packingRepo, runRepo, referenceRepo}
	for _, ix := range indexers {
		if err := ix.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Error("Failed to create indexes")
			os.Exit(1)
		}
	}
	logger.Info("MongoDB indexes ensured")

	if config.ReferenceSeedFile != "" {
		seed, err := reference.LoadSeedFile(config.ReferenceSeedFile)
		if err != nil {
			logger.WithError(err).Warn("Reference seed file not loaded", "path", config.ReferenceSeedFile)
		} else if err := reference.Seed(ctx, referenceRepo, seed); err != nil {
			logger.WithError(err).Error("Failed to seed reference data")
			os.Exit(1)
		} else {
			logger.Info("Reference data seeded",
				"capacityConfigs", len(seed.CapacityConfigs),
				"hauliers", len(seed.Hauliers),
				"vehicles", len(seed.Vehicles),
			)
		}
	}

	referenceBreaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("reference-data"), logger, m)
	referenceProvider := reference.NewProvider(referenceRepo, referenceBreaker, logger, config.ReferenceCacheTTL)

	kafkaProducer := kafka.NewProducer(config.Kafka, m, logger)
	defer kafkaProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	outboxPublisher := outbox.NewPublisher(outboxRepo, kafkaProducer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	orderService := application.NewOrderService(orderRepo, referenceProvider, transactor, logger, m)
	pickingService := application.NewPickingService(orderRepo, pickListRepo, batchRepo, transactor, logger, m)
	packingService := application.NewPackingService(orderRepo, packingRepo, logger)
	dispatchService := application.NewDispatchService(orderRepo, pickListRepo, packingRepo, runRepo, referenceProvider, transactor, logger, m)

	if config.EstimateRetryConsumer {
		validator, err := events.NewPayloadValidator()
		if err != nil {
			logger.WithError(err).Error("Failed to compile event schemas")
			os.Exit(1)
		}
		consumer := kafka.NewConsumer(config.Kafka, logger, m)
		events.NewEstimateRetryHandler(orderService, validator, logger).Register(consumer)
		consumer.Start(ctx)
		defer consumer.Close()
		logger.Info("Estimate retry consumer started", "group", config.Kafka.ConsumerGroup)
	}

	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.Metrics = m
	middlewareConfig.AllowedOrigins = config.AllowedOrigins
	middlewareConfig.EnableTracing = config.TracingEnabled
	middleware.Setup(router, middlewareConfig)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, mongoClient.HealthCheck))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	registerRoutes(router, apiServices{
		orders:   orderService,
		picking:  pickingService,
		packing:  packingService,
		dispatch: dispatchService,
	}, logger)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	stop()

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr            string
	Environment           string
	TracingEnabled        bool
	OTLPEndpoint          string
	AllowedOrigins        []string
	ReferenceSeedFile     string
	ReferenceCacheTTL     time.Duration
	EstimateRetryConsumer bool
	MongoDB               *mongodb.Config
	Kafka                 *kafka.Config
}

func loadConfig() *Config {
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", serviceName)
	kafkaConfig.ClientID = serviceName

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)

	return &Config{
		ServerAddr:            getEnv("SERVER_ADDR", ":8010"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		TracingEnabled:        getEnv("TRACING_ENABLED", "false") == "true",
		OTLPEndpoint:          getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		AllowedOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReferenceSeedFile:     getEnv("REFERENCE_SEED_FILE", "config/reference-data.yaml"),
		ReferenceCacheTTL:     getDuration("REFERENCE_CACHE_TTL", reference.DefaultTTL),
		EstimateRetryConsumer: getEnv("ESTIMATE_RETRY_CONSUMER_ENABLED", "true") == "true",
		MongoDB:               mongoConfig,
		Kafka:                 kafkaConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
