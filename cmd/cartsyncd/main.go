package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/catalog"
	"github.com/dkoval/cartsync/internal/engine"
	"github.com/dkoval/cartsync/internal/events"
	"github.com/dkoval/cartsync/internal/httpapi"
	"github.com/dkoval/cartsync/internal/identity"
	"github.com/dkoval/cartsync/internal/localstore"
	"github.com/dkoval/cartsync/internal/remotestore"
)

type Config struct {
	HTTPPort         string
	MongoURI         string
	MongoDBName      string
	RedisAddr        string
	RedisPassword    string
	KafkaBrokers     []string
	CatalogBaseURL   string
	AutosaveInterval time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:      getEnv("MONGO_DB_NAME", "cartsyncdb"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		CatalogBaseURL:   getEnv("CATALOG_BASE_URL", "http://localhost:8081"),
		AutosaveInterval: getEnvDuration("AUTOSAVE_INTERVAL", engine.DefaultAutosaveInterval),
		IdleTimeout:      getEnvDuration("IDLE_TIMEOUT", engine.DefaultIdleTimeout),
		ShutdownTimeout:  10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid duration for %s: %q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Set up MongoDB connection
	mongoDB, err := remotestore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoDB.Client().Disconnect(ctx)
	logger.Info("Connected to MongoDB", zap.String("uri", cfg.MongoURI))

	mongoStore := remotestore.NewMongoStore(mongoDB)
	if err := mongoStore.CreateIndexes(ctx); err != nil {
		logger.Warn("Failed to create cart indexes", zap.Error(err))
	}
	remote := remotestore.WithBreaker(mongoStore, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	logger.Info("Redis ping succeeded")

	local := localstore.NewRedisStore(redisClient, logger)
	tokens := identity.NewTokenStore(redisClient)
	products := catalog.NewHTTPResolver(cfg.CatalogBaseURL)

	publisher := events.NewPublisher(logger, cfg.KafkaBrokers...)
	defer publisher.Close()

	registry := engine.NewRegistry(func(sessionToken string) *engine.Session {
		ident := identity.NewMemoryResolver(sessionToken)
		eng := engine.New(local, remote, ident, products, logger, engine.Options{
			AutosaveInterval: cfg.AutosaveInterval,
			IdleTimeout:      cfg.IdleTimeout,
			Events:           publisher,
		})
		return &engine.Session{Engine: eng, Identity: ident}
	})

	consumer := events.NewCheckoutConsumer(registry, local, logger, cfg.KafkaBrokers...)
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	go consumer.Run(consumerCtx)

	handler := httpapi.NewCartHandler(registry, tokens, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(httpapi.NewRouter(handler), "cartsync"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Cart sync service starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down cart sync service...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	cancelConsumer()
	consumer.Close()
	registry.Shutdown()

	logger.Info("Cart sync service stopped")
}
