package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livelocal/internal/infra/broker/kafka"
	"livelocal/internal/infra/config"
	"livelocal/internal/infra/db/mongo"
	ginserver "livelocal/internal/infra/http/gin"
	"livelocal/internal/infra/obs"
	"livelocal/internal/infra/realtime"
	"livelocal/internal/infra/security"
	"livelocal/internal/infra/storage/memory"
	"livelocal/internal/infra/storage/s3"
	"livelocal/internal/platform"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/functions"
	"livelocal/internal/platform/local"
	"livelocal/internal/remote"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	bus := feed.NewBus()
	defer bus.Close()

	tables, cleanup, readyCheck, err := buildTables(ctx, cfg, bus, logger)
	if err != nil {
		logger.Error("table store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	objects := buildObjectStore(cfg, logger)

	accounts := local.NewAccounts(tables, security.BcryptHasher{}, security.RandomTokenGenerator{}, cfg.SessionTTL, logger)

	var mail functions.MailPublisher
	var relay *kafka.Relay
	var mailWorker *kafka.MailWorker
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		relay = &kafka.Relay{
			Producer:    producer,
			Bus:         bus,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Source:      "livelocal",
			Logger:      logger,
		}
		relay.Start()
		defer relay.Stop()
		mail = relay

		mailWorker, err = kafka.NewMailWorker(cfg.KafkaBrokers, cfg.MailGroupID, cfg.KafkaTopicPrefix+kafka.MailTopic, nil, kafka.LogSender{Logger: logger}, logger)
		if err != nil {
			logger.Error("mail worker init failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := mailWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mail worker stopped", "error", err)
			}
		}()
		defer mailWorker.Close()
	} else {
		logger.Info("kafka disabled, change events stay in-process")
	}

	registry := functions.NewRegistry(logger)
	functions.RegisterBuiltins(registry, tables, cfg.CheckoutBaseURL, mail, logger)

	service := local.New(local.Options{
		Tables:    tables,
		Bus:       bus,
		Accounts:  accounts,
		Storage:   objects,
		Functions: registry,
		Logger:    logger,
	})

	hub := realtime.NewHub(bus, logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: readyCheck,
	}, ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Accounts: accounts, Validate: ginserver.NewValidator(), Logger: logger},
		Tables:         ginserver.TableHandler{Service: service, Logger: logger},
		Functions:      ginserver.FunctionHandler{Service: service, Logger: logger},
		Storage:        ginserver.StorageHandler{Storage: objects, Logger: logger},
		Realtime:       hub,
		AuthMiddleware: ginserver.AuthMiddleware{Accounts: accounts, Logger: logger}.Handle,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

func buildTables(ctx context.Context, cfg config.Config, bus *feed.Bus, logger *slog.Logger) (platform.TableStore, func(), func(context.Context) error, error) {
	switch cfg.StoreMode {
	case "mongo":
		client, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		store := mongo.NewTableStore(client, bus)
		if err := store.EnsureIndexes(ctx); err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
			return nil, nil, nil, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Error("mongo close failed", "error", err)
			}
		}
		return store, cleanup, client.Ping, nil
	default:
		return memory.NewTableStore(bus), func() {}, nil, nil
	}
}

func buildObjectStore(cfg config.Config, logger *slog.Logger) remote.Storage {
	if cfg.S3Endpoint == "" {
		return memory.NewObjectStore("mem://objects")
	}
	uploader, err := s3.New(s3.Options{
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicEndpoint,
		UseSSL:        cfg.S3UseSSL,
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("object storage unavailable, using in-memory store", "error", err)
		return memory.NewObjectStore("mem://objects")
	}
	return uploader
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
