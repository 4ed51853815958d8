package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/docuchat-backend/internal/config"
	"github.com/yungbote/docuchat-backend/internal/db"
	"github.com/yungbote/docuchat-backend/internal/handlers"
	"github.com/yungbote/docuchat-backend/internal/ingest"
	"github.com/yungbote/docuchat-backend/internal/jobs"
	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/server"
	"github.com/yungbote/docuchat-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional queue wake channel)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("Redis unreachable, workers fall back to polling", "addr", cfg.Redis.Addr, "error", err)
			rdb = nil
		}
	}

	// Repos
	log.Info("Setting up Repos from main...")
	chatRepo := repos.NewChatRepo(thePG, log)
	messageRepo := repos.NewMessageRepo(thePG, log)
	docRepo := repos.NewDocRepo(thePG, log)
	ingestJobRepo := repos.NewIngestJobRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(cfg.Storage, log)
	if err != nil {
		log.Fatal("Could not init BucketService", "error", err)
	}
	openaiClient, err := services.NewOpenAIClient(cfg.OpenAI, log)
	if err != nil {
		log.Fatal("Could not init OpenAIClient", "error", err)
	}
	vectorStore, err := services.NewQdrantStore(cfg.Qdrant, log)
	if err != nil {
		log.Fatal("Could not init QdrantStore", "error", err)
	}

	queue := jobs.NewQueue(thePG, log, ingestJobRepo, rdb)
	chatService := services.NewChatService(thePG, log, chatRepo, docRepo, bucketService, queue)
	responder := services.NewResponder(log, openaiClient, vectorStore, messageRepo, cfg.Retrieval.TopK, cfg.History.Limit)

	// Worker pool
	registry := jobs.NewRegistry()
	if err := registry.Register(ingest.NewPDFHandler(log, bucketService, openaiClient, vectorStore, cfg.Ingest)); err != nil {
		log.Fatal("Could not register ingest handler", "error", err)
	}
	worker := jobs.NewWorker(thePG, log, ingestJobRepo, registry, rdb, jobs.WorkerConfig{
		Concurrency:  cfg.Ingest.Concurrency,
		MaxAttempts:  cfg.Ingest.MaxAttempts,
		RetryDelay:   time.Duration(cfg.Ingest.RetryDelaySeconds) * time.Second,
		StaleRunning: time.Duration(cfg.Ingest.StaleRunningSeconds) * time.Second,
	})
	worker.Start(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := handlers.NewIngestHandler(log, chatService, cfg.Ingest.MaxUploadBytes)
	chatHandler := handlers.NewChatHandler(log, chatService)
	messageHandler := handlers.NewMessageHandler(log, chatService, responder)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IngestHandler:  ingestHandler,
		ChatHandler:    chatHandler,
		MessageHandler: messageHandler,
	})

	fmt.Printf("Server listening on :%s\n", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
