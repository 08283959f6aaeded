package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"post-insight-pipeline/internal/config"
	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/queue"
	"post-insight-pipeline/internal/search"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/internal/telemetry"
	"post-insight-pipeline/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	posts := store.NewMongoPostStore(mongoClient.Database(cfg.DBName).Collection(cfg.Collection))

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("metrics unavailable, continuing without them", "error", err.Error())
	}

	// Enrichment stages
	normalizer, err := services.NewNormalizer()
	if err != nil {
		log.Fatal("Failed to initialize normalizer:", err)
	}

	enricher := services.NewEnricher(
		posts,
		normalizer,
		services.NewDetector(),
		services.NewLexiconScorer(cfg.SentimentThreshold),
		services.NewVaderScorer(cfg.SentimentThreshold),
		services.NewConsensusEngine(),
		cfg.WorkerCount,
		cfg.MaxRetries,
		cfg.RetryBaseDelay,
		cfg.StoreTimeout,
		metrics,
	)

	searchIndex, err := search.NewElasticIndex(cfg)
	if err != nil {
		log.Fatal("Failed to create search client:", err)
	}

	syncer := services.NewIndexSyncer(
		posts,
		searchIndex,
		cfg.MaxRetries,
		cfg.RetryBaseDelay,
		cfg.StoreTimeout,
		metrics,
	)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Runs are serialized internally by their own worker pools; a
			// small task concurrency avoids overlapping full-batch runs.
			Concurrency: 2,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err.Error())
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(enricher, syncer)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskEnrichBatch, processor.EnrichBatch)
	mux.HandleFunc(queue.TaskSyncIndex, processor.SyncIndex)

	logger.Info("starting pipeline worker",
		"redis", redisOpt.Addr,
		"workers", cfg.WorkerCount,
	)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
