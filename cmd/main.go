package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"post-insight-pipeline/internal/config"
	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/queue"
	"post-insight-pipeline/internal/schedule"
	"post-insight-pipeline/internal/search"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/routes"
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

	searchIndex, err := search.NewElasticIndex(cfg)
	if err != nil {
		log.Fatal("Failed to create search client:", err)
	}

	stats := services.NewStatsService(posts, searchIndex)

	// Asynq client for enqueueing pipeline runs
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupPipelineRoutes(router, cfg, stats, asynqClient)

	// Recurring pipeline runs: enrich first, index sync picks up the output
	// on the next tick.
	scheduler := schedule.NewScheduler()
	err = scheduler.ScheduleInterval("enrich-batch", cfg.ScheduleInterval, func() error {
		task, err := queue.NewEnrichTask(cfg.BatchSize, false)
		if err != nil {
			return err
		}
		_, err = asynqClient.Enqueue(task)
		return err
	})
	if err != nil {
		log.Fatal("Failed to schedule enrichment job:", err)
	}

	err = scheduler.ScheduleInterval("sync-index", cfg.ScheduleInterval, func() error {
		task, err := queue.NewSyncTask(cfg.SyncBatchSize)
		if err != nil {
			return err
		}
		_, err = asynqClient.Enqueue(task)
		return err
	})
	if err != nil {
		log.Fatal("Failed to schedule sync job:", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
