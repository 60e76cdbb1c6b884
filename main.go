package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"relove/market/internal/api"
	"relove/market/internal/cache"
	"relove/market/internal/config"
	"relove/market/internal/db"
	"relove/market/internal/email"
	"relove/market/internal/services"
	"relove/market/internal/storage"
	"relove/market/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := db.EnsureIndexes(context.Background(), mongoDb); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Email sender selection. MOCK_SERVICES stores outgoing mail in Redis
	// so end-to-end tests can assert on it.
	var primaryEmailSender email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		primaryEmailSender = email.NewSMTPSender(cfg)
	}

	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)
	if cfg.EmailLogFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailLogFile, cfg)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender ('%s'): %v. Proceeding without file logging.", cfg.EmailLogFile, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}
	finalEmailSender := email.Sender(compositeSender)

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	taskQueue := tasks.NewQueue(taskClient)

	// Seed the category reference data so a fresh deployment serves a
	// browsable catalogue immediately.
	categoryCache := cache.NewCategoryCache(redisClient, cfg.CategoryCacheTTL)
	productService := services.NewProductService(mongoDb, categoryCache)
	if err := productService.EnsureDefaultCategories(context.Background()); err != nil {
		log.Printf("WARN: failed to seed default categories: %v", err)
	}

	var wg sync.WaitGroup
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting %s in '%s' mode...\n", cfg.AppName, cfg.RunMode)

	apiMode := func() {
		mainApiRouter := api.SetupRouter(cfg, mongoDb, redisClient, taskQueue)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("API ListenAndServe error: %v", err)
			}
			fmt.Println("API server stopped.")
		}()
	}

	bgMode := func() {
		var s3StorageService storage.IS3Storage
		if cfg.AwsS3Bucket != "" {
			var err error
			s3StorageService, err = storage.NewS3Storage(cfg)
			if err != nil {
				log.Fatalf("Failed to initialize S3 storage for worker: %v", err)
			}
		} else {
			log.Println("AWS_S3_BUCKET not configured, image processing disabled in worker.")
		}

		bookingService := services.NewBookingService(mongoDb, taskQueue)
		taskProcessor := tasks.NewTaskProcessor(cfg, finalEmailSender, bookingService, s3StorageService)

		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Println("Background task server starting...")
			if err := backgroundTaskSrv.Run(mux); err != nil {
				log.Fatalf("Background task server error: %v", err)
			}
			fmt.Println("Background task server stopped.")
		}()

		var err error
		scheduler, err = tasks.SetupScheduler(redisClient, cfg.ReconcileInterval)
		if err != nil {
			log.Fatalf("Failed to set up task scheduler: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Scheduler running reconcile every %s\n", cfg.ReconcileInterval)
			if err := scheduler.Run(); err != nil {
				log.Fatalf("Scheduler error: %v", err)
			}
			fmt.Println("Scheduler stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if mainApiSrv != nil {
		fmt.Println("Shutting down API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}
	if scheduler != nil {
		fmt.Println("Shutting down scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down background task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
