package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/viniciusxv27/enviomkt/internal/api"
	"github.com/viniciusxv27/enviomkt/internal/dispatch"
	"github.com/viniciusxv27/enviomkt/internal/evolution"
	"github.com/viniciusxv27/enviomkt/internal/media"
	"github.com/viniciusxv27/enviomkt/internal/repository"
	"github.com/viniciusxv27/enviomkt/internal/routines"
	"github.com/viniciusxv27/enviomkt/internal/service"
	"github.com/viniciusxv27/enviomkt/internal/storage"
	"github.com/viniciusxv27/enviomkt/internal/ws"
	"github.com/viniciusxv27/enviomkt/pkg/cache"
	"github.com/viniciusxv27/enviomkt/pkg/config"
	"github.com/viniciusxv27/enviomkt/pkg/database"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.SetLevel(cfg.LogLevel)

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Print(nil).Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Print(nil).Fatalf("Failed to run migrations: %v", err)
	}

	checks := map[string]api.Pinger{"database": db}
	deps := service.Deps{
		Gateway:     evolution.NewClient(cfg.EvolutionBaseURL, cfg.EvolutionAPIKey),
		CacheTTL:    cfg.StatusCacheTTL,
		DemoMode:    cfg.DemoMode,
		Credentials: service.Credentials{Username: cfg.LoginUsername, Password: cfg.LoginPassword},
		JWTSecret:   cfg.JWTSecret,
	}
	if cfg.WebhookURL != "" {
		webhook := dispatch.NewSubmitter(cfg.WebhookURL)
		deps.Webhook = webhook
		log.Print(nil).Infof("Dispatches are posted to %s", webhook.URL())
	} else {
		log.Print(nil).Warn("WEBHOOK_URL not set, dispatches will be refused")
	}
	if cfg.LoginUsername == "" || cfg.LoginPassword == "" {
		log.Print(nil).Warn("LOGIN_USERNAME/LOGIN_PASSWORD not set, every login will be rejected")
	}

	// Initialize repositories
	repos := repository.NewRepositories(db)
	deps.Accounts = repos.Account

	// Evolution's own database for contacts and messages (optional)
	if cfg.UseGatewayDatabase() {
		gatewayDB, err := database.ConnectGateway(cfg.GatewayDatabaseDSN)
		if err != nil {
			log.Print(nil).Warnf("Failed to connect gateway database: %v (falling back to the REST API)", err)
		} else {
			deps.ChatStore = repository.NewGatewayRepository(gatewayDB)
			log.Print(nil).Info("✅ Gateway database connected, chats are read from it")
		}
	}

	// Initialize storage (MinIO)
	var inspector api.StorageInspector
	var objectStore media.ObjectStore
	if cfg.MinioEndpoint != "" {
		store, err := storage.New(storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
			Region:    cfg.MinioRegion,
		})
		if err != nil {
			log.Print(nil).Warnf("Failed to initialize storage: %v (video attachments will be disabled)", err)
		} else {
			inspector, objectStore = store, store
			log.Print(nil).Infof("✅ MinIO storage initialized at %s", cfg.MinioEndpoint)
		}
	}

	attacher, err := media.NewAttacher(cfg.UploadDir, objectStore)
	if err != nil {
		log.Print(nil).Fatalf("Failed to prepare upload dir: %v", err)
	}
	if !attacher.HasStore() {
		log.Print(nil).Warn("No object storage configured, dispatches with video will be refused")
	}
	deps.Attacher = attacher

	// Initialize Redis cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.Print(nil).Warnf("Failed to initialize Redis cache: %v (caching disabled)", err)
		} else {
			defer redisCache.Close()
			deps.Cache = redisCache
			checks["redis"] = redisCache
			log.Print(nil).Info("✅ Redis cache initialized")
		}
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	deps.Hub = hub

	// Initialize services
	services, err := service.NewServices(deps)
	if err != nil {
		log.Print(nil).Fatalf("Failed to initialize services: %v", err)
	}

	// Background routines
	scheduler := routines.NewCron()
	if err := routines.Register(scheduler, attacher.UploadDir(), cfg.UploadMaxAge, services.Account); err != nil {
		log.Print(nil).Fatalf("Failed to schedule routines: %v", err)
	}

	// Initialize API server
	server := api.NewServer(cfg, services, api.Options{
		Hub:     hub,
		Storage: inspector,
		Checks:  checks,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Print(nil).Info("Shutting down server...")

		<-scheduler.Stop().Done()

		if err := server.Shutdown(); err != nil {
			log.Print(nil).Errorf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Print(nil).Infof("🚀 enviomkt server starting on port %s", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Print(nil).Fatalf("Server error: %v", err)
	}
}
