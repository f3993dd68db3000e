package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/activityxml"
	"github.com/noah-isme/gema-groupwork/internal/cache"
	"github.com/noah-isme/gema-groupwork/internal/config"
	"github.com/noah-isme/gema-groupwork/internal/database"
	"github.com/noah-isme/gema-groupwork/internal/events"
	"github.com/noah-isme/gema-groupwork/internal/handler"
	"github.com/noah-isme/gema-groupwork/internal/middleware"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
	"github.com/noah-isme/gema-groupwork/internal/repository"
	"github.com/noah-isme/gema-groupwork/internal/router"
	"github.com/noah-isme/gema-groupwork/internal/service"
	cloud "github.com/noah-isme/gema-groupwork/pkg/cloudinary"
	"github.com/noah-isme/gema-groupwork/pkg/filestore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	api, err := projectapi.New(projectapi.Config{
		BaseURL: cfg.ProjectAPIBaseURL,
		APIKey:  cfg.ProjectAPIKey,
		Timeout: cfg.ProjectAPITimeout,
		DryRun:  cfg.ProjectAPIDryRun,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create project api client: %v", err)
	}

	store, err := newFileStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create file store: %v", err)
	}

	var shared cache.Store
	if redisClient != nil {
		shared = cache.NewRedis(redisClient, cfg.EventsChannel+":memo")
	}
	memo := cache.NewTiered(cache.NewMemory(), shared, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	emitter := events.NewPublisher(redisClient, natsConn, cfg.EventsChannel, logger)
	notifications := service.NewNotificationService(redisClient, cfg.EventsChannel, natsConn, logger)

	stageStates := repository.NewStageStateRepository(db)
	definitions := repository.NewProjectDefinitionRepository(db)

	catalog := service.NewProjectCatalog(definitions, activityxml.NewParser(logger), logger)
	resolver := service.NewWorkgroupResolver(api, memo, cfg.WorkgroupCacheTTL, cfg.OutsiderRoles, logger)
	completions := service.NewCompletionPublisher(api, emitter, logger)
	tracker := service.NewSubmissionTracker(api, store, completions, emitter, notifications, memo, cfg.UploadMaxBytes, logger)
	reviews := service.NewReviewEngine(api, completions, emitter, notifications, logger)
	stages := service.NewStageService(service.StageServiceDeps{
		Catalog:     catalog,
		Access:      service.NewAccessControl(resolver, logger),
		States:      stageStates,
		Reviews:     reviews,
		Tracker:     tracker,
		Completions: completions,
		API:         api,
		Emitter:     emitter,
	}, logger)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	if cfg.StorageBackend == config.StorageLocal {
		app.Static("/uploads", cfg.StorageLocalDir)
	}
	router.Register(app, cfg, router.Dependencies{
		StageHandler:      handler.NewStageHandler(stages, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(stages, logger),
		AuthoringHandler:  handler.NewAuthoringHandler(catalog, validate, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		UploadLimiter:     middleware.RateLimit("uploads", cfg.UploadRateLimit, time.Minute),
		HealthProbes:      probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Bool("dry_run", cfg.ProjectAPIDryRun).Msg("server started")
	waitForShutdown(app)
}

func newFileStore(cfg config.Config, logger zerolog.Logger) (filestore.Store, error) {
	if cfg.StorageBackend == config.StorageCloudinary {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			return nil, err
		}
		return uploader, nil
	}
	return filestore.NewOS(cfg.StorageLocalDir, cfg.StoragePublicURL), nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
