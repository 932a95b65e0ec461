package main

import (
	"context"
	"log"

	"situation-room/config"
	"situation-room/internal/cache"
	"situation-room/internal/directory"
	"situation-room/internal/entity"
	"situation-room/internal/events"
	"situation-room/internal/handler"
	"situation-room/internal/notification"
	"situation-room/internal/redis"
	"situation-room/internal/remotechat"
	"situation-room/internal/repository"
	"situation-room/internal/server"
	"situation-room/internal/services"
	"situation-room/internal/storage"
	"situation-room/internal/validation"
	"situation-room/pkg/database"
	"situation-room/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.LogMode)
	defer appLogger.Sync()
	logger.SetGlobalLogger(appLogger)

	ctx := context.Background()

	db := database.Connect(cfg)
	defer database.Close()

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	health := map[string]server.HealthFunc{
		"database": func(context.Context) error { return database.HealthCheck() },
	}

	// Redis backs the read caches and the room event feed. Without it the
	// service still runs with a process-local cache and no events.
	var (
		store     cache.Cache      = cache.NewMemory()
		publisher events.Publisher = events.NopPublisher{}
	)
	redisClient, err := redis.Connect(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		appLogger.Warnf("redis unavailable, using in-memory cache: %v", err)
	} else {
		defer redisClient.Close()
		redisCache := redis.NewCacheStore(redisClient)
		store = redisCache
		publisher = events.NewRedisPublisher(redisClient, events.NewTenantRoomResolver())
		health["redis"] = redisCache.Ping
	}

	documents, err := storage.NewClient(ctx, storage.S3Config{
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Endpoint:  cfg.S3.Endpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}

	mailer := notification.NewDispatcher(
		notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}),
		cfg.SMTP.Workers, cfg.SMTP.QueueSize, cfg.SMTP.SendTimeout, appLogger,
	)
	mailer.Start()
	defer mailer.Stop()

	chat := remotechat.NewClient(cfg.RemoteChat.BaseURL, cfg.RemoteChat.AdminToken, cfg.RemoteChat.Timeout)
	people := directory.NewClient(cfg.DirectoryURL, cfg.RemoteChat.Timeout, store, cfg.Cache.DirectoryTTL, appLogger)

	rooms := repository.NewRoomRepository(db)
	tokens := repository.NewTokenRepository(db)

	provisioning := services.NewProvisioningService(tokens, chat, cfg.RemoteChat.TeamID, cfg.RemoteChat.MailDomain, appLogger)

	roomService := services.NewRoomService(services.RoomServiceDeps{
		Rooms:        rooms,
		Provisioning: provisioning,
		Chat:         chat,
		Entities:     entity.NewReader(db),
		Directory:    people,
		Mailer:       mailer,
		Events:       publisher,
		Validator:    validation.New(),
		Cache:        store,
		RoomsTTL:     cfg.Cache.RoomsTTL,
		TeamID:       cfg.RemoteChat.TeamID,
		AppURL:       cfg.AppURL,
		Logger:       appLogger,
	})

	attachmentService := services.NewAttachmentService(services.AttachmentServiceDeps{
		Rooms:        rooms,
		Provisioning: provisioning,
		Chat:         chat,
		Store:        documents,
		Validator:    validation.NewAttachmentValidator(cfg.Attachments.MaxSizeBytes, cfg.Attachments.AllowedExtensions),
		Directory:    people,
		Events:       publisher,
		TeamID:       cfg.RemoteChat.TeamID,
		Logger:       appLogger,
	})

	passthrough := services.NewPassthroughService(provisioning, chat)
	auth := services.NewAuthService(cfg.JWTSecret)

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Rooms:       handler.NewRoomHandler(roomService),
		Attachments: handler.NewAttachmentHandler(attachmentService, cfg.Attachments.MaxSizeBytes),
		Chat:        handler.NewChatHandler(provisioning, passthrough),
	}, auth, health)

	if err := srv.Start(); err != nil {
		appLogger.Errorf("Server exited with error: %v", err)
	}
}
