package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nesturechat/internal/analytics"
	"nesturechat/internal/api"
	"nesturechat/internal/auth"
	"nesturechat/internal/chatbot"
	"nesturechat/internal/config"
	"nesturechat/internal/links"
	"nesturechat/internal/redis"
	"nesturechat/internal/storage"
	"nesturechat/internal/upload"
	"nesturechat/internal/widget"
	"nesturechat/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load(os.Getenv("NESTURECHAT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	// visitor tokens always live in SQL; widget state follows the storage setting
	storageType := strings.ToLower(cfg.BasicConfig.Storage)
	dbType := storageType
	if dbType == "redis" {
		dbType = "sqlite3"
		if _, ok := cfg.Databases[dbType]; !ok {
			log.Printf("no sqlite3 database configured, visitor tokens will not survive a restart")
			if cfg.Databases == nil {
				cfg.Databases = make(map[string]config.DatabaseConfig)
			}
			cfg.Databases[dbType] = config.DatabaseConfig{DSN: ":memory:"}
		}
	}
	log.Printf("storage: %s, token database: %s", storageType, dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var store storage.Store
	if storageType == "redis" {
		store = storage.NewRedisStore(rdb, "")
	} else {
		store = storage.NewSQLStore(db, dbType)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tracker := buildTracker(cfg.BasicConfig.Analytics, registry)

	var uploader widget.Uploader = upload.Noop{}
	if cfg.BasicConfig.UploadEnabled {
		disk := upload.NewDisk(cfg.BasicConfig.FileBaseDir, cfg.Widget.MaxAttachmentBytes)
		disk.StartCleaner(ctx,
			minutes(cfg.BasicConfig.TempFileTTL, upload.DefaultFileTTL),
			minutes(cfg.BasicConfig.TempCleanInterval, upload.DefaultCleanupInterval))
		uploader = disk
	}

	responder := chatbot.NewResponder(chatbot.DefaultCompany(cfg.Widget.CompanyName), nil)
	manager := worker.NewManager(worker.Options{
		Base: widget.Options{
			Store:     store,
			Responder: responder,
			Tracker:   tracker,
			Uploader:  uploader,
			Links: links.Links{
				WhatsAppNumber:   cfg.Links.WhatsAppNumber,
				WhatsAppGreeting: cfg.Links.WhatsAppGreeting,
				SchedulingURL:    cfg.Links.SchedulingURL,
			},
			MaxMessages:        cfg.Widget.MaxMessages,
			GreetingDelay:      time.Duration(cfg.Widget.GreetingDelayMS) * time.Millisecond,
			TypingMin:          time.Duration(cfg.Widget.TypingMinMS) * time.Millisecond,
			TypingJitter:       time.Duration(cfg.Widget.TypingJitterMS) * time.Millisecond,
			MaxAttachmentBytes: cfg.Widget.MaxAttachmentBytes,
		},
		SpeechEnabled:        cfg.BasicConfig.SpeechEnabled,
		NotificationsEnabled: cfg.BasicConfig.NotificationsEnabled,
		IdleTimeout:          time.Duration(cfg.BasicConfig.IdleTimeout) * time.Minute,
		Invalidator:          worker.NewInvalidator(rdb),
	})
	manager.Start(ctx)
	janitorInterval := time.Duration(cfg.BasicConfig.JanitorInterval) * time.Minute
	manager.StartJanitor(ctx, janitorInterval)
	defer manager.Stop()

	authService := auth.NewService(db, rdb, time.Duration(cfg.BasicConfig.VisitorTokenTTL)*time.Hour)
	go purgeTokens(ctx, authService, janitorInterval)

	metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	handlers := api.NewHandler(authService, manager, cfg.Widget.MaxAttachmentBytes, metrics)
	handlers.AllowOrigins(cfg.BasicConfig.AllowedOrigins...)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	go func() {
		if err := router.Run(cfg.BasicConfig.ServerAddress); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()
	<-ctx.Done()
	log.Printf("shutting down")
}

func buildTracker(sinks []string, reg prometheus.Registerer) analytics.Tracker {
	var trackers analytics.Multi
	for _, sink := range sinks {
		switch strings.ToLower(strings.TrimSpace(sink)) {
		case "log":
			trackers = append(trackers, analytics.Logger{Prefix: "analytics: "})
		case "prometheus":
			p, err := analytics.NewPrometheus(reg)
			if err != nil {
				log.Printf("register analytics metrics: %v", err)
				continue
			}
			trackers = append(trackers, p)
		default:
			log.Printf("unknown analytics sink %q ignored", sink)
		}
	}
	if len(trackers) == 0 {
		return analytics.Noop{}
	}
	return trackers
}

func purgeTokens(ctx context.Context, svc *auth.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.PurgeExpired(ctx); err != nil {
				log.Printf("purge visitor tokens: %v", err)
			} else if n > 0 {
				log.Printf("purged %d expired visitor token(s)", n)
			}
		}
	}
}

func minutes(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Minute
}
