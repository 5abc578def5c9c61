package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	batchhandler "github.com/aliskhannn/image-storage/internal/api/handlers/batch"
	healthhandler "github.com/aliskhannn/image-storage/internal/api/handlers/health"
	imagehandler "github.com/aliskhannn/image-storage/internal/api/handlers/image"
	"github.com/aliskhannn/image-storage/internal/api/router"
	"github.com/aliskhannn/image-storage/internal/api/server"
	"github.com/aliskhannn/image-storage/internal/auth"
	"github.com/aliskhannn/image-storage/internal/batch"
	"github.com/aliskhannn/image-storage/internal/config"
	"github.com/aliskhannn/image-storage/internal/metadata"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/notify"
	"github.com/aliskhannn/image-storage/internal/processor"
	imagesvc "github.com/aliskhannn/image-storage/internal/service/image"
	"github.com/aliskhannn/image-storage/internal/storage"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Retry strategy for webhook and Kafka deliveries.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Metadata index: a single JSON file by default, PostgreSQL when
	// configured.
	meta := newMetadataStore(cfg)

	// Blob storage: local filesystem by default, MinIO when configured.
	blobs := newBlobStorage(ctx, cfg)

	// Static API key list.
	authStore := newAuthStore(cfg)

	// Event sinks are optional; with none configured the dispatcher is inert.
	var sinks []notify.Sink
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Headers, cfg.Webhook.Timeout, strategy))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, strategy))
	}
	dispatcher := notify.NewDispatcher(sinks...)

	// Transform engine, service layer and batch coordinator.
	engine := processor.New(processor.Options{
		MaxDimension:      cfg.Transform.MaxDimension,
		DefaultQuality:    cfg.Transform.DefaultQuality,
		WatermarkText:     cfg.Transform.Watermark.Text,
		WatermarkFontPath: cfg.Transform.Watermark.FontPath,
	})

	service := imagesvc.NewService(meta, blobs, engine, dispatcher, imagesvc.Limits{
		MaxFileSize:   cfg.Limits.MaxFileSize,
		UploadTimeout: cfg.Limits.UploadTimeout,
	})

	coord := batch.New(service, dispatcher, batch.Config{
		Workers:   cfg.Batch.Workers,
		MaxFiles:  cfg.Batch.MaxFiles,
		Retention: cfg.Batch.Retention,
	})

	// Start the batch janitor in a separate goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go coord.Run(ctx, &wg)

	// HTTP handlers and routes.
	imgHandler := imagehandler.NewHandler(service, engine, cfg.Limits.MaxFileSize)
	bHandler := batchhandler.NewHandler(coord, cfg.Limits.MaxFileSize)
	hHandler := healthhandler.NewHandler(blobs)

	r := router.Setup(imgHandler, bHandler, hHandler, authStore)
	s := server.New(cfg.Server.HTTPPort, r, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	// Start HTTP server in a separate goroutine.
	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for the batch janitor goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Flush in-flight events and close sinks.
	if err := dispatcher.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close event sinks")
	}

	// Close the metadata index.
	if err := meta.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close metadata store")
	}
}

// newMetadataStore builds the configured metadata backend. The file backend
// needs no external services; postgres runs migrations on startup.
func newMetadataStore(cfg *config.Config) metadata.Store {
	switch cfg.Metadata.Backend {
	case "postgres":
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		if err := metadata.Migrate(cfg.Database.Master.DSN()); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to run migrations")
		}

		return metadata.NewPostgresStore(db)

	case "file", "":
		store, err := metadata.NewFileStore(cfg.Metadata.File.Path)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to open metadata index")
		}

		return store

	default:
		zlog.Logger.Fatal().Str("backend", cfg.Metadata.Backend).Msg("unknown metadata backend")
		return nil
	}
}

// newBlobStorage builds the configured blob backend.
func newBlobStorage(ctx context.Context, cfg *config.Config) storage.Storage {
	switch cfg.Storage.Backend {
	case "minio":
		m := cfg.Storage.Minio
		s, err := storage.NewMinio(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.BucketName, m.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}

		return s

	case "local", "":
		s, err := storage.NewLocal(cfg.Storage.Local.BaseDir)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to open storage directory")
		}

		return s

	default:
		zlog.Logger.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
		return nil
	}
}

// newAuthStore converts configured credentials into the lookup store.
func newAuthStore(cfg *config.Config) *auth.Store {
	creds := make([]model.Credential, 0, len(cfg.Auth.Credentials))
	for _, c := range cfg.Auth.Credentials {
		creds = append(creds, model.Credential{
			APIKey: c.APIKey,
			Name:   c.Name,
			Prefix: c.PathPrefix,
		})
	}

	store, err := auth.NewStore(creds)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid credential configuration")
	}

	return store
}
