package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/fdsender/internal/api"
	"github.com/your-org/fdsender/internal/api/handlers"
	"github.com/your-org/fdsender/internal/api/ws"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/indexer"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/queue"
	"github.com/your-org/fdsender/internal/storage"
)

type depthReporter interface {
	QueueDepth(ctx context.Context) (uint64, error)
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting echo backend", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Pinger{}

	// Object index
	var index storage.ObjectIndex
	if cfg.Database.Enabled() {
		db, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		index = db
		checks["postgres"] = db
	} else {
		slog.Warn("no database configured, objects are kept in memory")
		index = storage.NewMemoryIndex()
	}

	if err := seedCamera(ctx, index, cfg.Sender.DefaultCamera); err != nil {
		slog.Error("seed default camera", "error", err)
		os.Exit(1)
	}

	// Image blobs
	var blobs storage.BlobStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		blobs = minioStore
		checks["minio"] = minioStore
	} else {
		blobs = storage.NewMemoryBlobs()
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	ix := indexer.New(index, blobs, cfg.Index.ClusterThreshold)
	ix.SetBroadcaster(hub)

	// Ingest queue
	var (
		tasks handlers.TaskQueue
		depth depthReporter
	)
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create ingest consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		if err := consumer.ConsumeIngest(ctx, "indexer", ix.Handle, cfg.Index.Workers); err != nil {
			slog.Error("start ingest consumer", "error", err)
			os.Exit(1)
		}

		tasks, depth = producer, producer
		checks["nats"] = producer
	} else {
		local := queue.NewLocalQueue(0)
		local.Start(ctx, ix.Handle, cfg.Index.Workers)
		tasks, depth = local, local
	}

	go reportQueueDepth(ctx, depth)

	router := api.NewRouter(api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		Index:  index,
		Blobs:  blobs,
		Queue:  tasks,
		Hub:    hub,
		Checks: checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down backend")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("backend stopped")
}

// seedCamera creates the default camera on an empty index.
func seedCamera(ctx context.Context, index storage.ObjectIndex, name string) error {
	cameras, err := index.ListCameras(ctx)
	if err != nil {
		return err
	}
	if len(cameras) > 0 {
		return nil
	}
	cam := &models.Camera{Name: name, Active: true}
	if err := index.CreateCamera(ctx, cam); err != nil {
		return err
	}
	slog.Info("seeded camera", "id", cam.ID, "name", cam.Name)
	return nil
}

func reportQueueDepth(ctx context.Context, q depthReporter) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.QueueDepth(ctx)
			if err != nil {
				slog.Warn("read queue depth", "error", err)
				continue
			}
			observability.IngestQueueDepth.Set(float64(n))
		}
	}
}
