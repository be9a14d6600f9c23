// cmd/jobcards/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/api/handlers"
	"github.com/fawad-mazhar/jobcards/internal/api/routes"
	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/queue"
	"github.com/fawad-mazhar/jobcards/internal/storage"
	"github.com/fawad-mazhar/jobcards/internal/storage/bolt"
	"github.com/fawad-mazhar/jobcards/internal/storage/leveldb"
	"github.com/fawad-mazhar/jobcards/internal/storage/postgres"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job card HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log, err := setupLogger(cfg.Log.Env, cfg.Log.Path)
		if err != nil {
			return err
		}

		return serve(cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config, log *logrus.Entry) error {
	const op = "main.serve"
	log = log.WithField("operation", op)

	serviceID := uuid.New().String()
	log.WithFields(logrus.Fields{
		"service_id": serviceID,
		"storage":    cfg.Storage.Driver,
		"port":       cfg.Server.Port,
	}).Info("starting jobcards")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := os.MkdirAll(cfg.LevelDB.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	cache, err := leveldb.NewClient(cfg.LevelDB)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	registry, err := loadTemplates(cfg.Templates)
	if err != nil {
		return err
	}
	log.WithField("templates", len(registry.List())).Info("templates registered")

	opts := []jobcard.Option{jobcard.WithCache(cache)}

	var (
		outbox      handlers.OutboxStats
		pub         *queue.Publisher
		pubStopped  = make(chan struct{})
		pubCtx      context.Context
		cancelFlush context.CancelFunc
	)
	if cfg.NATS.URL != "" {
		pub, err = queue.NewNATS(cfg.NATS, log)
		if err != nil {
			return err
		}
		defer pub.Close()

		pubCtx, cancelFlush = context.WithCancel(context.Background())
		defer cancelFlush()
		go func() {
			defer close(pubStopped)
			pub.Start(pubCtx)
		}()

		outbox = pub
		opts = append(opts, jobcard.WithEvents(pub))
		publishServiceStatus(pub, serviceID, models.ServiceStarted, cfg.Storage.Driver, log)
	} else {
		close(pubStopped)
		log.Info("event publishing disabled")
	}

	svc := jobcard.NewService(store, registry, log, opts...)
	status := handlers.NewStatusHandler(svc, outbox, serviceID, cfg.Storage.Driver, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      routes.SetupRouter(cfg, svc, status, log),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Errorf("%s: http server failed", op)
		}
	}

	if pub != nil {
		publishServiceStatus(pub, serviceID, models.ServiceStopping, cfg.Storage.Driver, log)
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("%s: http server shutdown", op)
	}
	if err := svc.Shutdown(timeout); err != nil {
		log.WithError(err).Errorf("%s: service shutdown", op)
	}

	if pub != nil {
		cancelFlush()
		<-pubStopped
		publishServiceStatus(pub, serviceID, models.ServiceStopped, cfg.Storage.Driver, log)
	}

	log.Info("jobcards shutdown complete")
	return nil
}

// openStore opens the configured task store and returns a function that closes it
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.BoltPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := bolt.NewClient(cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
}

func loadTemplates(templates []template.Template) (*template.Registry, error) {
	registry := template.NewRegistry()
	for _, t := range templates {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register template %s: %w", t.ID, err)
		}
	}
	return registry, nil
}

func publishServiceStatus(pub *queue.Publisher, serviceID string, event models.ServiceEventType, driver string, log *logrus.Entry) {
	now := time.Now().UTC()
	msg := &models.StatusMessage{
		Type:      "service",
		ID:        serviceID,
		Status:    string(event),
		Timestamp: now,
		Metadata: models.ServiceStatus{
			ID:        serviceID,
			Event:     event,
			Timestamp: now,
			Storage:   driver,
		},
	}
	if err := pub.PublishStatus(context.Background(), msg); err != nil {
		log.WithError(err).WithField("event", event).Warn("failed to publish service status")
	}
}
