package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"assetd/internal/blobstore"
	"assetd/internal/config"
	"assetd/internal/jobs"
	"assetd/internal/server"
	"assetd/internal/store"
)

const jobDrainTimeout = 10 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the assetd API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			gateway, err := newGateway(cfg.Storage)
			if err != nil {
				return err
			}
			observer, err := blobstore.NewPrometheusObserver("", registry)
			if err != nil {
				return err
			}
			logger.Info("object storage configured", "driver", cfg.Storage.Driver, "bucket", gateway.Bucket(), "download_mode", cfg.Storage.DownloadMode)

			pool := jobs.NewPool(jobs.PoolOptions{
				Workers:     cfg.Jobs.Workers,
				QueueSize:   cfg.Jobs.QueueSize,
				MaxAttempts: cfg.Jobs.MaxAttempts,
				Logger:      slog.Default().With("component", "jobs"),
				Registerer:  registry,
			})

			srv, err := server.New(addr, st, server.Options{
				Gateway:              blobstore.Instrument(gateway, observer, slog.Default().With("component", "blobstore")),
				Queue:                pool,
				MaxSizeCeiling:       cfg.Assets.MaxSizeCeiling,
				MetadataRefetchAfter: cfg.Assets.MetadataRefetchAfter,
				StreamChunkBytes:     cfg.Assets.StreamChunkBytes,
				Metrics:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
				Registerer:           registry,
			}, logger)
			if err != nil {
				return err
			}

			// Workers outlive the signal so queued jobs drain after the listener stops.
			pool.Start(context.WithoutCancel(ctx))
			serveErr := srv.ListenAndServe(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), jobDrainTimeout)
			defer cancel()
			if err := pool.Shutdown(drainCtx); err != nil {
				logger.Warn("job drain incomplete", "error", err)
			}
			return serveErr
		},
	}
}

// newGateway builds the object store for the configured driver.
func newGateway(cfg config.StorageConfig) (blobstore.Gateway, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return blobstore.NewS3Gateway(blobstore.S3Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			AccessKey:       cfg.AccessKey,
			SecretKey:       cfg.SecretKey,
			Region:          cfg.Region,
			UseSSL:          cfg.UseSSL,
			PublicUploadURL: cfg.PublicUploadPath,
			ProxyPath:       cfg.PublicUploadPath,
			DownloadMode:    cfg.DownloadMode,
			PresignExpiry:   cfg.PresignExpiry,
			Timeout:         cfg.Timeout,
		})
	case config.StorageDriverLocal:
		return blobstore.NewLocalGateway(blobstore.LocalConfig{
			Root:            cfg.LocalRoot,
			Bucket:          cfg.Bucket,
			PublicUploadURL: cfg.PublicUploadPath,
			ProxyPath:       cfg.PublicUploadPath,
			PresignExpiry:   cfg.PresignExpiry,
		})
	case config.StorageDriverMemory:
		return blobstore.NewMemoryGateway(cfg.Bucket, cfg.PublicUploadPath, cfg.PublicUploadPath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
