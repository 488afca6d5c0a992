package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
	"github.com/traffix-ai/traffix-dashboard/internal/archive"
	"github.com/traffix-ai/traffix-dashboard/internal/camera"
	"github.com/traffix-ai/traffix-dashboard/internal/config"
	"github.com/traffix-ai/traffix-dashboard/internal/dashboard"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
	"github.com/traffix-ai/traffix-dashboard/internal/metrics"
	"github.com/traffix-ai/traffix-dashboard/internal/webui"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard web UI (default)",
	RunE:  runServe,
}

func addServeFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	flags := cmd.Flags()
	flags.String("http", d.HTTPAddr, "HTTP server address")
	flags.String("metrics", d.MetricsAddr, "Metrics server address (empty to disable)")
	flags.Duration("poll-interval", d.PollInterval, "Status and toll history refresh interval")
	flags.Bool("refresh-after-analyze", d.RefreshAfterAnalyze, "Refresh status right after a successful image analysis")
	flags.String("camera", d.Camera.Source, "Camera source (none, pattern, mjpeg)")
	flags.String("camera-url", d.Camera.URL, "MJPEG camera stream URL")
	flags.Bool("archive", d.Archive.Enabled, "Archive captured frames and their analysis")
	flags.String("archive-backend", d.Archive.Backend, "Archive backend (local, s3)")
	flags.String("archive-dir", d.Archive.Dir, "Archive directory for the local backend")
	flags.String("archive-bucket", d.Archive.Bucket, "Archive bucket for the s3 backend")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("Main", "Traffix dashboard starting...")
	logger.Info("Main", "API: %s (poll every %s)", cfg.APIBaseURL, cfg.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = m.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info("Main", "Starting metrics server on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	var recorder *archive.Recorder
	if cfg.Archive.Enabled {
		recorder, err = newRecorder(ctx, cfg.Archive, m)
		if err != nil {
			return err
		}
		if err := recorder.Start(); err != nil {
			return err
		}
		defer func() {
			if err := recorder.Stop(); err != nil {
				logger.Warn("Main", "Archive stop: %v", err)
			}
		}()
	}

	opts := dashboard.DefaultOptions()
	opts.PollInterval = cfg.PollInterval
	opts.RefreshAfterAnalyze = cfg.RefreshAfterAnalyze
	opts.JPEGQuality = cfg.Camera.JPEGQuality
	opts.Camera = newCameraSource(cfg.Camera)
	opts.Metrics = m
	if recorder != nil {
		opts.Archive = recorder
	}

	ctrl := dashboard.New(client, opts)
	ctrl.Start(ctx)
	defer ctrl.Close()

	gin.SetMode(gin.ReleaseMode)
	server := webui.NewServer(webui.Config{
		Addr:           cfg.HTTPAddr,
		StatusInterval: cfg.StatusInterval,
		MJPEGInterval:  cfg.MJPEGInterval,
		JPEGQuality:    cfg.Camera.JPEGQuality,
		CORSOrigins:    cfg.CORSOrigins,
	}, ctrl)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Main", "Dashboard listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Main", "Metrics shutdown: %v", err)
		}
	}

	logger.Info("Main", "Dashboard stopped")
	return nil
}

func newCameraSource(cfg config.CameraConfig) camera.Source {
	switch cfg.Source {
	case config.CameraPattern:
		return camera.NewPatternSource(cfg.Width, cfg.Height)
	case config.CameraMJPEG:
		return camera.NewMJPEGSource(cfg.URL, nil)
	default:
		return nil
	}
}

func newRecorder(ctx context.Context, cfg config.ArchiveConfig, m *metrics.Metrics) (*archive.Recorder, error) {
	var sink archive.Sink
	switch cfg.Backend {
	case config.ArchiveS3:
		s3Sink, err := archive.NewS3Sink(ctx, cfg.Bucket, cfg.Region)
		if err != nil {
			return nil, err
		}
		sink = s3Sink
		logger.Info("Main", "Archiving captures to s3://%s/%s", cfg.Bucket, cfg.Prefix)
	default:
		localSink, err := archive.NewLocalSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		sink = localSink
		logger.Info("Main", "Archiving captures to %s", cfg.Dir)
	}
	return archive.NewRecorder(sink, cfg.Prefix, cfg.QueueSize, m), nil
}
