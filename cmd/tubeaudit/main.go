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

	"github.com/bnema/tubeaudit/config"
	"github.com/bnema/tubeaudit/internal/adapter/analyzer"
	"github.com/bnema/tubeaudit/internal/adapter/blob/localfs"
	"github.com/bnema/tubeaudit/internal/adapter/blob/s3"
	"github.com/bnema/tubeaudit/internal/adapter/dispatch"
	HTTPAdapter "github.com/bnema/tubeaudit/internal/adapter/http"
	"github.com/bnema/tubeaudit/internal/adapter/report/excel"
	"github.com/bnema/tubeaudit/internal/adapter/report/markdown"
	"github.com/bnema/tubeaudit/internal/adapter/storage/sqlstore"
	"github.com/bnema/tubeaudit/internal/adapter/youtube"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/infrastructure/metrics"
	"github.com/bnema/tubeaudit/internal/port"
	"github.com/bnema/tubeaudit/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	logger.Info.Printf("starting tubeaudit on port %d, env=%s, base_url=%s", cfg.Port, cfg.AppEnv, cfg.BaseURL)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	store, err := sqlstore.Open(cfg.DatabaseURL, sqlstore.WithMaxLogBytes(cfg.MaxLogBytes))
	if err != nil {
		logger.Error.Printf("failed to open store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, local, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Error.Printf("failed to create artifact storage: %v", err)
		os.Exit(1)
	}

	fetcher, err := youtube.New(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		logger.Error.Printf("failed to create youtube client: %v", err)
		os.Exit(1)
	}
	if cfg.YouTubeAPIKey == "" {
		logger.Warn.Printf("YOUTUBE_API_KEY is not set, every fetch stage will fail")
	}

	m := metrics.New()

	runner := service.NewPipelineRunner(service.RunnerDeps{
		Jobs:      store,
		Artifacts: store,
		Blobs:     blobs,
		Fetcher:   fetcher,
		Analyzer:  analyzer.New(),
		Excel:     excel.New(),
		Markdown:  markdown.New(),
		Metrics:   m,
		MaxVideos: cfg.MaxVideos,
	})

	var (
		dispatcher port.Dispatcher
		localRuns  *dispatch.Local
	)
	if cfg.UseQueue {
		dispatcher, err = dispatch.NewSQS(ctx, cfg.SQS)
		if err != nil {
			logger.Error.Printf("failed to create queue dispatcher: %v", err)
			os.Exit(1)
		}
	} else {
		localRuns = dispatch.NewLocal(runner)
		dispatcher = localRuns
	}

	audits := service.NewAuditService(service.AuditDeps{
		Jobs:          store,
		Artifacts:     store,
		Clients:       store,
		Blobs:         blobs,
		Dispatcher:    dispatcher,
		Metrics:       m,
		RetentionDays: cfg.RetentionDays,
		LinkTTL:       cfg.SignedURLTTL,
	})
	authSvc := service.NewAuthService(store, cfg.AuthSecret)

	maintenance := service.NewMaintenance(
		service.NewRetentionSweeper(store, store, blobs, m),
		service.NewWatchdog(store, cfg.StaleJobTimeout, m),
	)
	maintenance.Start(ctx, cfg.SweepInterval)

	if !cfg.AllowInsecureInternal {
		logger.Info.Printf("internal routes require ID tokens for audience %s", cfg.InternalTaskAudience)
	}

	server := HTTPAdapter.NewServer(HTTPAdapter.ServerDeps{
		Auth:        authSvc,
		Audits:      audits,
		Runner:      runner,
		Maintenance: maintenance,
		TaskAuth:    HTTPAdapter.NewTaskAuthenticator(cfg.InternalTaskAudience, cfg.TaskServiceAccountEmail, cfg.AllowInsecureInternal),
		Local:       local,
		Metrics:     m.Handler(),
		Health:      store.Ping,
		AuthSecret:  cfg.AuthSecret,
		BehindProxy: cfg.BehindProxy,
	})
	server.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Relay-driven runs hold the request open for the whole pipeline.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Let in-process pipelines finish; the watchdog reclaims any that don't.
		if localRuns != nil {
			if err := localRuns.Shutdown(shutdownCtx); err != nil {
				logger.Warn.Printf("pipelines still running at shutdown: %v", err)
			}
		}
		cancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s (dispatch=%s)", addr, dispatcher.Mode())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
	<-ctx.Done()
}

// newBlobStore returns the artifact store and, for local storage, the same
// store as the download verifier.
func newBlobStore(ctx context.Context, cfg *config.Config) (port.BlobStore, HTTPAdapter.LocalArtifacts, error) {
	if cfg.UseS3 {
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		logger.Info.Printf("artifacts stored in s3://%s", cfg.S3.Bucket)
		return store, nil, nil
	}

	store, err := localfs.New(filepath.Join(cfg.DataDir, "artifacts"), cfg.BaseURL, cfg.AuthSecret)
	if err != nil {
		return nil, nil, err
	}
	logger.Info.Printf("artifacts stored under %s", filepath.Join(cfg.DataDir, "artifacts"))
	return store, store, nil
}
