package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-aligner/internal/api"
	"github.com/heimdex/heimdex-aligner/internal/config"
	"github.com/heimdex/heimdex-aligner/internal/db"
	"github.com/heimdex/heimdex-aligner/internal/downstream"
	"github.com/heimdex/heimdex-aligner/internal/jobs"
	"github.com/heimdex/heimdex-aligner/internal/logging"
	"github.com/heimdex/heimdex-aligner/internal/pipeline"
	"github.com/heimdex/heimdex-aligner/internal/storage"
	"github.com/heimdex/heimdex-aligner/internal/watcher"
)

const runnerDrainTimeout = 10 * time.Second

var errAlreadyRunning = errors.New("another aligner is already running for this data directory")

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alignment service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(*configFlag)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.EnvConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex aligner",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"config", cfg.Source())

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	// The database stays open while jobs may still be writing to it.
	drained := true
	defer func() {
		if !drained {
			logger.Warn("jobs still running at exit, leaving database open")
			return
		}
		database.Close()
	}()

	repo := jobs.NewRepository(database.Conn())

	instanceID, err := ensureInstanceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure instance ID: %w", err)
	}
	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(cfg, authToken, instanceID)

	var client downstream.Client
	if cfg.DownstreamURL() != "" {
		client = downstream.NewHTTPClient(cfg.DownstreamURL(), cfg.DownstreamToken(), logger)
		logger.Info("downstream delivery enabled", "url", cfg.DownstreamURL())
	} else {
		client = downstream.NewStubClient(logger)
	}

	store := storage.NewLocalStore(cfg.StoreRoot())
	service := jobs.NewService(repo, store, pipeline.NewProcessor(logger), client, logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := jobs.NewRunner(service, repo, jobs.RunnerOptions{
		PollInterval:  cfg.PollInterval(),
		MaxConcurrent: cfg.MaxConcurrent(),
		JobTimeout:    cfg.JobTimeout(),
	}, logging.WithComponent(logger, "runner"))

	drained = false
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Start(ctx)
	}()

	if dir := cfg.InboxDir(); dir != "" {
		w, err := startInbox(ctx, dir, service, logger)
		if err != nil {
			stop()
			drained = waitForRunner(runnerDone, runnerDrainTimeout)
			return err
		}
		defer w.Stop()
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Service:    service,
		Repository: repo,
		Runner:     runner,
		Logger:     logger,
		StartTime:  startTime,
		InstanceID: instanceID,
		Version:    config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
		stop()
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runnerDrainTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	drained = waitForRunner(runnerDone, time.Until(deadline(shutdownCtx)))
	if !drained {
		logger.Warn("jobs still running at shutdown", "active_jobs", runner.ActiveJobs())
	}

	logger.Info("shutdown complete")
	return nil
}

// waitForRunner reports whether the runner stopped within timeout.
func waitForRunner(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}

func startInbox(ctx context.Context, dir string, service *jobs.Service, logger *slog.Logger) (*watcher.InboxWatcher, error) {
	handler := func(ctx context.Context, path string) error {
		_, err := service.Submit(ctx, "file://"+path, "")
		return err
	}

	w, err := watcher.New(dir, handler, logging.WithComponent(logger, "inbox"))
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("inbox watcher stopped", "error", err)
		}
	}()
	return w, nil
}

func printBanner(cfg *config.EnvConfig, authToken, instanceID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 HEIMDEX ALIGNER v%-25s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:     http://127.0.0.1:%-27d║\n", cfg.Port())
	fmt.Printf("║  Auth Token:  %-44s║\n", authToken)
	fmt.Printf("║  Instance ID: %-44s║\n", shortID(instanceID))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func ensureInstanceID(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, jobs.ConfigInstanceID)
	if err == nil && existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	if err := repo.SetConfig(ctx, jobs.ConfigInstanceID, id); err != nil {
		return "", err
	}
	return id, nil
}

func ensureAuthToken(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, jobs.ConfigAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, jobs.ConfigAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}
