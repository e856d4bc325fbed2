package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wishwell/internal/api"
	"wishwell/internal/cache"
	"wishwell/internal/config"
	"wishwell/internal/dispatch"
	"wishwell/internal/enrich"
	"wishwell/internal/extract"
	"wishwell/internal/logging"
	"wishwell/internal/metrics"
	"wishwell/internal/reconcile"
	"wishwell/internal/storage"
	"wishwell/internal/wish"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the wishwell server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running wishwell server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wishwell system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "wishwell.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDurationOr(s string, fallback time.Duration, logger *slog.Logger, what string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Warn("invalid duration, using default", "setting", what, "value", s, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "wishwell version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Structured logging through the batching sink. Closing the sink flushes
	// whatever is still queued, so it must outlive the server shutdown.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})
	flushEvery, _ := time.ParseDuration(cfg.Log.FlushInterval)
	batch := logging.NewBatchHandler(inner, 0, flushEvery)
	defer batch.Close()
	logger := slog.New(batch)
	slog.SetDefault(logger)

	// Refuse to start when an instance is already serving the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("wishwell is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("wishwell is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	m := metrics.New()

	// Extraction pipeline.
	fetchTimeout := parseDurationOr(cfg.Enrichment.FetchTimeout, 10*time.Second, logger, "enrichment.fetch_timeout")
	extractor := extract.New(&http.Client{Timeout: fetchTimeout}, logger)

	// Enrichment channel: the durable job queue always, plus an outbound
	// webhook mirror when configured.
	queue := dispatch.NewQueue(store)
	queue.MaxAttempts = cfg.Enrichment.MaxAttempts
	var dispatcher wish.Dispatcher = queue
	if cfg.Enrichment.WebhookURL != "" {
		dispatcher = dispatch.Multi{
			dispatcher,
			dispatch.NewWebhook(cfg.Enrichment.WebhookURL, nil),
		}
	}
	dispatcher = &dispatch.Instrumented{Next: dispatcher, Failures: m.DispatchFailures}

	coordinator := wish.NewCoordinator(store, dispatcher, logger)
	snapshots := cache.NewStore(cfg.Storage.DataDir)
	reader := reconcile.NewReader(reconcile.StoreRemote{Store: store}, snapshots, logger)

	handler := api.NewRouter(api.Deps{
		Store:       store,
		Coordinator: coordinator,
		Reader:      reader,
		Cache:       snapshots,
		Extractor:   extractor,
		Metrics:     m,
		Token:       cfg.API.Token,
		Logger:      logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the enrichment worker.
	pollInterval := parseDurationOr(cfg.Enrichment.PollInterval, 500*time.Millisecond, logger, "enrichment.poll_interval")
	worker := enrich.NewWorker(store, extractor, pollInterval)
	worker.WriteBacks = m.EnrichWriteBacks
	go worker.Run(ctx)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "wishwell listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("wishwell is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop wishwell (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to wishwell (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Enrichment.WebhookURL != "" {
		printStatus("Webhook", "%s", cfg.Enrichment.WebhookURL)
	} else {
		printStatus("Webhook", "disabled (local queue only)")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
