package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/eventstream/internal/api"
	"github.com/rickgao/eventstream/internal/config"
	"github.com/rickgao/eventstream/internal/connection"
	"github.com/rickgao/eventstream/internal/logging"
	"github.com/rickgao/eventstream/internal/metrics"
	"github.com/rickgao/eventstream/internal/router"
	"github.com/rickgao/eventstream/internal/stream"
	"github.com/rickgao/eventstream/internal/version"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if cfg.Instance.ID == "" {
		cfg.Instance.ID = uuid.NewString()
	}

	logger.Info("starting streamtail",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"events", opts.events,
	)

	stopProfiling, err := startProfiling(cfg.Profiling, cfg.Instance.ID, logger)
	if err != nil {
		return err
	}
	defer stopProfiling()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	header := http.Header{}
	header.Set(api.InstanceHeader, cfg.Instance.ID)

	client := stream.New(
		stream.Config{Manager: cfg.ManagerConfig(), InstanceID: cfg.Instance.ID},
		buildProvider(cfg, logger),
		connection.NewDialer(cfg.SocketConfig(), header, logger.With("component", "socket")),
		stream.WithLogger(logger),
		stream.WithMetrics(m),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	payloads := router.NewQueue[router.Payload](256)
	subscribe(client, payloads, opts, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return printPayloads(payloads, out)
	})

	if m != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics, m, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		err := client.Close(shutdownCtx)
		payloads.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("streamtail stopped")
	return nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadWithDefaults(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.url != "" {
		cfg.Provider.URL, cfg.Provider.BaseURL = opts.url, ""
	}
	if opts.baseURL != "" {
		cfg.Provider.BaseURL, cfg.Provider.URL = opts.baseURL, ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func buildProvider(cfg *config.Config, logger *slog.Logger) connection.Provider {
	if cfg.Provider.URL != "" {
		id := cfg.Provider.ConnectionID
		if id == "" {
			id = cfg.Instance.ID
		}
		return connection.StaticProvider{ConnectionID: id, URL: cfg.Provider.URL}
	}

	return api.NewClient(
		cfg.Provider.BaseURL,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.Provider.Timeout),
		api.WithRetries(cfg.Provider.MaxRetries, time.Second),
		api.WithInstanceID(cfg.Instance.ID),
	)
}

func subscribe(client *stream.Client, q *router.Queue[router.Payload], opts options, logger *slog.Logger) {
	ro := router.Options{Debounce: opts.debounce, Namespace: opts.namespace}

	client.Subscribe(router.EventConnected, func(router.Payload) {
		logger.Info("stream connected", "connection_id", client.ConnectionID())
	}, router.Options{Namespace: opts.namespace})
	client.Subscribe(router.EventDisconnected, func(router.Payload) {
		st := client.State()
		logger.Warn("stream disconnected", "next_retry_at", st.NextRetryAt)
	}, router.Options{Namespace: opts.namespace})

	for _, ev := range opts.events {
		if id := client.Subscribe(ev, router.QueueHandler(q), ro); id != "" {
			logger.Debug("subscribed", "event", ev, "handler_id", id)
		}
	}
}

// printPayloads writes each payload as one line until q is closed.
func printPayloads(q *router.Queue[router.Payload], out io.Writer) error {
	for {
		p, ok := q.Receive()
		if !ok {
			return nil
		}
		if _, err := fmt.Fprintf(out, "%s\n", p.Raw); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, m *metrics.Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
