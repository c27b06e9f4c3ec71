package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/garcomlabs/garcom/internal/api"
	"github.com/garcomlabs/garcom/internal/catalog"
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/database"
	"github.com/garcomlabs/garcom/internal/debounce"
	"github.com/garcomlabs/garcom/internal/engine"
	"github.com/garcomlabs/garcom/internal/intent"
	"github.com/garcomlabs/garcom/internal/order"
	"github.com/garcomlabs/garcom/internal/session"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WhatsApp webhook server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	logger.Info("starting garcom webhook server", "version", AppVersion)

	dsn := cfg.PostgresDSN()
	if err := database.Migrate(dsn); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	registry := buildRegistry(cfg, logger)
	pol, err := buildPolicy(cfg, registry, logger)
	if err != nil {
		return err
	}
	g, err := initGenkit(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Provider:   newProvider(g, cfg, logger),
		Classifier: intent.KeywordClassifier{},
		Policy:     pol,
		Registry:   registry,
		Sessions:   session.NewPostgresStore(pool),
		Orders:     order.NewPostgresStore(pool),
		Catalog:    catalog.NewPostgresStore(pool),
		Validator: &engine.FixedFeeValidator{
			Fee:        cfg.DeliveryFeeCents,
			ETAMinutes: cfg.DeliveryETAMinutes,
		},
		Behavior: cfg.Behavior,
		Language: cfg.Language,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	queue := debounce.NewQueue(
		debounce.NewPostgresStore(pool),
		engine.NewRunner(eng),
		logger,
		debounce.WithQuietWindow(time.Duration(cfg.QuietWindowSeconds)*time.Second),
	)
	dispatcher := debounce.NewDispatcher(queue, logger)
	defer dispatcher.Close()

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Queue:      queue,
		Dispatcher: dispatcher,
		Pool:       pool,
		TrustProxy: os.Getenv("GARCOM_TRUST_PROXY") != "",
		RateBurst:  parseRateBurst(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("webhook server ready",
		"addr", cfg.HTTPAddr,
		"webhook", "/api/v1/webhook/messages",
		"health", "/healthz, /readyz")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down webhook server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
