package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aopkg/aopkg-server/internal/api"
	"github.com/aopkg/aopkg-server/internal/artifacts"
	"github.com/aopkg/aopkg-server/internal/config"
	"github.com/aopkg/aopkg-server/internal/db"
	"github.com/aopkg/aopkg-server/internal/fetcher"
	"github.com/aopkg/aopkg-server/internal/ingest"
	"github.com/aopkg/aopkg-server/internal/logging"
	"github.com/aopkg/aopkg-server/internal/oauth"
	"github.com/aopkg/aopkg-server/internal/store"
	"github.com/aopkg/aopkg-server/internal/store/inmemory"
	"github.com/aopkg/aopkg-server/internal/store/postgres"
	"github.com/aopkg/aopkg-server/internal/telemetry"
	"github.com/aopkg/aopkg-server/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the package registry server",
	Long: `Start the HTTP server that accepts package uploads, serves package
queries and downloads, and ingests GitHub release webhooks.

Without a database section in the configuration the server runs on an
in-memory store that does not survive restarts.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 30 * time.Second
	serverWriteTimeout     = 60 * time.Second
	serverIdleTimeout      = 60 * time.Second

	identityHeader = "X-User-ID"
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	for _, flag := range []string{"address", "config"} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	art := artifacts.New(cfg.DataDir)

	var st store.Store
	if cfg.Database != nil {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		st = postgres.New(pool, art, logger)
		logger.Info("using postgres store",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database),
		)
	} else {
		st = inmemory.New(art)
		logger.Warn("no database configured, packages will not survive restarts")
	}

	metrics := telemetry.NewMetrics()
	ing := ingest.New(st, logger)
	fetch := fetcher.New(cfg.GitHub, logger, fetcher.WithMetrics(metrics))
	trigger := webhook.New(st, fetch, ing, logger)

	var identity api.IdentityResolver
	if cfg.OAuth.ClientID != "" {
		identity = api.TokenIdentity{Verifier: oauth.New(cfg.OAuth)}
		logger.Info("resolving upload identity through OAuth tokens")
	} else {
		identity = api.HeaderIdentity{Header: identityHeader}
		logger.Warn("resolving upload identity from request header",
			zap.String("header", identityHeader),
		)
	}

	routes := api.NewRoutes(st, ing, trigger, art, identity, metrics, logger)
	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      api.NewServer(routes, metrics, logger),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server listening", zap.String("address", cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

// loadConfig reads the config file when one is given and applies flag
// overrides.
func loadConfig() (*config.Config, error) {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	var cfg *config.Config
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if address := viper.GetString("address"); address != "" {
		cfg.Address = address
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
