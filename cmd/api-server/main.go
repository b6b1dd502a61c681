package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/app"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "api-server: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var store string

	root := &cobra.Command{
		Use:           "api-server",
		Short:         "Clinic appointment booking API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&store, "store", "", "storage backend: postgres or memory (overrides STORE)")

	load := func() (config.Config, zerolog.Logger, error) {
		if store != "" {
			_ = os.Setenv("STORE", store)
		}
		cfg, err := config.Load()
		if err != nil {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("config load: %w", err)
		}
		logger := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "api-server").Logger()
		return cfg, logger, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, logger)
		},
	})

	// Running the binary without a subcommand serves.
	root.RunE = serveCmd.RunE
	return root
}

func serve(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.Store).
		Str("notify", cfg.NotifyBackend).
		Msg("api-server starting up")

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.Close()

	go func() {
		if err := a.RunRelay(rootCtx); err != nil {
			logger.Error().Err(err).Msg("notification relay stopped")
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Schedules:    a.Schedules,
		Clinics:      a.Clinics,
		Appointments: a.Appointments,
		Slots:        a.Slots,
		Messaging:    a.Messaging,
		Issuer:       a.Issuer,
		Hub:          a.Hub,
		Emitter:      a.Emitter,
		Origins:      cfg.AllowedOrigins,
		Health:       api.NewHealthHandler(a.Pool, a.Redis, cfg.Env, version),
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("api-server stopped")
	return nil
}

func migrate(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		return err
	}
	logger.Info().Msg("schema applied")
	return nil
}
