package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tablegate/internal/config"
	"github.com/JonMunkholm/tablegate/internal/core"
	"github.com/JonMunkholm/tablegate/internal/logging"
	"github.com/JonMunkholm/tablegate/internal/web"
)

const defaultEnvFile = ".env"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags holds the command line overrides applied on top of the environment.
type flags struct {
	envFile string
	port    int
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.envFile, "env-file", defaultEnvFile, "dotenv file to load before reading the environment")
	fs.IntVarP(&f.port, "port", "p", 0, "listen port (overrides SERVER_PORT and PORT)")
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "tablegate",
		Short:         "REST gateway over the tables of a PostgreSQL database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(f.envFile, cmd.Flags().Changed("env-file")); err != nil {
				slog.Error("failed to load env file", "path", f.envFile, "error", err)
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load configuration", "error", err)
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = f.port
				if err := cfg.Validate(); err != nil {
					slog.Error("invalid --port", "error", err)
					return err
				}
			}

			return run(cmd.Context(), cfg)
		},
	}

	f.bind(cmd.Flags())
	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		slog.Info("loaded env file", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		slog.Info("no env file found, using environment variables")
		return nil
	}
	return err
}

func run(parent context.Context, cfg *config.Config) error {
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer pool.Close()

	service, err := core.NewService(pool, core.Options{IdentifierPolicy: cfg.SQL.IdentifierPolicy})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		return err
	}

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}

// openPool builds the pgx pool from cfg and verifies it with a ping.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "max_conns", cfg.MaxConns)
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
