package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/authority"
	"github.com/DoyleJ11/uki-sync/internal/config"
	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/internal/httpapi"
	"github.com/DoyleJ11/uki-sync/internal/journal"
	"github.com/DoyleJ11/uki-sync/internal/logging"
	"github.com/DoyleJ11/uki-sync/internal/metrics"
	"github.com/DoyleJ11/uki-sync/internal/registry"
	"github.com/DoyleJ11/uki-sync/internal/ws"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	envFile   string
	port      string
	layout    string
	heartbeat time.Duration
	tick      time.Duration
	dbURL     string
	logLevel  string
	logFormat string
	origins   []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "uki-server",
		Short:        "Holds the authoritative sculpture state and syncs it to remotes.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.origins)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fl.StringVar(&f.port, "port", "", "listen port (UKI_PORT)")
	fl.StringVar(&f.layout, "layout", "", "actuator layout: dual or single (UKI_LAYOUT)")
	fl.DurationVar(&f.heartbeat, "heartbeat", 0, "heartbeat broadcast interval (UKI_HEARTBEAT_INTERVAL)")
	fl.DurationVar(&f.tick, "tick", 0, "authority tick interval (UKI_TICK_INTERVAL)")
	fl.StringVar(&f.dbURL, "database-url", "", "postgres DSN for the command journal (DATABASE_URL)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	fl.StringVar(&f.logFormat, "log-format", "", "console or json (LOG_FORMAT)")
	fl.StringSliceVar(&f.origins, "allow-origin", nil, "browser origins allowed to open /ws")
	return cmd
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Server, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("layout") {
		if cfg.Layout, err = engine.ParseLayout(f.layout); err != nil {
			return nil, err
		}
	}
	if changed("heartbeat") {
		cfg.HeartbeatInterval = f.heartbeat
	}
	if changed("tick") {
		cfg.TickInterval = f.tick
	}
	if changed("database-url") {
		cfg.DatabaseURL = f.dbURL
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Server, origins []string) (err error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	g, ctx := errgroup.WithContext(ctx)

	var j journal.Journal = journal.Nop{}
	if cfg.DatabaseURL != "" {
		store, openErr := journal.Open(cfg.DatabaseURL)
		if openErr != nil {
			return fmt.Errorf("open journal: %w", openErr)
		}
		defer func() { err = multierr.Append(err, store.Close()) }()

		rec := journal.NewRecorder(store, logger.Named("journal"), journal.WithDroppedCounter(m.JournalDropped))
		g.Go(func() error { return rec.Run(ctx) })
		j = rec
		logger.Info("command journal enabled")
	}

	a := authority.New(cfg.Layout, registry.New(),
		authority.WithHeartbeatInterval(cfg.HeartbeatInterval),
		authority.WithJournal(j),
		authority.WithMetrics(m),
		authority.WithLogger(logger.Named("authority")),
	)
	loop := authority.NewLoop(a,
		authority.WithTickInterval(cfg.TickInterval),
		authority.WithLoopLogger(logger.Named("loop")),
	)
	g.Go(func() error { return loop.Run(ctx) })

	wsOpts := []ws.ServerOption{ws.WithServerLogger(logger.Named("ws"))}
	if len(origins) > 0 {
		wsOpts = append(wsOpts, ws.WithOriginPatterns(origins...))
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           httpapi.SetupRoutes(loop, ws.NewServer(loop, wsOpts...), reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Strings("actuators", cfg.Layout.Names()),
			zap.Duration("heartbeat", cfg.HeartbeatInterval))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
