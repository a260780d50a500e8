package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/config"
	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/DoyleJ11/uki-sync/internal/logging"
	"github.com/DoyleJ11/uki-sync/internal/prefs"
	"github.com/DoyleJ11/uki-sync/internal/remote"
	"github.com/DoyleJ11/uki-sync/internal/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	envFile   string
	server    string
	prefsPath string
	layout    string
	watchdog  time.Duration
	frame     time.Duration
	logLevel  string
	logFormat string
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "uki-remote",
		Short: "Terminal remote for the UKI sculpture.",
		Long: `Connects to a uki-server and mirrors the sculpture state.

Commands read from stdin:
  mode <actuator> <n>      e.g. "mode leg 2"
  speed <actuator> <0..1>  e.g. "speed wing 0.5"
  address <host:port>      switch server (remembered for next time)
  quit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			layout, err := engine.ParseLayout(f.layout)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, layout, f.verbose, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fl.StringVar(&f.server, "server", "", "server address, overrides the saved one (UKI_SERVER_ADDRESS)")
	fl.StringVar(&f.prefsPath, "prefs", "", "preferences file (UKI_PREFS_PATH)")
	fl.StringVar(&f.layout, "layout", "dual", "actuator layout of the sculpture: dual or single")
	fl.DurationVar(&f.watchdog, "watchdog", 0, "reconnect after this long without server traffic (UKI_WATCHDOG_TIMEOUT)")
	fl.DurationVar(&f.frame, "frame", 0, "state machine frame interval (UKI_FRAME_INTERVAL)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	fl.StringVar(&f.logFormat, "log-format", "", "console or json (LOG_FORMAT)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "print debug text for every state received")
	return cmd
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Remote, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadRemote()
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("server") {
		cfg.ServerAddress = f.server
	}
	if changed("prefs") {
		cfg.PrefsPath = f.prefsPath
	}
	if changed("watchdog") {
		cfg.WatchdogTimeout = f.watchdog
	}
	if changed("frame") {
		cfg.FrameInterval = f.frame
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Remote, layout engine.Layout, verbose bool, in io.Reader, out io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return err
	}
	address := cfg.ServerAddress
	if address == "" {
		if address, err = store.ServerAddress(); err != nil {
			logger.Warn("reading preferences failed, using default address", zap.String("path", store.Path()), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	console := remote.NewConsole(out, verbose)
	client := ws.NewClient(ws.WithClientLogger(logger.Named("ws")))
	agent := remote.New(layout, client, address,
		remote.WithPrefs(store),
		remote.WithDisplay(console),
		remote.WithLogger(logger.Named("agent")),
		remote.WithWatchdogTimeout(cfg.WatchdogTimeout),
		remote.WithRetryAfter(cfg.RetryAfter),
		remote.WithFrameInterval(cfg.FrameInterval),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agent.Run(ctx) })

	// stdin cannot be interrupted, so the reader is not part of the group.
	go readCommands(ctx, in, console, layout, agent, quit)

	return g.Wait()
}

func readCommands(ctx context.Context, in io.Reader, console *remote.Console, layout engine.Layout, agent *remote.Agent, quit context.CancelFunc) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		msg, err := remote.ParseLine(layout, scanner.Text())
		if errors.Is(err, remote.ErrQuit) {
			quit()
			return
		}
		if err != nil {
			console.Println(err.Error())
			continue
		}
		if msg == nil {
			continue
		}
		if err := agent.Send(ctx, msg); err != nil {
			return
		}
	}
}
