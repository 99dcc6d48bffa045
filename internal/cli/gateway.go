package cli

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/channel"
	"github.com/soyeahso/baogate/internal/channel/irc"
	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/gateway"
	"github.com/soyeahso/baogate/internal/hooks"
	"github.com/soyeahso/baogate/internal/llm"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/soyeahso/baogate/internal/routing"
	"github.com/soyeahso/baogate/internal/store"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the baogate gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			runLog, closeLog, err := logging.Open(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				File:   cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runGateway(ctx, cfg, runLog)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// runGateway wires providers, sessions, hooks and front-ends, then serves
// until ctx is cancelled.
func runGateway(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	hookMgr := hooks.NewManager(log)
	hookMgr.RegisterCommands(cfg.Hooks.Commands)

	registry, err := llm.NewRegistryFromConfig(cfg.Provider, log)
	if err != nil {
		return err
	}
	log.Info().
		Strs("providers", registry.List()).
		Str("model", cfg.Provider.Model).
		Msg("conversation model configured")

	sessions, closeStore, err := openSessionStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rc, err := agent.RunnerConfigFromConfig(cfg)
	if err != nil {
		return err
	}
	runner := agent.NewRunner(rc, registry, sessions, hookMgr, log)

	channels := channel.NewRegistry(log)
	if ircCfg := cfg.Channels.IRC; ircCfg != nil && ircCfg.Enabled {
		ircCh := irc.New(*ircCfg, log)
		channels.Register(ircCh)

		names := func() []string {
			return append([]string{ircCh.Nick()}, slices.Clone(cfg.Persona.BotNames)...)
		}
		timeout := time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second
		routing.NewRouter(channels, runner, names, timeout, log).Wire(ctx)
	}
	if channels.Count() > 0 {
		if err := channels.StartAll(ctx); err != nil {
			return fmt.Errorf("starting channels: %w", err)
		}
		defer channels.StopAll(context.Background())
		log.Info().Strs("channels", channels.List()).Msg("message routing active")
	}

	srv := gateway.New(cfg, runner, log,
		gateway.WithHooks(hookMgr),
		gateway.WithChannels(channels),
	)
	return srv.Start(ctx)
}

// openSessionStore returns the configured session store and its closer.
func openSessionStore(cfg config.Config, log *logging.Logger) (agent.SessionStore, func() error, error) {
	if cfg.Session.Store != "sqlite" {
		log.Info().Msg("using in-memory session store")
		return agent.NewMemorySessionStore(), func() error { return nil }, nil
	}

	dbPath := paths.DatabasePath(&cfg)
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("using SQLite session store")
	return store.NewSQLiteSessionStore(db), db.Close, nil
}
