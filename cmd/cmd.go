package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/solconnect/messaging-core/config"
	"github.com/solconnect/messaging-core/internal/dashboard"
)

const (
	ServiceName      = "messaging-core"
	ServiceNamespace = "solconnect"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "SolConnect decentralized messaging core",
		Commands: []*cli.Command{
			serverCmd(),
			dashboardCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the messaging core",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"), config.Flags())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			watcher, err := config.WatchReload(c.String("config_file"), cfg, slog.Default())
			if err != nil {
				slog.Warn("cmd: config hot-reload disabled", "err", err)
			}
			if watcher != nil {
				defer watcher.Close()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

// dashboardCmd connects to a running Core's same configuration (relay
// seeds, service name) and renders the read-only terminal ops console
// against its own HealthMonitor/RelayDirectory/EventBus instances —
// it does not attach to the running server process, it independently
// health-checks the same relays and listens for the same event classes
// a server instance would emit, for operators without the admin HTTP
// surface handy.
func dashboardCmd() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Run the terminal ops console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"), config.Flags())
			if err != nil {
				return err
			}

			obs, err := ProvideObservability(cfg)
			if err != nil {
				return err
			}
			defer obs.Shutdown(context.Background())

			eb := ProvideEventBus(obs)
			defer eb.Close()

			monitor := ProvideHealthMonitor(cfg, eb, obs)
			directory := ProvideRelayDirectory(cfg, monitor)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			go func() {
				ticker := time.NewTicker(cfg.Health.PingCadence)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						_ = directory.RefreshHealth(ctx)
					}
				}
			}()

			return dashboard.Run(ctx, directory, eb, obs.Logger)
		},
	}
}
