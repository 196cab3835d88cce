package cmd

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/solconnect/messaging-core/config"
	"github.com/solconnect/messaging-core/internal/adminhttp"
	"github.com/solconnect/messaging-core/internal/bus"
	"github.com/solconnect/messaging-core/internal/failover"
	"github.com/solconnect/messaging-core/internal/health"
	"github.com/solconnect/messaging-core/internal/observability"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/transport"
)

// NewApp wires every Provide* function from providers.go into the fx
// dependency graph and registers the lifecycle hooks that bring the Core
// up: the initial relay connection, the health monitor's ping loop and the
// admin HTTP surface. On stop the health monitor, the Bus and the
// observability provider are shut down; the admin HTTP listener is not.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideObservability,
			ProvideStore,
			ProvideEventBus,
			ProvideHealthMonitor,
			ProvideRelayDirectory,
			ProvideFailoverEngine,
			ProvideReactionEngine,
			ProvideSyncEngine,
			ProvideBus,
			ProvideAdminHTTP,
		),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle dials the first relay endpoint, starts the health
// monitor against that connection, and starts the admin HTTP listener.
// OnStop cancels the monitor, shuts down the Bus (closing the relay
// connection) and the observability provider; the admin HTTP listener
// keeps running until the process exits.
func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	b *bus.Bus,
	directory *relay.Directory,
	monitor *health.Monitor,
	failoverEngine *failover.Engine,
	admin *adminhttp.Server,
	obs *observability.Provider,
) {
	var monitorCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			endpoint, err := directory.Select(nil)
			if err != nil {
				return fmt.Errorf("cmd: selecting initial relay endpoint: %w", err)
			}

			t := transport.NewWebSocket()
			if err := t.Connect(ctx, endpoint.URL); err != nil {
				return fmt.Errorf("cmd: connecting to relay %s: %w", endpoint.URL, err)
			}
			b.Init(t, endpoint.ID)

			var monitorCtx context.Context
			monitorCtx, monitorCancel = context.WithCancel(context.Background())
			go monitor.Run(monitorCtx, t, endpoint.ID)

			go func() {
				if err := admin.ListenAndServe(cfg.AdminHTTP.ListenAddr); err != nil {
					obs.Logger.Warn("cmd: admin HTTP server exited", "err", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if monitorCancel != nil {
				monitorCancel()
			}
			b.Shutdown()
			return obs.Shutdown(ctx)
		},
	})
}
