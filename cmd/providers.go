package cmd

import (
	"github.com/google/uuid"

	"github.com/solconnect/messaging-core/config"
	"github.com/solconnect/messaging-core/internal/adminhttp"
	"github.com/solconnect/messaging-core/internal/bus"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/failover"
	"github.com/solconnect/messaging-core/internal/health"
	"github.com/solconnect/messaging-core/internal/observability"
	"github.com/solconnect/messaging-core/internal/reaction"
	"github.com/solconnect/messaging-core/internal/relay"
	"github.com/solconnect/messaging-core/internal/store"
	syncpkg "github.com/solconnect/messaging-core/internal/sync"
	"github.com/solconnect/messaging-core/internal/transport"
)

// ProvideObservability builds the otel-backed LoggerProvider/MeterProvider
// pair every other provider below pulls its *slog.Logger and counters from.
func ProvideObservability(cfg *config.Config) (*observability.Provider, error) {
	return observability.New(cfg.ServiceName)
}

// ProvideStore constructs the Core's persistence layer. Memory is the only
// Store this repository ships (spec's durability Non-goal); a future
// SQL-backed implementation satisfies the same interface.
func ProvideStore() store.Store {
	return store.NewMemory()
}

// ProvideEventBus constructs the in-process typed notification bus every
// other component publishes onto.
func ProvideEventBus(p *observability.Provider) *eventbus.Bus {
	return eventbus.New(p.Logger)
}

func parseStrategy(s string) relay.Strategy {
	switch s {
	case "least_connections":
		return relay.LeastConnections
	case "weighted":
		return relay.Weighted
	case "geographic":
		return relay.Geographic
	default:
		return relay.RoundRobin
	}
}

// ProvideHealthMonitor constructs the HealthMonitor, which doubles as the
// relay.Prober RelayDirectory uses to refresh endpoint health.
func ProvideHealthMonitor(cfg *config.Config, eb *eventbus.Bus, p *observability.Provider) *health.Monitor {
	thresholds := health.Thresholds{
		LatencyWarningMillis:  cfg.Health.LatencyWarningMillis,
		LatencyCriticalMillis: cfg.Health.LatencyCriticalMillis,
		MissedPingsCritical:   cfg.Health.MissedPingsCritical,
	}
	return health.New(eb, cfg.Health.PingCadence, thresholds, p.Logger)
}

// ProvideRelayDirectory constructs the RelayDirectory, seeded from
// cfg.Relay.Seeds, using the HealthMonitor as its Prober.
func ProvideRelayDirectory(cfg *config.Config, monitor *health.Monitor) *relay.Directory {
	d := relay.New(parseStrategy(cfg.Relay.Strategy), cfg.Relay.Region, monitor)
	for _, url := range cfg.Relay.Seeds {
		d.Upsert(&model.RelayEndpoint{
			ID:        uuid.NewString(),
			URL:       url,
			IsHealthy: true,
		})
	}
	return d
}

// ProvideFailoverEngine constructs the FailoverEngine, dialing fresh
// transport.WebSocket connections on every relay switch.
func ProvideFailoverEngine(directory *relay.Directory, st store.Store, eb *eventbus.Bus, p *observability.Provider) *failover.Engine {
	e := failover.New(directory, st, eb, func() transport.Transport { return transport.NewWebSocket() }, p.Logger)
	e.AttachCounter(p.Counters.FailoverCount)
	e.AttachTracer(p.Tracer)
	return e
}

// ProvideReactionEngine constructs the ReactionEngine.
func ProvideReactionEngine(st store.Store, eb *eventbus.Bus) (*reaction.Engine, error) {
	return reaction.New(st, eb)
}

// ProvideSyncEngine constructs the SyncEngine with cfg's conflict
// resolution strategy.
func ProvideSyncEngine(cfg *config.Config, st store.Store, eb *eventbus.Bus) *syncpkg.Engine {
	strategy := syncpkg.VectorClockWinner
	switch cfg.Sync.ConflictStrategy {
	case "latest":
		strategy = syncpkg.Latest
	case "merge":
		strategy = syncpkg.Merge
	}
	resolver := syncpkg.NewConflictResolver(strategy, cfg.LocalDevice)
	return syncpkg.New(st, eb, resolver)
}

// ProvideBus constructs the MessageBus façade and wires the observability
// counters this process's Provider exposes into it.
func ProvideBus(
	cfg *config.Config,
	st store.Store,
	eb *eventbus.Bus,
	reactions *reaction.Engine,
	syncEngine *syncpkg.Engine,
	directory *relay.Directory,
	failoverEngine *failover.Engine,
	p *observability.Provider,
) *bus.Bus {
	receiptCfg := bus.ReceiptConfig{
		DebounceWindow: cfg.Receipt.DebounceWindow,
		SizeCap:        cfg.Receipt.SizeCap,
		MaxRetries:     cfg.Receipt.MaxRetries,
	}
	b := bus.New(st, eb, reactions, syncEngine, directory, failoverEngine, cfg.LocalDevice, receiptCfg, p.Logger)
	b.AttachObservability(p.Counters.MessagesSent, p.Counters.QueueDepth, p.Counters.DecryptFailures)
	return b
}

// ProvideAdminHTTP constructs the operator-facing HTTP surface.
func ProvideAdminHTTP(b *bus.Bus, directory *relay.Directory, p *observability.Provider) *adminhttp.Server {
	return adminhttp.New(b, directory, p.Logger)
}
