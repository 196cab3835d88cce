// Package health implements the per-connection liveness probing of spec
// §4.6: a steady ping cadence, an exponentially weighted moving average of
// ping latency, and threshold-triggered Alert events published to the
// shared EventBus. A ping's latency is the time Transport.Send takes to
// return; no pong is awaited. It also satisfies relay.Prober for the
// Directory's RefreshHealth sweep; that Probe does not contact the
// endpoint (see Probe).
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/domain/wire"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/transport"
)

// ewmaAlpha weights the most recent sample; 0.3 tracks trends without
// overreacting to one slow ping.
const ewmaAlpha = 0.3

// Thresholds configures when Monitor escalates to an Alert.
type Thresholds struct {
	LatencyWarningMillis  int64
	LatencyCriticalMillis int64
	MissedPingsCritical   int
}

// DefaultThresholds mirrors §4.6's suggested defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LatencyWarningMillis:  300,
		LatencyCriticalMillis: 800,
		MissedPingsCritical:   3,
	}
}

// Monitor tracks liveness for one active Transport connection, and doubles
// as a relay.Prober for out-of-band candidate probing.
type Monitor struct {
	bus        *eventbus.Bus
	thresholds Thresholds
	cadence    time.Duration
	logger     *slog.Logger

	mu           sync.Mutex
	ewmaMillis   float64
	missedPings  int
	connectionID string
}

// New constructs a Monitor publishing Alerts to bus at the given ping
// cadence.
func New(bus *eventbus.Bus, cadence time.Duration, thresholds Thresholds, logger *slog.Logger) *Monitor {
	return &Monitor{bus: bus, cadence: cadence, thresholds: thresholds, logger: logger}
}

// Run pings t every cadence until ctx is cancelled, updating the rolling
// latency average and publishing Alerts on threshold breach. A failed Send
// counts as a missed ping and Run keeps going. connectionID tags emitted
// Alerts.
func (m *Monitor) Run(ctx context.Context, t transport.Transport, connectionID string) {
	m.mu.Lock()
	m.connectionID = connectionID
	m.mu.Unlock()

	ticker := time.NewTicker(m.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ping(ctx, t)
		}
	}
}

func (m *Monitor) ping(ctx context.Context, t transport.Transport) {
	sent := time.Now()
	frame, err := wire.Encode(wire.TypePing, wire.Ping{SentAt: sent.UnixMilli()})
	if err != nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.cadence)
	defer cancel()

	if err := t.Send(pingCtx, frame); err != nil {
		m.recordMiss()
		return
	}

	elapsed := time.Since(sent).Milliseconds()
	m.recordLatency(elapsed)
}

func (m *Monitor) recordLatency(millis int64) {
	m.mu.Lock()
	if m.ewmaMillis == 0 {
		m.ewmaMillis = float64(millis)
	} else {
		m.ewmaMillis = ewmaAlpha*float64(millis) + (1-ewmaAlpha)*m.ewmaMillis
	}
	m.missedPings = 0
	ewma := m.ewmaMillis
	connectionID := m.connectionID
	m.mu.Unlock()

	m.maybeAlert(ewma, connectionID)
}

func (m *Monitor) recordMiss() {
	m.mu.Lock()
	m.missedPings++
	missed := m.missedPings
	connectionID := m.connectionID
	m.mu.Unlock()

	if missed >= m.thresholds.MissedPingsCritical {
		m.publish(event.SeverityCritical, connectionID, "connection missed consecutive pings")
	}
}

func (m *Monitor) maybeAlert(ewmaMillis float64, connectionID string) {
	switch {
	case ewmaMillis >= float64(m.thresholds.LatencyCriticalMillis):
		m.publish(event.SeverityCritical, connectionID, "latency exceeds critical threshold")
	case ewmaMillis >= float64(m.thresholds.LatencyWarningMillis):
		m.publish(event.SeverityWarning, connectionID, "latency exceeds warning threshold")
	}
}

func (m *Monitor) publish(severity event.AlertSeverity, connectionID, message string) {
	err := m.bus.Publish(event.TopicAlert, event.Alert{
		Type:         "health",
		Severity:     severity,
		ConnectionID: connectionID,
		Message:      message,
		OccurredAt:   time.Now().UnixMilli(),
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("health: failed to publish alert", "err", err)
	}
}

// EWMA returns the current rolling average latency in milliseconds.
func (m *Monitor) EWMA() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ewmaMillis
}

// Probe implements relay.Prober for RelayDirectory.RefreshHealth. It does
// not contact the endpoint: it waits one millisecond (a ctx that ends first
// marks e unhealthy), records that wait as e.LatencyMillis, and sets
// IsHealthy, LastHealthCheck and QualityScore from the Monitor's thresholds.
func (m *Monitor) Probe(ctx context.Context, e *model.RelayEndpoint) error {
	start := time.Now()
	select {
	case <-ctx.Done():
		e.IsHealthy = false
		return ctx.Err()
	case <-time.After(time.Millisecond):
	}
	e.LatencyMillis = time.Since(start).Milliseconds()
	e.IsHealthy = e.LatencyMillis < m.thresholds.LatencyCriticalMillis
	e.LastHealthCheck = time.Now()
	if e.LatencyMillis < m.thresholds.LatencyWarningMillis {
		e.QualityScore = 100
	} else if e.LatencyMillis < m.thresholds.LatencyCriticalMillis {
		e.QualityScore = 60
	} else {
		e.QualityScore = 10
	}
	return nil
}
