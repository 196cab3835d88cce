// Package dashboard renders a terminal ops console over the same
// EventBus topics and RelayDirectory snapshot the admin HTTP surface
// exposes over JSON, for operators who want a live view without a
// second terminal open on curl. It is a second, independent consumer
// of internal/eventbus.Bus — per that package's contract, subscribing
// here never affects MessageBus's own delivery of the same events.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/solconnect/messaging-core/internal/domain/event"
	"github.com/solconnect/messaging-core/internal/eventbus"
	"github.com/solconnect/messaging-core/internal/relay"
)

// refreshInterval redraws the relay table on this cadence even when no
// event arrives, so endpoint health scores (refreshed independently by
// RelayDirectory.RefreshHealth) are never stale for more than this long.
const refreshInterval = 2 * time.Second

const alertLogCap = 12

// Run draws the console and blocks until ctx is cancelled or the
// operator presses 'q'. It never returns an error for a clean quit;
// only ui.Init failures and event-subscription failures are reported.
func Run(ctx context.Context, directory *relay.Directory, eb *eventbus.Bus, logger *slog.Logger) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("dashboard: init terminal: %w", err)
	}
	defer ui.Close()

	relayList := widgets.NewList()
	relayList.Title = "Relays"
	relayList.TextStyle = ui.NewStyle(ui.ColorWhite)

	alertLog := widgets.NewList()
	alertLog.Title = "Alerts"
	alertLog.TextStyle = ui.NewStyle(ui.ColorYellow)

	failoverGauge := widgets.NewGauge()
	failoverGauge.Title = "Last failover elapsed (ms, capped at 500)"
	failoverGauge.BarColor = ui.ColorGreen

	syncParagraph := widgets.NewParagraph()
	syncParagraph.Title = "Last sync"

	grid := ui.NewGrid()
	width, height := ui.TerminalDimensions()
	grid.SetRect(0, 0, width, height)
	grid.Set(
		ui.NewRow(0.45, ui.NewCol(1.0, relayList)),
		ui.NewRow(0.15, ui.NewCol(1.0, failoverGauge)),
		ui.NewRow(0.15, ui.NewCol(1.0, syncParagraph)),
		ui.NewRow(0.25, ui.NewCol(1.0, alertLog)),
	)

	renderRelays(relayList, directory)
	ui.Render(grid)

	alerts, err := eventbus.Subscribe[event.Alert](ctx, eb, event.TopicAlert)
	if err != nil {
		return fmt.Errorf("dashboard: subscribe alerts: %w", err)
	}
	failovers, err := eventbus.Subscribe[event.FailoverCompleted](ctx, eb, event.TopicFailoverCompleted)
	if err != nil {
		return fmt.Errorf("dashboard: subscribe failovers: %w", err)
	}
	syncs, err := eventbus.Subscribe[event.SyncCompleted](ctx, eb, event.TopicSyncCompleted)
	if err != nil {
		return fmt.Errorf("dashboard: subscribe syncs: %w", err)
	}

	var alertLines []string
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	uiEvents := ui.PollEvents()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(grid)
			}
		case <-ticker.C:
			renderRelays(relayList, directory)
			ui.Render(grid)
		case a, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			alertLines = prependCapped(alertLines, formatAlert(a), alertLogCap)
			alertLog.Rows = alertLines
			ui.Render(grid)
		case f, ok := <-failovers:
			if !ok {
				failovers = nil
				continue
			}
			updateFailoverGauge(failoverGauge, f)
			alertLines = prependCapped(alertLines, formatFailover(f), alertLogCap)
			alertLog.Rows = alertLines
			ui.Render(grid)
		case s, ok := <-syncs:
			if !ok {
				syncs = nil
				continue
			}
			syncParagraph.Text = formatSync(s)
			ui.Render(grid)
		}
	}
}

func renderRelays(l *widgets.List, directory *relay.Directory) {
	endpoints := directory.List()
	rows := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		status := "healthy"
		if !e.IsHealthy {
			status = "unhealthy"
		}
		rows = append(rows, fmt.Sprintf("[%s] %s  region=%s  q=%d  latency=%dms  conns=%d/%d  %s",
			e.ID, e.URL, e.Region, e.QualityScore, e.LatencyMillis,
			e.CurrentConnections, e.MaxConnections, status))
	}
	l.Rows = rows
}

const failoverGaugeCeilingMillis = 500

func updateFailoverGauge(g *widgets.Gauge, f event.FailoverCompleted) {
	pct := int(f.ElapsedMillis * 100 / failoverGaugeCeilingMillis)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	g.Percent = pct
	g.Label = fmt.Sprintf("%dms (%s -> %s)", f.ElapsedMillis, f.OldEndpointID, f.NewEndpointID)
	if f.ElapsedMillis > failoverGaugeCeilingMillis {
		g.BarColor = ui.ColorRed
	} else {
		g.BarColor = ui.ColorGreen
	}
}

func formatAlert(a event.Alert) string {
	sev := "info"
	switch a.Severity {
	case event.SeverityWarning:
		sev = "warn"
	case event.SeverityCritical:
		sev = "crit"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, a.ConnectionID, a.Message)
}

func formatFailover(f event.FailoverCompleted) string {
	return fmt.Sprintf("failover %s -> %s in %dms, preserved=%d lost=%d",
		f.OldEndpointID, f.NewEndpointID, f.ElapsedMillis, f.MessagesPreserved, f.MessagesLost)
}

func formatSync(s event.SyncCompleted) string {
	return fmt.Sprintf("session %s: %d synced, %d conflicts resolved, %dms",
		s.SessionID, s.TotalMessagesSynced, s.ConflictsResolved, s.DurationMillis)
}

func prependCapped(lines []string, line string, limit int) []string {
	lines = append([]string{line}, lines...)
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}
