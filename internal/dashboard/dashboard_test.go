package dashboard

import (
	"strings"
	"testing"

	"github.com/gizak/termui/v3/widgets"

	"github.com/solconnect/messaging-core/internal/domain/event"
)

func TestFormatAlertIncludesSeverity(t *testing.T) {
	line := formatAlert(event.Alert{
		Severity:     event.SeverityCritical,
		ConnectionID: "conn-1",
		Message:      "missed 3 pings",
	})
	if !strings.Contains(line, "crit") || !strings.Contains(line, "conn-1") {
		t.Fatalf("unexpected alert line: %q", line)
	}
}

func TestUpdateFailoverGaugeCapsAtCeiling(t *testing.T) {
	g := widgets.NewGauge()
	updateFailoverGauge(g, eventFailover(10_000))
	if g.Percent != 100 {
		t.Fatalf("expected gauge capped at 100, got %d", g.Percent)
	}
}

func TestUpdateFailoverGaugeUnderCeilingIsProportional(t *testing.T) {
	g := widgets.NewGauge()
	updateFailoverGauge(g, eventFailover(250))
	if g.Percent != 50 {
		t.Fatalf("expected 50%% for 250ms against a 500ms ceiling, got %d", g.Percent)
	}
}

func TestPrependCappedDropsOldest(t *testing.T) {
	lines := []string{"a", "b"}
	lines = prependCapped(lines, "c", 2)
	if len(lines) != 2 || lines[0] != "c" || lines[1] != "a" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func eventFailover(elapsedMillis int64) event.FailoverCompleted {
	return event.FailoverCompleted{
		OldEndpointID: "r1", NewEndpointID: "r2", ElapsedMillis: elapsedMillis,
	}
}
