// Package relay maintains the catalog of known relay endpoints and picks
// one for FailoverEngine to connect to (spec §4.5). Candidate health is
// refreshed by probing every endpoint concurrently via errgroup, the same
// bounded-fan-out shape the teacher's AMQP router uses for per-node setup,
// applied here to endpoint health instead of queue binding.
package relay

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solconnect/messaging-core/internal/domain/model"
)

// Strategy selects one endpoint from a pool of eligible candidates.
type Strategy int8

const (
	RoundRobin Strategy = iota
	LeastConnections
	Weighted
	Geographic
)

// Prober checks one endpoint's liveness and reports fresh health fields.
// The real implementation lives in internal/health; Directory only
// depends on this narrow capability so it can be faked in tests.
type Prober interface {
	Probe(ctx context.Context, endpoint *model.RelayEndpoint) error
}

// Directory holds the known relay endpoints and selects one per Strategy.
type Directory struct {
	mu        sync.Mutex
	prober    Prober
	strategy  Strategy
	region    string // used by Geographic
	endpoints map[string]*model.RelayEndpoint
	rrCursor  int
	rng       *rand.Rand // entropy source for Weighted
}

// New constructs a Directory. region is the local preference used by the
// Geographic strategy; it may be empty if unused.
func New(strategy Strategy, region string, prober Prober) *Directory {
	return &Directory{
		prober:    prober,
		strategy:  strategy,
		region:    region,
		endpoints: make(map[string]*model.RelayEndpoint),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Upsert adds or replaces an endpoint in the catalog.
func (d *Directory) Upsert(e *model.RelayEndpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *e
	d.endpoints[e.ID] = &cp
}

// RefreshHealth probes every known endpoint concurrently, bounded at 8
// in flight, and updates each endpoint's health fields in place.
func (d *Directory) RefreshHealth(ctx context.Context) error {
	d.mu.Lock()
	snapshot := make([]*model.RelayEndpoint, 0, len(d.endpoints))
	for _, e := range d.endpoints {
		snapshot = append(snapshot, e)
	}
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range snapshot {
		e := e
		g.Go(func() error {
			_ = d.prober.Probe(gctx, e)
			return nil
		})
	}
	return g.Wait()
}

// ErrNoHealthyRelays reports that Select found no eligible endpoint.
type ErrNoHealthyRelays struct{ Strategy Strategy }

func (e *ErrNoHealthyRelays) Error() string {
	return "relay: no healthy relays available for strategy " + strategyName(e.Strategy)
}

func strategyName(s Strategy) string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case LeastConnections:
		return "least_connections"
	case Weighted:
		return "weighted"
	case Geographic:
		return "geographic"
	default:
		return "unknown"
	}
}

// Select returns the best endpoint per the Directory's configured
// Strategy, excluding any endpoint id in exclude (already tried and
// failed this failover attempt).
func (d *Directory) Select(exclude map[string]struct{}) (*model.RelayEndpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var eligible []*model.RelayEndpoint
	for _, e := range d.endpoints {
		if _, skip := exclude[e.ID]; skip {
			continue
		}
		if e.Eligible() {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return nil, &ErrNoHealthyRelays{Strategy: d.strategy}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	switch d.strategy {
	case LeastConnections:
		sort.Slice(eligible, func(i, j int) bool {
			return eligible[i].CurrentConnections < eligible[j].CurrentConnections
		})
		return clone(eligible[0]), nil
	case Weighted:
		return clone(d.selectWeighted(eligible)), nil
	case Geographic:
		var inRegion []*model.RelayEndpoint
		for _, e := range eligible {
			if e.Region == d.region {
				inRegion = append(inRegion, e)
			}
		}
		if len(inRegion) == 0 {
			inRegion = eligible
		}
		sort.Slice(inRegion, func(i, j int) bool {
			return inRegion[i].LatencyMillis < inRegion[j].LatencyMillis
		})
		return clone(inRegion[0]), nil
	default: // RoundRobin
		idx := d.rrCursor % len(eligible)
		d.rrCursor++
		return clone(eligible[idx]), nil
	}
}

// selectWeighted runs spec §4.5's Weighted strategy: sampling with
// probability proportional to QualityScore, ties (equal score) broken by
// lower latency. Candidates are sorted (score desc, latency asc); when the
// roulette-wheel walk below lands on any member of a group with equal
// QualityScore, that group's first, lowest-latency member is returned, so
// the group's combined weight goes to that one endpoint.
func (d *Directory) selectWeighted(eligible []*model.RelayEndpoint) *model.RelayEndpoint {
	candidates := make([]*model.RelayEndpoint, len(eligible))
	copy(candidates, eligible)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].QualityScore != candidates[j].QualityScore {
			return candidates[i].QualityScore > candidates[j].QualityScore
		}
		return candidates[i].LatencyMillis < candidates[j].LatencyMillis
	})

	var total int
	for _, e := range candidates {
		if e.QualityScore > 0 {
			total += e.QualityScore
		}
	}
	if total <= 0 {
		return candidates[0]
	}

	target := d.rng.Intn(total)
	cumulative := 0
	for _, e := range candidates {
		if e.QualityScore <= 0 {
			continue
		}
		cumulative += e.QualityScore
		if target < cumulative {
			for _, c := range candidates {
				if c.QualityScore == e.QualityScore {
					return c
				}
			}
		}
	}
	return candidates[0]
}

func clone(e *model.RelayEndpoint) *model.RelayEndpoint {
	cp := *e
	return &cp
}

// List returns a snapshot of every known endpoint, sorted by id.
func (d *Directory) List() []*model.RelayEndpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.RelayEndpoint, 0, len(d.endpoints))
	for _, e := range d.endpoints {
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
