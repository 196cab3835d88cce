package model

import (
	"maps"
	"sort"
	"strings"
)

// VectorClock is a per-device monotone counter map used to causally order
// events without a shared wall clock. The zero value is a valid, empty
// clock.
type VectorClock map[string]uint64

// Clone returns an independent copy so callers never mutate a clock another
// component still holds a reference to.
func (vc VectorClock) Clone() VectorClock {
	if vc == nil {
		return VectorClock{}
	}
	return maps.Clone(vc)
}

// Get returns the counter for device, defaulting to 0 when absent.
func (vc VectorClock) Get(device string) uint64 {
	return vc[device]
}

// Sum is used as the first ConflictResolver tie-breaker for Concurrent
// clocks (§4.1).
func (vc VectorClock) Sum() uint64 {
	var total uint64
	for _, v := range vc {
		total += v
	}
	return total
}

// Equal reports whether two clocks hold identical counters (missing devices
// and devices present with a 0 counter compare equal).
func (vc VectorClock) Equal(other VectorClock) bool {
	return vc.Compare(other) == Equal
}

// unionDevices returns a sorted slice of every device id present in either
// clock (zero counters included); Compare uses it for deterministic
// iteration.
func unionDevices(a, b VectorClock) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for d := range a {
		seen[d] = struct{}{}
	}
	for d := range b {
		seen[d] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Ordering is the result of comparing two VectorClocks.
type Ordering int8

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "="
	case Before:
		return "<"
	case After:
		return ">"
	default:
		return "||"
	}
}

// Compare implements §4.1's compare(a,b): Before if every component of a is
// <= b with at least one strict, After symmetrically, Equal if identical,
// Concurrent otherwise.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	lessSomewhere, greaterSomewhere := false, false
	for _, d := range unionDevices(vc, other) {
		a, b := vc.Get(d), other.Get(d)
		switch {
		case a < b:
			lessSomewhere = true
		case a > b:
			greaterSomewhere = true
		}
	}
	switch {
	case !lessSomewhere && !greaterSomewhere:
		return Equal
	case lessSomewhere && !greaterSomewhere:
		return Before
	case !lessSomewhere && greaterSomewhere:
		return After
	default:
		return Concurrent
	}
}

// String renders a clock deterministically for logs and tests.
func (vc VectorClock) String() string {
	devices := make([]string, 0, len(vc))
	for d := range vc {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		parts = append(parts, d+":"+itoa(vc[d]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
