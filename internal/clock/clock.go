// Package clock implements the pure vector-clock algebra of spec §4.1:
// increment, merge, compare, and the Concurrent tie-breakers used by the
// sync ConflictResolver. Nothing here touches I/O; every function is a
// value-in, value-out transform on model.VectorClock.
package clock

import (
	"strings"

	"github.com/solconnect/messaging-core/internal/domain/model"
)

// Increment returns clock with device's counter incremented by one,
// defaulting an absent device to 0 first.
func Increment(vc model.VectorClock, device string) model.VectorClock {
	out := vc.Clone()
	out[device] = out[device] + 1
	return out
}

// Merge implements §4.1's merge(local, remote, localDevice): pointwise
// maximum over the union of device ids, then increment localDevice by one.
// This is the rule used whenever the Core *observes* a remote clock — it is
// never conditional on call site, resolving the Open Question in spec §9.
func Merge(local, remote model.VectorClock, localDevice string) model.VectorClock {
	out := local.Clone()
	for device, remoteVal := range remote {
		if remoteVal > out[device] {
			out[device] = remoteVal
		}
	}
	out[localDevice] = out[localDevice] + 1
	return out
}

// Compare returns the causal ordering of a relative to b (see
// model.VectorClock.Compare for the definition).
func Compare(a, b model.VectorClock) model.Ordering {
	return a.Compare(b)
}

// ConcurrentWinner applies the §4.1 tie-breakers to a set of pairwise
// Concurrent clocks, returning the index of the winner: (1) larger sum(vc),
// (2) larger wall-clock createdAt, (3) larger device_id (lexicographic).
// Callers pass parallel slices; all three must have equal, positive length.
func ConcurrentWinner(vcs []model.VectorClock, createdAt []int64, deviceIDs []string) int {
	winner := 0
	for i := 1; i < len(vcs); i++ {
		if isWinner(vcs[i], createdAt[i], deviceIDs[i], vcs[winner], createdAt[winner], deviceIDs[winner]) {
			winner = i
		}
	}
	return winner
}

func isWinner(vc model.VectorClock, createdAt int64, device string, otherVC model.VectorClock, otherCreatedAt int64, otherDevice string) bool {
	if s, os := vc.Sum(), otherVC.Sum(); s != os {
		return s > os
	}
	if createdAt != otherCreatedAt {
		return createdAt > otherCreatedAt
	}
	return strings.Compare(device, otherDevice) > 0
}

// IsInversion reports whether a newly observed clock for device regresses
// relative to the last persisted clock this Core recorded locally for that
// device in the same session — the "clock inversion" consistency failure of
// spec §4.13 and §7 (vc[local] <= existing).
func IsInversion(lastPersisted, incoming model.VectorClock, device string) bool {
	return incoming.Get(device) <= lastPersisted.Get(device)
}
