package model

import "time"

// RelayEndpoint is a catalog entry for one relay server, carrying the
// health/latency/quality metadata RelayDirectory selection strategies read.
type RelayEndpoint struct {
	ID                 string
	URL                string
	Region             string
	Priority           int
	MaxConnections     int
	CurrentConnections int
	IsHealthy          bool
	QualityScore       int // [0,100]
	LatencyMillis      int64
	LastHealthCheck    time.Time
}

// HasCapacity reports whether the endpoint can accept one more connection.
func (e *RelayEndpoint) HasCapacity() bool {
	return e.MaxConnections <= 0 || e.CurrentConnections < e.MaxConnections
}

// Eligible reports whether the endpoint passes the selection filters common
// to every strategy in §4.5: healthy and under its connection cap.
func (e *RelayEndpoint) Eligible() bool {
	return e.IsHealthy && e.HasCapacity()
}
