package state

import "time"

var (
	// Infinity is the unreachable sentinel for distance-vector costs. 16
	// keeps parity with RIP's count-to-infinity bound.
	Infinity Cost = 16

	// DefaultHeartbeat is the periodic re-advertisement interval used when
	// a scenario does not set one.
	DefaultHeartbeat = 500 * time.Millisecond

	// DefaultTick is the clock granularity the host delivers to engines.
	DefaultTick = 25 * time.Millisecond
)
