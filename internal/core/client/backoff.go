package client

import (
	"math"
	"time"
)

// Policy decides how long a periodic loop waits before its next cycle.
// Multiplier 1 keeps the cadence flat at Base; larger values grow the wait
// after consecutive failing cycles, capped at Max.
type Policy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// Flat waits d between cycles regardless of failures.
func Flat(d time.Duration) Policy {
	return Policy{Base: d, Max: d, Multiplier: 1}
}

// Delay returns the wait after the given number of consecutive failed cycles.
func (p Policy) Delay(failures int) time.Duration {
	if failures <= 0 || p.Multiplier <= 1 {
		return p.Base
	}

	d := float64(p.Base) * math.Pow(p.Multiplier, float64(failures))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}
