// Package timetag provides rate-limit gates that throttle an action, usually
// a telemetry write, independently of the loop that triggers it.
package timetag

import "time"

// Gate fires at most once per period. The zero value has a zero period and
// fires on every check; a fresh gate always fires on its first check.
//
// A gate is owned by the call site that checks it and is not safe for
// concurrent use.
type Gate struct {
	period time.Duration
	last   time.Time
	fired  bool
}

// New returns a gate with the given period.
func New(period time.Duration) Gate {
	return Gate{period: period}
}

// Check reports whether at least one period has elapsed since the gate last
// fired, and if so records now as the new firing time.
func (g *Gate) Check(now time.Time) bool {
	if g.fired && now.Sub(g.last) < g.period {
		return false
	}

	g.last = now
	g.fired = true
	return true
}

// Period returns the current period.
func (g *Gate) Period() time.Duration {
	return g.period
}

// SetPeriod changes the period; the last firing time is kept.
func (g *Gate) SetPeriod(period time.Duration) {
	g.period = period
}

// Reset makes the next Check fire.
func (g *Gate) Reset() {
	g.fired = false
}
