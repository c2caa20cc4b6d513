// Package system provides the wall clock used by the crawl orchestrator.
package system

import "time"

// Clock reports UTC wall time.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
