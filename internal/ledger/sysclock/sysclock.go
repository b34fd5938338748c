// Package sysclock provides the production ledger.Clock backed by wall time.
package sysclock

import "time"

// Clock returns time.Now().Unix() as the host's notion of "now".
type Clock struct{}

// New returns a Clock.
func New() Clock { return Clock{} }

// Now implements ledger.Clock.
func (Clock) Now() uint64 {
	return uint64(time.Now().Unix())
}
