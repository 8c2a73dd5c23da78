// Package sleeper implements the one sanctioned blocking primitive for
// supervision code: a cooperative sleep that steps in small
// increments and returns early the moment a quit flag is observed.
package sleeper

import (
	"time"

	"github.com/mkasyanov/sentryd/backoffpolicy"
)

// Sleep blocks for approximately d, checking quit between steps of at
// most backoffpolicy.MaxStep. It returns as soon as quit() reports
// true, so a quit asserted at time t < d returns by t+step at the
// latest.
func Sleep(d time.Duration, quit func() bool) {
	if quit() {
		return
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(backoffpolicy.NextStep(remaining))
		if quit() {
			return
		}
	}
}
