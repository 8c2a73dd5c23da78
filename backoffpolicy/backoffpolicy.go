// Package backoffpolicy wraps cenkalti/backoff's constant back-off
// implementation for every place this repository waits a fixed
// interval: the guardian's executor restart policy, the worker-pool's
// per-slot restart policy, and the per-step bound of the cooperative
// sleep both of those policies are ultimately slept out through. All
// three reduce to "wait a fixed interval," which is exactly what
// backoff.ConstantBackOff models; using the library keeps them
// expressed the same way instead of separate copies of interval
// arithmetic.
package backoffpolicy

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NextAttempt returns the time at which a new attempt is permitted,
// given a constant back-off interval and the instant the failure was
// observed.
func NextAttempt(interval time.Duration, since time.Time) time.Time {
	policy := backoff.NewConstantBackOff(interval)
	return since.Add(policy.NextBackOff())
}

// MaxStep bounds how long any single step of a cooperative, quit-
// interruptible wait may block, regardless of the total duration
// requested.
const MaxStep = time.Second

// NextStep returns the duration of the next step of a stepped wait: at
// most MaxStep, or the remainder if less than MaxStep.
func NextStep(remaining time.Duration) time.Duration {
	policy := backoff.NewConstantBackOff(MaxStep)
	step := policy.NextBackOff()
	if remaining < step {
		return remaining
	}
	return step
}
