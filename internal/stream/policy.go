package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// Backoff policy names accepted by Policy.
const (
	PolicyConstant    = "constant"
	PolicyExponential = "exponential"
	PolicyNone        = "none"
)

// Policy returns a factory for the named backpressure policy. interval is
// the constant delay or the exponential initial delay; maxInterval caps the
// exponential growth.
func Policy(name string, interval, maxInterval time.Duration) (func() backoff.BackOff, error) {
	if interval <= 0 {
		interval = DefaultBackoff
	}
	switch strings.ToLower(name) {
	case "", PolicyConstant:
		return func() backoff.BackOff { return backoff.NewConstantBackOff(interval) }, nil
	case PolicyExponential:
		if maxInterval < interval {
			maxInterval = 64 * interval
		}
		return func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxInterval = maxInterval
			// The stream ends on its own stop condition, not on elapsed backoff time.
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		}, nil
	case PolicyNone:
		return func() backoff.BackOff { return &backoff.ZeroBackOff{} }, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", name)
	}
}
