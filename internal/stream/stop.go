package stream

import "time"

// StopCondition is evaluated before every write with the statistics so far.
// Returning true ends the stream.
type StopCondition func(Stats) bool

// Deadline stops once now reports a time at or after at.
func Deadline(at time.Time, now func() time.Time) StopCondition {
	if now == nil {
		now = time.Now
	}
	return func(Stats) bool { return !now().Before(at) }
}

// After stops once n write attempts have been made.
func After(n int) StopCondition {
	return func(s Stats) bool { return s.Iterations >= n }
}

// Earliest stops as soon as any of conds does. Nil conditions are skipped.
func Earliest(conds ...StopCondition) StopCondition {
	return func(s Stats) bool {
		for _, c := range conds {
			if c != nil && c(s) {
				return true
			}
		}
		return false
	}
}

// Never keeps streaming until the context is cancelled.
func Never() StopCondition {
	return func(Stats) bool { return false }
}
