// Package traffic keeps sliding windows of API request outcomes for health decisions.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how long outcomes are kept regardless of the query window.
const DefaultRetention = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
// Successes and errors feed the error rate; denials (429) are counted separately.
type Tracker struct {
	mu           sync.Mutex
	retention    time.Duration
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
	now          func() time.Time
}

// NewTracker returns a Tracker keeping outcomes for retention (DefaultRetention when <= 0).
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a successful request outcome.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records a failed request outcome (upstream error, timeout, etc.).
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countInWindow(t.successTimes, cutoff) +
		countInWindow(t.errorTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// totalCount is successes plus errors; denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	return errCount, errCount + countInWindow(t.successTimes, cutoff)
}

// Degraded reports whether the error rate within window is at or above pct percent.
// An empty window is never degraded.
func (t *Tracker) Degraded(window time.Duration, pct int) bool {
	if window <= 0 || pct <= 0 {
		return false
	}
	errs, total := t.ErrorRate(window)
	if total == 0 {
		return false
	}
	return float64(errs)*100/float64(total) >= float64(pct)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention period. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
