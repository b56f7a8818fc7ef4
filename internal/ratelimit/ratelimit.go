// Package ratelimit bounds per-entity action throughput over fixed
// windows. Exceeding a limit is a governance outcome, not an error:
// the gate turns it into a recorded deny.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// Limit caps attempts per window. Zero values disable the limit.
type Limit struct {
	Max    int            `yaml:"max" json:"max"`
	Window model.Duration `yaml:"window" json:"window"`
}

// Enabled reports whether the limit is configured.
func (l Limit) Enabled() bool {
	return l.Max > 0 && l.Window.Std() > 0
}

// Result describes an exceeded limit.
type Result struct {
	Current int
	Max     int
	Window  model.Duration
	Reason  string
}

type window struct {
	start time.Time
	count int
}

// Tracker holds fixed-window counters keyed by caller-chosen strings
// (entity plus scope pattern). Counters live in memory: limits bound
// bursts within a process lifetime and reset on restart.
type Tracker struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{windows: make(map[string]*window)}
}

// Take counts one attempt against the key's window. A full window
// rejects the attempt without counting it, so denied requests cannot
// extend their own lockout.
func (t *Tracker) Take(key string, limit Limit, now time.Time) (Result, bool) {
	if !limit.Enabled() {
		return Result{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[key]
	if w == nil || now.Sub(w.start) >= limit.Window.Std() {
		w = &window{start: now}
		t.windows[key] = w
	}

	if w.count >= limit.Max {
		return Result{
			Current: w.count,
			Max:     limit.Max,
			Window:  limit.Window,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%d attempts in %s window", w.count, limit.Max, limit.Window),
		}, true
	}
	w.count++
	return Result{}, false
}
