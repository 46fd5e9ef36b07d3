package sweep

import (
	"sync"
	"time"
)

// Timer names used by the manager
const (
	timerCycle  = "cycle"
	timerSwitch = "switch"
)

// timerSet tracks the cancellable timers scheduled for a single sweep run in
// one place, so that any transition out of Running can cancel them together
// and no stale callback fires against a torn-down process.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// schedule arms a named timer, replacing any previous timer with that name
func (ts *timerSet) schedule(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.timers[name]; ok {
		t.Stop()
	}
	ts.timers[name] = time.AfterFunc(d, fn)
}

// cancel stops a single named timer
func (ts *timerSet) cancel(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.timers[name]; ok {
		t.Stop()
		delete(ts.timers, name)
	}
}

// cancelAll stops every tracked timer
func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for name, t := range ts.timers {
		t.Stop()
		delete(ts.timers, name)
	}
}
