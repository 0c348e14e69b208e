package mqtt

import (
	"sync"
	"time"
)

// DailyTokens counts turns and tokens since local midnight. It is safe
// for concurrent use.
type DailyTokens struct {
	mu       sync.Mutex
	input    int64
	output   int64
	turns    int64
	failed   int64
	last     time.Time
	resetDay int
	loc      *time.Location
	nowFunc  func() time.Time
}

// NewDailyTokens creates a counter that rolls over at midnight in loc.
// A nil loc means [time.Local].
func NewDailyTokens(loc *time.Location) *DailyTokens {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTokens{loc: loc, nowFunc: time.Now}
	d.resetDay = d.nowFunc().In(loc).YearDay()
	return d
}

// OnTurn records a finished turn.
func (d *DailyTokens) OnTurn(inputTokens, outputTokens int, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	d.input += int64(inputTokens)
	d.output += int64(outputTokens)
	d.turns++
	if failed {
		d.failed++
	}
	d.last = d.nowFunc()
}

// DailySnapshot is a point-in-time copy of the counters.
type DailySnapshot struct {
	InputTokens  int64
	OutputTokens int64
	Turns        int64
	Failed       int64
	LastTurn     time.Time
}

// Snapshot returns today's totals.
func (d *DailyTokens) Snapshot() DailySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	return DailySnapshot{
		InputTokens:  d.input,
		OutputTokens: d.output,
		Turns:        d.turns,
		Failed:       d.failed,
		LastTurn:     d.last,
	}
}

// maybeReset zeroes the counters on a new local day. Must be called
// with d.mu held. LastTurn survives the rollover.
func (d *DailyTokens) maybeReset() {
	today := d.nowFunc().In(d.loc).YearDay()
	if today != d.resetDay {
		d.input = 0
		d.output = 0
		d.turns = 0
		d.failed = 0
		d.resetDay = today
	}
}
