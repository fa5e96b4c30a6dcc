package workload

import (
	"sync"
	"time"
)

// Query simulates an asynchronous timer query, such as a GPU timestamp
// pair. The measured duration only becomes readable after a number of
// polls, the way a real query result lags a few frames behind.
//
// A Query measures a single region; create one per region instance.
type Query struct {
	mu     sync.Mutex
	now    func() time.Time
	polls  int // polls needed before the result is available
	seen   int
	start  time.Time
	end    time.Time
	closed bool
}

// NewQuery creates a query whose result is available on the given poll,
// counting the poll made right after the region ends. polls < 1 is
// treated as 1.
func NewQuery(polls int) *Query {
	return newQueryWithClock(polls, time.Now)
}

func newQueryWithClock(polls int, now func() time.Time) *Query {
	if polls < 1 {
		polls = 1
	}
	return &Query{now: now, polls: polls}
}

// Start records the start timestamp.
func (q *Query) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.start = q.now()
}

// End records the end timestamp.
func (q *Query) End() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.end = q.now()
	q.closed = true
}

// Duration returns the measured duration once enough polls have been made.
func (q *Query) Duration() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		return 0, false
	}
	q.seen++
	if q.seen < q.polls {
		return 0, false
	}
	return q.end.Sub(q.start), true
}

// Polls returns how many times Duration was called after End.
func (q *Query) Polls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen
}
