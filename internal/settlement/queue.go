package settlement

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("settlement queue is full")

// Queue is the bounded in-memory FIFO of record IDs awaiting processing.
// A record ID leaves the queue exactly once, when a drain hands it to the
// step engine; that dequeue is the at-most-once boundary.
type Queue struct {
	mu       sync.Mutex
	ids      []string
	queued   map[string]bool
	capacity int
	stopped  bool
	timers   map[string]*time.Timer
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{
		queued:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		capacity: capacity,
	}
}

// Enqueue appends a record ID. IDs already waiting are ignored so an operator
// double-submit cannot produce a double-process.
func (q *Queue) Enqueue(recordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return errors.New("queue is stopped")
	}
	if q.queued[recordID] {
		return nil
	}
	if len(q.ids) >= q.capacity {
		return ErrQueueFull
	}

	q.ids = append(q.ids, recordID)
	q.queued[recordID] = true
	return nil
}

// EnqueueAt holds the record on a one-shot timer and injects it into the
// queue when its scheduled time arrives. Past deadlines enqueue immediately.
func (q *Queue) EnqueueAt(recordID string, at time.Time) error {
	delay := time.Until(at)
	if delay <= 0 {
		return q.Enqueue(recordID)
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return errors.New("queue is stopped")
	}
	timer := time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, recordID)
		q.mu.Unlock()

		// The record stays PENDING in the store; the processor's requeue
		// sweep picks it up once the queue has room again.
		if err := q.Enqueue(recordID); err != nil {
			log.Warn().
				Err(err).
				Str("record_id", recordID).
				Msg("scheduled enqueue failed, leaving record for the requeue sweep")
		}
	})
	q.timers[recordID] = timer
	q.mu.Unlock()
	return nil
}

// Drain removes and returns up to n record IDs from the front of the queue.
func (q *Queue) Drain(n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.ids) {
		n = len(q.ids)
	}
	if n <= 0 {
		return nil
	}

	drained := make([]string, n)
	copy(drained, q.ids[:n])
	q.ids = q.ids[n:]
	for _, id := range drained {
		delete(q.queued, id)
	}
	return drained
}

// Len returns the number of record IDs currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Stop clears pending entries and cancels held timers. Records already handed
// to the engine are unaffected; no new work will be accepted.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.ids = nil
	q.queued = make(map[string]bool)
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[string]*time.Timer)
}
