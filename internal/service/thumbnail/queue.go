package thumbnail

import (
	"sync"
	"time"
)

// job is one pending or in-flight thumbnail generation. Every request for the
// same output shares the job and waits on done
type job struct {
	key      string
	source   string // library-root-relative path of the original
	original string // absolute path of the original
	queuedAt time.Time

	done chan struct{}
	err  error
}

// queue is a LIFO stack of jobs with an index by output key, so a request
// for a thumbnail that is already queued or being generated attaches to the
// existing job
type queue struct {
	mu     sync.Mutex
	stack  []*job
	byKey  map[string]*job
	closed bool
}

func newQueue() *queue {
	return &queue{byKey: make(map[string]*job)}
}

// push adds j on top of the stack, or returns the job already registered for
// its key. The boolean reports whether an existing job was returned. ok is
// false once the queue is closed
func (q *queue) push(j *job) (existing *job, coalesced, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false, false
	}
	if cur, found := q.byKey[j.key]; found {
		return cur, true, true
	}
	q.byKey[j.key] = j
	q.stack = append(q.stack, j)
	return j, false, true
}

// pop removes the most recently pushed job. The job stays registered by key
// until finish, so requests arriving during generation still coalesce
func (q *queue) pop() *job {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.stack)
	if n == 0 {
		return nil
	}
	j := q.stack[n-1]
	q.stack[n-1] = nil
	q.stack = q.stack[:n-1]
	return j
}

// finish unregisters j and wakes its waiters
func (q *queue) finish(j *job, err error) {
	q.mu.Lock()
	if q.byKey[j.key] == j {
		delete(q.byKey, j.key)
	}
	q.mu.Unlock()

	j.err = err
	close(j.done)
}

// shutdown stops accepting jobs and returns every job still on the stack
func (q *queue) shutdown() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.stack
	q.stack = nil
	return pending
}

// depth returns the number of jobs waiting on the stack
func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.stack)
}
