package resource

import "sync"

// request is one queued operation on a loaded resource. run performs it;
// fail completes it with an error without running it.
type request struct {
	op   string
	run  func()
	fail func(error)
}

// readyQueue is a thread-safe FIFO of requests waiting for their
// resource.
//
// The queue is unbounded so subscribers may enqueue follow-up requests
// while the queue is being drained.
type readyQueue struct {
	mu       sync.Mutex
	requests []request
	closed   bool
}

func newReadyQueue() *readyQueue {
	return &readyQueue{
		requests: make([]request, 0, 8),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *readyQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)
	return true
}

// TryDequeue removes and returns the front request.
// Returns (request{}, false) if the queue is empty.
func (q *readyQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}

	r := q.requests[0]

	// Nil out the slot so the closures can be collected.
	q.requests[0] = request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Len returns the current queue length.
func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// FailAll removes every queued request and fails it with err, in FIFO
// order.
func (q *readyQueue) FailAll(err error) int {
	q.mu.Lock()
	pending := q.requests
	q.requests = make([]request, 0, 8)
	q.mu.Unlock()

	for _, r := range pending {
		r.fail(err)
	}
	return len(pending)
}

// Close stops the queue from accepting requests.
func (q *readyQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
