// Package queue serializes download work per user: each user gets a bounded
// FIFO of pending requests and at most one running pipeline at any instant.
package queue

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Request is one accepted download job. Immutable once created.
type Request struct {
	ID      string // ULID, for log correlation
	ChatID  int64
	ReplyID int
	URL     string
}

// Admission is the synchronous verdict returned at enqueue time.
type Admission int

const (
	Accepted Admission = iota
	QueueFull
	InvalidURL
)

func (a Admission) String() string {
	switch a {
	case Accepted:
		return "accepted"
	case QueueFull:
		return "queue full"
	case InvalidURL:
		return "invalid url"
	}
	return "unknown"
}

// RunFunc executes one request to completion, including delivery and cleanup.
// It must not panic; a failed run must not poison the drain of later entries.
type RunFunc func(ctx context.Context, userID int64, req Request)

// NewID returns a fresh ULID for tagging a request.
func NewID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// userQueue is the per-user state. The mutex guards pending, draining and
// evicted together; the draining flag may only flip under it, which is what
// keeps a second drain loop from ever starting.
type userQueue struct {
	userID   int64
	capacity int
	run      RunFunc

	mu       sync.Mutex
	pending  []Request
	draining bool
	evicted  bool
	idleAt   time.Time
}

func newUserQueue(userID int64, capacity int, run RunFunc) *userQueue {
	return &userQueue{
		userID:   userID,
		capacity: capacity,
		run:      run,
		idleAt:   time.Now(),
	}
}

// enqueue applies admission control and schedules a drain loop if none is
// active. The second return is false when the queue has been evicted from the
// registry; the caller must re-resolve and retry.
func (q *userQueue) enqueue(ctx context.Context, wg *sync.WaitGroup, req Request) (Admission, bool) {
	if !ValidURL(req.URL) {
		return InvalidURL, true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.evicted {
		return Accepted, false
	}
	if len(q.pending) >= q.capacity {
		return QueueFull, true
	}
	q.pending = append(q.pending, req)
	if !q.draining {
		q.draining = true
		wg.Add(1)
		go q.drain(ctx, wg)
	}
	return Accepted, true
}

// drain pops and runs requests in FIFO order until the queue is empty. The
// exit is guarded: draining clears under the same lock that observed the
// empty queue, so a concurrent enqueue either lands before the flag clears
// (and this loop picks it up) or after (and starts a fresh loop).
func (q *userQueue) drain(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.idleAt = time.Now()
			q.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(ctx, q.userID, req)
	}
}

func (q *userQueue) pendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ValidURL reports whether raw parses as an absolute http(s) URL.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https")
}
