package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry maps each user to their queue, creating it on first request.
// Idle queues are reclaimed by EvictIdle; in-flight drain loops are tracked
// so the process can wait them out on shutdown.
type Registry struct {
	ctx      context.Context // base context for drain loops
	capacity int
	run      RunFunc

	mu     sync.Mutex
	queues map[int64]*userQueue
	wg     sync.WaitGroup
}

func NewRegistry(ctx context.Context, capacity int, run RunFunc) *Registry {
	return &Registry{
		ctx:      ctx,
		capacity: capacity,
		run:      run,
		queues:   make(map[int64]*userQueue),
	}
}

// Submit resolves the user's queue and enqueues the request, returning the
// admission verdict. The pipeline work itself happens asynchronously; a
// terminal chat reply is the only completion signal the requester gets.
func (r *Registry) Submit(userID int64, req Request) Admission {
	for {
		q := r.resolve(userID)
		adm, ok := q.enqueue(r.ctx, &r.wg, req)
		if ok {
			return adm
		}
		// lost a race with eviction; resolve again for a fresh queue
	}
}

func (r *Registry) resolve(userID int64) *userQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[userID]
	if !ok {
		q = newUserQueue(userID, r.capacity, r.run)
		r.queues[userID] = q
	}
	return q
}

// Pending returns the number of queued (not yet running) requests for a user.
func (r *Registry) Pending(userID int64) int {
	r.mu.Lock()
	q, ok := r.queues[userID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return q.pendingLen()
}

// Users returns how many user queues are currently allocated.
func (r *Registry) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

// EvictIdle drops queues that have been empty and idle for at least ttl and
// returns how many were removed. An evicted queue refuses late enqueues, so a
// caller holding a stale handle re-resolves instead of racing a new queue for
// the same user.
func (r *Registry) EvictIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	n := 0
	for id, q := range r.queues {
		q.mu.Lock()
		if !q.draining && len(q.pending) == 0 && now.Sub(q.idleAt) >= ttl {
			q.evicted = true
			delete(r.queues, id)
			n++
		}
		q.mu.Unlock()
	}
	return n
}

// Janitor periodically evicts idle queues until ctx is canceled.
func (r *Registry) Janitor(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.EvictIdle(ttl); n > 0 {
				log.Debug().Int("evicted", n).Msg("reclaimed idle user queues")
			}
		}
	}
}

// Wait blocks until every drain loop has finished or ctx expires. Used on
// shutdown so in-flight downloads get a chance to deliver.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
