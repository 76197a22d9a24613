package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue/v2"
	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server/metrics"
)

// QueueMiddleware admits at most MaxConcurrent requests at a time. Further
// requests wait in FIFO order, up to MaxWaiting of them; beyond that they are
// rejected with 503 queue_full.
//
// A finishing request hands its slot directly to the oldest live waiter, so a
// newcomer can never overtake the queue. A waiter whose context ends gives up
// its position and returns without writing; the Timeout middleware reports it.
type QueueMiddleware struct {
	mu            sync.Mutex
	waiting       *queue.Queue[*waiter]
	queued        int // live waiters; cancelled ones may still sit in waiting
	active        int
	maxConcurrent int
	maxWaiting    int64
	metrics       *metrics.Metrics
	closed        bool
}

type waiter struct {
	ready     chan struct{}
	cancelled bool
}

// QueueConfig defines the operational parameters for the queue middleware.
type QueueConfig struct {
	MaxConcurrent int
	MaxWaiting    int64
	Metrics       *metrics.Metrics
}

// NewQueueMiddleware initializes a new queue middleware with the given configuration.
func NewQueueMiddleware(cfg QueueConfig) *QueueMiddleware {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &QueueMiddleware{
		waiting:       queue.New[*waiter](),
		maxConcurrent: maxConcurrent,
		maxWaiting:    cfg.MaxWaiting,
		metrics:       cfg.Metrics,
	}
}

// SetMaxWaiting changes how many requests may wait. Requests already waiting
// keep their positions.
func (qm *QueueMiddleware) SetMaxWaiting(n int64) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.maxWaiting = n
}

// MaxWaiting returns the current waiting limit.
func (qm *QueueMiddleware) MaxWaiting() int64 {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.maxWaiting
}

// Active returns the number of requests holding a slot.
func (qm *QueueMiddleware) Active() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.active
}

// Waiting returns the number of requests waiting for a slot.
func (qm *QueueMiddleware) Waiting() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.queued
}

// acquire obtains a slot, waiting if needed. ok is false when the request was
// rejected (full is true) or its context ended first.
func (qm *QueueMiddleware) acquire(ctx context.Context) (ok, full bool) {
	qm.mu.Lock()
	if qm.closed {
		qm.mu.Unlock()
		return false, true
	}
	if qm.active < qm.maxConcurrent && qm.queued == 0 {
		qm.active++
		qm.observe()
		qm.mu.Unlock()
		return true, false
	}
	if int64(qm.queued) >= qm.maxWaiting {
		qm.mu.Unlock()
		return false, true
	}

	w := &waiter{ready: make(chan struct{})}
	qm.waiting.Add(w)
	qm.queued++
	qm.observe()
	qm.mu.Unlock()

	select {
	case <-w.ready:
		return true, false
	case <-ctx.Done():
	}

	qm.mu.Lock()
	select {
	case <-w.ready:
		// Handed a slot while giving up; pass it on.
		qm.mu.Unlock()
		qm.release()
		return false, false
	default:
	}
	w.cancelled = true
	qm.queued--
	qm.observe()
	qm.mu.Unlock()
	return false, false
}

// release gives the slot to the oldest live waiter or frees it.
func (qm *QueueMiddleware) release() {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	for qm.waiting.Length() > 0 {
		w := qm.waiting.Remove()
		if w.cancelled {
			continue
		}
		qm.queued--
		close(w.ready)
		qm.observe()
		return
	}
	qm.active--
	qm.observe()
}

// observe publishes the gauges. Callers hold qm.mu.
func (qm *QueueMiddleware) observe() {
	if qm.metrics == nil {
		return
	}
	qm.metrics.ActiveRequests.WithLabelValues("queued").Set(float64(qm.queued))
	qm.metrics.ActiveRequests.WithLabelValues("processing").Set(float64(qm.active))
}

// Shutdown stops admitting requests and waits for admitted and waiting
// requests to finish or for ctx to end.
func (qm *QueueMiddleware) Shutdown(ctx context.Context) error {
	qm.mu.Lock()
	qm.closed = true
	qm.mu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		qm.mu.Lock()
		idle := qm.active == 0 && qm.queued == 0
		qm.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			if qm.metrics != nil {
				qm.metrics.ErrorsTotal.WithLabelValues("queue_shutdown_timeout").Inc()
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handler manages the request lifecycle through the queue.
func (qm *QueueMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ok, full := qm.acquire(r.Context())
		if full {
			if qm.metrics != nil {
				qm.metrics.ErrorsTotal.WithLabelValues("queue_full").Inc()
			}
			errors.WriteError(w, errors.NewQueueFullError(GetRequestID(r.Context()), qm.MaxWaiting()))
			return
		}
		if !ok {
			return
		}
		defer qm.release()

		if qm.metrics != nil {
			qm.metrics.QueueWait.Observe(time.Since(start).Seconds())
		}
		next.ServeHTTP(w, r)
	})
}
