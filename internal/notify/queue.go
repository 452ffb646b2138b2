package notify

import (
	"context"
	"log/slog"
	"sync"
)

// defaultQueueDepth bounds pending notices when no depth is configured.
const defaultQueueDepth = 64

// Queue runs notice delivery on a background worker so lifecycle calls return
// as soon as the state change is stored and broadcast. Enqueueing never
// blocks: a full buffer drops the notice and logs the loss instead of holding
// an ingest request or a queue callback through retry backoffs.
// Params: downstream dispatcher, buffer depth, and logger.
// Returns: asynchronous front for the dispatcher.
type Queue struct {
	dispatcher *Dispatcher
	jobs       chan Notice
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue starts the delivery worker.
// Params: downstream dispatcher, buffer depth (non-positive selects the
// default), and logger.
// Returns: running queue; stop it with Close.
func NewQueue(dispatcher *Dispatcher, depth int, logger *slog.Logger) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	queue := &Queue{
		dispatcher: dispatcher,
		jobs:       make(chan Notice, depth),
		logger:     logger,
		done:       make(chan struct{}),
	}
	go queue.run()
	return queue
}

// Dispatch hands the notice to the worker without blocking. The caller's
// context is not carried over: delivery outlives the request that caused it.
// Params: context (unused) and notice payload.
// Returns: nothing; a full or closed queue drops the notice with a warning.
func (q *Queue) Dispatch(_ context.Context, notice Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("notice queue closed, notice dropped", "action", notice.Action)
		return
	}
	select {
	case q.jobs <- notice:
	default:
		q.logger.Warn("notice queue full, notice dropped", "action", notice.Action)
	}
}

// Close stops accepting notices, delivers everything already queued, and waits
// for the worker to finish. Safe to call more than once.
// Params: none.
// Returns: always nil.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.done
	return nil
}

// run drains the job channel until Close.
// Params: none.
// Returns: signals completion through the done channel.
func (q *Queue) run() {
	defer close(q.done)
	for notice := range q.jobs {
		q.dispatcher.Dispatch(context.Background(), notice)
	}
}
