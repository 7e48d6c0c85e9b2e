package authcore

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// auditDispatcher decouples engine operations from sink latency. Emit
// enqueues onto a bounded queue and a single worker delivers to the sink in
// order, so events for one flow are never observed out of sequence.
//
// Overflow follows the configured policy: drop-if-full sheds the event and
// counts it, blocking mode applies backpressure until the caller's context
// is canceled. Close drains whatever is queued, then writes one final
// [auditEventBacklogDropped] event when anything was shed, so losses are
// visible inside the trail itself rather than only via [Engine] internals.
type auditDispatcher struct {
	sink     AuditSink
	queue    chan AuditEvent
	blocking bool

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &auditDispatcher{
		sink:     sink,
		queue:    make(chan AuditEvent, buffer),
		blocking: !cfg.DropIfFull,
		done:     make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until the queue is closed and fully drained, then accounts
// for shed events before signaling completion to Close.
func (d *auditDispatcher) deliver() {
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
	if shed := d.dropped.Load(); shed > 0 {
		d.sink.Emit(context.Background(), AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: auditEventBacklogDropped,
			Metadata:  map[string]string{"count": strconv.FormatUint(shed, 10)},
		})
	}
	close(d.done)
}

// Emit queues one event for delivery. Safe on a nil or closed dispatcher:
// the event is silently discarded, matching the engine's contract that
// auditing never fails an operation.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// The read lock holds off Close until the send below resolves; the
	// worker keeps draining in the meantime, so blocked senders finish.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.blocking {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		}
		return
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
	}
}

// Close stops intake, waits for the worker to drain the queue, and returns
// once the last event (including the shed-count report) reached the sink.
// Subsequent calls are no-ops.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

// Dropped reports how many events were shed under the drop-if-full policy.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
