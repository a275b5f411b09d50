// Package dispatch owns the topic-indexed subscriber registry, the
// per-subscriber bounded queues, and the prefix-matching fan-out that
// moves canonical messages from producers to every matching subscriber.
package dispatch

import (
	"context"
	"sync"

	"github.com/adisbladis/threatbus/internal/model"
)

// Envelope wraps a dequeued message with the Done call its consumer must
// make once it has finished with the message, per the bounded-queue
// backpressure contract: a message occupies its slot in the inbox until
// Done is called, not merely until it is dequeued.
type Envelope struct {
	Msg  model.Message
	done func()
}

// Done releases the inbox slot this envelope occupied, unblocking a
// producer that is waiting on backpressure.
func (e Envelope) Done() {
	if e.done != nil {
		e.done()
	}
}

// Inbox is a bounded, thread-safe queue of canonical messages. Enqueue
// blocks once the high-water mark is reached rather than dropping
// messages ("backpressure"). Inbox is safe for concurrent Enqueue,
// Dequeue and Close calls.
type Inbox struct {
	sem chan struct{}
	ch  chan model.Message

	mu     sync.Mutex
	closed bool
}

// NewInbox creates an Inbox that buffers up to capacity messages before
// Enqueue starts blocking the caller.
func NewInbox(capacity int) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbox{
		sem: make(chan struct{}, capacity),
		ch:  make(chan model.Message, capacity),
	}
}

// Enqueue places msg on the inbox, blocking if the inbox is at capacity.
// It returns false without blocking further if the inbox has been closed
// concurrently — per the dispatch core's contract, a message destined for
// a just-removed subscriber is silently discarded, not delivered.
func (ib *Inbox) Enqueue(ctx context.Context, msg model.Message) bool {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return false
	}
	ib.mu.Unlock()

	select {
	case ib.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		<-ib.sem
		return false
	}
	ib.ch <- msg
	ib.mu.Unlock()
	return true
}

// Dequeue blocks until a message is available or ctx is cancelled. The
// returned Envelope's Done must be called once the caller has finished
// processing Msg.
func (ib *Inbox) Dequeue(ctx context.Context) (Envelope, bool) {
	select {
	case msg := <-ib.ch:
		return Envelope{Msg: msg, done: ib.release}, true
	case <-ctx.Done():
		return Envelope{}, false
	}
}

// TryDequeue is a non-blocking Dequeue, used by fan-out loops that poll
// many inboxes in round-robin fashion.
func (ib *Inbox) TryDequeue() (Envelope, bool) {
	select {
	case msg := <-ib.ch:
		return Envelope{Msg: msg, done: ib.release}, true
	default:
		return Envelope{}, false
	}
}

// Ready reports whether at least one message is currently queued.
func (ib *Inbox) Ready() bool {
	return len(ib.ch) > 0
}

func (ib *Inbox) release() {
	select {
	case <-ib.sem:
	default:
	}
}

// Close marks the inbox closed; subsequent Enqueue calls return false.
// Already-queued messages remain available to Dequeue/TryDequeue until
// drained, per the SubscriberEntry teardown contract.
func (ib *Inbox) Close() {
	ib.mu.Lock()
	ib.closed = true
	ib.mu.Unlock()
}
