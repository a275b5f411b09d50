package dispatch

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/model"
)

var tracer = otel.Tracer("threatbus/dispatch")

const randSuffixLength = 10
const rowLetters = "abcdefghijklmnopqrstuvwxyz"

// Metrics is the optional instrumentation seam the Dispatcher reports
// through. A nil Metrics is legal; every call is a no-op in that case.
type Metrics interface {
	SetSubscriberCount(n int)
	ObserveInboxDepth(p2pTopic string, depth int)
	IncBackpressureBlocked(p2pTopic string)
	IncDispatched(topic string)
}

// SubscriberEntry is one live subscription: its p2p handle, its inbox, and
// the originating topic prefix it was registered under.
type SubscriberEntry struct {
	P2PTopic        string
	OriginatingTopic string
	Inbox           *Inbox
}

// Dispatcher is the process-wide dispatch core: the topic-indexed
// subscriber registry and the single fan-out worker that routes published
// messages to every subscriber whose originating topic is a byte-wise
// prefix of the message's canonical topic.
type Dispatcher struct {
	logger  *zap.Logger
	metrics Metrics

	inbound     chan model.Message
	inboundCap  int

	mu   sync.Mutex
	subs map[string]*SubscriberEntry // keyed by p2p-topic

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Dispatcher with the given inbound queue capacity.
// Call Start to spawn its fan-out worker.
func New(logger *zap.Logger, metrics Metrics, inboundCapacity int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if inboundCapacity < 1 {
		inboundCapacity = 1
	}
	return &Dispatcher{
		logger:     logger,
		metrics:    metrics,
		inbound:    make(chan model.Message, inboundCapacity),
		inboundCap: inboundCapacity,
		subs:       make(map[string]*SubscriberEntry),
		stopCh:     make(chan struct{}),
	}
}

// Start spawns the fan-out worker. Safe to call once per Dispatcher.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop closes the inbound queue, drains subscribers, and joins the
// fan-out worker before returning.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()

	d.mu.Lock()
	for _, e := range d.subs {
		e.Inbox.Close()
	}
	d.subs = make(map[string]*SubscriberEntry)
	d.mu.Unlock()
}

// Subscribe registers inbox under topic, returning a freshly generated
// p2p-topic handle. If snapshotDelta > 0, a SnapshotRequest for topic is
// also enqueued into the inbound queue.
func (d *Dispatcher) Subscribe(topic string, inbox *Inbox, snapshotDelta time.Duration) string {
	p2pTopic := topic + randomSuffix()

	d.mu.Lock()
	d.subs[p2pTopic] = &SubscriberEntry{
		P2PTopic:         p2pTopic,
		OriginatingTopic: topic,
		Inbox:            inbox,
	}
	n := len(d.subs)
	d.mu.Unlock()

	d.metrics.SetSubscriberCount(n)
	d.logger.Debug("subscribed", zap.String("topic", topic), zap.String("p2p_topic", p2pTopic))

	if snapshotDelta > 0 {
		d.Publish(model.SnapshotRequest{
			Topic:         topic,
			SnapshotDelta: snapshotDelta,
			ID:            uuid.NewString(),
		})
	}
	return p2pTopic
}

// Unsubscribe removes the entry for p2pTopic. It is idempotent: removing
// an unknown or already-removed p2p-topic is a silent no-op, never an
// error.
func (d *Dispatcher) Unsubscribe(p2pTopic string) {
	d.mu.Lock()
	entry, ok := d.subs[p2pTopic]
	if ok {
		delete(d.subs, p2pTopic)
	}
	n := len(d.subs)
	d.mu.Unlock()

	if !ok {
		return
	}
	entry.Inbox.Close()
	d.metrics.SetSubscriberCount(n)
	d.logger.Debug("unsubscribed", zap.String("p2p_topic", p2pTopic))
}

// Publish places msg on the inbound queue. It may block if the queue is
// full — this is the producer-facing half of the bus's backpressure.
func (d *Dispatcher) Publish(msg model.Message) {
	select {
	case d.inbound <- msg:
	case <-d.stopCh:
	}
}

// run is the single fan-out worker: dequeue from inbound, snapshot
// matching subscribers under the registry lock, release the lock, then
// perform the (possibly blocking) per-subscriber enqueues.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg, ok := <-d.inbound:
			if !ok {
				return
			}
			d.deliver(msg)
		case <-d.stopCh:
			d.drainInbound()
			return
		}
	}
}

// drainInbound delivers whatever is already queued before the worker
// exits, so a Stop racing with in-flight Publish calls doesn't silently
// lose messages that already made it onto the channel.
func (d *Dispatcher) drainInbound() {
	for {
		select {
		case msg := <-d.inbound:
			d.deliver(msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg model.Message) {
	topic := msg.Topic()

	spanCtx, span := tracer.Start(context.Background(), "dispatch.deliver",
		trace.WithAttributes(attribute.String("threatbus.topic", topic)))
	defer span.End()

	matches := d.matchingEntries(topic)
	span.SetAttributes(attribute.Int("threatbus.subscriber_count", len(matches)))
	d.metrics.IncDispatched(topic)

	ctx, cancel := context.WithTimeout(spanCtx, 30*time.Second)
	defer cancel()

	for _, entry := range matches {
		if !entry.Inbox.Enqueue(ctx, msg) {
			// Either the subscriber was concurrently removed (silently
			// discard) or the enqueue context expired under sustained
			// backpressure (reported, not silently dropped).
			if ctx.Err() != nil {
				d.metrics.IncBackpressureBlocked(entry.P2PTopic)
				d.logger.Warn("dropping message after backpressure timeout",
					zap.String("p2p_topic", entry.P2PTopic), zap.String("topic", topic))
			}
		}
	}
}

// matchingEntries returns a point-in-time snapshot of every subscriber
// whose originating topic is a byte-wise prefix of topic. The registry
// lock is held only for the duration of this snapshot, never across the
// enqueues that follow.
func (d *Dispatcher) matchingEntries(topic string) []*SubscriberEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matches []*SubscriberEntry
	for _, entry := range d.subs {
		if strings.HasPrefix(topic, entry.OriginatingTopic) {
			matches = append(matches, entry)
		}
	}
	return matches
}

func randomSuffix() string {
	b := make([]byte, randSuffixLength)
	for i := range b {
		b[i] = rowLetters[rand.Intn(len(rowLetters))]
	}
	return string(b)
}

type noopMetrics struct{}

func (noopMetrics) SetSubscriberCount(int)             {}
func (noopMetrics) ObserveInboxDepth(string, int)      {}
func (noopMetrics) IncBackpressureBlocked(string)      {}
func (noopMetrics) IncDispatched(string)               {}
