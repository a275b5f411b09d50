package backbone

import (
	"context"
	"sync"

	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
)

// Memory is a Backbone that forwards directly into a local Dispatcher,
// with no serialization and no network hop. It exercises the Backbone
// interface without a real transport; it is not in the registration table,
// so cmd/threatbusd never selects it.
type Memory struct {
	dispatcher *dispatch.Dispatcher

	mu      sync.Mutex
	inboxes []*dispatch.Inbox
	cancels []context.CancelFunc
	closed  bool
}

// NewMemory wraps an already-started Dispatcher.
func NewMemory(d *dispatch.Dispatcher) *Memory {
	return &Memory{dispatcher: d}
}

// Publish places msg directly on the wrapped Dispatcher's inbound queue.
func (m *Memory) Publish(_ context.Context, msg model.Message) error {
	m.dispatcher.Publish(msg)
	return nil
}

// Subscribe registers an inbox on topic and spawns a goroutine that calls
// handler for every message delivered to it, until Close is called.
func (m *Memory) Subscribe(topic string, handler func(model.Message)) error {
	ib := dispatch.NewInbox(64)
	m.dispatcher.Subscribe(topic, ib, 0)

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.inboxes = append(m.inboxes, ib)
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()

	go func() {
		for {
			env, ok := ib.Dequeue(ctx)
			if !ok {
				return
			}
			handler(env.Msg)
			env.Done()
		}
	}()
	return nil
}

// Close closes every inbox this Memory backbone registered and cancels the
// forwarding goroutines; messages still queued in those inboxes may never
// reach their handlers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ib := range m.inboxes {
		ib.Close()
	}
	for _, cancel := range m.cancels {
		cancel()
	}
	return nil
}
