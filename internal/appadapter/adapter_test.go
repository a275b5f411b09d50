package appadapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
)

// fakeEndpoint is an in-process Endpoint double: Send appends to a sent
// slice, and test code feeds inbound events by writing to the in channel.
type fakeEndpoint struct {
	in chan Event

	mu   sync.Mutex
	sent []Event
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{in: make(chan Event, 32)}
}

func (f *fakeEndpoint) Send(evt Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, evt)
	return nil
}

func (f *fakeEndpoint) Events() <-chan Event { return f.in }

func (f *fakeEndpoint) Close() error { return nil }

func (f *fakeEndpoint) sentEvents() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeEndpoint) waitForSent(t *testing.T, predicate func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, evt := range f.sentEvents() {
			if predicate(evt) {
				return evt
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for expected event")
	return Event{}
}

func TestAdapter_SubscribeAckAndIntelRoundTrip(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	ep := newFakeEndpoint()
	a := New(d, ep, "Tb", zaptest.NewLogger(t))
	a.Start()
	t.Cleanup(a.Stop)

	ep.in <- Event{Name: "Tb::subscribe", Args: []any{model.TopicIntel, float64(0)}}

	ackEvt := ep.waitForSent(t, func(e Event) bool { return e.Name == "Tb::subscription_acknowledged" })
	require.Len(t, ackEvt.Args, 1)
	p2pTopic, ok := ackEvt.Args[0].(string)
	require.True(t, ok)
	assert.Contains(t, p2pTopic, model.TopicIntel)

	d.Publish(model.Indicator{ID: "i1", Pattern: "[domain-name:value = 'evil.com']"})

	intelEvt := ep.waitForSent(t, func(e Event) bool { return e.Name == "Tb::intel" })
	require.Len(t, intelEvt.Args, 5)
	assert.Equal(t, "DOMAIN", intelEvt.Args[2])
	assert.Equal(t, "evil.com", intelEvt.Args[3])
}

func TestAdapter_SightingForwardedToBus(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	sightingInbox := dispatch.NewInbox(4)
	d.Subscribe(model.TopicSighting, sightingInbox, 0)

	ep := newFakeEndpoint()
	a := New(d, ep, "Tb", zaptest.NewLogger(t))
	a.Start()
	t.Cleanup(a.Stop)

	now := time.Now().UTC()
	ep.in <- Event{Name: "Tb::sighting", Args: []any{now, "ind-1", map[string]any{"sensor": "z1"}}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, ok := sightingInbox.Dequeue(ctx)
	require.True(t, ok)
	sighting, ok := env.Msg.(model.Sighting)
	require.True(t, ok)
	assert.Equal(t, "ind-1", sighting.RefID)
	env.Done()
}

func TestAdapter_UnsubscribeIsIdempotent(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	ep := newFakeEndpoint()
	a := New(d, ep, "Tb", zaptest.NewLogger(t))
	a.Start()
	t.Cleanup(a.Stop)

	ep.in <- Event{Name: "Tb::subscribe", Args: []any{model.TopicIntel, float64(0)}}
	ackEvt := ep.waitForSent(t, func(e Event) bool { return e.Name == "Tb::subscription_acknowledged" })
	p2pTopic := ackEvt.Args[0].(string)

	ep.in <- Event{Name: "Tb::unsubscribe", Args: []any{p2pTopic}}
	ep.in <- Event{Name: "Tb::unsubscribe", Args: []any{p2pTopic}}

	time.Sleep(100 * time.Millisecond)

	a.mu.Lock()
	_, stillPresent := a.subs[p2pTopic]
	a.mu.Unlock()
	assert.False(t, stillPresent)
}
