package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adisbladis/threatbus/internal/model"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func recvWithTimeout(t *testing.T, ib *Inbox) (Envelope, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return ib.Dequeue(ctx)
}

func TestDispatcher_PrefixMatchRouting(t *testing.T) {
	d := newTestDispatcher(t)

	intelInbox := NewInbox(4)
	d.Subscribe(model.TopicIntel, intelInbox, 0)

	sightingInbox := NewInbox(4)
	d.Subscribe(model.TopicSighting, sightingInbox, 0)

	d.Publish(model.Indicator{ID: "i1", Pattern: "[domain-name:value = 'evil.com']"})

	env, ok := recvWithTimeout(t, intelInbox)
	require.True(t, ok)
	ind, ok := env.Msg.(model.Indicator)
	require.True(t, ok)
	assert.Equal(t, "i1", ind.ID)
	env.Done()

	_, ok = sightingInbox.TryDequeue()
	assert.False(t, ok, "sighting subscriber must not receive an intel message")
}

func TestDispatcher_UnsubscribeIdempotent(t *testing.T) {
	d := newTestDispatcher(t)

	ib := NewInbox(4)
	p2p := d.Subscribe(model.TopicIntel, ib, 0)

	d.Unsubscribe(p2p)
	assert.NotPanics(t, func() { d.Unsubscribe(p2p) })
	assert.NotPanics(t, func() { d.Unsubscribe("never-registered") })
}

func TestDispatcher_NoPostRemovalDelivery(t *testing.T) {
	d := newTestDispatcher(t)

	ib := NewInbox(4)
	p2p := d.Subscribe(model.TopicIntel, ib, 0)
	d.Unsubscribe(p2p)

	d.Publish(model.Indicator{ID: "i2", Pattern: "[domain-name:value = 'x.com']"})

	time.Sleep(50 * time.Millisecond)
	_, ok := ib.TryDequeue()
	assert.False(t, ok, "removed subscriber must not receive messages published after removal")
}

func TestDispatcher_SubscribeWithDeltaEmitsSnapshotRequest(t *testing.T) {
	d := newTestDispatcher(t)

	reqInbox := NewInbox(4)
	d.Subscribe(model.TopicSnapshotRequest, reqInbox, 0)

	ib := NewInbox(4)
	d.Subscribe(model.TopicIntel, ib, 5*time.Minute)

	env, ok := recvWithTimeout(t, reqInbox)
	require.True(t, ok)
	req, ok := env.Msg.(model.SnapshotRequest)
	require.True(t, ok)
	assert.Equal(t, model.TopicIntel, req.Topic)
	assert.Equal(t, 5*time.Minute, req.SnapshotDelta)
	assert.NotEmpty(t, req.ID)
	env.Done()
}

func TestDispatcher_SubscribeWithoutDeltaEmitsNoSnapshotRequest(t *testing.T) {
	d := newTestDispatcher(t)

	reqInbox := NewInbox(4)
	d.Subscribe(model.TopicSnapshotRequest, reqInbox, 0)

	ib := NewInbox(4)
	d.Subscribe(model.TopicIntel, ib, 0)

	time.Sleep(50 * time.Millisecond)
	_, ok := reqInbox.TryDequeue()
	assert.False(t, ok)
}

func TestDispatcher_FanOutToMultipleSubscribersSameTopic(t *testing.T) {
	d := newTestDispatcher(t)

	ib1 := NewInbox(4)
	ib2 := NewInbox(4)
	d.Subscribe(model.TopicIntel, ib1, 0)
	d.Subscribe(model.TopicIntel, ib2, 0)

	d.Publish(model.Indicator{ID: "shared"})

	env1, ok := recvWithTimeout(t, ib1)
	require.True(t, ok)
	assert.Equal(t, "shared", env1.Msg.(model.Indicator).ID)
	env1.Done()

	env2, ok := recvWithTimeout(t, ib2)
	require.True(t, ok)
	assert.Equal(t, "shared", env2.Msg.(model.Indicator).ID)
	env2.Done()
}
