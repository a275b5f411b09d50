package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
)

func TestStore_ReplaysRecentEntriesWithinDelta(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	s := New(d, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	envelopeInbox := dispatch.NewInbox(16)
	d.Subscribe(model.TopicSnapshotEnvelope, envelopeInbox, 0)

	d.Publish(model.Indicator{ID: "i1", Pattern: "[domain-name:value = 'evil.com']"})
	time.Sleep(50 * time.Millisecond)

	d.Publish(model.SnapshotRequest{Topic: model.TopicIntel, SnapshotDelta: time.Hour, ID: "req-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, ok := envelopeInbox.Dequeue(ctx)
	require.True(t, ok)
	wrapped, ok := env.Msg.(model.SnapshotEnvelope)
	require.True(t, ok)
	assert.Equal(t, "req-1", wrapped.ID)
	ind, ok := wrapped.Payload.(model.Indicator)
	require.True(t, ok)
	assert.Equal(t, "i1", ind.ID)
	env.Done()
}

func TestStore_ExcludesEntriesOlderThanDelta(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	s := New(d, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	envelopeInbox := dispatch.NewInbox(16)
	d.Subscribe(model.TopicSnapshotEnvelope, envelopeInbox, 0)

	d.Publish(model.Indicator{ID: "stale", Pattern: "[domain-name:value = 'old.com']"})
	time.Sleep(50 * time.Millisecond)

	d.Publish(model.SnapshotRequest{Topic: model.TopicIntel, SnapshotDelta: time.Nanosecond, ID: "req-2"})

	time.Sleep(100 * time.Millisecond)
	_, ok := envelopeInbox.TryDequeue()
	assert.False(t, ok, "entries older than the requested delta must not be replayed")
}

func TestStore_ReplayIsEmptyForUnknownTopic(t *testing.T) {
	d := dispatch.New(zaptest.NewLogger(t), nil, 16)
	d.Start()
	t.Cleanup(d.Stop)

	s := New(d, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	envelopeInbox := dispatch.NewInbox(16)
	d.Subscribe(model.TopicSnapshotEnvelope, envelopeInbox, 0)

	d.Publish(model.SnapshotRequest{Topic: model.TopicSighting, SnapshotDelta: time.Hour, ID: "req-3"})

	time.Sleep(100 * time.Millisecond)
	_, ok := envelopeInbox.TryDequeue()
	assert.False(t, ok)
}
