// Package snapshot implements the Snapshot Store: it observes every
// canonical message flowing through the dispatch core, keeps a bounded,
// age-based per-topic history, and answers SnapshotRequests by replaying
// that history as SnapshotEnvelopes.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
)

const inboxCapacity = 256

// record is one retained message, timestamped at store-time so pruning and
// replay filtering don't depend on the message's own (possibly absent or
// skewed) Created field.
type record struct {
	storedAt time.Time
	msg      model.Message
}

// Store is the Snapshot Store component: it subscribes to every canonical
// topic via the dispatch core's empty-suffix prefix and answers
// SnapshotRequests from a ring buffer bounded by wall-clock age.
type Store struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu       sync.Mutex
	byTopic  map[string][]record
	maxDelta time.Duration

	inbox    *dispatch.Inbox
	p2pTopic string
	cron     *cron.Cron

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Store. Call Start to register its subscription and
// begin recording.
func New(dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dispatcher: dispatcher,
		logger:     logger,
		byTopic:    make(map[string][]record),
		cron:       cron.New(),
		stopCh:     make(chan struct{}),
	}
}

// Start subscribes to the "threatbus/" prefix (matching every canonical
// topic) and spawns the recording loop plus the once-a-minute pruning job.
func (s *Store) Start() error {
	s.inbox = dispatch.NewInbox(inboxCapacity)
	s.p2pTopic = s.dispatcher.Subscribe("threatbus/", s.inbox, 0)

	s.wg.Add(1)
	go s.recordLoop()

	if _, err := s.cron.AddFunc("@every 1m", s.prune); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop unsubscribes from the dispatch core, stops the pruning cron, and
// joins the recording goroutine.
func (s *Store) Stop() {
	close(s.stopCh)
	s.dispatcher.Unsubscribe(s.p2pTopic)
	s.wg.Wait()

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
}

func (s *Store) recordLoop() {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		env, ok := s.inbox.Dequeue(ctx)
		if !ok {
			return
		}
		s.handle(env.Msg)
		env.Done()

		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

func (s *Store) handle(msg model.Message) {
	switch v := msg.(type) {
	case model.SnapshotRequest:
		s.replay(v)
	case model.Indicator, model.Sighting:
		s.record(msg)
	}
}

func (s *Store) record(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic := msg.Topic()
	s.byTopic[topic] = append(s.byTopic[topic], record{storedAt: timeNow(), msg: msg})
}

// replay answers a SnapshotRequest by publishing one SnapshotEnvelope per
// retained entry newer than now-SnapshotDelta, in recorded order.
func (s *Store) replay(req model.SnapshotRequest) {
	cutoff := timeNow().Add(-req.SnapshotDelta)

	s.mu.Lock()
	entries := s.byTopic[req.Topic]
	if req.SnapshotDelta > s.maxDelta {
		s.maxDelta = req.SnapshotDelta
	}
	s.mu.Unlock()

	for _, rec := range entries {
		if rec.storedAt.Before(cutoff) {
			continue
		}
		s.dispatcher.Publish(model.SnapshotEnvelope{ID: req.ID, Payload: rec.msg})
	}
}

// prune drops entries older than the largest delta requested so far. It is
// an optimization — replay always re-filters by age regardless — so a
// conservative (too-generous) retention window here is harmless.
func (s *Store) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxDelta <= 0 {
		return
	}
	cutoff := timeNow().Add(-s.maxDelta)
	for topic, entries := range s.byTopic {
		kept := entries[:0]
		for _, rec := range entries {
			if !rec.storedAt.Before(cutoff) {
				kept = append(kept, rec)
			}
		}
		s.byTopic[topic] = kept
	}
}

// timeNow is a seam so tests can observe pruning/replay behavior without
// sleeping for real wall-clock durations.
var timeNow = time.Now
