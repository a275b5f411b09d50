// Package appadapter implements the per-app subscription protocol: a
// generic Adapter speaks the management/intel/sighting channel contract
// against an Endpoint, translating wire Events to and from the canonical
// model via internal/translate. A single inbound dispatch loop demultiplexes
// the endpoint's one event channel by event name, and a separate outbound
// loop round-robins subscriber inboxes back onto the endpoint, per the
// original Zeek plugin's listen/manage/publish split.
package appadapter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
	"github.com/adisbladis/threatbus/internal/translate"
)

// outboundPollInterval is how often the publish loop round-robins across
// subscriber inboxes looking for work, matching the original plugin's
// select() timeout.
const outboundPollInterval = 50 * time.Millisecond

type outboundSub struct {
	topic string
	inbox *dispatch.Inbox
	state SubscriptionState
}

// Adapter is a generic, Zeek-shaped app adapter: it exposes the three
// channels (management, intel, sighting) over a single Endpoint, using
// p2p-topic strings as the map key throughout, per the canonical
// resolution of the registry's Open Question on subscription identity.
type Adapter struct {
	dispatcher *dispatch.Dispatcher
	endpoint   Endpoint
	namespace  string
	logger     *zap.Logger

	mu   sync.Mutex
	subs map[string]*outboundSub // p2p-topic => subscription

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Adapter. Call Start to begin serving the endpoint.
func New(dispatcher *dispatch.Dispatcher, endpoint Endpoint, namespace string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		dispatcher: dispatcher,
		endpoint:   endpoint,
		namespace:  namespace,
		logger:     logger,
		subs:       make(map[string]*outboundSub),
		stopCh:     make(chan struct{}),
	}
}

// Start spawns the dispatch and publish goroutines.
func (a *Adapter) Start() {
	a.wg.Add(2)
	go a.dispatchLoop()
	go a.publishLoop()
}

// Stop signals both goroutines to exit, unregisters every live
// subscription from the dispatch core, and closes the endpoint.
func (a *Adapter) Stop() {
	close(a.stopCh)
	a.wg.Wait()

	a.mu.Lock()
	for p2pTopic := range a.subs {
		a.dispatcher.Unsubscribe(p2pTopic)
	}
	a.subs = make(map[string]*outboundSub)
	a.mu.Unlock()

	a.endpoint.Close()
}

// dispatchLoop is the sole reader of the endpoint's event channel. A
// channel hands each value to exactly one receiver, so every inbound frame
// must be demultiplexed here rather than raced over by separate listen and
// manage goroutines.
func (a *Adapter) dispatchLoop() {
	defer a.wg.Done()
	for {
		select {
		case evt, ok := <-a.endpoint.Events():
			if !ok {
				return
			}
			a.handleEvent(evt)
		case <-a.stopCh:
			return
		}
	}
}

// handleEvent routes one inbound frame by its namespace-stripped event
// name. Inbound intel is not handled here: like the original plugin, this
// adapter only ever maps sightings from tool to bus. Anything unmappable
// is silently ignored, matching the original's debug-and-drop behavior for
// unknown event names.
func (a *Adapter) handleEvent(evt Event) {
	me := toManagementEvent(evt)
	switch translate.StripNamespace(me.Name, a.namespace) {
	case "sighting":
		sighting, ok := translate.ParseSighting(me, a.namespace)
		if !ok {
			return
		}
		a.dispatcher.Publish(sighting)
	case "subscribe", "unsubscribe":
		msg, ok := translate.ParseManagement(me, a.namespace)
		if !ok {
			return
		}
		switch task := msg.(type) {
		case model.Subscription:
			a.handleSubscribe(task)
		case model.Unsubscription:
			a.handleUnsubscribe(task)
		}
	}
}

func (a *Adapter) handleSubscribe(sub model.Subscription) {
	a.logger.Info("received subscription", zap.String("topic", sub.Topic))

	inbox := dispatch.NewInbox(64)
	entry := &outboundSub{topic: sub.Topic, inbox: inbox, state: StateNew}

	p2pTopic := a.dispatcher.Subscribe(sub.Topic, inbox, sub.SnapshotDelta)

	a.mu.Lock()
	entry.state = StateAckSent
	a.subs[p2pTopic] = entry
	a.mu.Unlock()

	ack := translate.SubscriptionAcknowledged(a.namespace, p2pTopic)
	if err := a.endpoint.Send(toEvent(ack)); err != nil {
		a.logger.Warn("failed to send subscription acknowledgment", zap.Error(err))
		return
	}

	a.mu.Lock()
	if s, ok := a.subs[p2pTopic]; ok {
		s.state = StateActive
	}
	a.mu.Unlock()
}

func (a *Adapter) handleUnsubscribe(unsub model.Unsubscription) {
	a.logger.Info("received unsubscription", zap.String("p2p_topic", unsub.Topic))

	a.mu.Lock()
	sub, ok := a.subs[unsub.Topic]
	if ok {
		sub.state = StateDraining
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	a.dispatcher.Unsubscribe(unsub.Topic)

	for {
		env, ok := sub.inbox.TryDequeue()
		if !ok {
			break
		}
		env.Done()
	}

	a.mu.Lock()
	sub.state = StateRemoved
	delete(a.subs, unsub.Topic)
	a.mu.Unlock()
}

// publishLoop round-robins across every active subscriber's inbox,
// translating and forwarding whatever is ready without blocking on any
// single subscriber — the outbound mirror of the dispatch core's fan-out.
func (a *Adapter) publishLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(outboundPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.pollOnce()
		case <-a.stopCh:
			return
		}
	}
}

func (a *Adapter) pollOnce() {
	a.mu.Lock()
	snapshot := make([]*outboundSub, 0, len(a.subs))
	for _, s := range a.subs {
		if s.state == StateActive {
			snapshot = append(snapshot, s)
		}
	}
	a.mu.Unlock()

	for _, s := range snapshot {
		env, ok := s.inbox.TryDequeue()
		if !ok {
			continue
		}
		evt, ok := translate.ToOutboundEvent(env.Msg, a.namespace, a.logger)
		if ok {
			if err := a.endpoint.Send(toEvent(evt)); err != nil {
				a.logger.Warn("failed to publish outbound event", zap.Error(err))
			}
		}
		env.Done()
	}
}

func toManagementEvent(evt Event) translate.ManagementEvent {
	return translate.ManagementEvent{Name: evt.Name, Args: evt.Args}
}

func toEvent(me translate.ManagementEvent) Event {
	return Event{Name: me.Name, Args: me.Args}
}
