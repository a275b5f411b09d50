package backbone

import (
	"context"
	"fmt"
	"os"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/model"
)

// Exchange names. Each canonical topic gets its own durable fanout
// exchange; there is no single multiplexed exchange, so a misrouted
// binding can never leak one topic's traffic into another's consumers.
const (
	exchangeIntel            = "threatbus-intel"
	exchangeSighting         = "threatbus-sighting"
	exchangeSnapshotRequest  = "threatbus-snapshot-requests"
	exchangeSnapshotEnvelope = "threatbus-snapshot-envelopes"
)

var topicExchanges = map[string]string{
	model.TopicIntel:            exchangeIntel,
	model.TopicSighting:         exchangeSighting,
	model.TopicSnapshotRequest:  exchangeSnapshotRequest,
	model.TopicSnapshotEnvelope: exchangeSnapshotEnvelope,
}

// poisonPillError marks a delivery that can never succeed on redelivery —
// malformed bodies, unknown kinds — so the consumer loop rejects it
// outright instead of nacking it back onto the queue forever.
type poisonPillError struct {
	cause error
}

func (e *poisonPillError) Error() string { return "poison pill: " + e.cause.Error() }
func (e *poisonPillError) Unwrap() error { return e.cause }

// AMQP is the durable cross-process Backbone, built on 0-9-1 fanout
// exchanges: one publisher-declared exchange per canonical topic, and one
// durable per-node queue per subscribed topic so that messages published
// while this node is offline are still delivered on reconnect.
type AMQP struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger

	mu     sync.Mutex
	queues []string
	closed bool
}

// DialAMQP connects to the broker at url and declares every topic's
// exchange up front. Exchange declaration is idempotent, so provisioning
// never depends on ordering between publisher and subscriber processes.
func DialAMQP(url string, logger *zap.Logger) (*AMQP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp backbone: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp backbone: open channel: %w", err)
	}

	a := &AMQP{conn: conn, ch: ch, logger: logger}
	for _, exchange := range topicExchanges {
		if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("amqp backbone: declare exchange %s: %w", exchange, err)
		}
	}
	return a, nil
}

// Publish encodes msg with the canonical text codec and publishes it to
// the exchange bound to msg's topic, with an empty routing key — fanout
// exchanges ignore routing keys entirely.
func (a *AMQP) Publish(ctx context.Context, msg model.Message) error {
	exchange, ok := topicExchanges[msg.Topic()]
	if !ok {
		return fmt.Errorf("amqp backbone: no exchange bound for topic %q", msg.Topic())
	}
	body, err := model.Encode(msg)
	if err != nil {
		return fmt.Errorf("amqp backbone: encode: %w", err)
	}
	return a.ch.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        body,
	})
}

// Subscribe declares a durable, per-node queue bound to topic's exchange
// and launches a goroutine that decodes and hands off each delivery.
//
// A delivery is acked once handler has run, regardless of what handler
// does with it — decode failures below are poison pills handled before
// handler is ever invoked, matching the "ack after decode, not after
// business-logic success" contract of this backbone (the canonical
// message is immutable once encoded, so there is no transient failure
// mode analogous to a database write failing).
func (a *AMQP) Subscribe(topic string, handler func(model.Message)) error {
	exchange, ok := topicExchanges[topic]
	if !ok {
		return fmt.Errorf("amqp backbone: no exchange bound for topic %q", topic)
	}

	queueName := exchange + "-" + nodeIdentity()
	q, err := a.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp backbone: declare queue %s: %w", queueName, err)
	}
	if err := a.ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("amqp backbone: bind queue %s: %w", q.Name, err)
	}

	deliveries, err := a.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp backbone: consume %s: %w", q.Name, err)
	}

	a.mu.Lock()
	a.queues = append(a.queues, q.Name)
	a.mu.Unlock()

	go func() {
		for d := range deliveries {
			a.handleDelivery(d, handler)
		}
	}()
	return nil
}

func (a *AMQP) handleDelivery(d amqp.Delivery, handler func(model.Message)) {
	msg, err := model.Decode(d.Body)
	if err != nil {
		a.logger.Warn("terminating poison-pill delivery", zap.Error(&poisonPillError{cause: err}))
		d.Nack(false, false) // discard, do not requeue
		return
	}
	handler(msg)
	d.Ack(false)
}

// Close shuts down the channel and connection. Queues themselves are left
// in place (durable, per-node) so a restarted node resumes from where it
// left off rather than losing messages published during the outage.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.ch.Close(); err != nil {
		a.conn.Close()
		return fmt.Errorf("amqp backbone: close channel: %w", err)
	}
	return a.conn.Close()
}

// nodeIdentity names this process's durable queues so that every node
// subscribing to the same topic gets its own copy of fanout traffic,
// instead of competing as one consumer group.
func nodeIdentity() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown-node"
}
