// Package backbone defines the transport seam between the dispatch core
// running in one process and the dispatch core running in another: a
// Backbone carries canonical messages across a process boundary without
// the dispatch core or any app adapter knowing which transport moved them.
package backbone

import (
	"context"

	"github.com/adisbladis/threatbus/internal/model"
)

// Backbone is a bidirectional channel for canonical messages between the
// local Dispatcher and one or more remote threatbus instances.
//
// Publish sends a message outward. Subscribe registers a callback invoked
// for every inbound message on topic (or any topic the Backbone otherwise
// decides to deliver, e.g. a durable queue bound to a fixed set of
// exchanges). Close releases all underlying transport resources.
type Backbone interface {
	Publish(ctx context.Context, msg model.Message) error
	Subscribe(topic string, handler func(model.Message)) error
	Close() error
}
