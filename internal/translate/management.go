package translate

import (
	"fmt"
	"time"

	"github.com/adisbladis/threatbus/internal/model"
)

// ManagementEvent is the app-transport shape of a management message:
// a namespaced name plus its positional arguments.
type ManagementEvent struct {
	Name string
	Args []any
}

// StripNamespace removes a "NS::" prefix from name, if namespace is
// non-empty and name actually carries it. Otherwise name is returned as-is.
func StripNamespace(name, namespace string) string {
	prefix := namespace
	if prefix != "" {
		prefix += "::"
	}
	if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return name
}

// ParseManagement maps a transport management event to a Subscription or
// Unsubscription. Anything else — wrong name, wrong arity, empty topic —
// is unmappable and returns ok=false.
func ParseManagement(evt ManagementEvent, namespace string) (model.Message, bool) {
	name := StripNamespace(evt.Name, namespace)
	switch name {
	case "subscribe":
		if len(evt.Args) != 2 {
			return nil, false
		}
		topic, ok := evt.Args[0].(string)
		if !ok || topic == "" {
			return nil, false
		}
		delta, ok := toDuration(evt.Args[1])
		if !ok {
			return nil, false
		}
		return model.Subscription{Topic: topic, SnapshotDelta: delta}, true
	case "unsubscribe":
		if len(evt.Args) != 1 {
			return nil, false
		}
		topic, ok := evt.Args[0].(string)
		if !ok || topic == "" {
			return nil, false
		}
		return model.Unsubscription{Topic: topic}, true
	default:
		return nil, false
	}
}

// toDuration accepts either a time.Duration or a plain number of seconds,
// since app transports that marshal through JSON lose the Duration type.
func toDuration(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case time.Duration:
		return n, true
	case float64:
		return time.Duration(n * float64(time.Second)), true
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	default:
		return 0, false
	}
}

// SubscriptionAcknowledged builds the acknowledgment event sent back to the
// tool once a Subscription has been registered with the dispatch core.
func SubscriptionAcknowledged(namespace, p2pTopic string) ManagementEvent {
	name := "subscription_acknowledged"
	if namespace != "" {
		name = fmt.Sprintf("%s::%s", namespace, name)
	}
	return ManagementEvent{Name: name, Args: []any{p2pTopic}}
}
