package translate

import (
	"time"

	"github.com/adisbladis/threatbus/internal/model"
)

// ParseSighting maps a "<namespace>::sighting" transport event with
// positional args (timestamp, ioc_id, context) to a canonical Sighting.
// Any other arity is unmappable.
func ParseSighting(evt ManagementEvent, namespace string) (model.Sighting, bool) {
	name := StripNamespace(evt.Name, namespace)
	if name != "sighting" || len(evt.Args) != 3 {
		return model.Sighting{}, false
	}

	ts, ok := evt.Args[0].(time.Time)
	if !ok {
		return model.Sighting{}, false
	}
	refID, ok := evt.Args[1].(string)
	if !ok || refID == "" {
		return model.Sighting{}, false
	}
	var ctx map[string]any
	switch c := evt.Args[2].(type) {
	case map[string]any:
		ctx = c
	case nil:
		ctx = map[string]any{}
	default:
		return model.Sighting{}, false
	}

	return model.Sighting{Created: ts, RefID: refID, Context: ctx}, true
}

// IntelToEvent renders a translated IntelEvent into the transport's named
// positional-argument shape: "<namespace>::intel".
func IntelToEvent(namespace string, evt IntelEvent) ManagementEvent {
	name := "intel"
	if namespace != "" {
		name = namespace + "::intel"
	}
	return ManagementEvent{
		Name: name,
		Args: []any{evt.Created, evt.ID, evt.Tag, evt.Value, evt.Operation.String()},
	}
}
