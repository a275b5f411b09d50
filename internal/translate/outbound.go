package translate

import (
	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/model"
)

// ToOutboundEvent maps a canonical Message to a wire Event for the
// outbound direction, the mirror of ParseManagement/ParseSighting. Only
// Indicator is directly mappable — mirroring the original Zeek mapping,
// which has no Broker event shape for a Sighting, since sightings flow
// from app to bus, never the other way. A SnapshotEnvelope unwraps its
// Payload and maps that instead. Anything else is unmappable.
func ToOutboundEvent(msg model.Message, namespace string, logger *zap.Logger) (ManagementEvent, bool) {
	switch v := msg.(type) {
	case model.Indicator:
		evt, ok := ToIntelEvent(v, logger)
		if !ok {
			return ManagementEvent{}, false
		}
		return IntelToEvent(namespace, evt), true
	case model.SnapshotEnvelope:
		if v.Payload == nil {
			return ManagementEvent{}, false
		}
		return ToOutboundEvent(v.Payload, namespace, logger)
	default:
		logger.Debug("no outbound mapping for message type")
		return ManagementEvent{}, false
	}
}
