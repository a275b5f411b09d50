package appadapter

// SubscriptionState tracks one p2p subscription through its lifecycle, as
// observed by the management goroutine and the outbound fan-out loop.
type SubscriptionState int

const (
	// StateNew is assigned the instant a Subscription event is received,
	// before the subscription_acknowledged event has been sent back.
	StateNew SubscriptionState = iota
	// StateAckSent means the dispatch core has registered the
	// subscription's inbox and the subscription_acknowledged event is being
	// sent; outbound delivery waits until that send succeeds.
	StateAckSent
	// StateActive means the subscription is registered with the dispatch
	// core and eligible for outbound delivery.
	StateActive
	// StateDraining means an Unsubscription was received; the inbox is
	// closed but may still hold undelivered messages.
	StateDraining
	// StateRemoved means the subscription's inbox has fully drained and
	// its registry entry has been deleted.
	StateRemoved
)

func (s SubscriptionState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAckSent:
		return "ACK_SENT"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}
