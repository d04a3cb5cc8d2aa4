package notifications

import "github.com/lifebank/notifykit/pkg/statemachine"

type Event string

const (
	EventDelivered Event = "delivered"
	EventExhausted Event = "exhausted"
	EventRead      Event = "read"
)

// statusMachine holds the delivery lifecycle. MarkRead is deliberately not
// bound by it: reading sets READ from any status.
var statusMachine = statemachine.MustNew(
	statemachine.T(StatusPending, StatusSent, EventDelivered),
	statemachine.T(StatusPending, StatusFailed, EventExhausted),
	statemachine.T(StatusSent, StatusRead, EventRead),
)

// NextStatus returns the status reached by firing event from s.
func NextStatus(s Status, event Event) (Status, error) {
	return statusMachine.Fire(s, event)
}

// IsTerminal reports whether no event leaves s.
func IsTerminal(s Status) bool {
	return statusMachine.Terminal(s)
}
