package state

// DeliveryStatus is the persisted status of a delivery log.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "pending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further automatic transition happens from s.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func (s DeliveryStatus) IsValid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

var AllStatuses = []DeliveryStatus{
	StatusPending,
	StatusSent,
	StatusFailed,
}

// TerminalStatuses lists the statuses a log can be purged in.
func TerminalStatuses() []DeliveryStatus {
	var out []DeliveryStatus
	for _, s := range AllStatuses {
		if s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// JobPhase is the in-memory state of a dispatch job inside a worker.
type JobPhase string

const (
	PhaseReceived JobPhase = "received"
	PhaseSending  JobPhase = "sending"
	PhaseSent     JobPhase = "sent"
	PhaseFailed   JobPhase = "failed"
)

func (p JobPhase) String() string {
	return string(p)
}

// Status returns the delivery status a terminal phase is persisted as.
func (p JobPhase) Status() DeliveryStatus {
	switch p {
	case PhaseSent:
		return StatusSent
	case PhaseFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

type Transition struct {
	From JobPhase
	To   JobPhase
}

var ValidTransitions = []Transition{
	{From: PhaseReceived, To: PhaseSending},
	{From: PhaseSending, To: PhaseSent},
	{From: PhaseSending, To: PhaseFailed},
}

func IsValidTransition(from, to JobPhase) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
