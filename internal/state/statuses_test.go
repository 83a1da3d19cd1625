package state

import (
	"testing"
)

func TestDeliveryStatus_String(t *testing.T) {
	tests := []struct {
		name     string
		status   DeliveryStatus
		expected string
	}{
		{name: "Pending status", status: StatusPending, expected: "pending"},
		{name: "Sent status", status: StatusSent, expected: "sent"},
		{name: "Failed status", status: StatusFailed, expected: "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.String(); got != tt.expected {
				t.Errorf("String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDeliveryStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	if !StatusSent.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("sent and failed must be terminal")
	}
}

func TestDeliveryStatus_IsValid(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if DeliveryStatus("queued").IsValid() {
		t.Error("queued is not a delivery status")
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     JobPhase
		to       JobPhase
		expected bool
	}{
		{name: "received to sending", from: PhaseReceived, to: PhaseSending, expected: true},
		{name: "sending to sent", from: PhaseSending, to: PhaseSent, expected: true},
		{name: "sending to failed", from: PhaseSending, to: PhaseFailed, expected: true},
		{name: "received to sent skips sending", from: PhaseReceived, to: PhaseSent, expected: false},
		{name: "sent to sending", from: PhaseSent, to: PhaseSending, expected: false},
		{name: "failed to sent", from: PhaseFailed, to: PhaseSent, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestJobPhase_Status(t *testing.T) {
	if PhaseSent.Status() != StatusSent {
		t.Error("sent phase persists as sent")
	}
	if PhaseFailed.Status() != StatusFailed {
		t.Error("failed phase persists as failed")
	}
	if PhaseSending.Status() != StatusPending {
		t.Error("sending phase leaves the log pending")
	}
}

func TestTerminalStatuses(t *testing.T) {
	got := TerminalStatuses()
	if len(got) != 2 || got[0] != StatusSent || got[1] != StatusFailed {
		t.Fatalf("unexpected terminal statuses %v", got)
	}
}
