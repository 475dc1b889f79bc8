package prescription

import "testing"

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusReviewed, true},
		{StatusDraft, StatusReviewed, true},
		{StatusOpen, StatusPaid, false},
		{StatusReviewed, StatusPaid, true},
		{StatusReviewed, StatusDispensed, false},
		{StatusPaid, StatusDispensed, true},
		{StatusPaid, StatusCancelled, false},
		{StatusDispensed, StatusReturned, true},
		{StatusDispensed, StatusRefunded, true},
		{StatusReturned, StatusRefunded, true},
		{StatusReturned, StatusDispensed, false},
		{StatusCancelled, StatusOpen, false},
		{StatusRefunded, StatusPaid, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_Closed(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusRefunded} {
		if !s.Closed() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusDispensed.Closed() {
		t.Error("DISPENSED still allows return and refund")
	}
	if Status(42).Valid() || Status(42).String() != "UNKNOWN" {
		t.Error("unexpected handling of unknown status")
	}
}

func TestType_Valid(t *testing.T) {
	if !TypeHerbal.Valid() || Type(0).Valid() || Type(4).Valid() {
		t.Error("unexpected type validity")
	}
}
