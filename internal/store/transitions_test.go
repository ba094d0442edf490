package store

import (
	"testing"

	"ministry-hr/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   models.AbsenceStatus
		valid  bool
	}{
		{ActionApprove, models.StatusPending, true},
		{ActionApprove, models.StatusApproved, false},
		{ActionApprove, models.StatusRejected, false},
		{ActionApprove, models.StatusCancelled, false},
		{ActionReject, models.StatusPending, true},
		{ActionReject, models.StatusApproved, false},
		{ActionReject, models.StatusCancelled, false},
		{ActionCancel, models.StatusPending, true},
		{ActionCancel, models.StatusRejected, false},
		{ActionCancel, models.StatusApproved, false},
		{"unknown", models.StatusPending, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestTargetStatus(t *testing.T) {
	cases := map[string]models.AbsenceStatus{
		ActionApprove: models.StatusApproved,
		ActionReject:  models.StatusRejected,
		ActionCancel:  models.StatusCancelled,
	}
	for action, want := range cases {
		got, ok := TargetStatus(action)
		if !ok || got != want {
			t.Fatalf("TargetStatus(%q)=%q,%v want %q", action, got, ok, want)
		}
		if !got.Terminal() {
			t.Fatalf("target of %q must be terminal", action)
		}
	}
	if _, ok := TargetStatus("submit"); ok {
		t.Fatalf("expected no target for submit")
	}
}
