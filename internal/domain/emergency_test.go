package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNextEmergencyState(t *testing.T) {
	cases := []struct {
		action EmergencyAction
		from   EmergencyState
		want   EmergencyState
		valid  bool
	}{
		{EmergencyApprove, EmergencyPending, EmergencyApproved, true},
		{EmergencyReject, EmergencyPending, EmergencyRejected, true},
		{EmergencyApprove, EmergencyApproved, "", false},
		{EmergencyReject, EmergencyActive, "", false},
		{EmergencyApprove, EmergencyRejected, "", false},
		{EmergencyStart, EmergencyApproved, EmergencyActive, true},
		{EmergencyStart, EmergencyPending, "", false},
		{EmergencyResolve, EmergencyActive, EmergencyResolved, true},
		{EmergencyResolve, EmergencyApproved, "", false},
		{EmergencyStart, EmergencyResolved, "", false},
	}

	for _, tt := range cases {
		got, err := NextEmergencyState(tt.action, tt.from)
		if tt.valid {
			if err != nil || got != tt.want {
				t.Fatalf("NextEmergencyState(%q, %q)=%q,%v want %q", tt.action, tt.from, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("NextEmergencyState(%q, %q) err=%v, want ErrInvalidState", tt.action, tt.from, err)
		}
	}
}

func TestEmergencyApply(t *testing.T) {
	e := &Emergency{State: EmergencyPending}
	now := time.Now()
	for _, action := range []EmergencyAction{EmergencyApprove, EmergencyStart, EmergencyResolve} {
		if err := e.Apply(action, now); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}
	if e.State != EmergencyResolved || e.State.IsOpen() {
		t.Fatalf("expected resolved, got %q", e.State)
	}
	if !e.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt not stamped")
	}
}

func TestIdentity(t *testing.T) {
	cases := []struct {
		name  string
		id    Identity
		valid bool
		key   string
	}{
		{"user", UserIdentity("u1"), true, "user:u1"},
		{"guest", GuestIdentity("g1"), true, "guest:g1"},
		{"empty", Identity{}, false, ""},
		{"both", Identity{UserID: "u1", GuestToken: "g1"}, false, ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid {
				if !errors.Is(err, ErrInvalidIdentity) {
					t.Fatalf("expected ErrInvalidIdentity, got %v", err)
				}
				return
			}
			if tt.id.Key() != tt.key {
				t.Fatalf("Key()=%q want %q", tt.id.Key(), tt.key)
			}
		})
	}
}
