package sync

import (
	"errors"
	"testing"
)

func TestTransition_Defined(t *testing.T) {
	tests := []struct {
		from      Status
		ev        Event
		hasRemote bool
		want      Status
	}{
		{StatusNew, EventCreate, false, StatusPendingCreate},

		{StatusSynced, EventEdit, true, StatusPendingUpdate},
		{StatusPendingCreate, EventEdit, false, StatusPendingCreate},
		{StatusPendingUpdate, EventEdit, true, StatusPendingUpdate},

		{StatusSynced, EventDelete, true, StatusPendingDelete},
		{StatusPendingUpdate, EventDelete, true, StatusPendingDelete},
		{StatusPendingDelete, EventDelete, true, StatusPendingDelete},
		{StatusPendingCreate, EventDelete, false, StatusDeleted},
		{StatusPendingUpdate, EventDelete, false, StatusDeleted},

		{StatusPendingCreate, EventPushSucceeded, true, StatusSynced},
		{StatusPendingUpdate, EventPushSucceeded, true, StatusSynced},
		{StatusPendingDelete, EventPushSucceeded, true, StatusDeleted},

		{StatusPendingCreate, EventPushFailed, false, StatusPendingCreate},
		{StatusPendingUpdate, EventPushFailed, true, StatusPendingUpdate},
		{StatusPendingDelete, EventPushFailed, true, StatusPendingDelete},

		{StatusNew, EventRemoteInsert, true, StatusSynced},
		{StatusSynced, EventRemoteMerge, true, StatusSynced},
		{StatusSynced, EventRemoteTombstone, true, StatusDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev, tt.hasRemote)
			if err != nil {
				t.Fatalf("Transition: %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		from      Status
		ev        Event
		hasRemote bool
	}{
		{StatusSynced, EventCreate, true},
		{StatusNew, EventCreate, true},
		{StatusPendingDelete, EventEdit, true},
		{StatusDeleted, EventEdit, true},
		{StatusNew, EventDelete, false},
		{StatusSynced, EventPushSucceeded, true},
		{StatusSynced, EventPushFailed, true},
		{StatusNew, EventRemoteInsert, false},
		{StatusPendingUpdate, EventRemoteMerge, true},
		{StatusPendingCreate, EventRemoteTombstone, false},
		{StatusPendingDelete, EventRemoteTombstone, true},
		{StatusSynced, EventRemoteTombstone, false},
		{StatusSynced, Event(99), true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev, tt.hasRemote)
			var terr *TransitionError
			if !errors.As(err, &terr) {
				t.Fatalf("err = %v, want *TransitionError", err)
			}
			if got != tt.from {
				t.Errorf("status = %s, want unchanged %s", got, tt.from)
			}
			if terr.From != tt.from || terr.Event != tt.ev {
				t.Errorf("TransitionError = %+v", terr)
			}
		})
	}
}

// Every (state, event, remote) triple either succeeds or yields a typed error.
func TestTransition_Total(t *testing.T) {
	for s := StatusNew; s <= StatusDeleted; s++ {
		for ev := EventCreate; ev <= EventRemoteTombstone; ev++ {
			for _, remote := range []bool{false, true} {
				_, err := Transition(s, ev, remote)
				var terr *TransitionError
				if err != nil && !errors.As(err, &terr) {
					t.Errorf("Transition(%s, %s, %t) = %v, want nil or *TransitionError", s, ev, remote, err)
				}
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusSynced, StatusPendingCreate, StatusPendingUpdate, StatusPendingDelete} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %s, want %s", s.String(), got, s)
		}
	}

	for _, name := range []string{"new", "deleted", "pending", ""} {
		if _, err := ParseStatus(name); err == nil {
			t.Errorf("ParseStatus(%q) succeeded, want error", name)
		}
	}
}

func TestStatusPending(t *testing.T) {
	pending := map[Status]bool{
		StatusNew:           false,
		StatusSynced:        false,
		StatusPendingCreate: true,
		StatusPendingUpdate: true,
		StatusPendingDelete: true,
		StatusDeleted:       false,
	}
	for s, want := range pending {
		if got := s.Pending(); got != want {
			t.Errorf("%s.Pending() = %t, want %t", s, got, want)
		}
	}
}
