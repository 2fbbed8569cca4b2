package sync

import "fmt"

// Event is something that happens to a record and may move it to another
// status.
type Event int

const (
	// EventCreate is a local create.
	EventCreate Event = iota
	// EventEdit is a local update.
	EventEdit
	// EventDelete is a local delete request.
	EventDelete
	// EventPushSucceeded is a push accepted by the remote store.
	EventPushSucceeded
	// EventPushFailed is a push that failed for any reason.
	EventPushFailed
	// EventRemoteInsert is a remote record seen for the first time by a pull.
	EventRemoteInsert
	// EventRemoteMerge is a remote copy overwriting a synced local copy.
	EventRemoteMerge
	// EventRemoteTombstone is a remote deletion observed by a pull.
	EventRemoteTombstone
)

var eventNames = [...]string{
	EventCreate:          "create",
	EventEdit:            "edit",
	EventDelete:          "delete",
	EventPushSucceeded:   "push_succeeded",
	EventPushFailed:      "push_failed",
	EventRemoteInsert:    "remote_insert",
	EventRemoteMerge:     "remote_merge",
	EventRemoteTombstone: "remote_tombstone",
}

func (e Event) String() string {
	if int(e) >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Transition returns the status a record moves to when ev happens while it
// is in from. hasRemoteID tells whether the record has ever been pushed.
//
// The function is total: every pair either has a defined target or returns
// a *TransitionError. Callers must not coerce a rejected transition.
func Transition(from Status, ev Event, hasRemoteID bool) (Status, error) {
	reject := func() (Status, error) {
		return from, &TransitionError{From: from, Event: ev, HasRemoteID: hasRemoteID}
	}

	switch ev {
	case EventCreate:
		if from == StatusNew && !hasRemoteID {
			return StatusPendingCreate, nil
		}
		return reject()

	case EventEdit:
		switch from {
		case StatusSynced:
			return StatusPendingUpdate, nil
		case StatusPendingCreate, StatusPendingUpdate:
			// Edits before a push collapse into the already queued mutation.
			return from, nil
		}
		return reject()

	case EventDelete:
		switch from {
		case StatusSynced, StatusPendingCreate, StatusPendingUpdate, StatusPendingDelete:
			if !hasRemoteID {
				// Never reached the server: nothing to propagate.
				return StatusDeleted, nil
			}
			return StatusPendingDelete, nil
		}
		return reject()

	case EventPushSucceeded:
		switch from {
		case StatusPendingCreate, StatusPendingUpdate:
			return StatusSynced, nil
		case StatusPendingDelete:
			return StatusDeleted, nil
		}
		return reject()

	case EventPushFailed:
		if from.Pending() {
			return from, nil
		}
		return reject()

	case EventRemoteInsert:
		if from == StatusNew && hasRemoteID {
			return StatusSynced, nil
		}
		return reject()

	case EventRemoteMerge:
		if from == StatusSynced {
			return StatusSynced, nil
		}
		return reject()

	case EventRemoteTombstone:
		if from == StatusSynced && hasRemoteID {
			return StatusDeleted, nil
		}
		return reject()
	}

	return reject()
}
