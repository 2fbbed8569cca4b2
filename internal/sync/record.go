package sync

import (
	"fmt"
	"time"
)

// Status is the sync state of a single record.
type Status int

const (
	// StatusNew is the state of a record that has not been written to the
	// local store yet. It is never persisted.
	StatusNew Status = iota
	// StatusSynced means the local copy matches the remote store.
	StatusSynced
	// StatusPendingCreate means the record exists only locally.
	StatusPendingCreate
	// StatusPendingUpdate means a local edit has not been pushed yet.
	StatusPendingUpdate
	// StatusPendingDelete means a local delete has not been pushed yet.
	StatusPendingDelete
	// StatusDeleted is terminal: the record is removed from the local store.
	// It is never persisted.
	StatusDeleted
)

var statusNames = map[Status]string{
	StatusNew:           "new",
	StatusSynced:        "synced",
	StatusPendingCreate: "pending_create",
	StatusPendingUpdate: "pending_update",
	StatusPendingDelete: "pending_delete",
	StatusDeleted:       "deleted",
}

// String returns the storage name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Pending reports whether the record carries an unflushed local mutation.
func (s Status) Pending() bool {
	return s == StatusPendingCreate || s == StatusPendingUpdate || s == StatusPendingDelete
}

// ParseStatus maps a stored status name back to a Status. Only the four
// persistable states are accepted.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "synced":
		return StatusSynced, nil
	case "pending_create":
		return StatusPendingCreate, nil
	case "pending_update":
		return StatusPendingUpdate, nil
	case "pending_delete":
		return StatusPendingDelete, nil
	}
	return StatusNew, fmt.Errorf("unknown sync status %q", name)
}

// pushOrder is the order in which the push reconciler drains pending records.
// Creates go first so that updates and deletes can reference a remote ID.
var pushOrder = []Status{StatusPendingCreate, StatusPendingUpdate, StatusPendingDelete}

// Payload is the entity-specific data carried by a record. The engine never
// looks inside it; it only asks for the wire shape and for a field merge when
// a remote copy wins a conflict.
type Payload[T any] interface {
	// RemoteShape returns the value sent to the remote store on create and
	// update. Local-only fields must be left out.
	RemoteShape() any

	// MergeFields returns the receiver with every remote-owned field taken
	// from remote. Local-only fields are kept.
	MergeFields(remote T) T
}

// Validator is implemented by payloads that can reject themselves before a
// local write.
type Validator interface {
	Validate() error
}

// Hasher is implemented by payloads that can detect a no-op edit.
type Hasher interface {
	ContentHash() string
}

// Owned is implemented by payloads that belong to a single user.
type Owned interface {
	OwnerID() string
}

// Record is the unit the engine manipulates. LocalID is the local store's
// primary key and never changes. RemoteID is empty until the first create
// push succeeds and is never cleared afterwards.
type Record[T any] struct {
	LocalID      string
	RemoteID     string
	ClientToken  string
	Payload      T
	Status       Status
	LastModified time.Time
	Deleted      bool
}

// HasRemoteID reports whether the record has ever been pushed.
func (r *Record[T]) HasRemoteID() bool {
	return r.RemoteID != ""
}

// clone returns a shallow copy so callers cannot mutate store-owned values.
func (r *Record[T]) clone() *Record[T] {
	cp := *r
	return &cp
}

// RemoteRecord is a remote store's view of one entity.
type RemoteRecord[T any] struct {
	RemoteID     string
	ClientToken  string
	Payload      T
	LastModified time.Time
	// Deleted marks a remote soft delete. Listings that carry it are treated
	// as explicit tombstones.
	Deleted bool
}

// Page is one page of a remote listing.
type Page[T any] struct {
	Items       []RemoteRecord[T]
	CurrentPage int
	LastPage    int
}

// More reports whether the server has pages after this one.
func (p Page[T]) More() bool {
	return p.CurrentPage < p.LastPage
}
