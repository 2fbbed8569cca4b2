// Package sync implements the offline-first synchronization engine. Records
// are written to a local store first, tagged with a pending status, and
// later reconciled with an authoritative remote store.
//
// The package contains the following components:
//
//   - [Transition], the per-record state machine.
//   - [LastWriteWins], the conflict resolver.
//   - [Pusher] and [Puller], the two halves of a reconciliation pass.
//   - [Collection], the mutation entry points for one entity kind.
//   - [Engine], which sequences passes per collection with single-flight
//     protection, on demand or periodically.
package sync

import "context"

// RemoteClient talks to the authoritative store for one collection.
// Implemented by [remote.Client].
type RemoteClient[T any] interface {
	// Create stores a new entity. A create retried with the same
	// clientToken returns a *DuplicateTokenError naming the existing record.
	Create(ctx context.Context, payload T, clientToken string) (RemoteRecord[T], error)
	// Update replaces the entity's payload. Returns ErrNotFound when the
	// remote record no longer exists.
	Update(ctx context.Context, remoteID string, payload T) (RemoteRecord[T], error)
	// Delete removes the entity. Returns ErrNotFound when it is already gone.
	Delete(ctx context.Context, remoteID string) error
	// List returns one page of the current remote state. Pages start at 1.
	List(ctx context.Context, page, pageSize int) (Page[T], error)
}

// LocalStore is durable keyed storage for one collection's records.
// Implemented by [localstore.Store]. Lookups return (nil, nil) when nothing
// matches.
type LocalStore[T any] interface {
	Get(ctx context.Context, localID string) (*Record[T], error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Record[T], error)
	ListByStatus(ctx context.Context, status Status) ([]*Record[T], error)
	Upsert(ctx context.Context, rec *Record[T]) error
	Delete(ctx context.Context, localID string) error
}

// ConnectivityGate answers whether a network round-trip is worth attempting.
// Implementations must return within a short bounded time.
// Implemented by the types in package connectivity.
type ConnectivityGate interface {
	IsAvailable(ctx context.Context) bool
}

// Invalidator is implemented by gates that cache their answer. The engine
// calls Invalidate when a pass fails for lack of network, so the next
// check asks again instead of trusting a stale "online".
type Invalidator interface {
	Invalidate()
}

// Syncer is the collection-independent view the [Engine] drives.
// Implemented by [Collection].
type Syncer interface {
	Name() string
	// Pass runs push then pull. Concurrent calls are serialized.
	Pass(ctx context.Context) (Stats, error)
	PendingCount(ctx context.Context) (int, error)
}
