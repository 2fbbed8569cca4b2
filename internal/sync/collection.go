package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Option configures a [Collection].
type Option func(*options)

type options struct {
	pageSize  int
	now       func() time.Time
	newID     func() string
	newToken  func() string
	authorize Authorizer
}

// WithPageSize sets the listing page size used by pulls.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithClock replaces time.Now for local LastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the ULID local ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithTokenGenerator replaces the UUID client token generator.
func WithTokenGenerator(fn func() string) Option {
	return func(o *options) { o.newToken = fn }
}

// WithAuthorizer installs a check run before every local mutation.
func WithAuthorizer(a Authorizer) Option {
	return func(o *options) { o.authorize = a }
}

// Collection is the local-first API for one entity kind. Mutations are
// written to the local store before they return and are pushed in the
// background of the call when the network allows it; push failures never
// reach the caller.
type Collection[T Payload[T]] struct {
	name   string
	store  LocalStore[T]
	remote RemoteClient[T]
	gate   ConnectivityGate
	log    *slog.Logger
	opts   options

	// mu guards local read-modify-write. Shared with pusher and puller.
	mu sync.Mutex
	// pass is held for a whole push/pull pass, or for one opportunistic push.
	pass sync.Mutex

	pusher *Pusher[T]
	puller *Puller[T]
}

// NewCollection creates a Collection named name, which must be unique
// within an [Engine].
func NewCollection[T Payload[T]](name string, store LocalStore[T], remote RemoteClient[T], gate ConnectivityGate, logger *slog.Logger, opts ...Option) *Collection[T] {
	o := options{
		pageSize: DefaultPageSize,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collection[T]{
		name:   name,
		store:  store,
		remote: remote,
		gate:   gate,
		log:    logger.With("collection", name),
		opts:   o,
	}
	c.pusher = NewPusher(name, store, remote, &c.mu, logger)
	c.puller = NewPuller(name, store, remote, LastWriteWins[T]{}, o.pageSize, o.newID, &c.mu, logger)
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Create stores a new record locally as pending create and tries to push
// it. Only validation and authorization failures are returned.
func (c *Collection[T]) Create(ctx context.Context, payload T) (*Record[T], error) {
	if err := validate(payload); err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, OpCreate, nil, payload); err != nil {
		return nil, err
	}

	status, err := Transition(StatusNew, EventCreate, false)
	if err != nil {
		return nil, err
	}
	rec := &Record[T]{
		LocalID:      c.opts.newID(),
		ClientToken:  c.opts.newToken(),
		Payload:      payload,
		Status:       status,
		LastModified: c.stamp(time.Time{}),
	}

	c.mu.Lock()
	err = c.store.Upsert(ctx, rec)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("storing new %s record: %w", c.name, err)
	}
	c.log.Debug("record created locally", "local_id", rec.LocalID)

	c.tryPush(ctx, rec.LocalID)
	return c.snapshot(ctx, rec)
}

// Update replaces the payload of a live record. An edit that leaves the
// content hash of a hashable payload unchanged is stored without a status
// change or a new LastModified.
func (c *Collection[T]) Update(ctx context.Context, localID string, payload T) (*Record[T], error) {
	if err := validate(payload); err != nil {
		return nil, err
	}

	c.mu.Lock()
	cur, err := c.store.Get(ctx, localID)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("loading %s record %q: %w", c.name, localID, err)
	}
	if cur == nil || cur.Deleted {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := c.authorize(ctx, OpUpdate, cur.Payload, payload); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if reflect.DeepEqual(cur.Payload, payload) {
		c.mu.Unlock()
		return cur, nil
	}
	if sameContent(cur.Payload, payload) {
		// Only local-only fields changed: store them, nothing to push.
		cur.Payload = payload
		err = c.store.Upsert(ctx, cur)
		c.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("storing %s record %q: %w", c.name, localID, err)
		}
		return cur.clone(), nil
	}

	status, err := Transition(cur.Status, EventEdit, cur.HasRemoteID())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	cur.Payload = payload
	cur.Status = status
	cur.LastModified = c.stamp(cur.LastModified)
	err = c.store.Upsert(ctx, cur)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("storing %s record %q: %w", c.name, localID, err)
	}

	c.tryPush(ctx, localID)
	return c.snapshot(ctx, cur)
}

// Delete removes a record. A record that never reached the remote store is
// dropped at once; otherwise it is soft-deleted and queued for a remote
// delete. Deleting a missing record succeeds.
func (c *Collection[T]) Delete(ctx context.Context, localID string) error {
	c.mu.Lock()
	cur, err := c.store.Get(ctx, localID)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("loading %s record %q: %w", c.name, localID, err)
	}
	if cur == nil || cur.Deleted {
		c.mu.Unlock()
		return nil
	}
	if err := c.authorize(ctx, OpDelete, cur.Payload, nil); err != nil {
		c.mu.Unlock()
		return err
	}

	status, err := Transition(cur.Status, EventDelete, cur.HasRemoteID())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if status == StatusDeleted {
		err = c.store.Delete(ctx, localID)
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("removing %s record %q: %w", c.name, localID, err)
		}
		c.log.Debug("local-only record removed", "local_id", localID)
		return nil
	}

	cur.Status = status
	cur.Deleted = true
	cur.LastModified = c.stamp(cur.LastModified)
	err = c.store.Upsert(ctx, cur)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("storing %s record %q: %w", c.name, localID, err)
	}

	c.tryPush(ctx, localID)
	return nil
}

// Get returns a snapshot of a live record, or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, localID string) (*Record[T], error) {
	rec, err := c.store.Get(ctx, localID)
	if err != nil {
		return nil, fmt.Errorf("loading %s record %q: %w", c.name, localID, err)
	}
	if rec == nil || rec.Deleted {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns a snapshot of every live record ordered by local ID.
func (c *Collection[T]) List(ctx context.Context) ([]*Record[T], error) {
	var out []*Record[T]
	for _, status := range []Status{StatusSynced, StatusPendingCreate, StatusPendingUpdate} {
		recs, err := c.store.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("listing %s %s records: %w", c.name, status, err)
		}
		for _, rec := range recs {
			if !rec.Deleted {
				out = append(out, rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out, nil
}

// PendingCount returns how many records carry an unflushed mutation.
func (c *Collection[T]) PendingCount(ctx context.Context) (int, error) {
	n := 0
	for _, status := range pushOrder {
		recs, err := c.store.ListByStatus(ctx, status)
		if err != nil {
			return 0, fmt.Errorf("listing %s %s records: %w", c.name, status, err)
		}
		n += len(recs)
	}
	return n, nil
}

// Pass pushes every pending record and then merges the remote snapshot.
// Calls are serialized per collection. Partial success is normal: whatever
// is left over is retried by the next pass.
func (c *Collection[T]) Pass(ctx context.Context) (Stats, error) {
	c.pass.Lock()
	defer c.pass.Unlock()

	pushed, pushErr := c.pusher.Run(ctx)
	pulled, pullErr := c.puller.Run(ctx)
	return pushed.Add(pulled), errors.Join(pushErr, pullErr)
}

// tryPush pushes one record right after a mutation if the network is up and
// no pass is running. Failures are only logged; the record stays pending.
func (c *Collection[T]) tryPush(ctx context.Context, localID string) {
	if c.gate == nil || !c.gate.IsAvailable(ctx) {
		return
	}
	if !c.pass.TryLock() {
		c.log.Debug("sync pass in flight, leaving push to it", "local_id", localID)
		return
	}
	defer c.pass.Unlock()

	rec, err := c.store.Get(ctx, localID)
	if err != nil || rec == nil || !rec.Status.Pending() {
		return
	}
	if _, err := c.pusher.pushOne(ctx, rec); err != nil {
		c.log.Debug("opportunistic push failed", "local_id", localID, "error", err)
	}
}

// snapshot re-reads rec after a push attempt. A record removed by the push
// (a flushed delete) is returned as last written.
func (c *Collection[T]) snapshot(ctx context.Context, rec *Record[T]) (*Record[T], error) {
	cur, err := c.store.Get(ctx, rec.LocalID)
	if err != nil || cur == nil {
		return rec, nil //nolint:nilerr // the local write already succeeded
	}
	return cur, nil
}

// stamp returns a LastModified value strictly after prev.
func (c *Collection[T]) stamp(prev time.Time) time.Time {
	now := c.opts.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (c *Collection[T]) authorize(ctx context.Context, op Op, current, next any) error {
	if c.opts.authorize == nil {
		return nil
	}
	return c.opts.authorize(ctx, op, current, next)
}

func validate(payload any) error {
	v, ok := payload.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &ValidationError{Message: err.Error()}
}

func sameContent(a, b any) bool {
	ha, ok := a.(Hasher)
	if !ok {
		return false
	}
	hb, ok := b.(Hasher)
	if !ok {
		return false
	}
	return ha.ContentHash() == hb.ContentHash()
}
