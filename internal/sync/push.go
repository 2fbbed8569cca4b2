package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// outcome is what happened to a single record during a pass.
type outcome int

const (
	outcomeNone outcome = iota
	outcomePushed
	outcomeSkipped
	outcomeFailed
	outcomeConflict
	outcomeInserted
	outcomeMerged
)

// Pusher drains a collection's pending mutations to the remote store. Each
// record is pushed independently; one failure never aborts the batch.
type Pusher[T Payload[T]] struct {
	name   string
	store  LocalStore[T]
	remote RemoteClient[T]
	// mu serializes local read-modify-write with the collection's mutation
	// entry points. It is never held across a network call.
	mu  *sync.Mutex
	log *slog.Logger
}

// NewPusher creates a Pusher. mu must be the lock the collection's mutation
// entry points take around their local writes.
func NewPusher[T Payload[T]](name string, store LocalStore[T], remote RemoteClient[T], mu *sync.Mutex, logger *slog.Logger) *Pusher[T] {
	return &Pusher[T]{name: name, store: store, remote: remote, mu: mu, log: logger}
}

// Run pushes every pending record: creates first, then updates, then
// deletes. It returns per-pass statistics and the failures joined together.
// Only a local store failure while listing stops the pass early.
func (p *Pusher[T]) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	for _, status := range pushOrder {
		recs, err := p.store.ListByStatus(ctx, status)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s %s records: %w", p.name, status, err))
			return stats, errors.Join(errs...)
		}

		for _, rec := range recs {
			out, err := p.pushOne(ctx, rec)
			stats.record(out)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if stats.Pushed+stats.Failed+stats.Skipped > 0 {
		p.log.Info("push complete",
			"collection", p.name,
			"pushed", stats.Pushed,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"conflicts", stats.Conflicts,
		)
	}
	return stats, errors.Join(errs...)
}

// pushOne pushes a single record according to its status.
func (p *Pusher[T]) pushOne(ctx context.Context, rec *Record[T]) (outcome, error) {
	switch rec.Status {
	case StatusPendingCreate:
		return p.pushCreate(ctx, rec)
	case StatusPendingUpdate:
		return p.pushUpdate(ctx, rec)
	case StatusPendingDelete:
		return p.pushDelete(ctx, rec)
	case StatusSynced:
		return outcomeNone, nil
	}
	return outcomeFailed, p.wrap(rec, "push", &TransitionError{From: rec.Status, Event: EventPushSucceeded, HasRemoteID: rec.HasRemoteID()})
}

func (p *Pusher[T]) pushCreate(ctx context.Context, rec *Record[T]) (outcome, error) {
	if rec.HasRemoteID() {
		// A create that already reached the server is an update.
		return p.pushUpdate(ctx, rec)
	}
	if rec.ClientToken == "" {
		if err := p.assignToken(ctx, rec); err != nil {
			return outcomeFailed, p.wrap(rec, "create", err)
		}
	}

	res, err := p.remote.Create(ctx, rec.Payload, rec.ClientToken)
	var dup *DuplicateTokenError
	switch {
	case err == nil:
	case errors.As(err, &dup) && dup.RemoteID != "":
		return p.adopt(ctx, rec, dup.RemoteID)
	default:
		return p.fail(rec, "create", err)
	}
	if res.RemoteID == "" {
		return p.fail(rec, "create", fmt.Errorf("%w: create response has no id", ErrMalformedResponse))
	}

	return p.commit(ctx, rec, res)
}

// adopt takes over the remote ID of a create whose earlier response was
// lost. The server holds the payload of that earlier attempt, not
// necessarily the current one, so the record becomes a pending update and
// is pushed right away; its response carries the server's timestamp.
func (p *Pusher[T]) adopt(ctx context.Context, sent *Record[T], remoteID string) (outcome, error) {
	p.log.Info("create already accepted, adopting remote id",
		"collection", p.name,
		"local_id", sent.LocalID,
		"remote_id", remoteID,
	)

	p.mu.Lock()
	cur, err := p.store.Get(ctx, sent.LocalID)
	if err != nil {
		p.mu.Unlock()
		return outcomeFailed, p.wrap(sent, "adopt", err)
	}
	if cur == nil {
		err = p.queueOrphanDelete(ctx, sent, remoteID)
		p.mu.Unlock()
		if err != nil {
			return outcomeFailed, p.wrap(sent, "adopt", err)
		}
		return outcomePushed, nil
	}

	cur.RemoteID = remoteID
	if cur.Status == StatusPendingCreate {
		synced, err := Transition(cur.Status, EventPushSucceeded, true)
		if err == nil {
			cur.Status, err = Transition(synced, EventEdit, true)
		}
		if err != nil {
			p.mu.Unlock()
			return outcomeFailed, p.wrap(sent, "adopt", err)
		}
	}
	err = p.store.Upsert(ctx, cur)
	p.mu.Unlock()
	if err != nil {
		return outcomeFailed, p.wrap(sent, "adopt", err)
	}

	return p.pushOne(ctx, cur)
}

// queueOrphanDelete records a remote delete for a record that was removed
// locally while its create was in flight. Callers hold p.mu.
func (p *Pusher[T]) queueOrphanDelete(ctx context.Context, sent *Record[T], remoteID string) error {
	orphan := sent.clone()
	orphan.RemoteID = remoteID
	orphan.Status = StatusPendingDelete
	orphan.Deleted = true
	if err := p.store.Upsert(ctx, orphan); err != nil {
		return err
	}
	p.log.Info("record deleted during create, queued remote delete",
		"collection", p.name,
		"local_id", sent.LocalID,
		"remote_id", remoteID,
	)
	return nil
}

func (p *Pusher[T]) pushUpdate(ctx context.Context, rec *Record[T]) (outcome, error) {
	if !rec.HasRemoteID() {
		// The create has not gone through yet; try again next pass.
		p.log.Debug("update waiting for create",
			"collection", p.name,
			"local_id", rec.LocalID,
		)
		return outcomeSkipped, nil
	}

	res, err := p.remote.Update(ctx, rec.RemoteID, rec.Payload)
	if errors.Is(err, ErrNotFound) {
		return p.dropRemotelyDeleted(ctx, rec)
	}
	if err != nil {
		return p.fail(rec, "update", err)
	}
	if res.RemoteID == "" {
		res.RemoteID = rec.RemoteID
	}
	return p.commit(ctx, rec, res)
}

func (p *Pusher[T]) pushDelete(ctx context.Context, rec *Record[T]) (outcome, error) {
	if rec.HasRemoteID() {
		err := p.remote.Delete(ctx, rec.RemoteID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return p.fail(rec, "delete", err)
		}
	}

	if _, err := Transition(rec.Status, EventPushSucceeded, rec.HasRemoteID()); err != nil {
		return outcomeFailed, p.wrap(rec, "delete", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(ctx, rec.LocalID); err != nil {
		return outcomeFailed, p.wrap(rec, "delete", fmt.Errorf("removing local record: %w", err))
	}
	p.log.Debug("delete pushed", "collection", p.name, "local_id", rec.LocalID, "remote_id", rec.RemoteID)
	return outcomePushed, nil
}

// commit records a successful create or update push. The record is
// re-read under the lock: if it was edited while the request was in
// flight, it keeps a pending status so the newer edit is pushed later.
func (p *Pusher[T]) commit(ctx context.Context, sent *Record[T], res RemoteRecord[T]) (outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.store.Get(ctx, sent.LocalID)
	if err != nil {
		return outcomeFailed, p.wrap(sent, "commit", err)
	}

	if cur == nil {
		// Deleted locally while a create was in flight. The record now
		// exists remotely, so queue a delete for it.
		if err := p.queueOrphanDelete(ctx, sent, res.RemoteID); err != nil {
			return outcomeFailed, p.wrap(sent, "commit", err)
		}
		return outcomePushed, nil
	}

	if cur.RemoteID == "" {
		cur.RemoteID = res.RemoteID
	}

	if !cur.LastModified.Equal(sent.LastModified) {
		// Edited during the push. The remote copy is behind again.
		if cur.Status == StatusPendingCreate {
			synced, err := Transition(cur.Status, EventPushSucceeded, true)
			if err != nil {
				return outcomeFailed, p.wrap(sent, "commit", err)
			}
			if cur.Status, err = Transition(synced, EventEdit, true); err != nil {
				return outcomeFailed, p.wrap(sent, "commit", err)
			}
		}
		if err := p.store.Upsert(ctx, cur); err != nil {
			return outcomeFailed, p.wrap(sent, "commit", err)
		}
		return outcomePushed, nil
	}

	next, err := Transition(cur.Status, EventPushSucceeded, true)
	if err != nil {
		return outcomeFailed, p.wrap(sent, "commit", err)
	}
	cur.Status = next
	cur.Payload = cur.Payload.MergeFields(res.Payload)
	if !res.LastModified.IsZero() {
		cur.LastModified = res.LastModified
	}
	if err := p.store.Upsert(ctx, cur); err != nil {
		return outcomeFailed, p.wrap(sent, "commit", err)
	}

	p.log.Debug("record pushed",
		"collection", p.name,
		"local_id", cur.LocalID,
		"remote_id", cur.RemoteID,
	)
	return outcomePushed, nil
}

// dropRemotelyDeleted handles an update whose remote record is gone. The
// remote deletion wins: the remote ID can never be reassigned, so the edit
// has nowhere to go.
func (p *Pusher[T]) dropRemotelyDeleted(ctx context.Context, rec *Record[T]) (outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Warn("update target deleted remotely, dropping local record",
		"collection", p.name,
		"local_id", rec.LocalID,
		"remote_id", rec.RemoteID,
	)
	if err := p.store.Delete(ctx, rec.LocalID); err != nil {
		return outcomeFailed, p.wrap(rec, "update", err)
	}
	return outcomeConflict, nil
}

func (p *Pusher[T]) assignToken(ctx context.Context, rec *Record[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.store.Get(ctx, rec.LocalID)
	if err != nil {
		return err
	}
	if cur == nil {
		return ErrNotFound
	}
	if cur.ClientToken == "" {
		cur.ClientToken = uuid.NewString()
		if err := p.store.Upsert(ctx, cur); err != nil {
			return err
		}
	}
	rec.ClientToken = cur.ClientToken
	return nil
}

// fail logs a soft push failure. The record keeps its pending status.
func (p *Pusher[T]) fail(rec *Record[T], op string, err error) (outcome, error) {
	if _, terr := Transition(rec.Status, EventPushFailed, rec.HasRemoteID()); terr != nil {
		return outcomeFailed, p.wrap(rec, op, terr)
	}
	level := slog.LevelWarn
	if errors.Is(err, ErrNetworkUnavailable) {
		level = slog.LevelDebug
	}
	p.log.Log(context.Background(), level, "push failed, record stays pending",
		"collection", p.name,
		"op", op,
		"local_id", rec.LocalID,
		"error", err,
	)
	return outcomeFailed, p.wrap(rec, op, err)
}

func (p *Pusher[T]) wrap(rec *Record[T], op string, err error) error {
	return &RecordError{Collection: p.name, LocalID: rec.LocalID, Op: op, Err: err}
}
