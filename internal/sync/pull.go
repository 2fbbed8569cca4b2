package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultPageSize is the listing page size used when none is configured.
	DefaultPageSize = 100

	// maxPages bounds a single listing so a server that never reports its
	// last page cannot keep a pass running forever.
	maxPages = 10000
)

// Puller fetches the remote snapshot of a collection and merges it into the
// local store. Pending local records always win over the snapshot.
type Puller[T Payload[T]] struct {
	name     string
	store    LocalStore[T]
	remote   RemoteClient[T]
	resolver ConflictResolver[T]
	pageSize int
	newID    func() string
	mu       *sync.Mutex
	log      *slog.Logger
}

// NewPuller creates a Puller. newID generates local IDs for records first
// seen remotely; mu is shared with the collection's mutation entry points.
func NewPuller[T Payload[T]](name string, store LocalStore[T], remote RemoteClient[T], resolver ConflictResolver[T], pageSize int, newID func() string, mu *sync.Mutex, logger *slog.Logger) *Puller[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if resolver == nil {
		resolver = LastWriteWins[T]{}
	}
	return &Puller[T]{
		name:     name,
		store:    store,
		remote:   remote,
		resolver: resolver,
		pageSize: pageSize,
		newID:    newID,
		mu:       mu,
		log:      logger,
	}
}

// Run consumes the remote listing page by page and merges every item. The
// tombstone sweep only runs after the whole listing was read: a partial
// snapshot says nothing about what the server deleted.
func (p *Puller[T]) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	// Creates whose response was lost show up in the listing under their
	// client token while the local copy is still pending.
	unpushed, err := p.pendingTokens(ctx)
	if err != nil {
		return stats, fmt.Errorf("indexing %s pending creates: %w", p.name, err)
	}

	seen := make(map[string]struct{})
	for page := 1; ; page++ {
		if page > maxPages {
			return stats, fmt.Errorf("listing %s: %w: more than %d pages", p.name, ErrMalformedResponse, maxPages)
		}

		pg, err := p.remote.List(ctx, page, p.pageSize)
		if err != nil {
			p.log.Warn("pull interrupted, skipping tombstone sweep",
				"collection", p.name,
				"page", page,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("listing %s page %d: %w", p.name, page, err))
			return stats, errors.Join(errs...)
		}
		if pg.CurrentPage != page || (pg.LastPage < pg.CurrentPage && len(pg.Items) > 0) {
			err := fmt.Errorf("listing %s page %d: %w: server reported page %d of %d",
				p.name, page, ErrMalformedResponse, pg.CurrentPage, pg.LastPage)
			errs = append(errs, err)
			return stats, errors.Join(errs...)
		}

		for _, item := range pg.Items {
			if item.RemoteID == "" {
				stats.Failed++
				errs = append(errs, fmt.Errorf("listing %s page %d: %w: item without id", p.name, page, ErrMalformedResponse))
				continue
			}
			if item.Deleted {
				// Left out of seen: the sweep removes a synced local copy.
				continue
			}
			seen[item.RemoteID] = struct{}{}

			if item.ClientToken != "" {
				if _, ok := unpushed[item.ClientToken]; ok {
					stats.Skipped++
					continue
				}
			}

			out, err := p.mergeOne(ctx, item)
			stats.record(out)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if !pg.More() {
			break
		}
	}

	removed, err := p.sweep(ctx, seen)
	stats.Removed += removed
	if err != nil {
		errs = append(errs, err)
	}

	if stats.Inserted+stats.Merged+stats.Removed > 0 {
		p.log.Info("pull complete",
			"collection", p.name,
			"inserted", stats.Inserted,
			"merged", stats.Merged,
			"removed", stats.Removed,
			"skipped", stats.Skipped,
		)
	}
	return stats, errors.Join(errs...)
}

// mergeOne applies a single remote item to the local store.
func (p *Puller[T]) mergeOne(ctx context.Context, item RemoteRecord[T]) (outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	local, err := p.store.GetByRemoteID(ctx, item.RemoteID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("looking up %s remote id %q: %w", p.name, item.RemoteID, err)
	}

	if local == nil {
		status, err := Transition(StatusNew, EventRemoteInsert, true)
		if err != nil {
			return outcomeFailed, err
		}
		rec := &Record[T]{
			LocalID:      p.newID(),
			RemoteID:     item.RemoteID,
			ClientToken:  item.ClientToken,
			Payload:      item.Payload,
			Status:       status,
			LastModified: item.LastModified,
		}
		if err := p.store.Upsert(ctx, rec); err != nil {
			return outcomeFailed, &RecordError{Collection: p.name, LocalID: rec.LocalID, Op: "insert", Err: err}
		}
		return outcomeInserted, nil
	}

	if local.Status != StatusSynced {
		// Unpushed local intent wins until it has been flushed.
		p.log.Debug("remote copy skipped, local record pending",
			"collection", p.name,
			"local_id", local.LocalID,
			"status", local.Status,
		)
		return outcomeSkipped, nil
	}

	if p.resolver.Resolve(local, item) != TakeRemote {
		return outcomeNone, nil
	}

	status, err := Transition(local.Status, EventRemoteMerge, true)
	if err != nil {
		return outcomeFailed, &RecordError{Collection: p.name, LocalID: local.LocalID, Op: "merge", Err: err}
	}
	local.Status = status
	local.Payload = local.Payload.MergeFields(item.Payload)
	local.LastModified = item.LastModified
	if err := p.store.Upsert(ctx, local); err != nil {
		return outcomeFailed, &RecordError{Collection: p.name, LocalID: local.LocalID, Op: "merge", Err: err}
	}
	return outcomeMerged, nil
}

// sweep removes synced records whose remote ID was absent from a complete
// listing. Records that were never pushed are not candidates.
func (p *Puller[T]) sweep(ctx context.Context, seen map[string]struct{}) (int, error) {
	synced, err := p.store.ListByStatus(ctx, StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("listing %s synced records: %w", p.name, err)
	}

	removed := 0
	var errs []error
	for _, rec := range synced {
		if !rec.HasRemoteID() {
			continue
		}
		if _, ok := seen[rec.RemoteID]; ok {
			continue
		}

		ok, err := p.removeTombstoned(ctx, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (p *Puller[T]) removeTombstoned(ctx context.Context, rec *Record[T]) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: a local edit may have landed since the listing was read.
	cur, err := p.store.Get(ctx, rec.LocalID)
	if err != nil {
		return false, &RecordError{Collection: p.name, LocalID: rec.LocalID, Op: "tombstone", Err: err}
	}
	if cur == nil {
		return false, nil
	}
	if _, err := Transition(cur.Status, EventRemoteTombstone, cur.HasRemoteID()); err != nil {
		// Pending again; the local mutation is pushed first.
		return false, nil
	}
	if err := p.store.Delete(ctx, cur.LocalID); err != nil {
		return false, &RecordError{Collection: p.name, LocalID: cur.LocalID, Op: "tombstone", Err: err}
	}
	p.log.Debug("remote tombstone applied",
		"collection", p.name,
		"local_id", cur.LocalID,
		"remote_id", cur.RemoteID,
	)
	return true, nil
}

// pendingTokens indexes the client tokens of records still waiting for
// their create to be acknowledged.
func (p *Puller[T]) pendingTokens(ctx context.Context) (map[string]struct{}, error) {
	recs, err := p.store.ListByStatus(ctx, StatusPendingCreate)
	if err != nil {
		return nil, err
	}
	tokens := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.ClientToken != "" {
			tokens[rec.ClientToken] = struct{}{}
		}
	}
	return tokens, nil
}
