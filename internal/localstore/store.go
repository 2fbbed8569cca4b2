package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Store is the local store of one collection. It implements
// syncp.LocalStore[T]; payloads are persisted as JSON.
type Store[T any] struct {
	db         *sql.DB
	collection string
}

// NewStore returns the store for collection inside db.
func NewStore[T any](db *DB, collection string) *Store[T] {
	return &Store[T]{db: db.db, collection: collection}
}

const selectColumns = `
		SELECT local_id, remote_id, client_token, payload, status, last_modified, deleted
		FROM sync_records`

// Get returns the record with the given local ID, or (nil, nil) if no such
// record exists.
func (s *Store[T]) Get(ctx context.Context, localID string) (*syncp.Record[T], error) {
	const q = selectColumns + ` WHERE collection = ? AND local_id = ?`
	row := s.db.QueryRowContext(ctx, q, s.collection, localID)
	return scanRecord[T](row)
}

// GetByRemoteID returns the record with the given remote ID, or (nil, nil)
// if no such record exists.
func (s *Store[T]) GetByRemoteID(ctx context.Context, remoteID string) (*syncp.Record[T], error) {
	if remoteID == "" {
		return nil, nil //nolint:nilnil // empty remote ID never matches
	}
	const q = selectColumns + ` WHERE collection = ? AND remote_id = ?`
	row := s.db.QueryRowContext(ctx, q, s.collection, remoteID)
	return scanRecord[T](row)
}

// ListByStatus returns every record with the given status, ordered by local
// ID.
func (s *Store[T]) ListByStatus(ctx context.Context, status syncp.Status) ([]*syncp.Record[T], error) {
	const q = selectColumns + ` WHERE collection = ? AND status = ? ORDER BY local_id`
	rows, err := s.db.QueryContext(ctx, q, s.collection, status.String())
	if err != nil {
		return nil, fmt.Errorf("querying %s records with status %s: %w", s.collection, status, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*syncp.Record[T]
	for rows.Next() {
		rec, err := scanRecord[T](rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Upsert inserts or replaces the record with rec.LocalID.
func (s *Store[T]) Upsert(ctx context.Context, rec *syncp.Record[T]) error {
	if _, err := syncp.ParseStatus(rec.Status.String()); err != nil {
		return fmt.Errorf("storing %s record %q: status %s is not persistable", s.collection, rec.LocalID, rec.Status)
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding %s record %q: %w", s.collection, rec.LocalID, err)
	}

	const q = `
		INSERT INTO sync_records
		    (collection, local_id, remote_id, client_token, payload, status, last_modified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, local_id) DO UPDATE SET
		    remote_id     = excluded.remote_id,
		    client_token  = excluded.client_token,
		    payload       = excluded.payload,
		    status        = excluded.status,
		    last_modified = excluded.last_modified,
		    deleted       = excluded.deleted`

	_, err = s.db.ExecContext(ctx, q,
		s.collection,
		rec.LocalID,
		rec.RemoteID,
		rec.ClientToken,
		string(payload),
		rec.Status.String(),
		formatTime(rec.LastModified),
		rec.Deleted,
	)
	if err != nil {
		return fmt.Errorf("upserting %s record %q: %w", s.collection, rec.LocalID, err)
	}
	return nil
}

// Delete removes the record with the given local ID. Deleting a missing
// record is not an error.
func (s *Store[T]) Delete(ctx context.Context, localID string) error {
	const q = `DELETE FROM sync_records WHERE collection = ? AND local_id = ?`
	if _, err := s.db.ExecContext(ctx, q, s.collection, localID); err != nil {
		return fmt.Errorf("deleting %s record %q: %w", s.collection, localID, err)
	}
	return nil
}

// Count returns how many records the collection holds, soft-deleted ones
// included.
func (s *Store[T]) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_records WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s records: %w", s.collection, err)
	}
	return n, nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scanRecord can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord[T any](s scanner) (*syncp.Record[T], error) {
	var rec syncp.Record[T]
	var payload, status, modified string

	err := s.Scan(
		&rec.LocalID,
		&rec.RemoteID,
		&rec.ClientToken,
		&payload,
		&status,
		&modified,
		&rec.Deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record row: %w", err)
	}

	if rec.Status, err = syncp.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("record %q: %w", rec.LocalID, err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decoding record %q payload: %w", rec.LocalID, err)
	}
	if rec.LastModified, err = parseTime(modified); err != nil {
		return nil, fmt.Errorf("record %q last_modified: %w", rec.LocalID, err)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

var _ syncp.LocalStore[struct{}] = (*Store[struct{}])(nil)
