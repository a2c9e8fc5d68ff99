package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/eventpush/internal/ir"
)

// Record is the mirror entry for one local object.
type Record struct {
	ObjectType string
	LocalID    string
	RemoteID   string
	Snapshot   ir.Object
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Lookup returns the record for (objectType, localID).
// The bool is false, with a nil error, when no record exists.
func (s *Store) Lookup(ctx context.Context, objectType, localID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT object_type, local_id, remote_id, snapshot, created_at, updated_at
		FROM sync_records
		WHERE object_type = ? AND local_id = ?
	`, objectType, localID)

	var (
		rec                  Record
		snapshot             string
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ObjectType, &rec.LocalID, &rec.RemoteID, &snapshot, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s/%s: %w", objectType, localID, err)
	}

	if rec.Snapshot, err = unmarshalSnapshot(snapshot); err != nil {
		return Record{}, false, fmt.Errorf("lookup %s/%s: %w", objectType, localID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, false, fmt.Errorf("lookup %s/%s: %w", objectType, localID, err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Record{}, false, fmt.Errorf("lookup %s/%s: %w", objectType, localID, err)
	}

	return rec, true, nil
}

// Upsert creates the record for (objectType, localID) or refreshes it.
//
// A single INSERT ... ON CONFLICT DO UPDATE statement, so two upserts for the
// same key can never leave two rows. created_at is only set on insert;
// remote_id, snapshot and updated_at are overwritten on conflict.
func (s *Store) Upsert(ctx context.Context, objectType, localID, remoteID string, snapshot ir.Object) error {
	if objectType == "" || localID == "" {
		return fmt.Errorf("upsert: object type and local id are required")
	}
	if remoteID == "" {
		return fmt.Errorf("upsert %s/%s: remote id is required", objectType, localID)
	}

	snapshotJSON, err := marshalSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", objectType, localID, err)
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_records
		(object_type, local_id, remote_id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_type, local_id) DO UPDATE SET
			remote_id  = excluded.remote_id,
			snapshot   = excluded.snapshot,
			updated_at = excluded.updated_at
	`,
		objectType,
		localID,
		remoteID,
		snapshotJSON,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", objectType, localID, err)
	}

	return nil
}

// Delete removes the record for (objectType, localID). Deleting a missing
// record is a no-op.
func (s *Store) Delete(ctx context.Context, objectType, localID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_records
		WHERE object_type = ? AND local_id = ?
	`, objectType, localID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", objectType, localID, err)
	}
	return nil
}
