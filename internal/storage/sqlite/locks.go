package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage"
)

// AcquireLock takes or extends the exclusive lease on (nodeID, graphID).
// Every acquire starts with the lazy expiry sweep; there is no background
// reaper. The PRIMARY KEY on (node_id, graph_id) closes the race between
// the existence read and the insert: a loser re-reads and reports the
// winner instead of a bare constraint error.
func (s *Store) AcquireLock(ctx context.Context, nodeID, graphID, holderID, holderDisplay string) (storage.LockResult, error) {
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM edit_locks WHERE expires_at <= ?`, formatTime(now),
	); err != nil {
		return storage.LockResult{}, fmt.Errorf("sweep expired locks: %w", err)
	}

	existing, err := s.readLock(ctx, nodeID, graphID)
	if err != nil {
		return storage.LockResult{}, err
	}
	expires := now.Add(s.lockTTL)

	if existing != nil {
		if existing.HolderID != holderID {
			return storage.LockResult{}, &core.LockHeldError{Code: core.CodeNodeLocked, Lock: *existing}
		}
		// Same holder: extend in place, conditional on still holding the
		// row. Zero rows affected means the lease lapsed and someone else
		// took over between the read and the update.
		extended, err := s.extendLock(ctx, nodeID, graphID, holderID, expires)
		if err != nil {
			return storage.LockResult{}, err
		}
		if !extended {
			winner, readErr := s.readLock(ctx, nodeID, graphID)
			if readErr == nil && winner != nil {
				return storage.LockResult{}, &core.LockHeldError{Code: core.CodeNodeLocked, Lock: *winner}
			}
			return storage.LockResult{}, fmt.Errorf("extend lock: row vanished")
		}
		lock := *existing
		lock.ExpiresAt = expires
		return storage.LockResult{Lock: lock, Created: false}, nil
	}

	lock := core.EditLock{
		NodeID:        nodeID,
		GraphID:       graphID,
		HolderID:      holderID,
		HolderDisplay: holderDisplay,
		AcquiredAt:    now,
		ExpiresAt:     expires,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edit_locks (node_id, graph_id, holder_id, holder_display, acquired_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nodeID, graphID, holderID, holderDisplay, formatTime(now), formatTime(expires),
	)
	if err != nil {
		if isUniqueViolation(err) {
			winner, readErr := s.readLock(ctx, nodeID, graphID)
			if readErr == nil && winner != nil {
				return storage.LockResult{}, &core.LockHeldError{Code: core.CodeNodeLocked, Lock: *winner}
			}
		}
		return storage.LockResult{}, fmt.Errorf("insert lock: %w", err)
	}
	return storage.LockResult{Lock: lock, Created: true}, nil
}

// CheckLock reports the current unexpired lock, or nil. The read stays
// side-effect free: expired rows are reported as unlocked and left for the
// next acquire's sweep.
func (s *Store) CheckLock(ctx context.Context, nodeID, graphID string) (*core.EditLock, error) {
	lock, err := s.readLock(ctx, nodeID, graphID)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.Expired(s.now()) {
		return nil, nil
	}
	return lock, nil
}

// ReleaseLock deletes the holder's lock. A missing row is treated as
// already released; a foreign holder is rejected.
func (s *Store) ReleaseLock(ctx context.Context, nodeID, graphID, holderID string) error {
	lock, err := s.readLock(ctx, nodeID, graphID)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if lock.HolderID != holderID {
		return &core.LockHeldError{Code: core.CodeNotLockHolder, Lock: *lock}
	}
	// Conditional on the holder so a concurrent reclaim isn't clobbered.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM edit_locks WHERE node_id = ? AND graph_id = ? AND holder_id = ?`,
		nodeID, graphID, holderID,
	); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// extendLock pushes out the expiry only while holderID still owns the row.
func (s *Store) extendLock(ctx context.Context, nodeID, graphID, holderID string, expires time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE edit_locks SET expires_at = ? WHERE node_id = ? AND graph_id = ? AND holder_id = ?`,
		formatTime(expires), nodeID, graphID, holderID,
	)
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	return n > 0, nil
}

func (s *Store) readLock(ctx context.Context, nodeID, graphID string) (*core.EditLock, error) {
	var lock core.EditLock
	var display sql.NullString
	var acquiredAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT node_id, graph_id, holder_id, holder_display, acquired_at, expires_at
		 FROM edit_locks WHERE node_id = ? AND graph_id = ?`,
		nodeID, graphID,
	).Scan(&lock.NodeID, &lock.GraphID, &lock.HolderID, &display, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	lock.HolderDisplay = display.String
	lock.AcquiredAt = parseTime(acquiredAt)
	lock.ExpiresAt = parseTime(expiresAt)
	return &lock, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
