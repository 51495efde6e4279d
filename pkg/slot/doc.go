// Package slot provides the per-user device slot store for device-gate.
//
// Each user has one Record holding at most N device fingerprints, the
// remaining free capacity, and a blocked flag. Slots fill front-to-back and
// a filled slot is immutable until an administrator revokes the user's
// block, which resets the whole record.
//
// # Overview
//
// The slot package provides:
//   - The Record type and its invariants
//   - A Repository interface with versioned read-modify-write semantics
//   - In-memory, file-based, and PostgreSQL implementations
//   - Convenience operations (AssignSlot, SetBlocked, SetCapacity, ClearSlot)
//
// # Concurrency
//
// UpdateRecord is a compare-and-set on the record version: two concurrent
// writers for the same user cannot both win. The loser receives
// ErrVersionConflict and retries from a fresh read. This is what guarantees
// that two never-seen devices racing for the last free slot admit at most
// one of them.
//
// # Basic Usage
//
//	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 2})
//
//	record, err := repo.GetRecord(ctx, userID) // lazily created
//	if record.HasFingerprint(fp) {
//		// already registered
//	}
//
//	err = slot.AssignSlot(ctx, repo, userID, record.FirstFreeSlot(), fp)
//
// # PostgreSQL schema
//
//	CREATE TABLE user_device_slot (
//	    user_id          UUID PRIMARY KEY,
//	    capacity         INTEGER NOT NULL,
//	    slots            TEXT[] NOT NULL,
//	    blocked          BOOLEAN NOT NULL DEFAULT FALSE,
//	    version          BIGINT NOT NULL,
//	    created_at       TIMESTAMP NOT NULL,
//	    last_modified_at TIMESTAMP NOT NULL
//	);
//
// # Related Packages
//
//   - pkg/gate - admission decisions built on this store
//   - pkg/revoke - administrator reset of blocked records
package slot
