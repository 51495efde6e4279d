package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record holds the device slot bookkeeping for a single user.
//
// Slots has a fixed length of MaxDevices; an empty string marks a free slot.
// Slots fill front-to-back and are never reordered. Outside of a block event
// Capacity + filled slots always equals MaxDevices.
type Record struct {
	UserID         uuid.UUID `json:"user_id"`
	Capacity       int       `json:"capacity"`
	Slots          []string  `json:"slots"`
	Blocked        bool      `json:"blocked"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// ErrVersionConflict is returned by UpdateRecord when the stored record
// changed since it was read. Callers must re-read and retry.
var ErrVersionConflict = errors.New("record version conflict")

// HasFingerprint reports whether the fingerprint occupies any filled slot
func (r *Record) HasFingerprint(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	for _, slot := range r.Slots {
		if slot == fingerprint {
			return true
		}
	}
	return false
}

// FilledCount returns the number of occupied slots
func (r *Record) FilledCount() int {
	count := 0
	for _, slot := range r.Slots {
		if slot != "" {
			count++
		}
	}
	return count
}

// FirstFreeSlot returns the lowest free slot index, or -1 when full
func (r *Record) FirstFreeSlot() int {
	for i, slot := range r.Slots {
		if slot == "" {
			return i
		}
	}
	return -1
}

// FirstFingerprint returns the fingerprint in the lowest filled slot,
// or empty when no device is registered
func (r *Record) FirstFingerprint() string {
	for _, slot := range r.Slots {
		if slot != "" {
			return slot
		}
	}
	return ""
}

// Repository defines the interface for slot record storage.
//
// GetRecord is lazily creating and idempotent: a user never seen before gets
// a fresh unblocked record with full capacity. UpdateRecord applies the whole
// record as one atomic unit guarded by the record version, so concurrent
// requests for the same user serialize on ErrVersionConflict.
type Repository interface {
	GetRecord(ctx context.Context, userID uuid.UUID) (Record, error)
	UpdateRecord(ctx context.Context, record Record) (Record, error)

	// MaxDevices returns the configured device cap (N)
	MaxDevices() int
}

// RepositoryOptions contains configuration options for slot repositories
type RepositoryOptions struct {
	// MaxDevices is the number of distinct devices a user may hold (N)
	MaxDevices int
}

// DefaultMaxDevices is the default device cap per user
const DefaultMaxDevices = 1

// DefaultRepositoryOptions returns the default options for slot repositories
func DefaultRepositoryOptions() RepositoryOptions {
	return RepositoryOptions{
		MaxDevices: DefaultMaxDevices,
	}
}

// newRecord creates a fresh record for a user with full capacity
func newRecord(userID uuid.UUID, maxDevices int) Record {
	now := time.Now().UTC()
	return Record{
		UserID:         userID,
		Capacity:       maxDevices,
		Slots:          make([]string, maxDevices),
		Blocked:        false,
		Version:        1,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

// validateRecord rejects writes that would corrupt the slot invariants
func validateRecord(record Record, maxDevices int) error {
	if record.UserID == uuid.Nil {
		return fmt.Errorf("record has no user id")
	}
	if len(record.Slots) != maxDevices {
		return fmt.Errorf("record has %d slots, want %d", len(record.Slots), maxDevices)
	}
	if record.Capacity < 0 || record.Capacity > maxDevices {
		return fmt.Errorf("record capacity %d out of range [0, %d]", record.Capacity, maxDevices)
	}
	return nil
}
