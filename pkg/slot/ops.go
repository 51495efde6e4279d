package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// opRetryBudget bounds how many fresh reads a convenience operation makes
// when it loses the per-user write race
const opRetryBudget = 3

// mutate applies fn to a freshly read record and writes it back, retrying
// on version conflict until the budget is exhausted
func mutate(ctx context.Context, repo Repository, userID uuid.UUID, fn func(*Record) error) (Record, error) {
	var lastErr error
	for attempt := 0; attempt < opRetryBudget; attempt++ {
		record, err := repo.GetRecord(ctx, userID)
		if err != nil {
			return Record{}, fmt.Errorf("failed to get record: %w", err)
		}

		if err := fn(&record); err != nil {
			return Record{}, err
		}

		updated, err := repo.UpdateRecord(ctx, record)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Record{}, fmt.Errorf("failed to update record: %w", err)
		}
		lastErr = err
	}
	return Record{}, fmt.Errorf("retry budget exhausted updating record for user %s: %w", userID, lastErr)
}

// AssignSlot writes a fingerprint into the given slot index and consumes
// one unit of capacity. The slot must be free; a filled slot is immutable
// until revocation.
func AssignSlot(ctx context.Context, repo Repository, userID uuid.UUID, slotIndex int, fingerprint string) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	_, err := mutate(ctx, repo, userID, func(record *Record) error {
		if slotIndex < 0 || slotIndex >= len(record.Slots) {
			return fmt.Errorf("slot index %d out of range", slotIndex)
		}
		if record.Slots[slotIndex] != "" {
			return fmt.Errorf("slot %d already assigned", slotIndex)
		}
		if record.Capacity <= 0 {
			return fmt.Errorf("no capacity left for user %s", userID)
		}
		record.Slots[slotIndex] = fingerprint
		record.Capacity--
		return nil
	})
	return err
}

// SetBlocked sets the blocked flag on a user's record
func SetBlocked(ctx context.Context, repo Repository, userID uuid.UUID, blocked bool) error {
	_, err := mutate(ctx, repo, userID, func(record *Record) error {
		record.Blocked = blocked
		return nil
	})
	return err
}

// SetCapacity sets the remaining free-slot count on a user's record
func SetCapacity(ctx context.Context, repo Repository, userID uuid.UUID, capacity int) error {
	_, err := mutate(ctx, repo, userID, func(record *Record) error {
		if capacity < 0 || capacity > len(record.Slots) {
			return fmt.Errorf("capacity %d out of range", capacity)
		}
		record.Capacity = capacity
		return nil
	})
	return err
}

// Reset returns a user's record to its initial state: every slot free,
// full capacity, not blocked. Reset is the only way out of the blocked
// state.
func Reset(ctx context.Context, repo Repository, userID uuid.UUID) (Record, error) {
	return mutate(ctx, repo, userID, func(record *Record) error {
		for i := range record.Slots {
			record.Slots[i] = ""
		}
		record.Capacity = len(record.Slots)
		record.Blocked = false
		return nil
	})
}

// ClearSlot frees the given slot index and restores one unit of capacity
func ClearSlot(ctx context.Context, repo Repository, userID uuid.UUID, slotIndex int) error {
	_, err := mutate(ctx, repo, userID, func(record *Record) error {
		if slotIndex < 0 || slotIndex >= len(record.Slots) {
			return fmt.Errorf("slot index %d out of range", slotIndex)
		}
		if record.Slots[slotIndex] == "" {
			return nil
		}
		record.Slots[slotIndex] = ""
		record.Capacity++
		return nil
	})
	return err
}
