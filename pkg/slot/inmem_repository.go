package slot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory map
type InMemRepository struct {
	records map[uuid.UUID]Record
	mu      sync.Mutex
	options RepositoryOptions
}

// NewInMemRepository creates a new in-memory slot repository
func NewInMemRepository() *InMemRepository {
	return NewInMemRepositoryWithOptions(DefaultRepositoryOptions())
}

// NewInMemRepositoryWithOptions creates a new in-memory slot repository with custom options
func NewInMemRepositoryWithOptions(options RepositoryOptions) *InMemRepository {
	if options.MaxDevices <= 0 {
		options.MaxDevices = DefaultMaxDevices
	}
	return &InMemRepository{
		records: make(map[uuid.UUID]Record),
		options: options,
	}
}

// MaxDevices returns the configured device cap
func (r *InMemRepository) MaxDevices() int {
	return r.options.MaxDevices
}

// GetRecord retrieves a user's record, creating it with defaults on first use
func (r *InMemRepository) GetRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[userID]
	if !exists {
		record = newRecord(userID, r.options.MaxDevices)
		r.records[userID] = cloneRecord(record)
		slog.Debug("Slot record created", "userID", userID, "capacity", record.Capacity)
	}

	return cloneRecord(record), nil
}

// UpdateRecord writes the record back if its version still matches the
// stored one, then bumps the version
func (r *InMemRepository) UpdateRecord(ctx context.Context, record Record) (Record, error) {
	if err := validateRecord(record, r.options.MaxDevices); err != nil {
		return Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.records[record.UserID]
	if !exists || stored.Version != record.Version {
		slog.Debug("Slot record version conflict", "userID", record.UserID,
			"expectedVersion", record.Version)
		return Record{}, ErrVersionConflict
	}

	record.Version++
	record.LastModifiedAt = time.Now().UTC()
	r.records[record.UserID] = cloneRecord(record)

	slog.Debug("Slot record updated", "userID", record.UserID,
		"version", record.Version, "capacity", record.Capacity, "blocked", record.Blocked)
	return cloneRecord(record), nil
}

// cloneRecord copies a record so callers never share the stored slot slice
func cloneRecord(record Record) Record {
	slots := make([]string, len(record.Slots))
	copy(slots, record.Slots)
	record.Slots = slots
	return record
}
