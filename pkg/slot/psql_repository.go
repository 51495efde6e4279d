package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db      DBTX
	options RepositoryOptions
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresRepository creates a new PostgreSQL slot repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return NewPostgresRepositoryWithOptions(db, DefaultRepositoryOptions())
}

// NewPostgresRepositoryWithOptions creates a new PostgreSQL slot repository with custom options
func NewPostgresRepositoryWithOptions(db DBTX, options RepositoryOptions) *PostgresRepository {
	if options.MaxDevices <= 0 {
		options.MaxDevices = DefaultMaxDevices
	}
	return &PostgresRepository{
		db:      db,
		options: options,
	}
}

// MaxDevices returns the configured device cap
func (r *PostgresRepository) MaxDevices() int {
	return r.options.MaxDevices
}

// GetRecord retrieves a user's record, creating it with defaults on first use.
// The insert is ON CONFLICT DO NOTHING so concurrent first observations of
// the same user converge on one stored row.
func (r *PostgresRepository) GetRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	if userID == uuid.Nil {
		return Record{}, fmt.Errorf("user id is required")
	}

	fresh := newRecord(userID, r.options.MaxDevices)

	insertQuery := `
		INSERT INTO user_device_slot (
			user_id, capacity, slots, blocked, version, created_at, last_modified_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, insertQuery,
		fresh.UserID,
		fresh.Capacity,
		fresh.Slots,
		fresh.Blocked,
		fresh.Version,
		fresh.CreatedAt,
		fresh.LastModifiedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to initialize slot record: %w", err)
	}

	selectQuery := `
		SELECT user_id, capacity, slots, blocked, version, created_at, last_modified_at
		FROM user_device_slot
		WHERE user_id = $1
	`
	var record Record
	err = r.db.QueryRow(ctx, selectQuery, userID).Scan(
		&record.UserID,
		&record.Capacity,
		&record.Slots,
		&record.Blocked,
		&record.Version,
		&record.CreatedAt,
		&record.LastModifiedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to get slot record: %w", err)
	}

	return record, nil
}

// UpdateRecord applies the record as one atomic unit guarded by the version
// column. A write that matches no row lost the race and must be retried
// from a fresh read.
func (r *PostgresRepository) UpdateRecord(ctx context.Context, record Record) (Record, error) {
	if err := validateRecord(record, r.options.MaxDevices); err != nil {
		return Record{}, err
	}

	query := `
		UPDATE user_device_slot
		SET capacity = $2, slots = $3, blocked = $4,
			version = version + 1, last_modified_at = $5
		WHERE user_id = $1 AND version = $6
		RETURNING user_id, capacity, slots, blocked, version, created_at, last_modified_at
	`
	var updated Record
	err := r.db.QueryRow(ctx, query,
		record.UserID,
		record.Capacity,
		record.Slots,
		record.Blocked,
		time.Now().UTC(),
		record.Version,
	).Scan(
		&updated.UserID,
		&updated.Capacity,
		&updated.Slots,
		&updated.Blocked,
		&updated.Version,
		&updated.CreatedAt,
		&updated.LastModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Debug("Slot record version conflict", "userID", record.UserID,
				"expectedVersion", record.Version)
			return Record{}, ErrVersionConflict
		}
		return Record{}, fmt.Errorf("failed to update slot record: %w", err)
	}

	return updated, nil
}
