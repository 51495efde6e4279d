package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
	"github.com/tendant/device-gate/pkg/fingerprint"
	"github.com/tendant/device-gate/pkg/slot"
)

// Decision is the outcome of an admission check
type Decision string

const (
	// DecisionAllowed means the fingerprint already occupies a slot
	DecisionAllowed Decision = "allowed"
	// DecisionRegistered means the fingerprint was assigned a free slot
	DecisionRegistered Decision = "registered"
	// DecisionBlocked means the user is blocked for all devices
	DecisionBlocked Decision = "blocked"
)

// Result carries the admission outcome and the record state it was based on
type Result struct {
	Decision    Decision
	Fingerprint string
	Record      slot.Record
	// Transitioned is true only when this check performed the one-way
	// switch into the blocked state, as opposed to observing an
	// existing block
	Transitioned bool
}

// DefaultRetryBudget bounds how many times an admission check re-reads the
// record after losing a write race
const DefaultRetryBudget = 3

// Service decides whether a device is admitted for a user. It owns the
// slot-allocation and blocking state machine.
type Service struct {
	repo        slot.Repository
	generator   *fingerprint.Generator
	retryBudget int
}

// NewService creates a new admission gate service
func NewService(repo slot.Repository, generator *fingerprint.Generator) *Service {
	return &Service{
		repo:        repo,
		generator:   generator,
		retryBudget: DefaultRetryBudget,
	}
}

// NewServiceWithRetryBudget creates a new admission gate service with a
// custom write-conflict retry budget
func NewServiceWithRetryBudget(repo slot.Repository, generator *fingerprint.Generator, retryBudget int) *Service {
	svc := NewService(repo, generator)
	if retryBudget > 0 {
		svc.retryBudget = retryBudget
	}
	return svc
}

// MaxDevices returns the configured device cap
func (s *Service) MaxDevices() int {
	return s.repo.MaxDevices()
}

// Fingerprint derives the device fingerprint for a user-agent string
func (s *Service) Fingerprint(userAgent string) string {
	return s.generator.Fingerprint(userAgent)
}

// CheckAdmission runs the admission state machine for one request.
//
// Outcomes:
//   - the user is blocked: DecisionBlocked, regardless of fingerprint
//   - the fingerprint occupies a slot: DecisionAllowed, no writes
//   - a slot is free: the fingerprint takes the first free slot,
//     capacity drops by one, DecisionRegistered
//   - all slots hold other fingerprints: the record is marked blocked
//     (one-way until revocation) and DecisionBlocked is returned
//
// Writes are version-guarded; a lost race is retried from a fresh read so
// two never-seen devices can never both win the last slot. The retry budget
// exhausting surfaces as a STORAGE_RACE_LOST error, never a silent drop.
func (s *Service) CheckAdmission(ctx context.Context, userID uuid.UUID, userAgent string) (Result, error) {
	if userID == uuid.Nil {
		return Result{}, deviceerrors.InvalidInput("user id", "must not be zero")
	}

	fp := s.generator.Fingerprint(userAgent)

	for attempt := 0; attempt < s.retryBudget; attempt++ {
		record, err := s.repo.GetRecord(ctx, userID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to get slot record: %w", err)
		}

		// A blocked user is blocked for ALL devices, not just the
		// triggering one
		if record.Blocked {
			slog.Debug("Blocked user attempted access", "userID", userID, "fingerprint", fp)
			return Result{Decision: DecisionBlocked, Fingerprint: fp, Record: record}, nil
		}

		// Known device: allow with no writes
		if record.HasFingerprint(fp) {
			return Result{Decision: DecisionAllowed, Fingerprint: fp, Record: record}, nil
		}

		// New device with room: fill the first free slot
		if record.Capacity > 0 {
			index := record.FirstFreeSlot()
			if index < 0 {
				return Result{}, deviceerrors.Internal(
					fmt.Sprintf("record for user %s reports capacity %d but has no free slot", userID, record.Capacity))
			}
			record.Slots[index] = fp
			record.Capacity--

			updated, err := s.repo.UpdateRecord(ctx, record)
			if errors.Is(err, slot.ErrVersionConflict) {
				slog.Debug("Admission write race lost, retrying", "userID", userID, "attempt", attempt)
				continue
			}
			if err != nil {
				return Result{}, fmt.Errorf("failed to register device: %w", err)
			}

			slog.Info("Device registered", "userID", userID, "fingerprint", fp,
				"slot", index, "remainingCapacity", updated.Capacity)
			return Result{Decision: DecisionRegistered, Fingerprint: fp, Record: updated}, nil
		}

		// Over capacity: one-way transition to blocked. Capacity stays
		// frozen and the rejected fingerprint is NOT stored in a slot.
		record.Blocked = true

		updated, err := s.repo.UpdateRecord(ctx, record)
		if errors.Is(err, slot.ErrVersionConflict) {
			slog.Debug("Blocking write race lost, retrying", "userID", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to block user: %w", err)
		}

		slog.Warn("User blocked: device cap exceeded", "userID", userID,
			"fingerprint", fp, "maxDevices", s.repo.MaxDevices())
		return Result{Decision: DecisionBlocked, Fingerprint: fp, Record: updated, Transitioned: true}, nil
	}

	return Result{}, deviceerrors.RaceLost("device slot record", userID.String())
}

// IsBlocked reports whether the user is currently blocked
func (s *Service) IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, deviceerrors.InvalidInput("user id", "must not be zero")
	}
	record, err := s.repo.GetRecord(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get slot record: %w", err)
	}
	return record.Blocked, nil
}
