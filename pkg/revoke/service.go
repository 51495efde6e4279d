package revoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/device-gate/pkg/client"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
	"github.com/tendant/device-gate/pkg/slot"
)

// Status summarizes a user's device record for the admin surface
type Status struct {
	UserID           uuid.UUID
	Blocked          bool
	Capacity         int
	MaxDevices       int
	FilledSlots      int
	FirstFingerprint string
}

// Service performs administrative revocation: the full reset of a user's
// device record. Revocation is the only exit from the blocked state.
type Service struct {
	repo       slot.Repository
	adminRoles []string
}

// NewService creates a revocation service guarding with the default admin
// roles
func NewService(repo slot.Repository) *Service {
	return NewServiceWithAdminRoles(repo, []string{"admin", "superadmin"})
}

// NewServiceWithAdminRoles creates a revocation service with custom
// authorizing roles
func NewServiceWithAdminRoles(repo slot.Repository, adminRoles []string) *Service {
	if len(adminRoles) == 0 {
		adminRoles = []string{"admin", "superadmin"}
	}
	return &Service{
		repo:       repo,
		adminRoles: adminRoles,
	}
}

// Authorize checks whether the actor holds a role that permits revocation
func (s *Service) Authorize(actor *client.AuthUser) error {
	if !client.IsAdminWithRoles(actor, s.adminRoles) {
		slog.Warn("Revocation attempted without admin role", "actor", actor)
		return deviceerrors.Forbidden("device revocation requires an administrator role")
	}
	return nil
}

// Revoke resets the target user's record: every slot freed, capacity
// restored to the device cap, blocked flag cleared. Only administrators may
// revoke; the actor's own record is fair game like anyone else's.
func (s *Service) Revoke(ctx context.Context, actor *client.AuthUser, targetUserID uuid.UUID) (slot.Record, error) {
	if err := s.Authorize(actor); err != nil {
		return slot.Record{}, err
	}
	if targetUserID == uuid.Nil {
		return slot.Record{}, deviceerrors.InvalidTarget("target user id must not be zero")
	}

	record, err := slot.Reset(ctx, s.repo, targetUserID)
	if err != nil {
		if errors.Is(err, slot.ErrVersionConflict) {
			return slot.Record{}, deviceerrors.RaceLost("device slot record", targetUserID.String())
		}
		return slot.Record{}, fmt.Errorf("failed to reset device record: %w", err)
	}

	slog.Info("Device record revoked", "targetUserID", targetUserID,
		"actor", actor, "capacity", record.Capacity)
	return record, nil
}

// Status reports the current device record of a user without modifying it
func (s *Service) Status(ctx context.Context, targetUserID uuid.UUID) (Status, error) {
	if targetUserID == uuid.Nil {
		return Status{}, deviceerrors.InvalidTarget("target user id must not be zero")
	}

	record, err := s.repo.GetRecord(ctx, targetUserID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get device record: %w", err)
	}

	return Status{
		UserID:           targetUserID,
		Blocked:          record.Blocked,
		Capacity:         record.Capacity,
		MaxDevices:       s.repo.MaxDevices(),
		FilledSlots:      record.FilledCount(),
		FirstFingerprint: record.FirstFingerprint(),
	}, nil
}
