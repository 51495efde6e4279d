package revoke

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/device-gate/pkg/client"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
	"github.com/tendant/device-gate/pkg/slot"
)

func adminUser() *client.AuthUser {
	id := uuid.New()
	return &client.AuthUser{
		UserId:   id.String(),
		UserUuid: id,
		ExtraClaims: client.ExtraClaims{
			Username: "ops-admin",
			Roles:    []string{"admin"},
		},
	}
}

func regularUser() *client.AuthUser {
	id := uuid.New()
	return &client.AuthUser{
		UserId:   id.String(),
		UserUuid: id,
		ExtraClaims: client.ExtraClaims{
			Username: "plain-user",
			Roles:    []string{"user"},
		},
	}
}

// blockUser drives a record into the blocked state with both slots dirty
func blockUser(t *testing.T, repo slot.Repository, userID uuid.UUID) {
	ctx := context.Background()
	record, err := repo.GetRecord(ctx, userID)
	require.NoError(t, err)
	for i := range record.Slots {
		record.Slots[i] = "fp-" + uuid.New().String()
	}
	record.Capacity = 0
	record.Blocked = true
	_, err = repo.UpdateRecord(ctx, record)
	require.NoError(t, err)
}

func TestRevoke_FullReset(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 2})
	service := NewService(repo)
	ctx := context.Background()
	targetID := uuid.New()
	blockUser(t, repo, targetID)

	record, err := service.Revoke(ctx, adminUser(), targetID)
	require.NoError(t, err)

	assert.False(t, record.Blocked)
	assert.Equal(t, 2, record.Capacity)
	for _, fp := range record.Slots {
		assert.Empty(t, fp)
	}

	// The reset is persisted, not just returned
	stored, err := repo.GetRecord(ctx, targetID)
	require.NoError(t, err)
	assert.False(t, stored.Blocked)
	assert.Equal(t, 2, stored.Capacity)
}

func TestRevoke_NonAdminForbidden(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo)
	ctx := context.Background()
	targetID := uuid.New()
	blockUser(t, repo, targetID)

	_, err := service.Revoke(ctx, regularUser(), targetID)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeForbidden))

	// The record is untouched
	record, err := repo.GetRecord(ctx, targetID)
	require.NoError(t, err)
	assert.True(t, record.Blocked)
}

func TestAuthorize(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo)

	assert.NoError(t, service.Authorize(adminUser()))

	err := service.Authorize(regularUser())
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeForbidden))

	err = service.Authorize(nil)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeForbidden))
}

func TestRevoke_NilActorForbidden(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo)

	_, err := service.Revoke(context.Background(), nil, uuid.New())
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeForbidden))
}

func TestRevoke_ZeroTargetInvalid(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo)

	_, err := service.Revoke(context.Background(), adminUser(), uuid.Nil)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeInvalidTarget))
}

func TestRevoke_CustomAdminRoles(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewServiceWithAdminRoles(repo, []string{"support"})
	ctx := context.Background()
	targetID := uuid.New()
	blockUser(t, repo, targetID)

	// The stock admin role no longer authorizes
	_, err := service.Revoke(ctx, adminUser(), targetID)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeForbidden))

	supportID := uuid.New()
	support := &client.AuthUser{
		UserId:      supportID.String(),
		UserUuid:    supportID,
		ExtraClaims: client.ExtraClaims{Roles: []string{"support"}},
	}
	_, err = service.Revoke(ctx, support, targetID)
	require.NoError(t, err)
}

func TestRevoke_UnknownTargetResetsToCleanRecord(t *testing.T) {
	// Revoking a user with no history simply yields the initial record
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 1})
	service := NewService(repo)

	record, err := service.Revoke(context.Background(), adminUser(), uuid.New())
	require.NoError(t, err)
	assert.False(t, record.Blocked)
	assert.Equal(t, 1, record.Capacity)
}

func TestStatus(t *testing.T) {
	repo := slot.NewInMemRepositoryWithOptions(slot.RepositoryOptions{MaxDevices: 2})
	service := NewService(repo)
	ctx := context.Background()
	targetID := uuid.New()

	status, err := service.Status(ctx, targetID)
	require.NoError(t, err)
	assert.False(t, status.Blocked)
	assert.Equal(t, 2, status.Capacity)
	assert.Equal(t, 2, status.MaxDevices)
	assert.Equal(t, 0, status.FilledSlots)
	assert.Empty(t, status.FirstFingerprint)

	blockUser(t, repo, targetID)

	status, err = service.Status(ctx, targetID)
	require.NoError(t, err)
	assert.True(t, status.Blocked)
	assert.Equal(t, 0, status.Capacity)
	assert.Equal(t, 2, status.FilledSlots)
	assert.NotEmpty(t, status.FirstFingerprint)

	_, err = service.Status(ctx, uuid.Nil)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeInvalidTarget))
}
