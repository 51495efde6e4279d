package revoke

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	deviceerrors "github.com/tendant/device-gate/pkg/errors"
)

func newTestTokenService() *ActionTokenService {
	return NewActionTokenService("test-revoke-secret", "device-gate-test")
}

func TestActionToken_IssueAndRedeem(t *testing.T) {
	service := newTestTokenService()
	targetID := uuid.New()

	token, expiresAt, err := service.Issue(targetID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	err = service.Redeem(token, targetID)
	assert.NoError(t, err)
}

func TestActionToken_ReplayRejected(t *testing.T) {
	service := newTestTokenService()
	targetID := uuid.New()

	token, _, err := service.Issue(targetID)
	require.NoError(t, err)

	require.NoError(t, service.Redeem(token, targetID))

	err = service.Redeem(token, targetID)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeTokenReplayed))
}

func TestActionToken_WrongTargetRejected(t *testing.T) {
	service := newTestTokenService()

	token, _, err := service.Issue(uuid.New())
	require.NoError(t, err)

	err = service.Redeem(token, uuid.New())
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeTokenInvalid))
}

func TestActionToken_GarbageRejected(t *testing.T) {
	service := newTestTokenService()

	err := service.Redeem("not-a-token", uuid.New())
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeTokenInvalid))
}

func TestActionToken_WrongSecretRejected(t *testing.T) {
	issuing := NewActionTokenService("secret-one", "device-gate-test")
	redeeming := NewActionTokenService("secret-two", "device-gate-test")
	targetID := uuid.New()

	token, _, err := issuing.Issue(targetID)
	require.NoError(t, err)

	err = redeeming.Redeem(token, targetID)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeTokenInvalid))
}

func TestActionToken_ExpiredRejected(t *testing.T) {
	service := NewActionTokenServiceWithExpiry("test-revoke-secret", "device-gate-test", time.Millisecond)
	targetID := uuid.New()

	token, _, err := service.Issue(targetID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	err = service.Redeem(token, targetID)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeTokenInvalid))
}

func TestActionToken_ZeroTargetIssueFails(t *testing.T) {
	service := newTestTokenService()

	_, _, err := service.Issue(uuid.Nil)
	require.Error(t, err)
	assert.True(t, deviceerrors.IsCode(err, deviceerrors.ErrCodeInvalidTarget))
}
