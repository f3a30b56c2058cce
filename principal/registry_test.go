package principal

import (
	"context"
	"testing"

	"github.com/nutrilog/sessiond/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	calls []hookCall
}

type hookCall struct {
	principalID string
	fields      []string
}

func (h *recordingHook) Invalidate(ctx context.Context, principalID string, changedFields []string) {
	h.calls = append(h.calls, hookCall{principalID: principalID, fields: changedFields})
}

func newTestRegistry(t *testing.T) (*Registry, *recordingHook) {
	t.Helper()
	hook := &recordingHook{}
	registry := NewRegistry(NewInmemStore(), hook, logger.NewNopLogger())
	return registry, hook
}

func seedPrincipal(t *testing.T, registry *Registry) *Principal {
	t.Helper()
	p := &Principal{
		ID:       "user-1",
		Email:    "test@example.com",
		Tier:     "free",
		Verified: true,
	}
	require.NoError(t, registry.Register(context.Background(), p, "s3cret-pass"))
	return p
}

func TestVerifyPassword(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	seedPrincipal(t, registry)

	t.Run("success", func(t *testing.T) {
		p, err := registry.VerifyPassword(ctx, "test@example.com", "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.ID)
	})

	t.Run("email case and whitespace insensitive", func(t *testing.T) {
		p, err := registry.VerifyPassword(ctx, "  Test@Example.COM ", "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := registry.VerifyPassword(ctx, "test@example.com", "wrong")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		// The error never distinguishes a bad password from a missing
		// account.
		_, err := registry.VerifyPassword(ctx, "nobody@example.com", "s3cret-pass")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	seedPrincipal(t, registry)

	err := registry.Register(ctx, &Principal{ID: "user-2", Email: "TEST@example.com"}, "pw")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMutatorsReportChangedFields(t *testing.T) {
	ctx := context.Background()
	registry, hook := newTestRegistry(t)
	seedPrincipal(t, registry)
	hook.calls = nil

	require.NoError(t, registry.UpdateTier(ctx, "user-1", "premium"))
	require.NoError(t, registry.RecordLogin(ctx, "user-1", "10.0.0.1"))
	require.NoError(t, registry.TouchLastSeen(ctx, "user-1"))

	require.Len(t, hook.calls, 3)
	assert.Equal(t, []string{FieldTier}, hook.calls[0].fields)
	assert.Equal(t, []string{FieldLastLoginAt, FieldLastLoginIP}, hook.calls[1].fields)
	assert.Equal(t, []string{FieldLastSeenAt}, hook.calls[2].fields)

	p, err := registry.Store().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "premium", p.Tier)
	assert.Equal(t, "10.0.0.1", p.LastLoginIP)
	assert.False(t, p.LastLoginAt.IsZero())
}

func TestBackupCodesSingleUse(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)
	seedPrincipal(t, registry)

	codes, err := registry.EnableFactor(ctx, "user-1", "JBSWY3DPEHPK3PXP", 3)
	require.NoError(t, err)
	require.Len(t, codes, 3)

	p, err := registry.Store().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, p.FactorEnabled)
	assert.Len(t, p.BackupCodeHashes, 3)

	consumed, err := registry.ConsumeBackupCode(ctx, "user-1", codes[0])
	require.NoError(t, err)
	assert.True(t, consumed)

	// The same code is worthless the second time.
	consumed, err = registry.ConsumeBackupCode(ctx, "user-1", codes[0])
	require.NoError(t, err)
	assert.False(t, consumed)

	consumed, err = registry.ConsumeBackupCode(ctx, "user-1", "not-a-code")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	registry, hook := newTestRegistry(t)
	seedPrincipal(t, registry)
	hook.calls = nil

	require.NoError(t, registry.Delete(ctx, "user-1"))
	require.Len(t, hook.calls, 1)
	assert.Equal(t, "user-1", hook.calls[0].principalID)
	assert.Empty(t, hook.calls[0].fields)

	_, err := registry.Store().Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsRoutineWrite(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		routine bool
	}{
		{"empty change set", nil, false},
		{"routine only", []string{FieldLastLoginAt, FieldLastLoginIP}, true},
		{"last seen only", []string{FieldLastSeenAt}, true},
		{"identity field", []string{FieldTier}, false},
		{"mixed", []string{FieldLastLoginAt, FieldPermissions}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.routine, IsRoutineWrite(tt.fields))
		})
	}
}
