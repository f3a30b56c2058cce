package factor

import (
	"testing"
	"time"

	"github.com/nutrilog/sessiond/logger"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *PendingStore {
	t.Helper()
	config := DefaultStoreConfig()
	config.TTL = ttl
	store, err := NewPendingStore(logger.NewNopLogger(), config)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStartAndGet(t *testing.T) {
	store := newTestStore(t, time.Minute)

	session, err := store.Start("user-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.PrincipalID)
	assert.Equal(t, "10.0.0.1", session.OriginatingIP)
	assert.True(t, session.ExpiresAt.After(session.CreatedAt))

	got, ok := store.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, session.PrincipalID, got.PrincipalID)
}

func TestStartReplacesExisting(t *testing.T) {
	store := newTestStore(t, time.Minute)

	first, err := store.Start("user-1", "10.0.0.1")
	require.NoError(t, err)

	second, err := store.Start("user-1", "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))

	got, ok := store.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", got.OriginatingIP)

	metrics := store.GetMetrics()
	assert.Equal(t, int64(2), metrics["sessions_started"])
	assert.Equal(t, int64(1), metrics["sessions_replaced"])
}

func TestGetMissIsUniform(t *testing.T) {
	store := newTestStore(t, 50*time.Millisecond)

	// Never existed.
	got, ok := store.Get("user-never")
	assert.False(t, ok)
	assert.Nil(t, got)

	// Existed but expired. The caller sees exactly the same answer.
	_, err := store.Start("user-1", "")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	got, ok = store.Get("user-1")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCompleteIsIdempotent(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, err := store.Start("user-1", "")
	require.NoError(t, err)

	store.Complete("user-1")
	_, ok := store.Get("user-1")
	assert.False(t, ok)

	// Completing again, or completing an unknown principal, is a no-op.
	store.Complete("user-1")
	store.Complete("user-unknown")
}

func TestStartAfterClose(t *testing.T) {
	store := newTestStore(t, time.Minute)
	store.Close()

	_, err := store.Start("user-1", "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestTOTPVerifier(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	verifier := NewTOTPVerifier()

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, verifier.VerifyCode(secret, code))

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	assert.False(t, verifier.VerifyCode(secret, wrong))
	assert.False(t, verifier.VerifyCode("", code))
	assert.False(t, verifier.VerifyCode("not-base32!!", code))
}
