package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/revocation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSubject = Subject{
	PrincipalID: "user-1",
	Email:       "test@example.com",
	AccountTier: "premium",
	Verified:    true,
}

type staticChecker struct {
	revoked map[string]bool
	err     error
}

func (c *staticChecker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.revoked[tokenID], nil
}

func newTestIssuer(t *testing.T, checker RevocationChecker) *Issuer {
	t.Helper()
	config := DefaultIssuerConfig()
	config.SigningKey = []byte("test-signing-key")
	issuer, err := NewIssuer(config, checker, logger.NewNopLogger())
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerValidation(t *testing.T) {
	t.Run("missing signing key", func(t *testing.T) {
		_, err := NewIssuer(DefaultIssuerConfig(), nil, logger.NewNopLogger())
		require.Error(t, err)
	})

	t.Run("non-positive lifetime", func(t *testing.T) {
		config := DefaultIssuerConfig()
		config.SigningKey = []byte("key")
		config.AccessTTL = 0
		_, err := NewIssuer(config, nil, logger.NewNopLogger())
		require.Error(t, err)
	})
}

func TestIssueAndValidate(t *testing.T) {
	issuer := newTestIssuer(t, &staticChecker{})

	cred, err := issuer.Issue(testSubject, revocation.ClassAccess, true)
	require.NoError(t, err)
	require.NotEmpty(t, cred.Signed)
	assert.NotEmpty(t, cred.TokenID)

	validated, err := issuer.Validate(context.Background(), cred.Signed)
	require.NoError(t, err)
	assert.Equal(t, cred.TokenID, validated.TokenID)
	assert.Equal(t, "user-1", validated.PrincipalID)
	assert.Equal(t, "premium", validated.AccountTier)
	assert.Equal(t, revocation.ClassAccess, validated.TokenClass)
	assert.True(t, validated.FactorComplete)
}

func TestIssuePairClasses(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	pair, err := issuer.IssuePair(testSubject, false)
	require.NoError(t, err)
	assert.Equal(t, revocation.ClassAccess, pair.Access.TokenClass)
	assert.Equal(t, revocation.ClassRefresh, pair.Refresh.TokenClass)
	assert.NotEqual(t, pair.Access.TokenID, pair.Refresh.TokenID)
	assert.True(t, pair.Refresh.ExpiresAt.After(pair.Access.ExpiresAt))
}

func TestValidateRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		issuer := newTestIssuer(t, nil)
		_, err := issuer.Validate(ctx, "not-a-token")
		assert.True(t, IsInvalidCredential(err, ReasonMalformed))
	})

	t.Run("wrong key", func(t *testing.T) {
		issuer := newTestIssuer(t, nil)
		cred, err := issuer.Issue(testSubject, revocation.ClassAccess, false)
		require.NoError(t, err)

		otherConfig := DefaultIssuerConfig()
		otherConfig.SigningKey = []byte("a-different-key")
		other, err := NewIssuer(otherConfig, nil, logger.NewNopLogger())
		require.NoError(t, err)

		_, err = other.Validate(ctx, cred.Signed)
		assert.True(t, IsInvalidCredential(err, ReasonMalformed))
	})

	t.Run("expired", func(t *testing.T) {
		key := []byte("test-signing-key")
		now := time.Now().Add(-time.Hour)
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "tok-expired",
				Subject:   "user-1",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			Verified: true,
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)

		issuer := newTestIssuer(t, nil)
		_, err = issuer.Validate(ctx, signed)
		assert.True(t, IsInvalidCredential(err, ReasonExpired))
	})

	t.Run("missing claims", func(t *testing.T) {
		key := []byte("test-signing-key")
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
			Verified:         true,
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)

		issuer := newTestIssuer(t, nil)
		_, err = issuer.Validate(ctx, signed)
		assert.True(t, IsInvalidCredential(err, ReasonMalformed))
	})

	t.Run("unverified", func(t *testing.T) {
		issuer := newTestIssuer(t, nil)
		subject := testSubject
		subject.Verified = false
		cred, err := issuer.Issue(subject, revocation.ClassAccess, false)
		require.NoError(t, err)

		_, err = issuer.Validate(ctx, cred.Signed)
		assert.True(t, IsInvalidCredential(err, ReasonUnverified))
	})

	t.Run("revoked", func(t *testing.T) {
		checker := &staticChecker{revoked: map[string]bool{}}
		issuer := newTestIssuer(t, checker)
		cred, err := issuer.Issue(testSubject, revocation.ClassAccess, false)
		require.NoError(t, err)

		checker.revoked[cred.TokenID] = true
		_, err = issuer.Validate(ctx, cred.Signed)
		assert.True(t, IsInvalidCredential(err, ReasonRevoked))
	})
}

func TestValidateFailsOpenOnStoreError(t *testing.T) {
	checker := &staticChecker{err: errors.New("store unavailable")}
	issuer := newTestIssuer(t, checker)

	cred, err := issuer.Issue(testSubject, revocation.ClassAccess, false)
	require.NoError(t, err)

	// A broken revocation store must not lock every user out.
	validated, err := issuer.Validate(context.Background(), cred.Signed)
	require.NoError(t, err)
	assert.Equal(t, cred.TokenID, validated.TokenID)

	metrics := issuer.GetMetrics()
	assert.Equal(t, int64(1), metrics["fail_open_lookups"])
}

func TestMetricsSnapshot(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	_, err := issuer.IssuePair(testSubject, false)
	require.NoError(t, err)
	_, err = issuer.Validate(context.Background(), "garbage")
	require.Error(t, err)

	metrics := issuer.GetMetrics()
	assert.Equal(t, int64(2), metrics["tokens_issued"])
	assert.Equal(t, int64(1), metrics["validation_failures"])
}
