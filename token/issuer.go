package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nutrilog/sessiond/helper"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/revocation"
)

// RevocationChecker answers whether a token id has been revoked. The
// revocation service implements it.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// IssuerConfig holds configuration for the token issuer
type IssuerConfig struct {
	// SigningKey is the HMAC key used to sign credentials.
	SigningKey []byte

	// Issuer is stamped into the iss claim.
	Issuer string

	// AccessTTL is the lifetime of access credentials.
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh credentials.
	RefreshTTL time.Duration

	// EnableMetrics enables collection of operational metrics
	EnableMetrics bool
}

// DefaultIssuerConfig returns a production-ready default configuration
func DefaultIssuerConfig() *IssuerConfig {
	return &IssuerConfig{
		Issuer:        "sessiond",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		EnableMetrics: true,
	}
}

// Metrics tracks operational statistics
type Metrics struct {
	mu                 sync.RWMutex
	TokensIssued       int64
	TokensValidated    int64
	ValidationFailures int64
	FailOpenLookups    int64
}

func (m *Metrics) IncrementTokensIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensIssued++
}

func (m *Metrics) IncrementTokensValidated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensValidated++
}

func (m *Metrics) IncrementValidationFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationFailures++
}

func (m *Metrics) IncrementFailOpenLookups() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailOpenLookups++
}

func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"tokens_issued":       m.TokensIssued,
		"tokens_validated":    m.TokensValidated,
		"validation_failures": m.ValidationFailures,
		"fail_open_lookups":   m.FailOpenLookups,
	}
}

// Issuer mints and validates bearer credentials. Minting has no side
// effects beyond generation; validation consults the revocation
// checker only after the credential passes structural checks.
type Issuer struct {
	config  *IssuerConfig
	checker RevocationChecker
	log     logger.Logger
	metrics *Metrics
}

// NewIssuer creates a token issuer/validator.
func NewIssuer(config *IssuerConfig, checker RevocationChecker, log logger.Logger) (*Issuer, error) {
	if config == nil {
		config = DefaultIssuerConfig()
	}
	if len(config.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	if config.AccessTTL <= 0 || config.RefreshTTL <= 0 {
		return nil, errors.New("credential lifetimes must be positive")
	}

	return &Issuer{
		config:  config,
		checker: checker,
		log:     log.WithSubsystem("token"),
		metrics: &Metrics{},
	}, nil
}

// Issue mints a single signed credential of the given class.
func (i *Issuer) Issue(subject Subject, class revocation.TokenClass, factorComplete bool) (*IssuedCredential, error) {
	ttl := i.config.AccessTTL
	if class == revocation.ClassRefresh {
		ttl = i.config.RefreshTTL
	}

	now := time.Now().UTC()
	tokenID := helper.GenerateTokenID()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   subject.PrincipalID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:          subject.Email,
		AccountTier:    subject.AccountTier,
		Verified:       subject.Verified,
		FactorComplete: factorComplete,
		TokenClass:     string(class),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}

	if i.config.EnableMetrics {
		i.metrics.IncrementTokensIssued()
	}

	i.log.Debug("credential issued",
		logger.String("token_id", tokenID),
		logger.String("principal_id", subject.PrincipalID),
		logger.String("token_class", string(class)),
		logger.Time("expires_at", expiresAt),
	)

	return &IssuedCredential{
		TokenID:        tokenID,
		PrincipalID:    subject.PrincipalID,
		TokenClass:     class,
		IssuedAt:       now,
		ExpiresAt:      expiresAt,
		Email:          subject.Email,
		AccountTier:    subject.AccountTier,
		Verified:       subject.Verified,
		FactorComplete: factorComplete,
		Signed:         signed,
	}, nil
}

// IssuePair mints the access/refresh credential pair returned on a
// successful login.
func (i *Issuer) IssuePair(subject Subject, factorComplete bool) (*CredentialPair, error) {
	access, err := i.Issue(subject, revocation.ClassAccess, factorComplete)
	if err != nil {
		return nil, err
	}
	refresh, err := i.Issue(subject, revocation.ClassRefresh, factorComplete)
	if err != nil {
		return nil, err
	}
	return &CredentialPair{Access: access, Refresh: refresh}, nil
}

// Validate checks a raw credential structurally and then against the
// credential store. Structural checks run first so that tokens invalid
// on their face never cost a store lookup. A structurally valid token
// whose verification claim is false fails with "unverified"; one whose
// id appears in the store fails with "revoked".
//
// Store lookup errors fail open: the token is treated as not revoked,
// but the fallback is logged at error severity so it stays auditable.
func (i *Issuer) Validate(ctx context.Context, raw string) (*IssuedCredential, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.config.SigningKey, nil
	})
	if err != nil || !parsed.Valid {
		if i.config.EnableMetrics {
			i.metrics.IncrementValidationFailures()
		}
		reason := ReasonMalformed
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = ReasonExpired
		}
		return nil, &InvalidCredentialError{Reason: reason, Err: err}
	}

	if claims.ID == "" || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		if i.config.EnableMetrics {
			i.metrics.IncrementValidationFailures()
		}
		return nil, &InvalidCredentialError{Reason: ReasonMalformed, Err: errors.New("missing required claims")}
	}

	if !claims.Verified {
		if i.config.EnableMetrics {
			i.metrics.IncrementValidationFailures()
		}
		return nil, &InvalidCredentialError{Reason: ReasonUnverified}
	}

	if i.checker != nil {
		revoked, err := i.checker.IsRevoked(ctx, claims.ID)
		if err != nil {
			if i.config.EnableMetrics {
				i.metrics.IncrementFailOpenLookups()
			}
			i.log.Error("revocation lookup failed, treating token as not revoked",
				logger.String("token_id", claims.ID),
				logger.Bool("fail_open", true),
				logger.Err(err),
			)
		} else if revoked {
			if i.config.EnableMetrics {
				i.metrics.IncrementValidationFailures()
			}
			return nil, &InvalidCredentialError{Reason: ReasonRevoked}
		}
	}

	if i.config.EnableMetrics {
		i.metrics.IncrementTokensValidated()
	}

	return &IssuedCredential{
		TokenID:        claims.ID,
		PrincipalID:    claims.Subject,
		TokenClass:     revocation.TokenClass(claims.TokenClass),
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
		Email:          claims.Email,
		AccountTier:    claims.AccountTier,
		Verified:       claims.Verified,
		FactorComplete: claims.FactorComplete,
		Signed:         raw,
	}, nil
}

// GetMetrics returns a snapshot of current metrics
func (i *Issuer) GetMetrics() map[string]int64 {
	if !i.config.EnableMetrics {
		return nil
	}
	return i.metrics.GetSnapshot()
}
