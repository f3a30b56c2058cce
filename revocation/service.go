package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/nutrilog/sessiond/audit"
	"github.com/nutrilog/sessiond/logger"
)

// Revocation reasons recorded on credential records.
const (
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonRotation       = "rotation"
	ReasonPasswordChange = "password_change"
	ReasonAdminAction    = "admin_action"
)

// Service is the only writer of the credential store's revocation
// records. Transient store failures during revocation are surfaced to
// the caller: silently failing to revoke would be a security
// regression.
type Service struct {
	store   Store
	auditor audit.Auditor
	log     logger.Logger
}

// NewService creates a revocation service around a Store.
func NewService(store Store, auditor audit.Auditor, log logger.Logger) *Service {
	if auditor == nil {
		auditor = audit.NopAuditor()
	}
	return &Service{
		store:   store,
		auditor: auditor,
		log:     log.WithSubsystem("revocation"),
	}
}

// Revoke marks a single token id as permanently untrusted. Revoking an
// already-revoked id is a no-op success: the existing record is
// returned with its original metadata intact.
func (s *Service) Revoke(ctx context.Context, tokenID, principalID, reason, originIP string) (*CredentialRecord, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token id is required")
	}

	expiresAt := time.Now().Add(defaultRetention)
	if issued := s.lookupIssued(ctx, tokenID, principalID); issued != nil {
		expiresAt = issued.ExpiresAt
	}

	record := &CredentialRecord{
		TokenID:       tokenID,
		PrincipalID:   principalID,
		TokenClass:    ClassRefresh,
		ExpiresAt:     expiresAt,
		RevokedReason: reason,
		RevokedFromIP: originIP,
		RevokedAt:     time.Now().UTC(),
	}

	stored, inserted, err := s.store.Insert(ctx, record)
	if err != nil {
		s.log.Error("failed to persist revocation",
			logger.String("token_id", tokenID),
			logger.String("principal_id", principalID),
			logger.Err(err),
		)
		return nil, err
	}

	if !inserted {
		s.log.Debug("token already revoked",
			logger.String("token_id", tokenID),
			logger.Time("revoked_at", stored.RevokedAt),
		)
		return stored, nil
	}

	s.auditor.Record(ctx, &audit.Entry{
		Type:        audit.TypeRevocation,
		PrincipalID: principalID,
		ClientIP:    originIP,
		Outcome:     audit.OutcomeSuccess,
		Reason:      reason,
		Metadata:    map[string]string{"token_id": tokenID},
	})

	s.log.Info("token revoked",
		logger.String("token_id", tokenID),
		logger.String("principal_id", principalID),
		logger.String("reason", reason),
	)
	return stored, nil
}

// RevokeAll revokes every currently outstanding credential issued to a
// principal and returns how many were revoked. Used for "log out
// everywhere" and forced de-authentication. Partial failures are
// aggregated; the caller sees both the count that succeeded and what
// failed.
func (s *Service) RevokeAll(ctx context.Context, principalID, reason, originIP string) (int, error) {
	outstanding, err := s.store.ListOutstanding(ctx, principalID, time.Now())
	if err != nil {
		s.log.Error("failed to list outstanding credentials",
			logger.String("principal_id", principalID),
			logger.Err(err),
		)
		return 0, err
	}

	var merr *multierror.Error
	revoked := 0
	for _, issued := range outstanding {
		record := &CredentialRecord{
			TokenID:       issued.TokenID,
			PrincipalID:   issued.PrincipalID,
			TokenClass:    issued.TokenClass,
			ExpiresAt:     issued.ExpiresAt,
			RevokedReason: reason,
			RevokedFromIP: originIP,
			RevokedAt:     time.Now().UTC(),
		}
		if _, _, err := s.store.Insert(ctx, record); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("token %s: %w", issued.TokenID, err))
			continue
		}
		revoked++
	}

	s.auditor.Record(ctx, &audit.Entry{
		Type:        audit.TypeRevocation,
		PrincipalID: principalID,
		ClientIP:    originIP,
		Outcome:     audit.OutcomeSuccess,
		Reason:      reason,
		Metadata:    map[string]string{"revoked_count": fmt.Sprintf("%d", revoked)},
	})

	s.log.Info("revoked all sessions",
		logger.String("principal_id", principalID),
		logger.Int("revoked", revoked),
		logger.String("reason", reason),
	)
	return revoked, merr.ErrorOrNil()
}

// CleanupExpired removes records whose expiry has passed. Storage
// hygiene only: running it twice, or concurrently, is harmless.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error("retention cleanup failed", logger.Err(err))
		return removed, err
	}

	if removed > 0 {
		s.log.Debug("retention cleanup completed", logger.Int("removed", removed))
	}
	return removed, nil
}

// RecordIssued registers a freshly issued credential pair member so
// RevokeAll can find it later. Called by the login flow after token
// issuance, never by the issuer itself.
func (s *Service) RecordIssued(ctx context.Context, tokenID, principalID string, class TokenClass, expiresAt time.Time) error {
	return s.store.RecordIssued(ctx, &IssuedRecord{
		TokenID:     tokenID,
		PrincipalID: principalID,
		TokenClass:  class,
		ExpiresAt:   expiresAt,
	})
}

// IsRevoked reports whether a token id appears in the credential store.
func (s *Service) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	record, err := s.store.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (s *Service) lookupIssued(ctx context.Context, tokenID, principalID string) *IssuedRecord {
	outstanding, err := s.store.ListOutstanding(ctx, principalID, time.Now())
	if err != nil {
		return nil
	}
	for _, issued := range outstanding {
		if issued.TokenID == tokenID {
			return issued
		}
	}
	return nil
}

// defaultRetention bounds how long a revocation record for an unknown
// credential is kept before retention cleanup may remove it.
const defaultRetention = 7 * 24 * time.Hour
