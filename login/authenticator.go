package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/nutrilog/sessiond/audit"
	"github.com/nutrilog/sessiond/factor"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/principal"
	"github.com/nutrilog/sessiond/revocation"
	"github.com/nutrilog/sessiond/token"
)

// Result is the outcome of a successful login step. Either
// FactorRequired is set and the caller must come back with a code, or
// Tokens and Principal are populated.
type Result struct {
	FactorRequired bool                  `json:"factor_required"`
	Tokens         *token.CredentialPair `json:"-"`
	Principal      *principal.Summary    `json:"principal,omitempty"`
}

// Authenticator runs the login state machine:
//
//	AwaitingPrimary -> AwaitingFactor -> Authenticated
//	                \__________________/
//	                 (no factor configured)
//
// The primary and second-factor checks are split across two calls so a
// client never has to hold primary-credential state while the user
// fetches a code; the pending-factor session is the server-side bridge
// between them.
type Authenticator struct {
	registry *principal.Registry
	pending  *factor.PendingStore
	issuer   *token.Issuer
	revoker  *revocation.Service
	verifier factor.CodeVerifier
	auditor  audit.Auditor
	log      logger.Logger
}

// NewAuthenticator wires the login state machine.
func NewAuthenticator(
	registry *principal.Registry,
	pending *factor.PendingStore,
	issuer *token.Issuer,
	revoker *revocation.Service,
	verifier factor.CodeVerifier,
	auditor audit.Auditor,
	log logger.Logger,
) *Authenticator {
	if auditor == nil {
		auditor = audit.NopAuditor()
	}
	return &Authenticator{
		registry: registry,
		pending:  pending,
		issuer:   issuer,
		revoker:  revoker,
		verifier: verifier,
		auditor:  auditor,
		log:      log.WithSubsystem("login"),
	}
}

// Login handles the AwaitingPrimary state. On success it either moves
// the principal to AwaitingFactor (second factor configured) or mints
// tokens directly.
func (a *Authenticator) Login(ctx context.Context, email, password, originIP string) (*Result, error) {
	p, err := a.registry.VerifyPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, principal.ErrBadCredentials) {
			a.auditor.Record(ctx, &audit.Entry{
				Type:     audit.TypeLogin,
				ClientIP: originIP,
				Outcome:  audit.OutcomeRejected,
				Reason:   ReasonBadPrimary,
			})
			return nil, &RejectedError{Reason: ReasonBadPrimary}
		}
		return nil, err
	}

	if p.FactorEnabled {
		if _, err := a.pending.Start(p.ID, originIP); err != nil {
			return nil, err
		}
		a.log.Debug("second factor required",
			logger.String("principal_id", p.ID),
		)
		return &Result{FactorRequired: true}, nil
	}

	return a.finalize(ctx, p, false, originIP, audit.TypeLogin)
}

// CompleteFactor handles the AwaitingFactor state. A missing pending
// session is indistinguishable from an expired one by design. A failed
// code leaves the session in place for bounded retries within the
// original TTL; a successful one deletes the session before any token
// is minted.
func (a *Authenticator) CompleteFactor(ctx context.Context, principalID, code, originIP string) (*Result, error) {
	if _, ok := a.pending.Get(principalID); !ok {
		a.auditor.Record(ctx, &audit.Entry{
			Type:        audit.TypeFactor,
			PrincipalID: principalID,
			ClientIP:    originIP,
			Outcome:     audit.OutcomeRejected,
			Reason:      ReasonSessionExpired,
		})
		return nil, &RejectedError{Reason: ReasonSessionExpired}
	}

	p, err := a.registry.Store().Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, &RejectedError{Reason: ReasonSessionExpired}
		}
		return nil, err
	}

	if !a.verifyFactor(ctx, p, code) {
		a.auditor.Record(ctx, &audit.Entry{
			Type:        audit.TypeFactor,
			PrincipalID: principalID,
			ClientIP:    originIP,
			Outcome:     audit.OutcomeRejected,
			Reason:      ReasonBadFactor,
		})
		a.log.Warn("second-factor verification failed",
			logger.String("principal_id", principalID),
			logger.String("client_ip", originIP),
		)
		return nil, &RejectedError{Reason: ReasonBadFactor}
	}

	// Delete before issuance. If we crash after this point the user
	// restarts the login; issuing twice against one session would be
	// the worse failure.
	a.pending.Complete(principalID)

	return a.finalize(ctx, p, true, originIP, audit.TypeFactor)
}

// Refresh rotates a refresh credential: the presented credential is
// revoked and a fresh pair is minted from current principal data.
func (a *Authenticator) Refresh(ctx context.Context, rawRefresh, originIP string) (*Result, error) {
	cred, err := a.issuer.Validate(ctx, rawRefresh)
	if err != nil {
		return nil, err
	}
	if cred.TokenClass != revocation.ClassRefresh {
		return nil, &token.InvalidCredentialError{
			Reason: token.ReasonMalformed,
			Err:    fmt.Errorf("token class %q cannot be refreshed", cred.TokenClass),
		}
	}

	p, err := a.registry.Store().Get(ctx, cred.PrincipalID)
	if err != nil {
		return nil, err
	}

	if _, err := a.revoker.Revoke(ctx, cred.TokenID, cred.PrincipalID, revocation.ReasonRotation, originIP); err != nil {
		return nil, err
	}

	return a.finalize(ctx, p, cred.FactorComplete, originIP, audit.TypeRefresh)
}

// Logout revokes the presented refresh credential.
func (a *Authenticator) Logout(ctx context.Context, rawRefresh, originIP string) error {
	cred, err := a.issuer.Validate(ctx, rawRefresh)
	if err != nil {
		return err
	}
	_, err = a.revoker.Revoke(ctx, cred.TokenID, cred.PrincipalID, revocation.ReasonLogout, originIP)
	return err
}

// LogoutAll revokes every outstanding credential for a principal.
func (a *Authenticator) LogoutAll(ctx context.Context, principalID, originIP string) (int, error) {
	return a.revoker.RevokeAll(ctx, principalID, revocation.ReasonLogoutAll, originIP)
}

func (a *Authenticator) verifyFactor(ctx context.Context, p *principal.Principal, code string) bool {
	if p.TOTPSecret != "" && a.verifier.VerifyCode(p.TOTPSecret, code) {
		return true
	}

	consumed, err := a.registry.ConsumeBackupCode(ctx, p.ID, code)
	if err != nil {
		a.log.Error("backup code check failed",
			logger.String("principal_id", p.ID),
			logger.Err(err),
		)
		return false
	}
	return consumed
}

// finalize is the Authenticated state: mint the pair, register the
// issuance for later revocation, stamp last-login metadata, audit.
func (a *Authenticator) finalize(ctx context.Context, p *principal.Principal, factorComplete bool, originIP, entryType string) (*Result, error) {
	pair, err := a.issuer.IssuePair(token.Subject{
		PrincipalID: p.ID,
		Email:       p.Email,
		AccountTier: p.Tier,
		Verified:    p.Verified,
	}, factorComplete)
	if err != nil {
		return nil, err
	}

	for _, cred := range []*token.IssuedCredential{pair.Access, pair.Refresh} {
		if err := a.revoker.RecordIssued(ctx, cred.TokenID, p.ID, cred.TokenClass, cred.ExpiresAt); err != nil {
			a.log.Error("failed to register issued credential",
				logger.String("token_id", cred.TokenID),
				logger.Err(err),
			)
		}
	}

	if err := a.registry.RecordLogin(ctx, p.ID, originIP); err != nil {
		a.log.Warn("failed to stamp last-login metadata",
			logger.String("principal_id", p.ID),
			logger.Err(err),
		)
	}

	a.auditor.Record(ctx, &audit.Entry{
		Type:        entryType,
		PrincipalID: p.ID,
		ClientIP:    originIP,
		Outcome:     audit.OutcomeSuccess,
		Metadata: map[string]string{
			"factor_complete": fmt.Sprintf("%t", factorComplete),
		},
	})

	a.log.Info("principal authenticated",
		logger.String("principal_id", p.ID),
		logger.Bool("factor_complete", factorComplete),
	)

	return &Result{
		Tokens:    pair,
		Principal: p.Summarize(factorComplete),
	}, nil
}
