package principal

import (
	"context"
	"errors"
	"time"

	"github.com/nutrilog/sessiond/helper"
	"github.com/nutrilog/sessiond/logger"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any primary-credential failure.
// It never says whether the identifier or the secret was wrong.
var ErrBadCredentials = errors.New("invalid credentials")

// InvalidationHook is called after a write to an identity-bearing
// record commits, with the names of the changed fields. The coherency
// notifier implements it.
type InvalidationHook interface {
	Invalidate(ctx context.Context, principalID string, changedFields []string)
}

// Registry is the write path for principal records. Every mutator
// reports its changed fields to the invalidation hook after the write
// commits, making the cache coupling explicit and testable.
type Registry struct {
	store Store
	hook  InvalidationHook
	log   logger.Logger
}

// NewRegistry creates a principal registry. hook may be nil when no
// cache is attached.
func NewRegistry(store Store, hook InvalidationHook, log logger.Logger) *Registry {
	return &Registry{
		store: store,
		hook:  hook,
		log:   log.WithSubsystem("principal"),
	}
}

// Store exposes the underlying read interface.
func (r *Registry) Store() Store {
	return r.store
}

// Register creates a new principal with a bcrypt password hash.
func (r *Registry) Register(ctx context.Context, p *Principal, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return r.store.Create(ctx, p)
}

// VerifyPassword checks the primary credential. Both unknown email and
// wrong password return ErrBadCredentials; timing is equalized by
// hashing against a throwaway digest on the miss path.
func (r *Registry) VerifyPassword(ctx context.Context, email, password string) (*Principal, error) {
	p, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return p, nil
}

// SetPassword replaces the primary credential.
func (r *Registry) SetPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.PasswordHash = hash
		return []string{FieldPasswordHash}, nil
	})
}

// UpdateTier changes the subscription tier.
func (r *Registry) UpdateTier(ctx context.Context, id, tier string) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.Tier = tier
		return []string{FieldTier}, nil
	})
}

// UpdatePermissions replaces the permission set.
func (r *Registry) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.Permissions = append([]string(nil), permissions...)
		return []string{FieldPermissions}, nil
	})
}

// UpdateProfile replaces the profile snapshot.
func (r *Registry) UpdateProfile(ctx context.Context, id string, profile Profile) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.Profile = profile
		return []string{FieldProfile}, nil
	})
}

// SetVerified flips the verification flag.
func (r *Registry) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.Verified = verified
		return []string{FieldVerified}, nil
	})
}

// EnableFactor turns on the second factor with a TOTP secret and
// freshly generated single-use backup codes. The plaintext codes are
// returned once and never stored.
func (r *Registry) EnableFactor(ctx context.Context, id, totpSecret string, backupCodeCount int) ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	hashes := make([][]byte, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := helper.GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}

	err := r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.FactorEnabled = true
		p.TOTPSecret = totpSecret
		p.BackupCodeHashes = hashes
		return []string{FieldFactorEnabled, FieldTOTPSecret, FieldBackupCodes}, nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// ConsumeBackupCode removes the matching backup code and reports
// whether one matched. A code grants access exactly once.
func (r *Registry) ConsumeBackupCode(ctx context.Context, id, code string) (bool, error) {
	consumed := false
	err := r.update(ctx, id, func(p *Principal) ([]string, error) {
		for i, hash := range p.BackupCodeHashes {
			if bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil {
				p.BackupCodeHashes = append(p.BackupCodeHashes[:i], p.BackupCodeHashes[i+1:]...)
				consumed = true
				return []string{FieldBackupCodes}, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// RecordLogin stamps last-login metadata. Routine fields only: the
// identity cache is not evicted for this write.
func (r *Registry) RecordLogin(ctx context.Context, id, ip string) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.LastLoginAt = time.Now().UTC()
		p.LastLoginIP = ip
		return []string{FieldLastLoginAt, FieldLastLoginIP}, nil
	})
}

// TouchLastSeen stamps the last-seen timestamp. Routine.
func (r *Registry) TouchLastSeen(ctx context.Context, id string) error {
	return r.update(ctx, id, func(p *Principal) ([]string, error) {
		p.LastSeenAt = time.Now().UTC()
		return []string{FieldLastSeenAt}, nil
	})
}

// Delete removes a principal. Deletion always invalidates.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	if r.hook != nil {
		r.hook.Invalidate(ctx, id, nil)
	}
	return nil
}

func (r *Registry) update(ctx context.Context, id string, mutate func(*Principal) ([]string, error)) error {
	changed, err := r.store.Update(ctx, id, mutate)
	if err != nil {
		return err
	}
	if r.hook != nil && len(changed) > 0 {
		r.hook.Invalidate(ctx, id, changed)
	}
	return nil
}

// dummyHash keeps VerifyPassword's miss path doing the same bcrypt
// work as a hit, so response timing does not leak account existence.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sessiond-timing-pad"), bcrypt.DefaultCost)
