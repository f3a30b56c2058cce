package principal

import "time"

// Canonical identity field names, reported by every writer alongside
// its commit. The routine set below is deliberately declared next to
// these constants: when a field is added here, its invalidation
// classification must be decided in the same place.
const (
	FieldEmail         = "email"
	FieldPasswordHash  = "password_hash"
	FieldTier          = "tier"
	FieldPermissions   = "permissions"
	FieldProfile       = "profile"
	FieldVerified      = "verified"
	FieldFactorEnabled = "factor_enabled"
	FieldTOTPSecret    = "totp_secret"
	FieldBackupCodes   = "backup_codes"
	FieldLastLoginAt   = "last_login_at"
	FieldLastLoginIP   = "last_login_ip"
	FieldLastSeenAt    = "last_seen_at"
)

// RoutineFields are high-frequency fields with no bearing on
// authorization. Writes touching only these do not evict the identity
// read cache.
var RoutineFields = map[string]struct{}{
	FieldLastLoginAt: {},
	FieldLastLoginIP: {},
	FieldLastSeenAt:  {},
}

// IsRoutineWrite reports whether a change set touches routine fields
// only. An empty change set is not routine: when the changed fields
// cannot be determined, the caller must invalidate.
func IsRoutineWrite(changedFields []string) bool {
	if len(changedFields) == 0 {
		return false
	}
	for _, field := range changedFields {
		if _, ok := RoutineFields[field]; !ok {
			return false
		}
	}
	return true
}

// Profile is the non-authorization identity data shown back to the
// client after login.
type Profile struct {
	DisplayName string `json:"display_name"`
	TimeZone    string `json:"time_zone"`
	Locale      string `json:"locale"`
}

// Principal is a user account as the session core sees it.
type Principal struct {
	ID           string
	Email        string
	PasswordHash []byte
	Tier         string
	Permissions  []string
	Profile      Profile
	Verified     bool

	// Second factor configuration.
	FactorEnabled    bool
	TOTPSecret       string
	BackupCodeHashes [][]byte

	// Last-login metadata, routine by classification.
	LastLoginAt time.Time
	LastLoginIP string
	LastSeenAt  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.PasswordHash = append([]byte(nil), p.PasswordHash...)
	clone.Permissions = append([]string(nil), p.Permissions...)
	clone.BackupCodeHashes = make([][]byte, len(p.BackupCodeHashes))
	for i, hash := range p.BackupCodeHashes {
		clone.BackupCodeHashes[i] = append([]byte(nil), hash...)
	}
	return &clone
}

// Summary is the minimal principal view returned with a credential
// pair.
type Summary struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Tier        string  `json:"tier"`
	Profile     Profile `json:"profile"`
	FactorUsed  bool    `json:"factor_used"`
}

// Summarize builds a Summary from a principal.
func (p *Principal) Summarize(factorUsed bool) *Summary {
	return &Summary{
		ID:         p.ID,
		Email:      p.Email,
		Tier:       p.Tier,
		Profile:    p.Profile,
		FactorUsed: factorUsed,
	}
}
