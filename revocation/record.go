package revocation

import "time"

// TokenClass distinguishes short-lived access credentials from
// long-lived refresh credentials.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// CredentialRecord is the durable record of a revoked token identifier.
// Once a token id appears here it is permanently untrusted, regardless of
// the credential's remaining structural validity. Records are never
// mutated after creation; retention cleanup deletes them once ExpiresAt
// has passed.
type CredentialRecord struct {
	TokenID       string     `json:"token_id"`
	PrincipalID   string     `json:"principal_id"`
	TokenClass    TokenClass `json:"token_class"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedReason string     `json:"revoked_reason"`
	RevokedFromIP string     `json:"revoked_from_ip"`
	RevokedAt     time.Time  `json:"revoked_at"`
}

// IssuedRecord tracks a credential handed out to a principal so that
// "log out everywhere" can enumerate what is outstanding.
type IssuedRecord struct {
	TokenID     string     `json:"token_id"`
	PrincipalID string     `json:"principal_id"`
	TokenClass  TokenClass `json:"token_class"`
	ExpiresAt   time.Time  `json:"expires_at"`
}
