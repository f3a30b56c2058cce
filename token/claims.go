package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nutrilog/sessiond/revocation"
)

// Claims is the custom claim set embedded in every credential.
type Claims struct {
	jwt.RegisteredClaims

	Email          string `json:"email"`
	AccountTier    string `json:"account_tier"`
	Verified       bool   `json:"verified"`
	FactorComplete bool   `json:"factor_complete"`
	TokenClass     string `json:"token_class"`
}

// Subject carries the identity attributes stamped into a credential at
// issuance time.
type Subject struct {
	PrincipalID string
	Email       string
	AccountTier string
	Verified    bool
}

// IssuedCredential is the ephemeral result of minting or validating a
// credential. Only its TokenID may later appear in the credential
// store, as a revocation record.
type IssuedCredential struct {
	TokenID        string
	PrincipalID    string
	TokenClass     revocation.TokenClass
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Email          string
	AccountTier    string
	Verified       bool
	FactorComplete bool

	// Signed is the compact serialized form handed to the client.
	Signed string
}

// CredentialPair bundles the access and refresh credentials minted on
// a successful login.
type CredentialPair struct {
	Access  *IssuedCredential
	Refresh *IssuedCredential
}
