package token

import "fmt"

// Machine-readable reasons carried by InvalidCredentialError.
const (
	ReasonMalformed  = "malformed"
	ReasonExpired    = "expired"
	ReasonRevoked    = "revoked"
	ReasonUnverified = "unverified"
)

// InvalidCredentialError is returned by Validate for any credential
// that must not be trusted. The reason is for internal logging and
// metrics; the boundary layer presents a uniform message regardless.
type InvalidCredentialError struct {
	Reason string
	Err    error
}

func (e *InvalidCredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid credential (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid credential (%s)", e.Reason)
}

func (e *InvalidCredentialError) Unwrap() error {
	return e.Err
}

// IsInvalidCredential reports whether err is an InvalidCredentialError
// and, when reason is non-empty, whether the reasons match.
func IsInvalidCredential(err error, reason string) bool {
	invalid, ok := err.(*InvalidCredentialError)
	if !ok {
		return false
	}
	return reason == "" || invalid.Reason == reason
}
