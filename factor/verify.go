package factor

import (
	"context"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeVerifier checks a time-based code against a principal's
// configured secret.
type CodeVerifier interface {
	VerifyCode(secret, code string) bool
}

// BackupCodeConsumer atomically consumes a single-use backup code.
type BackupCodeConsumer interface {
	ConsumeBackupCode(ctx context.Context, principalID, code string) (bool, error)
}

// TOTPVerifier validates RFC 6238 time-based codes.
type TOTPVerifier struct {
	// Skew is the number of 30-second periods accepted on either side
	// of the current one, to tolerate clock drift.
	Skew uint
}

// NewTOTPVerifier returns a verifier with a one-period tolerance window.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{Skew: 1}
}

// VerifyCode implements CodeVerifier.
func (v *TOTPVerifier) VerifyCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      v.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
