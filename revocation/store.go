package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached. Callers decide whether to fail open (validation) or
	// surface the failure (revocation).
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Store is the durable credential store. It holds revocation records
// keyed by token id plus the outstanding-issuance registry used by
// RevokeAll. The Service is the only writer of revocation records.
type Store interface {
	// Insert adds a revocation record. If a record for the token id
	// already exists, the existing record is returned unchanged and
	// inserted is false. Insert never overwrites.
	Insert(ctx context.Context, record *CredentialRecord) (existing *CredentialRecord, inserted bool, err error)

	// Get returns the revocation record for a token id, or nil when the
	// token has not been revoked.
	Get(ctx context.Context, tokenID string) (*CredentialRecord, error)

	// DeleteExpired removes revocation and issuance records whose
	// expiry has passed. Safe to run repeatedly and concurrently.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// RecordIssued registers a freshly issued credential.
	RecordIssued(ctx context.Context, issued *IssuedRecord) error

	// ListOutstanding returns issued credentials for a principal that
	// have not yet expired.
	ListOutstanding(ctx context.Context, principalID string, now time.Time) ([]*IssuedRecord, error)

	// Close releases store resources.
	Close() error
}
