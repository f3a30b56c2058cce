package helper

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/oklog/ulid"
)

// GenerateTokenID returns a unique credential identifier (jti).
func GenerateTokenID() string {
	return uuid.NewString()
}

// GenerateRequestID returns a sortable unique request identifier.
func GenerateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// GenerateBackupCode returns a single-use recovery code.
// Base62 keeps the codes safe to read over the phone.
func GenerateBackupCode() (string, error) {
	return base62.Random(10)
}
