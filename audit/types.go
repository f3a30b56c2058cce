package audit

import (
	"context"
	"time"
)

// Entry types emitted by the session core.
const (
	TypeLogin      = "login"
	TypeFactor     = "second_factor"
	TypeRefresh    = "refresh"
	TypeRevocation = "revocation"
)

// Outcomes recorded on an entry.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Entry represents a single audit log entry
type Entry struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	PrincipalID string            `json:"principal_id,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	Outcome     string            `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone creates a deep copy of the Entry to avoid data races once the
// entry has been handed to the manager.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := &Entry{
		ID:          e.ID,
		Type:        e.Type,
		Timestamp:   e.Timestamp,
		PrincipalID: e.PrincipalID,
		ClientIP:    e.ClientIP,
		Outcome:     e.Outcome,
		Reason:      e.Reason,
	}
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Device is a destination for audit entries.
type Device interface {
	// Log writes a single entry to the device.
	Log(ctx context.Context, entry *Entry) error

	// Close releases device resources.
	Close() error
}

// Auditor is the write-side interface handed to services that emit
// audit entries. It is one-way: emission never fails the caller.
type Auditor interface {
	Record(ctx context.Context, entry *Entry)
}
