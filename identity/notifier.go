package identity

import (
	"context"

	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/principal"
)

// Record types normalized by the notifier. Every identity-bearing
// record maps back to the owning principal before eviction, so the
// cache never needs to know which table changed.
const (
	RecordPrincipal    = "principal"
	RecordProfile      = "profile"
	RecordSubscription = "subscription"
)

// Notifier evicts identity cache entries in response to writes on
// identity-bearing records. Writers call it directly after their write
// commits; there is no implicit event plumbing.
type Notifier struct {
	cache *Cache
	log   logger.Logger
}

// NewNotifier creates a coherency notifier bound to a cache.
func NewNotifier(cache *Cache, log logger.Logger) *Notifier {
	return &Notifier{
		cache: cache,
		log:   log.WithSubsystem("identity.notifier"),
	}
}

// Invalidate classifies a committed write and evicts the principal's
// cache entry unless the write touched routine fields only. An empty
// change set means the changed fields could not be determined, which
// always evicts: correctness beats efficiency.
func (n *Notifier) Invalidate(ctx context.Context, principalID string, changedFields []string) {
	n.RecordWritten(ctx, RecordPrincipal, principalID, changedFields)
}

// RecordWritten handles a write on any identity-bearing record type,
// normalized to the owning principal id.
func (n *Notifier) RecordWritten(ctx context.Context, recordType, principalID string, changedFields []string) {
	if principalID == "" {
		return
	}

	if principal.IsRoutineWrite(changedFields) {
		n.log.Trace("routine write, cache untouched",
			logger.String("record_type", recordType),
			logger.String("principal_id", principalID),
		)
		return
	}

	n.cache.Invalidate(principalID)
	n.log.Debug("identity cache invalidated",
		logger.String("record_type", recordType),
		logger.String("principal_id", principalID),
		logger.Int("changed_fields", len(changedFields)),
	)
}

// RecordDeleted handles deletion of a profile or subscription record.
// Deletions always evict.
func (n *Notifier) RecordDeleted(ctx context.Context, recordType, principalID string) {
	if principalID == "" {
		return
	}
	n.cache.Invalidate(principalID)
	n.log.Debug("identity cache invalidated on delete",
		logger.String("record_type", recordType),
		logger.String("principal_id", principalID),
	)
}
