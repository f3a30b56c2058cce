package audit

import "context"

// NoopSink discards all entries. Used in tests and when auditing is disabled.
type NoopSink struct{}

func (NoopSink) Log(ctx context.Context, entry *Entry) error { return nil }
func (NoopSink) Close() error                                { return nil }

// NopAuditor returns an Auditor that drops everything.
func NopAuditor() Auditor {
	return nopAuditor{}
}

type nopAuditor struct{}

func (nopAuditor) Record(ctx context.Context, entry *Entry) {}
