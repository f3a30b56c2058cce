package login

// Machine-readable rejection reasons. Internal only: the boundary
// layer collapses every rejection into one generic message so callers
// cannot probe which step failed.
const (
	ReasonBadPrimary     = "bad_primary"
	ReasonBadFactor      = "bad_factor"
	ReasonSessionExpired = "session_expired"
)

// RejectedError is a terminal login failure.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "login rejected"
}

// IsRejected reports whether err is a RejectedError and, when reason
// is non-empty, whether the reasons match.
func IsRejected(err error, reason string) bool {
	rejected, ok := err.(*RejectedError)
	if !ok {
		return false
	}
	return reason == "" || rejected.Reason == reason
}
