// Package recovery classifies capture failures and decides whether a failed
// display should be retried or evicted for the remainder of the run.
package recovery

import "strings"

// Reason is the closed classification of a capture-source failure. It drives
// the retry/evict decision; anything unrecognized degrades to
// CaptureSessionFailed.
type Reason int

const (
	// CaptureSessionFailed covers generic start/stream failures and is the
	// default for unclassified errors.
	CaptureSessionFailed Reason = iota
	// PermissionDenied indicates the backend refused capture access.
	PermissionDenied
	// DisplayDisconnected indicates the display vanished mid-session.
	DisplayDisconnected
	// SystemResourceExhaustion indicates the host ran out of a resource the
	// backend needs (memory, encoder slots, file handles).
	SystemResourceExhaustion
)

// String returns the reason's wire/log name.
func (r Reason) String() string {
	switch r {
	case PermissionDenied:
		return "permission_denied"
	case DisplayDisconnected:
		return "display_disconnected"
	case SystemResourceExhaustion:
		return "system_resource_exhaustion"
	default:
		return "capture_session_failed"
	}
}

// Classify maps a capture-source error onto a Reason. It is a pure function:
// classification is based on message heuristics because capture backends do
// not expose stable error codes.
func Classify(err error) Reason {
	if err == nil {
		return CaptureSessionFailed
	}

	msg := strings.ToLower(err.Error())

	// Most specific first: permission refusals also mention the word
	// "capture", so they must win over the generic bucket.
	if containsAny(msg, permissionKeywords) {
		return PermissionDenied
	}
	if containsAny(msg, disconnectKeywords) {
		return DisplayDisconnected
	}
	if containsAny(msg, exhaustionKeywords) {
		return SystemResourceExhaustion
	}
	return CaptureSessionFailed
}

var permissionKeywords = []string{
	"permission denied",
	"not authorized",
	"unauthorized",
	"declined",
	"tcc",
	"screen recording permission",
}

var disconnectKeywords = []string{
	"disconnected",
	"display removed",
	"display not found",
	"no longer available",
	"invalid display",
	"connection lost",
}

var exhaustionKeywords = []string{
	"resource exhaust",
	"out of memory",
	"too many",
	"no space",
	"cannot allocate",
	"resource busy",
	"resource unavailable",
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
