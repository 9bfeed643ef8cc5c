package capture

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDisplayEnumerationFailed wraps a Source failure during display
	// enumeration. Session state is never mutated on this path.
	ErrDisplayEnumerationFailed = errors.New("display enumeration failed")

	// ErrNoValidDisplays is returned by Configure when none of the requested
	// displays exist in the most recent enumeration.
	ErrNoValidDisplays = errors.New("no valid displays in requested set")

	// ErrNoDisplaysSelected is returned by Start when target resolution
	// produces an empty set before any session is attempted.
	ErrNoDisplaysSelected = errors.New("no displays selected for capture")

	// ErrStartInterrupted is returned by Start when a concurrent Stop cut it
	// off before its sessions were adopted. Nothing is recording when Start
	// returns it.
	ErrStartInterrupted = errors.New("start interrupted by stop")

	// ErrPermissionDenied signals that the capture backend refused access.
	// Sources should wrap this sentinel so classification stays exact.
	ErrPermissionDenied = errors.New("screen capture permission denied")

	// ErrCaptureSessionFailed is the generic session start/stream failure.
	ErrCaptureSessionFailed = errors.New("capture session failed")

	// ErrDisplayDisconnected signals the display vanished mid-session.
	ErrDisplayDisconnected = errors.New("display disconnected")
)

// StartError aggregates per-display start failures. It is returned by Start
// only when every requested display failed; partial failures are recorded on
// the orchestrator and logged but do not fail the call.
type StartError struct {
	// PerDisplay maps each failed display to its start error.
	PerDisplay map[DisplayID]error
}

func (e *StartError) Error() string {
	ids := make([]string, 0, len(e.PerDisplay))
	for id := range e.PerDisplay {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmtDisplayErr(id, e.PerDisplay[DisplayID(id)]))
	}
	return fmt.Sprintf("all capture sessions failed: %s", strings.Join(parts, "; "))
}

func fmtDisplayErr(id string, err error) string {
	return fmt.Sprintf("%s: %v", id, err)
}

// Unwrap exposes the underlying errors so errors.Is can match sentinels
// through the aggregate.
func (e *StartError) Unwrap() []error {
	errs := make([]error, 0, len(e.PerDisplay))
	for _, err := range e.PerDisplay {
		errs = append(errs, err)
	}
	return errs
}
