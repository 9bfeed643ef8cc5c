package capture

import (
	"context"
	"time"
)

// DisplayID uniquely identifies a physical display for the lifetime of its
// connection.
type DisplayID string

// Display describes one enumerated display. The value is immutable once read;
// the set of displays can change on hot-plug, which callers observe by
// re-enumerating.
type Display struct {
	ID        DisplayID
	Width     int
	Height    int
	IsPrimary bool
}

// StreamConfig is the per-session capture configuration.
type StreamConfig struct {
	Width         int
	Height        int
	FrameInterval time.Duration
	ShowsCursor   bool
}

// Frame is a single captured frame with its origin metadata. App names the
// frontmost application at capture time and is what the allowlist gate
// checks before the frame is forwarded downstream.
type Frame struct {
	Display   DisplayID
	App       string
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Source is the capability contract for the native screen-capture backend.
// Implementations must be safe for concurrent use.
type Source interface {
	// Displays enumerates the currently connected displays.
	Displays() ([]Display, error)

	// NewSession binds a display to a fresh capture stream. The returned
	// handle is not yet started.
	NewSession(d Display, cfg StreamConfig) (SessionHandle, error)
}

// SessionHandle is the live binding between one display and its native
// capture stream.
//
// Implementations must guarantee:
//   - Start blocks until the backend acknowledges streaming (or fails).
//   - Stop is idempotent and blocks only until the backend acknowledges
//     termination, never on downstream file work.
//   - Frames returns the same channel on every call; the channel is closed
//     after Stop or after asynchronous termination.
//   - OnTermination registers a handler invoked at most once, from the
//     backend's own goroutine, when the stream dies without Stop being
//     called. It must be registered before Start.
type SessionHandle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Frames() <-chan Frame
	OnTermination(fn func(error))
}

// FrameSink receives gated frames from active sessions. The segment manager
// implements this; tests substitute their own.
type FrameSink interface {
	WriteFrame(f Frame) error
}
