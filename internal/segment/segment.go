// Package segment turns a continuous capture stream into discrete,
// validated video segment files: one current segment at a time, timer-driven
// rotation, size validation on finalize, and a startup sweep that quarantines
// leftovers from a previous crashed run.
package segment

import (
	"time"

	"capture-orchestrator/internal/capture"
)

// MinSegmentSize is the validation threshold: a finalized file below it is
// treated as evidence the session died mid-segment and is marked partial
// instead of being reported downstream.
const MinSegmentSize int64 = 100 << 10 // 100 KB

// RecentWindow is the startup-sweep recency heuristic: files modified this
// recently may belong to a run that crashed moments ago and are not trusted
// as complete history.
const RecentWindow = 5 * time.Minute

// DefaultRotateInterval bounds segment duration when the config leaves it
// zero.
const DefaultRotateInterval = 5 * time.Minute

// Segment is one bounded-duration video file. EndTime and Size are set only
// at finalize time; exactly one segment is current (open for writing) per
// recording run at any instant.
type Segment struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Path      string
	Displays  []capture.DisplayID
	Size      int64
}

// PartialRecord marks a file for deferred deletion: too small or too new to
// trust as a complete segment. Once the cleanup pass deletes the file the
// record is dropped and never re-entered.
type PartialRecord struct {
	Path     string
	Size     int64
	MarkedAt time.Time
}

// Notifier receives finalized segments. Delivery is at-least-once and
// idempotent by segment ID: consumers must dedupe.
type Notifier interface {
	SegmentFinalized(seg Segment)
}
