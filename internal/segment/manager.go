package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"capture-orchestrator/internal/capture"
	"capture-orchestrator/internal/platform/metrics"
)

// segmentExt is the extension current and finalized segment files share;
// the sweep only ever considers files carrying it.
const segmentExt = ".seg"

// ErrNotRunning is returned by WriteFrame outside a Start/Stop window.
var ErrNotRunning = errors.New("segment manager not running")

// Config configures a Manager. Zero durations and sizes fall back to the
// package defaults.
type Config struct {
	// Dir is the segment storage directory; created if absent.
	Dir string
	// RotateInterval is the timer-driven rotation period.
	RotateInterval time.Duration
	// MinSize overrides MinSegmentSize, tests only.
	MinSize int64
	// RecentWindow overrides the sweep recency heuristic, tests only.
	RecentWindow time.Duration
}

// Manager owns the current segment and the partial-cleanup list. Both are
// mutated only under m.mu, on the rotation timer, on WriteFrame, or on
// explicit Start/Stop. There are no other writers.
type Manager struct {
	cfg      Config
	notifier Notifier
	log      *slog.Logger
	met      *metrics.Metrics

	mu       sync.Mutex
	current  *Segment
	file     *os.File
	written  int64
	displays map[capture.DisplayID]bool
	partials []PartialRecord
	running  bool

	quit chan struct{}
	done chan struct{}
}

// NewManager constructs a Manager. notifier and met may be nil to disable
// downstream notification and metric recording.
func NewManager(cfg Config, notifier Notifier, log *slog.Logger, met *metrics.Metrics) *Manager {
	if cfg.RotateInterval <= 0 {
		cfg.RotateInterval = DefaultRotateInterval
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = MinSegmentSize
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = RecentWindow
	}
	return &Manager{
		cfg:      cfg,
		notifier: notifier,
		log:      log,
		met:      met,
		displays: make(map[capture.DisplayID]bool),
	}
}

// Start sweeps the storage directory for leftovers of a previous run, opens
// the first segment, and begins timer-driven rotation. Calling Start while
// running is an error.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("segment manager already started")
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}

	swept := m.sweepLocked()
	if swept > 0 {
		m.log.Info("startup sweep marked leftover segments partial",
			slog.Int("count", swept),
			slog.String("dir", m.cfg.Dir))
	}

	if err := m.openSegmentLocked(); err != nil {
		return err
	}
	m.running = true
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	go m.rotationLoop()
	return nil
}

// Stop halts rotation and applies the finalize-or-mark-partial decision to
// whatever segment is current. Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.quit)
	m.mu.Unlock()
	<-m.done

	m.mu.Lock()
	finalized := m.closeCurrentLocked()
	m.mu.Unlock()

	m.notify(finalized)
	return nil
}

// WriteFrame implements capture.FrameSink: the frame's payload is appended
// to the current segment file and its display recorded as a contributor.
func (m *Manager) WriteFrame(f capture.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.file == nil {
		return ErrNotRunning
	}
	n, err := m.file.Write(f.Data)
	m.written += int64(n)
	if err != nil {
		return fmt.Errorf("write segment %s: %w", m.current.ID, err)
	}
	m.displays[f.Display] = true
	return nil
}

// Partials returns a copy of the partial-cleanup list.
func (m *Manager) Partials() []PartialRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PartialRecord, len(m.partials))
	copy(out, m.partials)
	return out
}

// CleanupPartials deletes every recorded partial file and drops its record.
// Safe to defer; it never runs on the capture hot path. Files already gone
// count as cleaned.
func (m *Manager) CleanupPartials() int {
	m.mu.Lock()
	records := m.partials
	m.partials = nil
	m.mu.Unlock()

	cleaned := 0
	var kept []PartialRecord
	for _, rec := range records {
		err := os.Remove(rec.Path)
		if err != nil && !os.IsNotExist(err) {
			m.log.Warn("partial segment cleanup failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()))
			kept = append(kept, rec)
			continue
		}
		cleaned++
	}
	if len(kept) > 0 {
		m.mu.Lock()
		m.partials = append(m.partials, kept...)
		m.mu.Unlock()
	}
	if cleaned > 0 {
		m.log.Info("partial segments cleaned", slog.Int("count", cleaned))
	}
	return cleaned
}

// rotationLoop drives timer-based rotation until Stop.
func (m *Manager) rotationLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.RotateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.rotate()
		}
	}
}

// rotate finalizes the outgoing segment and immediately opens its
// successor, whether or not the outgoing one validated; capture continuity
// is never blocked on validation.
func (m *Manager) rotate() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	finalized := m.closeCurrentLocked()
	if err := m.openSegmentLocked(); err != nil {
		m.log.Error("segment rotation failed to open successor",
			slog.String("error", err.Error()))
	}
	m.mu.Unlock()

	m.notify(finalized)
}

// closeCurrentLocked flushes and closes the current segment file, then
// decides: file size at or above the threshold finalizes the segment
// (returned for notification); below it the file joins the partial list,
// because a too-small file means the session died mid-segment. Caller holds
// m.mu; returns nil when nothing was finalized.
func (m *Manager) closeCurrentLocked() *Segment {
	if m.current == nil || m.file == nil {
		return nil
	}
	seg := m.current
	if err := m.file.Close(); err != nil {
		m.log.Warn("segment close failed",
			slog.String("path", seg.Path),
			slog.String("error", err.Error()))
	}
	size := m.written
	if info, err := os.Stat(seg.Path); err == nil {
		size = info.Size()
	}
	m.current = nil
	m.file = nil
	m.written = 0
	contributors := make([]capture.DisplayID, 0, len(m.displays))
	for id := range m.displays {
		contributors = append(contributors, id)
	}
	sort.Slice(contributors, func(i, j int) bool { return contributors[i] < contributors[j] })
	m.displays = make(map[capture.DisplayID]bool)

	if size < m.cfg.MinSize {
		m.partials = append(m.partials, PartialRecord{
			Path:     seg.Path,
			Size:     size,
			MarkedAt: time.Now().UTC(),
		})
		if m.met != nil {
			m.met.IncPartialSegments()
		}
		m.log.Warn("segment below size threshold, marked partial",
			slog.String("segment", seg.ID),
			slog.Int64("size", size),
			slog.Int64("min_size", m.cfg.MinSize))
		return nil
	}

	seg.EndTime = time.Now().UTC()
	seg.Size = size
	seg.Displays = contributors
	if m.met != nil {
		m.met.IncSegmentsFinalized()
	}
	m.log.Info("segment finalized",
		slog.String("segment", seg.ID),
		slog.String("path", seg.Path),
		slog.Int64("size", size),
		slog.Int("displays", len(contributors)))
	return seg
}

// openSegmentLocked creates the next current segment. The path carries the
// start time plus a short random suffix for collision avoidance. Caller
// holds m.mu.
func (m *Manager) openSegmentLocked() error {
	id := uuid.NewString()
	now := time.Now().UTC()
	name := fmt.Sprintf("%s-%s%s", now.Format("20060102-150405"), id[:8], segmentExt)
	path := filepath.Join(m.cfg.Dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("open segment file: %w", err)
	}
	m.current = &Segment{
		ID:        id,
		StartTime: now,
		Path:      path,
	}
	m.file = f
	m.written = 0
	m.log.Debug("segment opened",
		slog.String("segment", id),
		slog.String("path", path))
	return nil
}

// sweepLocked scans the storage directory for files that look like
// leftovers from a previous, possibly crashed, run: smaller than the size
// threshold or modified within the recency window. Matches become partial
// records instead of trusted history. Caller holds m.mu; returns the count
// marked.
func (m *Manager) sweepLocked() int {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		m.log.Warn("startup sweep could not read segment dir",
			slog.String("dir", m.cfg.Dir),
			slog.String("error", err.Error()))
		return 0
	}

	now := time.Now()
	marked := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segmentExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tooSmall := info.Size() < m.cfg.MinSize
		tooRecent := now.Sub(info.ModTime()) < m.cfg.RecentWindow
		if !tooSmall && !tooRecent {
			continue
		}
		m.partials = append(m.partials, PartialRecord{
			Path:     filepath.Join(m.cfg.Dir, entry.Name()),
			Size:     info.Size(),
			MarkedAt: now.UTC(),
		})
		if m.met != nil {
			m.met.IncPartialSegments()
		}
		marked++
	}
	return marked
}

func (m *Manager) notify(seg *Segment) {
	if seg == nil || m.notifier == nil {
		return
	}
	m.notifier.SegmentFinalized(*seg)
}
