package capture

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSource is an in-memory capture.Source with scriptable failures. It
// tracks how many sessions were ever started per display and how many are
// live right now, so tests can assert the one-session-per-display invariant
// and that untouched displays are never restarted.
type fakeSource struct {
	mu         sync.Mutex
	displays   []Display
	enumErr    error
	createErr  map[DisplayID]error
	startErr   map[DisplayID]error
	startDelay map[DisplayID]time.Duration
	stopDelay  map[DisplayID]time.Duration
	starts     map[DisplayID]int
	live       map[DisplayID]int
	sessions   map[DisplayID]*fakeSession
	overlap    bool
}

func newFakeSource(ids ...string) *fakeSource {
	s := &fakeSource{
		createErr:  make(map[DisplayID]error),
		startErr:   make(map[DisplayID]error),
		startDelay: make(map[DisplayID]time.Duration),
		stopDelay:  make(map[DisplayID]time.Duration),
		starts:     make(map[DisplayID]int),
		live:       make(map[DisplayID]int),
		sessions:   make(map[DisplayID]*fakeSession),
	}
	for i, id := range ids {
		s.displays = append(s.displays, Display{
			ID:        DisplayID(id),
			Width:     1920,
			Height:    1080,
			IsPrimary: i == 0,
		})
	}
	return s
}

func (s *fakeSource) Displays() ([]Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enumErr != nil {
		return nil, s.enumErr
	}
	out := make([]Display, len(s.displays))
	copy(out, s.displays)
	return out, nil
}

func (s *fakeSource) NewSession(d Display, cfg StreamConfig) (SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[d.ID]; err != nil {
		return nil, err
	}
	sess := &fakeSession{src: s, id: d.ID, frames: make(chan Frame, 16)}
	s.sessions[d.ID] = sess
	return sess, nil
}

func (s *fakeSource) setEnumErr(err error)                  { s.mu.Lock(); s.enumErr = err; s.mu.Unlock() }
func (s *fakeSource) setStartErr(id DisplayID, err error)   { s.mu.Lock(); s.startErr[id] = err; s.mu.Unlock() }
func (s *fakeSource) setCreateErr(id DisplayID, err error)  { s.mu.Lock(); s.createErr[id] = err; s.mu.Unlock() }
func (s *fakeSource) setDisplays(displays []Display)        { s.mu.Lock(); s.displays = displays; s.mu.Unlock() }

func (s *fakeSource) startCount(id DisplayID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts[id]
}

func (s *fakeSource) liveCount(id DisplayID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

func (s *fakeSource) session(id DisplayID) *fakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// overlapped reports whether two sessions for one display were ever live at
// the same instant.
func (s *fakeSource) overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}

type fakeSession struct {
	src    *fakeSource
	id     DisplayID
	frames chan Frame

	mu       sync.Mutex
	onTerm   func(error)
	started  bool
	stopping bool
	stopped  bool
}

func (f *fakeSession) OnTermination(fn func(error)) {
	f.mu.Lock()
	f.onTerm = fn
	f.mu.Unlock()
}

func (f *fakeSession) Start(ctx context.Context) error {
	f.src.mu.Lock()
	err := f.src.startErr[f.id]
	delay := f.src.startDelay[f.id]
	f.src.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	f.src.mu.Lock()
	f.src.starts[f.id]++
	f.src.live[f.id]++
	if f.src.live[f.id] > 1 {
		f.src.overlap = true
	}
	f.src.mu.Unlock()
	return nil
}

func (f *fakeSession) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.stopping || f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopping = true
	started := f.started
	f.mu.Unlock()

	// The backend keeps delivering frames while acknowledgement is pending;
	// only the forwarder cancellation keeps them from the sink.
	f.src.mu.Lock()
	delay := f.src.stopDelay[f.id]
	f.src.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.stopped = true
	close(f.frames)
	f.mu.Unlock()

	if started {
		f.src.mu.Lock()
		f.src.live[f.id]--
		f.src.mu.Unlock()
	}
	return nil
}

func (f *fakeSession) Frames() <-chan Frame {
	return f.frames
}

// emit delivers a frame as the backend would; silently dropped after Stop.
func (f *fakeSession) emit(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.frames <- frame:
	default:
	}
}

// terminate simulates asynchronous stream death: the session stops counting
// as live and the termination handler fires from a backend goroutine.
func (f *fakeSession) terminate(err error) {
	f.mu.Lock()
	if f.stopping || f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopping = true
	f.stopped = true
	started := f.started
	fn := f.onTerm
	close(f.frames)
	f.mu.Unlock()

	if started {
		f.src.mu.Lock()
		f.src.live[f.id]--
		f.src.mu.Unlock()
	}
	if fn != nil {
		go fn(err)
	}
}

// countingSink records every forwarded frame.
type countingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *countingSink) WriteFrame(f Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// fakeAllowlist is a mutable in-test allowlist.
type fakeAllowlist struct {
	mu      sync.Mutex
	allowed []DisplayID // nil means no display restriction
	blocked map[string]bool
	subs    []func()
}

func (a *fakeAllowlist) AllowedDisplays() []DisplayID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allowed == nil {
		return nil
	}
	out := make([]DisplayID, len(a.allowed))
	copy(out, a.allowed)
	return out
}

func (a *fakeAllowlist) ShouldCaptureDisplay(id DisplayID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allowed == nil {
		return true
	}
	for _, aid := range a.allowed {
		if aid == id {
			return true
		}
	}
	return false
}

func (a *fakeAllowlist) ShouldCaptureApplication(app string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.blocked[app]
}

func (a *fakeAllowlist) Subscribe(fn func()) {
	a.mu.Lock()
	a.subs = append(a.subs, fn)
	a.mu.Unlock()
}

func (a *fakeAllowlist) update(allowed []DisplayID) {
	a.mu.Lock()
	a.allowed = allowed
	subs := make([]func(), len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
