package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"capture-orchestrator/internal/platform/metrics"
	"capture-orchestrator/internal/recovery"
)

// RecordingState is derived, not stored: Recording iff at least one capture
// session is active. Degradation is a reduced active-session count while
// Recording persists, never a separate state.
type RecordingState int

const (
	// StateIdle means recording has never started in this run.
	StateIdle RecordingState = iota
	// StateRecording means at least one capture session is active.
	StateRecording
	// StateStopped means recording ran and no session is currently active
	// (explicit stop, pause, or total session loss).
	StateStopped
)

// String returns the state's log name.
func (s RecordingState) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// DefaultFrameInterval is used when Options.Stream leaves the interval zero.
const DefaultFrameInterval = 33 * time.Millisecond

// Options carries the orchestrator's optional collaborators and capture
// configuration. Zero values are usable: no allowlist, default backoff
// policy, no metrics, native resolution, all displays.
type Options struct {
	// Allowlist gates target resolution and every forwarded frame. Nil
	// means everything is permitted.
	Allowlist Allowlist
	// Policy decides retry versus evict for failed sessions. Nil selects
	// recovery.NewBackoffManager with defaults.
	Policy recovery.Manager
	// Metrics is optional; nil disables metric recording.
	Metrics *metrics.Metrics
	// Stream is the per-session capture configuration. Zero width/height
	// mean the display's native dimensions.
	Stream StreamConfig
	// Displays is an explicit static selection. Empty means all enumerated
	// displays. A live Allowlist takes precedence over it.
	Displays []DisplayID
}

// session pairs a running capture handle with its forwarder's cancel func.
// Every entry in the orchestrator's map is a started, active session.
type session struct {
	display Display
	handle  SessionHandle
	cancel  context.CancelFunc
}

type eventKind int

const (
	evTermination eventKind = iota
	evAllowlistChange
)

type event struct {
	kind    eventKind
	display DisplayID
	epoch   uint64
	err     error
}

// Orchestrator owns one independent capture session per display: it decides
// which displays to capture, starts and stops sessions concurrently, applies
// allowlist deltas while live, and routes asynchronous session failures into
// the recovery policy.
//
// The session map is a single serialized resource: it is mutated only under
// o.mu, and the concurrent start/stop fan-out operates on local copies taken
// under that same lock. Asynchronous source callbacks never mutate state
// directly; they enqueue events consumed by one loop goroutine.
type Orchestrator struct {
	source Source
	sink   FrameSink
	allow  Allowlist
	policy recovery.Manager
	log    *slog.Logger
	met    *metrics.Metrics
	stream StreamConfig

	mu            sync.Mutex
	sessions      map[DisplayID]*session
	evicted       map[DisplayID]bool
	lastEnum      []Display
	startErrs     map[DisplayID]error
	staticSel     []DisplayID
	retained      []DisplayID
	intent        bool
	paused        bool
	resumePending bool
	everStarted   bool
	epoch         uint64

	onDegradation func([]DisplayID)

	events chan event
	quit   chan struct{}
	done   chan struct{}
}

// New constructs an Orchestrator over the given capture source and frame
// sink and starts its event loop. Callers must Close it when done; Close
// does not stop live sessions, so Stop first.
func New(source Source, sink FrameSink, log *slog.Logger, opts Options) *Orchestrator {
	policy := opts.Policy
	if policy == nil {
		policy = recovery.NewBackoffManager(recovery.DefaultConfig())
	}
	stream := opts.Stream
	if stream.FrameInterval <= 0 {
		stream.FrameInterval = DefaultFrameInterval
	}

	o := &Orchestrator{
		source:    source,
		sink:      sink,
		allow:     opts.Allowlist,
		policy:    policy,
		log:       log,
		met:       opts.Metrics,
		stream:    stream,
		sessions:  make(map[DisplayID]*session),
		evicted:   make(map[DisplayID]bool),
		startErrs: make(map[DisplayID]error),
		staticSel: append([]DisplayID(nil), opts.Displays...),
		events:    make(chan event, 32),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go o.eventLoop()

	if o.allow != nil {
		o.allow.Subscribe(func() {
			select {
			case o.events <- event{kind: evAllowlistChange}:
			case <-o.quit:
			}
		})
	}

	return o
}

// Close shuts down the orchestrator's event loop. Live sessions are not
// touched; call Stop before Close.
func (o *Orchestrator) Close() {
	close(o.quit)
	<-o.done
}

// OnDegradation registers a callback invoked whenever displays are evicted
// permanently for the run (graceful degradation). The callback runs on the
// orchestrator's recovery goroutine and must not call back into Stop/Start.
func (o *Orchestrator) OnDegradation(fn func(failed []DisplayID)) {
	o.mu.Lock()
	o.onDegradation = fn
	o.mu.Unlock()
}

// EnumerateDisplays queries the capture source for connected displays.
// Session state is never mutated on this path.
func (o *Orchestrator) EnumerateDisplays() ([]Display, error) {
	displays, err := o.source.Displays()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisplayEnumerationFailed, err)
	}
	o.mu.Lock()
	o.lastEnum = displays
	o.mu.Unlock()
	return displays, nil
}

// Start resolves the target display set (live allowlist, then static
// selection, then all enumerated displays), creates one session per target
// and starts them all concurrently. It is idempotent while recording.
//
// Start succeeds if at least one session started; per-display failures are
// recorded and logged. Only when every target fails does it return a
// *StartError aggregating them.
func (o *Orchestrator) Start(ctx context.Context) error {
	displays, err := o.EnumerateDisplays()
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.intent && len(o.sessions) > 0 {
		o.mu.Unlock()
		return nil
	}
	targets := o.resolveTargetsLocked(displays)
	if len(targets) == 0 {
		o.mu.Unlock()
		return ErrNoDisplaysSelected
	}
	o.intent = true
	o.paused = false
	o.resumePending = false
	o.everStarted = true
	startEpoch := o.epoch
	o.mu.Unlock()

	started, errs := o.startSessions(ctx, targets, startEpoch)

	o.mu.Lock()
	if o.epoch != startEpoch {
		// Stop cut off this start; tear down anything that made it up.
		o.mu.Unlock()
		o.stopSessions(context.Background(), started)
		return ErrStartInterrupted
	}
	o.startErrs = errs
	if len(started) == 0 {
		o.intent = false
		o.mu.Unlock()
		return &StartError{PerDisplay: errs}
	}
	var stale []*session
	for _, s := range started {
		if _, exists := o.sessions[s.display.ID]; exists {
			// A recovery goroutine restored this display first; at most one
			// session per display may exist, so the duplicate dies.
			stale = append(stale, s)
			continue
		}
		o.sessions[s.display.ID] = s
	}
	ids := make([]DisplayID, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.retained = ids
	active := len(o.sessions)
	o.mu.Unlock()

	o.stopSessions(context.Background(), stale)

	o.syncGauge()
	for id, startErr := range errs {
		o.log.Warn("capture session failed to start",
			slog.String("display", string(id)),
			slog.String("error", startErr.Error()))
	}
	o.log.Info("recording started",
		slog.Int("active_sessions", active),
		slog.Int("failed_sessions", len(errs)))
	return nil
}

// Stop tears down all sessions concurrently and clears the session map.
// It waits only for the capture handles to acknowledge termination, never
// for segment finalization. Idempotent no-op when not recording.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.intent && !o.paused && len(o.sessions) == 0 {
		o.mu.Unlock()
		return nil
	}
	o.epoch++
	o.intent = false
	o.paused = false
	o.resumePending = false
	o.retained = nil
	stopping := o.takeSessionsLocked()
	o.mu.Unlock()

	o.stopSessions(ctx, stopping)
	o.syncGauge()
	o.log.Info("recording stopped", slog.Int("sessions_stopped", len(stopping)))
	return nil
}

// Pause stops all sessions but retains the last-used configuration so
// Resume can restore it. Frame forwarding ceases before the capture handles
// are even asked to stop, keeping pause latency well under the stop
// acknowledgement time. No-op when not recording.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	if !o.intent || o.paused {
		o.mu.Unlock()
		return nil
	}
	o.epoch++
	o.intent = false
	o.paused = true
	o.resumePending = true
	stopping := o.takeSessionsLocked()
	o.mu.Unlock()

	// Cut frame flow first; handle teardown can take longer.
	for _, s := range stopping {
		s.cancel()
	}
	o.stopSessions(ctx, stopping)
	o.syncGauge()
	o.log.Info("recording paused", slog.Int("sessions_stopped", len(stopping)))
	return nil
}

// Resume restarts recording with the configuration retained by Pause.
// Allowlist changes that arrived while paused are applied here atomically,
// because target resolution always reads the provider live. No-op when not
// paused.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	if !o.paused {
		o.mu.Unlock()
		return nil
	}
	o.paused = false
	o.mu.Unlock()
	return o.Start(ctx)
}

// Configure replaces the target display set: sessions for removed displays
// are stopped and, if currently recording, sessions for added displays are
// started, both concurrently. Requested displays missing from enumeration
// are logged and skipped; if none remain, ErrNoValidDisplays is returned
// and nothing changes.
func (o *Orchestrator) Configure(ctx context.Context, ids []DisplayID) error {
	displays, err := o.EnumerateDisplays()
	if err != nil {
		return err
	}
	present := make(map[DisplayID]Display, len(displays))
	for _, d := range displays {
		present[d.ID] = d
	}

	valid := make([]DisplayID, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			o.log.Warn("requested display not connected, skipping",
				slog.String("display", string(id)))
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return ErrNoValidDisplays
	}

	o.mu.Lock()
	o.staticSel = valid
	recording := o.intent && !o.paused
	if !recording {
		o.mu.Unlock()
		return nil
	}
	epoch := o.epoch
	want := make(map[DisplayID]bool, len(valid))
	for _, id := range valid {
		want[id] = true
	}
	var stopping []*session
	for id, s := range o.sessions {
		if !want[id] {
			stopping = append(stopping, s)
			delete(o.sessions, id)
		}
	}
	var adding []Display
	for _, id := range valid {
		if _, live := o.sessions[id]; !live && !o.evicted[id] {
			adding = append(adding, present[id])
		}
	}
	o.mu.Unlock()

	o.stopSessions(ctx, stopping)
	o.adoptStarted(ctx, adding, epoch)
	o.syncGauge()
	return nil
}

// State derives the recording state from the active-session count.
func (o *Orchestrator) State() RecordingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sessions) > 0 {
		return StateRecording
	}
	if o.everStarted {
		return StateStopped
	}
	return StateIdle
}

// ActiveDisplays returns the sorted identifiers of displays with an active
// session.
func (o *Orchestrator) ActiveDisplays() []DisplayID {
	o.mu.Lock()
	ids := make([]DisplayID, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StartErrors returns a copy of the per-display errors recorded by the most
// recent Start.
func (o *Orchestrator) StartErrors() map[DisplayID]error {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[DisplayID]error, len(o.startErrs))
	for id, err := range o.startErrs {
		out[id] = err
	}
	return out
}

// resolveTargetsLocked applies the selection precedence against the given
// enumeration: live allowlist, then the retained set when resuming, then
// explicit static selection, then all displays. Evicted displays are always
// excluded. Caller holds o.mu.
func (o *Orchestrator) resolveTargetsLocked(displays []Display) []Display {
	var selection map[DisplayID]bool
	var allowed []DisplayID
	if o.allow != nil {
		allowed = o.allow.AllowedDisplays()
	}
	switch {
	case allowed != nil:
		// A nil list from the provider means no display restriction and
		// falls through to the next precedence level.
		selection = make(map[DisplayID]bool, len(allowed))
		for _, id := range allowed {
			selection[id] = true
		}
	case o.resumePending && len(o.retained) > 0:
		selection = make(map[DisplayID]bool, len(o.retained))
		for _, id := range o.retained {
			selection[id] = true
		}
	case len(o.staticSel) > 0:
		selection = make(map[DisplayID]bool, len(o.staticSel))
		for _, id := range o.staticSel {
			selection[id] = true
		}
	}

	targets := make([]Display, 0, len(displays))
	for _, d := range displays {
		if selection != nil && !selection[d.ID] {
			continue
		}
		if o.evicted[d.ID] {
			continue
		}
		targets = append(targets, d)
	}
	return targets
}

// takeSessionsLocked drains the session map into a local slice for fan-out
// outside the lock. Caller holds o.mu.
func (o *Orchestrator) takeSessionsLocked() []*session {
	out := make([]*session, 0, len(o.sessions))
	for id, s := range o.sessions {
		out = append(out, s)
		delete(o.sessions, id)
	}
	return out
}

func (o *Orchestrator) streamConfigFor(d Display) StreamConfig {
	cfg := o.stream
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width = d.Width
		cfg.Height = d.Height
	}
	return cfg
}

// startSessions creates and starts one session per display, all
// concurrently, and joins on every attempt before returning. Failed
// attempts end up in the returned error map and never in the session map.
func (o *Orchestrator) startSessions(ctx context.Context, targets []Display, epoch uint64) ([]*session, map[DisplayID]error) {
	type result struct {
		s   *session
		id  DisplayID
		err error
	}
	results := make(chan result, len(targets))

	for _, d := range targets {
		go func(d Display) {
			handle, err := o.source.NewSession(d, o.streamConfigFor(d))
			if err != nil {
				results <- result{id: d.ID, err: err}
				return
			}
			handle.OnTermination(func(termErr error) {
				select {
				case o.events <- event{kind: evTermination, display: d.ID, epoch: epoch, err: termErr}:
				case <-o.quit:
				}
			})
			if err := handle.Start(ctx); err != nil {
				results <- result{id: d.ID, err: err}
				return
			}
			fwdCtx, cancel := context.WithCancel(context.Background())
			go o.forward(fwdCtx, handle)
			results <- result{s: &session{display: d, handle: handle, cancel: cancel}}
		}(d)
	}

	started := make([]*session, 0, len(targets))
	errs := make(map[DisplayID]error)
	for range targets {
		r := <-results
		if r.err != nil {
			errs[r.id] = r.err
			continue
		}
		started = append(started, r.s)
	}
	return started, errs
}

// stopSessions cancels frame forwarding and stops every handle
// concurrently, joining on all acknowledgements.
func (o *Orchestrator) stopSessions(ctx context.Context, stopping []*session) {
	if len(stopping) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, s := range stopping {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			s.cancel()
			if err := s.handle.Stop(ctx); err != nil {
				o.log.Warn("capture session stop failed",
					slog.String("display", string(s.display.ID)),
					slog.String("error", err.Error()))
			}
		}(s)
	}
	wg.Wait()
}

// adoptStarted starts sessions for the given displays and inserts the
// successful ones into the map, unless a Stop advanced the epoch meanwhile,
// in which case they are torn down again.
func (o *Orchestrator) adoptStarted(ctx context.Context, adding []Display, epoch uint64) {
	if len(adding) == 0 {
		return
	}
	started, errs := o.startSessions(ctx, adding, epoch)
	for id, err := range errs {
		o.log.Warn("capture session failed to start",
			slog.String("display", string(id)),
			slog.String("error", err.Error()))
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		o.stopSessions(context.Background(), started)
		return
	}
	var stale []*session
	for _, s := range started {
		if _, exists := o.sessions[s.display.ID]; exists {
			stale = append(stale, s)
			continue
		}
		o.sessions[s.display.ID] = s
	}
	o.mu.Unlock()
	// A concurrent path already owns a session for these displays; at most
	// one session per display may exist, so the duplicates die.
	o.stopSessions(context.Background(), stale)
}

// forward moves frames from one session to the sink, gating each frame
// against the allowlist. Gate rejections are silent drops counted on the
// metrics side; nothing on this path allocates or blocks on the gate.
func (o *Orchestrator) forward(ctx context.Context, handle SessionHandle) {
	frames := handle.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if o.allow != nil &&
				(!o.allow.ShouldCaptureDisplay(f.Display) || !o.allow.ShouldCaptureApplication(f.App)) {
				if o.met != nil {
					o.met.IncFramesDropped()
				}
				continue
			}
			if err := o.sink.WriteFrame(f); err != nil {
				o.log.Debug("frame write failed",
					slog.String("display", string(f.Display)),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (o *Orchestrator) syncGauge() {
	if o.met == nil {
		return
	}
	o.mu.Lock()
	n := len(o.sessions)
	o.mu.Unlock()
	o.met.SetActiveSessions(n)
}

// eventLoop is the single consumer of asynchronous source callbacks. All
// session-map mutations they cause happen here or in goroutines it spawns,
// never re-entrantly inside the callback itself.
func (o *Orchestrator) eventLoop() {
	defer close(o.done)
	for {
		select {
		case <-o.quit:
			return
		case ev := <-o.events:
			switch ev.kind {
			case evTermination:
				o.handleTermination(ev)
			case evAllowlistChange:
				o.applyAllowlist(context.Background())
			}
		}
	}
}

// handleTermination reacts to a session dying out-of-band: the session
// leaves the map immediately, and if the intent to record is still live a
// recovery goroutine takes over. The intent survives even when this drops
// the active count to zero, so recovery can restore recording.
func (o *Orchestrator) handleTermination(ev event) {
	o.mu.Lock()
	if ev.epoch != o.epoch {
		// Stale: the session belonged to a run that has since stopped.
		o.mu.Unlock()
		return
	}
	s, ok := o.sessions[ev.display]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.sessions, ev.display)
	remaining := len(o.sessions)
	intent := o.intent
	o.mu.Unlock()

	s.cancel()
	o.syncGauge()

	reason := recovery.Classify(ev.err)
	o.log.Warn("capture session terminated",
		slog.String("display", string(ev.display)),
		slog.String("reason", reason.String()),
		slog.String("error", errString(ev.err)),
		slog.Int("active_sessions", remaining))

	if !intent {
		return
	}
	if remaining == 0 {
		o.log.Warn("all capture sessions down, recovery pending")
	}
	go o.recover(ev.display, ev.epoch, reason)
}

// recover retries a failed display per the policy: timed wait,
// re-enumeration, fresh session, concurrent with whatever the orchestrator
// is doing for other displays. Exhaustion or an evict decision hands the
// display to the degradation path.
func (o *Orchestrator) recover(id DisplayID, epoch uint64, reason recovery.Reason) {
	for attempt := 1; ; attempt++ {
		decision := o.policy.Decide(reason, attempt)
		if decision.Action == recovery.ActionEvict {
			o.degrade([]DisplayID{id}, reason)
			return
		}
		if o.met != nil {
			o.met.IncRecoveryAttempts()
		}
		o.log.Info("retrying capture session",
			slog.String("display", string(id)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", decision.Delay))

		select {
		case <-time.After(decision.Delay):
		case <-o.quit:
			return
		}

		displays, err := o.source.Displays()
		if err != nil {
			o.log.Warn("re-enumeration failed during recovery",
				slog.String("error", err.Error()))
			continue
		}
		o.mu.Lock()
		o.lastEnum = displays
		stale := o.epoch != epoch || !o.intent
		o.mu.Unlock()
		if stale {
			return
		}

		var target *Display
		for i := range displays {
			if displays[i].ID == id {
				target = &displays[i]
				break
			}
		}
		if target == nil {
			reason = recovery.DisplayDisconnected
			o.log.Warn("display still absent during recovery",
				slog.String("display", string(id)),
				slog.Int("attempt", attempt))
			continue
		}

		started, errs := o.startSessions(context.Background(), []Display{*target}, epoch)
		if len(started) == 0 {
			o.log.Warn("recovery attempt failed",
				slog.String("display", string(id)),
				slog.Int("attempt", attempt),
				slog.String("error", errString(errs[id])))
			continue
		}

		o.mu.Lock()
		if o.epoch != epoch || !o.intent {
			o.mu.Unlock()
			o.stopSessions(context.Background(), started)
			return
		}
		if _, exists := o.sessions[id]; exists {
			// Another path (allowlist change) restored it first.
			o.mu.Unlock()
			o.stopSessions(context.Background(), started)
			return
		}
		o.sessions[id] = started[0]
		active := len(o.sessions)
		o.mu.Unlock()

		o.syncGauge()
		if active == 1 {
			o.log.Info("recording resumed after recovery",
				slog.String("display", string(id)))
		} else {
			o.log.Info("capture session restored",
				slog.String("display", string(id)),
				slog.Int("active_sessions", active))
		}
		return
	}
}

// degrade evicts displays permanently for this run. If that empties the
// active set and the primary display survives, one automatic fallback to
// the primary alone is attempted; if the primary itself was evicted,
// recording ends and the loss is surfaced through the state change, the
// degradation callback, and an error-level log.
func (o *Orchestrator) degrade(ids []DisplayID, reason recovery.Reason) {
	o.mu.Lock()
	var stopping []*session
	for _, id := range ids {
		o.evicted[id] = true
		if s, ok := o.sessions[id]; ok {
			stopping = append(stopping, s)
			delete(o.sessions, id)
		}
	}
	remaining := len(o.sessions)
	intent := o.intent
	epoch := o.epoch
	var primary *Display
	for i := range o.lastEnum {
		if o.lastEnum[i].IsPrimary {
			primary = &o.lastEnum[i]
			break
		}
	}
	primaryEvicted := primary == nil || o.evicted[primary.ID]
	cb := o.onDegradation
	o.mu.Unlock()

	o.stopSessions(context.Background(), stopping)
	for _, id := range ids {
		if o.met != nil {
			o.met.IncDisplayEvictions()
		}
		o.log.Warn("display evicted for this run",
			slog.String("display", string(id)),
			slog.String("reason", reason.String()))
	}
	o.syncGauge()
	if cb != nil {
		cb(ids)
	}

	if !intent || remaining > 0 {
		return
	}
	if primaryEvicted {
		o.mu.Lock()
		o.intent = false
		o.mu.Unlock()
		o.log.Error("recording stopped: no displays available after recovery",
			slog.String("reason", reason.String()))
		return
	}

	o.log.Info("falling back to primary display",
		slog.String("display", string(primary.ID)))
	started, errs := o.startSessions(context.Background(), []Display{*primary}, epoch)
	if len(started) == 0 {
		o.mu.Lock()
		o.intent = false
		o.mu.Unlock()
		o.log.Error("primary display fallback failed",
			slog.String("display", string(primary.ID)),
			slog.String("error", errString(errs[primary.ID])))
		return
	}

	o.mu.Lock()
	if o.epoch != epoch || !o.intent {
		o.mu.Unlock()
		o.stopSessions(context.Background(), started)
		return
	}
	if _, exists := o.sessions[primary.ID]; exists {
		o.mu.Unlock()
		o.stopSessions(context.Background(), started)
		return
	}
	o.sessions[primary.ID] = started[0]
	o.mu.Unlock()
	o.syncGauge()
	o.log.Info("recording resumed on primary display",
		slog.String("display", string(primary.ID)))
}

// applyAllowlist recomputes the target set after a provider change and
// applies the delta with the same concurrent primitives as Start/Stop.
// Displays that remain permitted are never touched. While paused, the
// change is deferred: Resume re-resolves from the provider and applies the
// accumulated delta atomically.
func (o *Orchestrator) applyAllowlist(ctx context.Context) {
	if o.allow == nil {
		return
	}
	o.mu.Lock()
	if !o.intent || o.paused {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	displays, err := o.source.Displays()
	if err != nil {
		o.log.Warn("enumeration failed on allowlist change",
			slog.String("error", err.Error()))
		return
	}

	o.mu.Lock()
	o.lastEnum = displays
	if !o.intent || o.paused {
		o.mu.Unlock()
		return
	}
	epoch := o.epoch
	targets := o.resolveTargetsLocked(displays)
	want := make(map[DisplayID]bool, len(targets))
	for _, d := range targets {
		want[d.ID] = true
	}
	var stopping []*session
	for id, s := range o.sessions {
		if !want[id] {
			stopping = append(stopping, s)
			delete(o.sessions, id)
		}
	}
	var adding []Display
	for _, d := range targets {
		if _, live := o.sessions[d.ID]; !live {
			adding = append(adding, d)
		}
	}
	o.mu.Unlock()

	for _, s := range stopping {
		o.log.Info("display no longer permitted, stopping",
			slog.String("display", string(s.display.ID)))
	}
	o.stopSessions(ctx, stopping)
	o.adoptStarted(ctx, adding, epoch)
	o.syncGauge()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
