// Package allowlist provides capture.Allowlist implementations: a static
// in-memory rule set and a YAML file provider that reloads on change.
//
// Both keep their rules in an immutable snapshot swapped atomically, so the
// per-frame lookup methods never allocate or take a lock.
package allowlist

import (
	"sync"
	"sync/atomic"

	"capture-orchestrator/internal/capture"
)

// Rules is one immutable allowlist generation. A nil Displays map permits
// every display; BlockedApps always denies by exact name.
type Rules struct {
	// Displays maps permitted display IDs; nil permits all.
	Displays map[capture.DisplayID]bool
	// BlockedApps maps application names that must never be captured.
	BlockedApps map[string]bool
}

// Static is a fixed-rule provider whose rules can be swapped at runtime.
// Update replaces the whole snapshot and fires subscribers.
type Static struct {
	rules atomic.Pointer[Rules]

	mu   sync.Mutex
	subs []func()
}

// NewStatic returns a provider seeded with the given rules. A zero Rules
// value permits everything.
func NewStatic(rules Rules) *Static {
	s := &Static{}
	r := rules
	s.rules.Store(&r)
	return s
}

// Update atomically replaces the rule snapshot and notifies subscribers.
func (s *Static) Update(rules Rules) {
	r := rules
	s.rules.Store(&r)
	s.notify()
}

// AllowedDisplays implements capture.Allowlist. A nil display rule set
// returns nil, which the orchestrator reads as "no display restriction".
func (s *Static) AllowedDisplays() []capture.DisplayID {
	r := s.rules.Load()
	if r.Displays == nil {
		return nil
	}
	out := make([]capture.DisplayID, 0, len(r.Displays))
	for id, ok := range r.Displays {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// ShouldCaptureDisplay implements capture.Allowlist.
func (s *Static) ShouldCaptureDisplay(id capture.DisplayID) bool {
	r := s.rules.Load()
	if r.Displays == nil {
		return true
	}
	return r.Displays[id]
}

// ShouldCaptureApplication implements capture.Allowlist.
func (s *Static) ShouldCaptureApplication(app string) bool {
	r := s.rules.Load()
	return !r.BlockedApps[app]
}

// Subscribe implements capture.Allowlist.
func (s *Static) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Static) notify() {
	s.mu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
