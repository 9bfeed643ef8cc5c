// Package sim provides a synthetic capture.Source for development and
// demos: fake displays streaming generated frames at the configured
// interval. The daemon falls back to it when no native backend is wired.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"capture-orchestrator/internal/capture"
)

// Source simulates a fixed set of displays. The zero value is unusable;
// construct with NewSource.
type Source struct {
	displays []capture.Display
}

// NewSource returns a Source with n displays; the first one is primary.
// n < 1 is treated as 1.
func NewSource(n int) *Source {
	if n < 1 {
		n = 1
	}
	displays := make([]capture.Display, n)
	for i := range displays {
		displays[i] = capture.Display{
			ID:        capture.DisplayID(fmt.Sprintf("sim-display-%d", i+1)),
			Width:     1920,
			Height:    1080,
			IsPrimary: i == 0,
		}
	}
	return &Source{displays: displays}
}

// Displays implements capture.Source.
func (s *Source) Displays() ([]capture.Display, error) {
	out := make([]capture.Display, len(s.displays))
	copy(out, s.displays)
	return out, nil
}

// NewSession implements capture.Source.
func (s *Source) NewSession(d capture.Display, cfg capture.StreamConfig) (capture.SessionHandle, error) {
	return &session{
		display: d,
		cfg:     cfg,
		frames:  make(chan capture.Frame, 8),
	}, nil
}

type session struct {
	display capture.Display
	cfg     capture.StreamConfig
	frames  chan capture.Frame

	mu      sync.Mutex
	cancel  context.CancelFunc
	onTerm  func(error)
	stopped bool
}

func (s *session) OnTermination(fn func(error)) {
	s.mu.Lock()
	s.onTerm = fn
	s.mu.Unlock()
}

func (s *session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("session for %s already stopped", s.display.ID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.generate(runCtx)
	return nil
}

func (s *session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *session) Frames() <-chan capture.Frame {
	return s.frames
}

// generate emits one synthetic frame per interval until cancelled. The
// payload size approximates a lightly compressed frame so segment files
// grow at a realistic rate.
func (s *session) generate(ctx context.Context) {
	defer close(s.frames)
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	payload := make([]byte, 16<<10)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			f := capture.Frame{
				Display:   s.display.ID,
				App:       "sim",
				Timestamp: t,
				Width:     s.cfg.Width,
				Height:    s.cfg.Height,
				Data:      payload,
			}
			select {
			case s.frames <- f:
			default:
				// Drop rather than queue; the consumer sets the pace.
			}
		}
	}
}
