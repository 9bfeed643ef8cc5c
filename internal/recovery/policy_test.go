package recovery

import (
	"testing"
	"time"
)

func TestNewBackoffManager_defaults(t *testing.T) {
	m := NewBackoffManager(Config{})
	if m.cfg.MaxAttempts != 3 {
		t.Errorf("default MaxAttempts = %d, want 3", m.cfg.MaxAttempts)
	}
	if m.cfg.RetryDelay != 5*time.Second {
		t.Errorf("default RetryDelay = %v, want 5s", m.cfg.RetryDelay)
	}
	if m.cfg.MaxRetryDelay != 30*time.Second {
		t.Errorf("default MaxRetryDelay = %v, want 30s", m.cfg.MaxRetryDelay)
	}
}

func TestBackoffManager_backoffCurve(t *testing.T) {
	m := NewBackoffManager(Config{MaxAttempts: 10, RetryDelay: time.Second, MaxRetryDelay: 8 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second}, // capped
		{9, 8 * time.Second},
	}
	for _, tt := range tests {
		d := m.Decide(CaptureSessionFailed, tt.attempt)
		if d.Action != ActionRetry {
			t.Fatalf("attempt %d: action = %v, want retry", tt.attempt, d.Action)
		}
		if d.Delay != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, d.Delay, tt.want)
		}
	}
}

func TestBackoffManager_evictsAfterMaxAttempts(t *testing.T) {
	m := NewBackoffManager(Config{MaxAttempts: 3, RetryDelay: time.Millisecond})

	for attempt := 1; attempt <= 3; attempt++ {
		if d := m.Decide(CaptureSessionFailed, attempt); d.Action != ActionRetry {
			t.Fatalf("attempt %d should retry, got %v", attempt, d.Action)
		}
	}
	d := m.Decide(CaptureSessionFailed, 4)
	if d.Action != ActionEvict {
		t.Errorf("attempt 4 should evict, got %v", d.Action)
	}
	if d.Delay != 0 {
		t.Errorf("evict decision should carry zero delay, got %v", d.Delay)
	}
}

func TestBackoffManager_permissionDeniedEvictsImmediately(t *testing.T) {
	m := NewBackoffManager(Config{})
	if d := m.Decide(PermissionDenied, 1); d.Action != ActionEvict {
		t.Errorf("permission denial should evict on first attempt, got %v", d.Action)
	}
}

func TestBackoffManager_disconnectedStillRetries(t *testing.T) {
	// A disconnect may be a flaky cable; the re-enumeration step during the
	// retry confirms whether the display actually came back.
	m := NewBackoffManager(Config{})
	if d := m.Decide(DisplayDisconnected, 1); d.Action != ActionRetry {
		t.Errorf("disconnect should retry within the attempt budget, got %v", d.Action)
	}
}
