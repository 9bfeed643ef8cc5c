package recovery

import "time"

// Action is what the policy wants done with a failed display.
type Action int

const (
	// ActionRetry recreates the session after Decision.Delay.
	ActionRetry Action = iota
	// ActionEvict drops the display permanently for the run.
	ActionEvict
)

// String returns the action's log name.
func (a Action) String() string {
	if a == ActionEvict {
		return "evict"
	}
	return "retry"
}

// Decision is the policy's answer for one failure of one display.
type Decision struct {
	Action Action
	// Delay is how long to wait before the retry attempt. Zero when Action
	// is ActionEvict.
	Delay time.Duration
}

// Manager decides, per failure reason and attempt number, whether a display
// is retried in place or evicted. Implementations must be safe for
// concurrent use: the orchestrator consults the policy from independent
// per-display recovery goroutines.
type Manager interface {
	// Decide is called with the 1-based attempt number of the upcoming
	// retry. Returning ActionEvict ends recovery for that display.
	Decide(reason Reason, attempt int) Decision
}

// Config bounds the default retry policy.
type Config struct {
	// MaxAttempts is the number of retries before a display is treated as
	// permanently unavailable. Default 3.
	MaxAttempts int
	// RetryDelay is the first retry's delay. Default 5s.
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential backoff. Default 30s.
	MaxRetryDelay time.Duration
}

// DefaultConfig returns the bounds used when a field is zero.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryDelay:    5 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// BackoffManager is the default Manager: bounded exponential backoff,
// delay = RetryDelay * 2^(attempt-1) capped at MaxRetryDelay, eviction once
// MaxAttempts is exceeded. Permission denials are evicted immediately since
// retrying cannot grant access the user has withheld.
type BackoffManager struct {
	cfg Config
}

// NewBackoffManager returns a BackoffManager with zero fields of cfg filled
// from DefaultConfig.
func NewBackoffManager(cfg Config) *BackoffManager {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	return &BackoffManager{cfg: cfg}
}

// Decide implements Manager.
func (m *BackoffManager) Decide(reason Reason, attempt int) Decision {
	if reason == PermissionDenied {
		return Decision{Action: ActionEvict}
	}
	if attempt > m.cfg.MaxAttempts {
		return Decision{Action: ActionEvict}
	}
	return Decision{Action: ActionRetry, Delay: m.backoff(attempt)}
}

func (m *BackoffManager) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxRetryDelay {
			return m.cfg.MaxRetryDelay
		}
	}
	if delay > m.cfg.MaxRetryDelay {
		delay = m.cfg.MaxRetryDelay
	}
	return delay
}
