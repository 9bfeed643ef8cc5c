package recovery

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil error", nil, CaptureSessionFailed},
		{"permission denied", errors.New("screen capture permission denied"), PermissionDenied},
		{"tcc refusal", errors.New("TCC prompt declined by user"), PermissionDenied},
		{"not authorized", errors.New("client not authorized for capture"), PermissionDenied},
		{"display disconnected", errors.New("display disconnected"), DisplayDisconnected},
		{"display removed", errors.New("display removed during stream"), DisplayDisconnected},
		{"stale id", errors.New("invalid display 42"), DisplayDisconnected},
		{"oom", errors.New("cannot allocate frame buffer: out of memory"), SystemResourceExhaustion},
		{"fd limit", errors.New("open segment: too many open files"), SystemResourceExhaustion},
		{"generic", errors.New("stream stalled"), CaptureSessionFailed},
		{"wrapped permission", fmt.Errorf("start session: %w", errors.New("unauthorized")), PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason_String(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{PermissionDenied, "permission_denied"},
		{DisplayDisconnected, "display_disconnected"},
		{SystemResourceExhaustion, "system_resource_exhaustion"},
		{CaptureSessionFailed, "capture_session_failed"},
		{Reason(99), "capture_session_failed"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("Reason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
