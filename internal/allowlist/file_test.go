package allowlist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"capture-orchestrator/internal/platform/logger"
)

const rulesYAML = `displays:
  - "display-1"
blocked_apps:
  - "password-manager"
`

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFileProvider(t *testing.T, content string) (*FileProvider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	writeRules(t, path, content)
	p, err := NewFileProvider(path, logger.Discard())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestFileProvider_loadsInitialRules(t *testing.T) {
	p, _ := newFileProvider(t, rulesYAML)

	if !p.ShouldCaptureDisplay("display-1") || p.ShouldCaptureDisplay("display-2") {
		t.Error("display rules not loaded from file")
	}
	if p.ShouldCaptureApplication("password-manager") {
		t.Error("blocked app rules not loaded from file")
	}
}

func TestFileProvider_missingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"), logger.Discard())
	if err == nil {
		t.Fatal("expected error for missing allowlist file")
	}
}

func TestFileProvider_reloadOnWrite(t *testing.T) {
	p, path := newFileProvider(t, rulesYAML)

	notified := make(chan struct{}, 4)
	p.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	writeRules(t, path, "displays:\n  - \"display-2\"\n")

	waitFor(t, 2*time.Second, func() bool {
		return p.ShouldCaptureDisplay("display-2") && !p.ShouldCaptureDisplay("display-1")
	}, "rules should reload after the file changes")

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not notified of the reload")
	}
}

func TestFileProvider_malformedUpdateKeepsPreviousRules(t *testing.T) {
	p, path := newFileProvider(t, rulesYAML)

	writeRules(t, path, "displays: [unclosed")

	// Give the watcher a moment; the bad file must be rejected.
	time.Sleep(100 * time.Millisecond)
	if !p.ShouldCaptureDisplay("display-1") {
		t.Error("previous rules should survive a malformed update")
	}
	if p.ShouldCaptureApplication("password-manager") {
		t.Error("previous blocked apps should survive a malformed update")
	}
}
