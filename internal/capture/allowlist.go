package capture

// Allowlist is the live, user-controlled set of displays and applications
// permitted to be captured. The orchestrator consults it when resolving
// which displays to target and on every frame before it is forwarded
// downstream.
//
// ShouldCaptureDisplay and ShouldCaptureApplication sit on the frame hot
// path: implementations must not allocate or block. Subscribe registers a
// change callback; implementations invoke it from their own goroutine after
// the new rules are visible to the lookup methods.
type Allowlist interface {
	AllowedDisplays() []DisplayID
	ShouldCaptureDisplay(id DisplayID) bool
	ShouldCaptureApplication(app string) bool
	Subscribe(fn func())
}
