package capture

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"capture-orchestrator/internal/platform/logger"
)

// For any sequence of start/stop/pause/resume/configure calls: at most one
// live session exists per display, and the derived state is Recording
// exactly when the active-session count is at least one.
func TestOrchestrator_invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := []string{"d1", "d2", "d3"}
		src := newFakeSource(ids...)
		sink := &countingSink{}
		orc := New(src, sink, logger.Discard(), Options{Policy: fastPolicy(1)})
		defer orc.Close()
		defer orc.Stop(context.Background())

		ctx := context.Background()
		steps := rapid.IntRange(1, 12).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"start", "stop", "pause", "resume", "configure"}).Draw(t, "op")
			switch op {
			case "start":
				_ = orc.Start(ctx)
			case "stop":
				_ = orc.Stop(ctx)
			case "pause":
				_ = orc.Pause(ctx)
			case "resume":
				_ = orc.Resume(ctx)
			case "configure":
				n := rapid.IntRange(1, len(ids)).Draw(t, "ndisplays")
				sel := make([]DisplayID, 0, n)
				for _, id := range ids[:n] {
					sel = append(sel, DisplayID(id))
				}
				_ = orc.Configure(ctx, sel)
			}

			if src.overlapped() {
				t.Fatalf("two sessions were live for one display after %q", op)
			}
			active := orc.ActiveDisplays()
			seen := make(map[DisplayID]bool, len(active))
			for _, id := range active {
				if seen[id] {
					t.Fatalf("display %s appears twice in the active set", id)
				}
				seen[id] = true
			}
			recording := orc.State() == StateRecording
			if recording != (len(active) > 0) {
				t.Fatalf("state %v with %d active sessions after %q",
					orc.State(), len(active), op)
			}
		}
	})
}
