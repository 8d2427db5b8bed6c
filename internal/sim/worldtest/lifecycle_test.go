package worldtest

import (
	"testing"
	"time"
)

// A plant order lands as a seed placeholder on the tick after its ack, and
// the generated flower replaces the placeholder one tick after that. The
// same latency holds for the pooled runner as long as generation keeps up.
func TestPlantedSeedSproutsInTwoTicks(t *testing.T) {
	h := NewHarness(t, nil)

	if ack := h.Plant([2]int{3, 4}, nil); !ack.Accepted {
		t.Fatalf("plant refused: %+v", ack)
	}

	f := h.StepTick()
	if h.Count("FLOWER_SEED") != 1 || h.Count("FLOWER") != 0 {
		t.Fatalf("tick after planting: summary %v", f.Summary)
	}
	if _, ok := h.ActorAt([2]int{3, 4}, "FLOWER_SEED"); !ok {
		t.Fatalf("no seed placeholder on the planted cell")
	}

	f = h.StepTick()
	if h.Count("FLOWER") != 1 || h.Count("FLOWER_SEED") != 0 {
		t.Fatalf("tick after generation: summary %v", f.Summary)
	}
	flower, ok := h.ActorAt([2]int{3, 4}, "FLOWER")
	if !ok {
		t.Fatalf("no flower on the planted cell")
	}
	if flower.Health <= 0 {
		t.Fatalf("sprout came up with health %v", flower.Health)
	}
}

func TestPauseHoldsTheTickerAndStepAdvances(t *testing.T) {
	h := NewHarness(t, nil)

	// At 2 Hz a running world would tick within 500ms. A paused one must not.
	before := h.W.CurrentTick()
	time.Sleep(750 * time.Millisecond)
	if got := h.W.CurrentTick(); got != before {
		t.Fatalf("paused world advanced from %d to %d", before, got)
	}

	h.StepTick()
	if got := h.W.CurrentTick(); got != before+1 {
		t.Fatalf("step advanced to %d, want %d", got, before+1)
	}

	if ack := h.Resume(); !ack.Accepted {
		t.Fatalf("resume refused: %+v", ack)
	}
	f := h.WaitTickAbove(before+1, 5*time.Second)
	if f.Paused {
		t.Fatalf("resumed frame still flagged paused")
	}

	// Quiesce again so cleanup does not race a mid-tick broadcast.
	if ack := h.Pause(); !ack.Accepted {
		t.Fatalf("re-pause refused: %+v", ack)
	}
}

// A hand save stamps the completed tick, so importing it resumes exactly
// where this world will continue.
func TestSaveStampsCompletedTick(t *testing.T) {
	h := NewHarness(t, nil)

	if ack := h.Plant([2]int{5, 5}, nil); !ack.Accepted {
		t.Fatalf("plant refused: %+v", ack)
	}
	h.StepTick()
	h.StepTick()

	snap := h.Save("hand-save")
	if snap.Header.Label != "hand-save" {
		t.Fatalf("label %q", snap.Header.Label)
	}
	if want := h.W.CurrentTick() - 1; snap.Header.Tick != want {
		t.Fatalf("snapshot tick %d, want completed tick %d", snap.Header.Tick, want)
	}
	if len(snap.Actors) != 1 || snap.Actors[0].Kind != "FLOWER" {
		t.Fatalf("snapshot actors %+v", snap.Actors)
	}
	if snap.Actors[0].X != 5 || snap.Actors[0].Y != 5 {
		t.Fatalf("flower recorded at (%d,%d)", snap.Actors[0].X, snap.Actors[0].Y)
	}
}
