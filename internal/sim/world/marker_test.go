package world

import (
	"testing"

	"gardensim.ai/internal/sim/actor"
)

func addTrail(w *World, pos actor.Vec2i, owner string, ttl int) *actor.Actor {
	a := &actor.Actor{Kind: actor.KindPheromoneTrail, Pos: pos, OwnerID: owner, Strength: 2, Lifespan: 60}
	if ttl > 0 {
		a.Signal = &actor.Signal{Type: actor.SignalUnderAttack, Origin: pos, TTL: ttl}
	}
	return w.insert(a)
}

func signalTTLOf(w *World, id string) int {
	a, ok := w.actors[id]
	if !ok || a.Signal == nil {
		return 0
	}
	return a.Signal.TTL
}

func TestMarker_SignalFloodsOneRingPerTick(t *testing.T) {
	w := newTestWorld(t, testTune(10, 10))
	const owner = "ant-colony-7"
	t1 := addTrail(w, actor.Vec2i{X: 4, Y: 4}, owner, 3)
	t2 := addTrail(w, actor.Vec2i{X: 5, Y: 5}, owner, 0)
	t3 := addTrail(w, actor.Vec2i{X: 6, Y: 6}, owner, 0)

	w.StepOnce()
	// one hop out; the fresh copy is not aged on its arrival tick
	if got := [3]int{signalTTLOf(w, t1.ID), signalTTLOf(w, t2.ID), signalTTLOf(w, t3.ID)}; got != [3]int{2, 2, 0} {
		t.Fatalf("ttls after tick 1 = %v, want [2 2 0]", got)
	}

	w.StepOnce()
	if got := [3]int{signalTTLOf(w, t1.ID), signalTTLOf(w, t2.ID), signalTTLOf(w, t3.ID)}; got != [3]int{1, 1, 1} {
		t.Fatalf("ttls after tick 2 = %v, want [1 1 1]", got)
	}

	w.StepOnce()
	if got := [3]int{signalTTLOf(w, t1.ID), signalTTLOf(w, t2.ID), signalTTLOf(w, t3.ID)}; got != [3]int{0, 0, 0} {
		t.Fatalf("ttls after tick 3 = %v, want all shed", got)
	}
}

func TestMarker_WeakSignalShedsWithoutSpreading(t *testing.T) {
	w := newTestWorld(t, testTune(10, 10))
	const owner = "ant-colony-7"
	t1 := addTrail(w, actor.Vec2i{X: 4, Y: 4}, owner, 1)
	t2 := addTrail(w, actor.Vec2i{X: 5, Y: 5}, owner, 0)

	w.StepOnce()

	if got := signalTTLOf(w, t1.ID); got != 0 {
		t.Fatalf("origin ttl %d, want shed", got)
	}
	if got := signalTTLOf(w, t2.ID); got != 0 {
		t.Fatalf("neighbor ttl %d, a ttl-1 signal must not spread", got)
	}
}

func TestMarker_RivalTrailsDoNotCarrySignals(t *testing.T) {
	w := newTestWorld(t, testTune(10, 10))
	t1 := addTrail(w, actor.Vec2i{X: 4, Y: 4}, "ant-colony-7", 3)
	other := addTrail(w, actor.Vec2i{X: 5, Y: 5}, "ant-colony-8", 0)

	w.StepOnce()

	if got := signalTTLOf(w, t1.ID); got != 2 {
		t.Fatalf("origin ttl %d, want aged to 2", got)
	}
	if got := signalTTLOf(w, other.ID); got != 0 {
		t.Fatalf("rival trail picked up the signal")
	}
}

func TestMarker_TrailEvaporatesAway(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	tr := w.insert(&actor.Actor{Kind: actor.KindPheromoneTrail, Pos: actor.Vec2i{X: 2, Y: 2}, OwnerID: "ant-colony-1", Strength: 0.03, Lifespan: 60})

	w.StepOnce()
	if _, ok := w.actors[tr.ID]; !ok {
		t.Fatalf("trail gone too early")
	}
	w.StepOnce()
	if _, ok := w.actors[tr.ID]; ok {
		t.Fatalf("trail should evaporate once strength hits zero")
	}
}

func TestMarker_MarkAgesByLifespanOnly(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	m := w.insert(&actor.Actor{Kind: actor.KindTerritoryMark, Pos: actor.Vec2i{X: 2, Y: 2}, OwnerID: "hive-1", Strength: 1, Lifespan: 2})

	w.StepOnce()
	got := w.actors[m.ID]
	if got == nil || got.Strength != 1 {
		t.Fatalf("marks should not evaporate strength, got %v", got)
	}
	w.StepOnce()
	if _, ok := w.actors[m.ID]; ok {
		t.Fatalf("mark should expire with its lifespan")
	}
}
