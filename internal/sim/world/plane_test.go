package world

import (
	"math"
	"testing"

	"gardensim.ai/internal/sim/actor"
)

func TestPlaneNext_SerpentineCoversGrid(t *testing.T) {
	pos := actor.Vec2i{}
	seen := map[actor.Vec2i]bool{pos: true}
	order := []actor.Vec2i{pos}
	for {
		next, done := planeNext(pos, 4, 3)
		if done {
			break
		}
		if seen[next] {
			t.Fatalf("sweep revisited %v", next)
		}
		seen[next] = true
		order = append(order, next)
		pos = next
		if len(order) > 12 {
			t.Fatalf("sweep overran the grid: %v", order)
		}
	}
	if len(order) != 12 {
		t.Fatalf("sweep covered %d cells, want all 12", len(order))
	}
	if order[3] != (actor.Vec2i{X: 3, Y: 0}) || order[4] != (actor.Vec2i{X: 3, Y: 1}) {
		t.Fatalf("sweep should turn down at the east edge, got %v then %v", order[3], order[4])
	}
	if order[7] != (actor.Vec2i{X: 0, Y: 1}) || order[8] != (actor.Vec2i{X: 0, Y: 2}) {
		t.Fatalf("sweep should turn down at the west edge, got %v then %v", order[7], order[8])
	}
	if pos != (actor.Vec2i{X: 3, Y: 2}) {
		t.Fatalf("sweep ended at %v, want the last cell (3,2)", pos)
	}
}

func TestPlane_SweepsSmokeAndDespawns(t *testing.T) {
	w := newTestWorld(t, testTune(5, 2))
	addBug(t, w, "plane", actor.Vec2i{})

	// 10 cells at 3 per tick: done on the fourth
	for i := 0; i < 4; i++ {
		w.StepOnce()
	}

	if n := kindCount(w, actor.KindHerbicidePlane); n != 0 {
		t.Fatalf("plane still present after clearing the last row")
	}
	if n := kindCount(w, actor.KindHerbicideSmoke); n != 10 {
		t.Fatalf("smoke puffs %d, want one per cell (10)", n)
	}
	for _, a := range w.actors {
		if a.Kind == actor.KindHerbicideSmoke && a.Timer <= 0 {
			t.Fatalf("smoke at %v already expired", a.Pos)
		}
	}
	if !hasEvent(w, "finished its pass") {
		t.Fatalf("missing departure event")
	}
}

func TestSmoke_DamagesClaimedFloraThenExpires(t *testing.T) {
	w := newTestWorld(t, testTune(6, 6))
	f := addFlower(w, actor.Vec2i{X: 1, Y: 1}, genomeAll(0.5), 50, 1)
	w.insert(&actor.Actor{Kind: actor.KindHerbicideSmoke, Pos: actor.Vec2i{X: 1, Y: 1}, Timer: 2})

	w.StepOnce()
	resil := w.gen.Stats(genomeAll(0.5), 0.5, 22).Resilience
	got := w.actors[f.ID]
	if want := 50 + resil - w.tune.Herbicide.SmokeDamage; math.Abs(got.Health-want) > 1e-9 {
		t.Fatalf("flower health %.4f, want %.4f after one smoke tick", got.Health, want)
	}

	w.StepOnce()
	if n := kindCount(w, actor.KindHerbicideSmoke); n != 0 {
		t.Fatalf("smoke should expire at timer zero")
	}
	got = w.actors[f.ID]
	if want := 50 + 2*resil - w.tune.Herbicide.SmokeDamage; math.Abs(got.Health-want) > 1e-9 {
		t.Fatalf("flower health %.4f, want %.4f after the puff expired", got.Health, want)
	}
}
