package world

import (
	"math"
	"testing"

	"gardensim.ai/internal/sim/actor"
)

func TestBird_DevoursInsectWithoutCorpse(t *testing.T) {
	w := newTestWorld(t, testTune(6, 6))
	bird := addBug(t, w, "bird", actor.Vec2i{})
	bird.Health = 40
	addBug(t, w, "butterfly", actor.Vec2i{X: 2, Y: 2})

	w.StepOnce()
	w.StepOnce()

	if n := kindCount(w, actor.KindInsect); n != 0 {
		t.Fatalf("butterfly should have been snatched")
	}
	if n := kindCount(w, actor.KindCorpse); n != 0 {
		t.Fatalf("swallowed prey must not leave a corpse")
	}
	got := one(t, w, actor.KindBird)
	// two decay ticks, then corpse-food 3 at prey_health 2
	if want := 40 - 2*0.05 + 6; math.Abs(got.Health-want) > 1e-9 {
		t.Fatalf("bird health %.4f, want %.4f", got.Health, want)
	}
	if !hasEvent(w, "snatched a butterfly") {
		t.Fatalf("missing predation event")
	}
}

func TestBird_IgnoresTrappedPrey(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	bird := addBug(t, w, "bird", actor.Vec2i{})
	web := w.insert(&actor.Actor{Kind: actor.KindSpiderWeb, Pos: actor.Vec2i{X: 1, Y: 1}, OwnerID: "insect-99", Strength: 6, Lifespan: 100})
	caught := addBug(t, w, "butterfly", actor.Vec2i{X: 1, Y: 1})
	caught.TrappedIn = web.ID
	web.TrappedID = caught.ID
	free := addBug(t, w, "butterfly", actor.Vec2i{X: 4, Y: 4})

	w.StepOnce()

	if bs := w.board(bird.ID); bs.TargetID != free.ID {
		t.Fatalf("bird target %q, want the free butterfly %q", bs.TargetID, free.ID)
	}
	if _, ok := w.actors[caught.ID]; !ok {
		t.Fatalf("trapped butterfly should still be in the web")
	}
}

func TestEagle_HuntsBirdsDown(t *testing.T) {
	w := newTestWorld(t, testTune(10, 10))
	addBug(t, w, "eagle", actor.Vec2i{})
	addBug(t, w, "bird", actor.Vec2i{X: 4, Y: 4})

	for i := 0; i < 15; i++ {
		w.StepOnce()
		if kindCount(w, actor.KindBird) == 0 {
			break
		}
	}

	if n := kindCount(w, actor.KindBird); n != 0 {
		t.Fatalf("bird still alive after 15 ticks of pursuit")
	}
	if n := kindCount(w, actor.KindEagle); n != 1 {
		t.Fatalf("eagle should survive the hunt")
	}
	if n := kindCount(w, actor.KindCorpse); n != 0 {
		t.Fatalf("swallowed bird must not leave a corpse")
	}
	if !hasEvent(w, "snatched a bird") {
		t.Fatalf("missing predation event")
	}
}
