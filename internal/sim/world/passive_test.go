package world

import (
	"math"
	"testing"

	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
)

func TestEgg_HatchesThroughCocoon(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	egg := w.insert(&actor.Actor{Kind: actor.KindEgg, Species: "butterfly", Pos: actor.Vec2i{X: 3, Y: 3}, Health: 10, Timer: 2, Genome: genomeAll(0.6)})

	w.StepOnce()
	w.StepOnce()

	if _, ok := w.actors[egg.ID]; ok {
		t.Fatalf("egg should have pupated")
	}
	c := one(t, w, actor.KindCocoon)
	if c.Species != "butterfly" || c.Timer != 3 {
		t.Fatalf("cocoon species/timer %q/%d, want butterfly/3", c.Species, c.Timer)
	}

	for i := 0; i < 3; i++ {
		w.StepOnce()
	}

	if kindCount(w, actor.KindCocoon) != 0 {
		t.Fatalf("cocoon should have opened")
	}
	b := one(t, w, actor.KindInsect)
	if b.Species != "butterfly" || b.Health != 26 || b.Stamina != 30 {
		t.Fatalf("hatchling %q %.1f/%.1f, want a full-grown butterfly", b.Species, b.Health, b.Stamina)
	}
	if b.Genome != genomeAll(0.6) {
		t.Fatalf("hatchling genome %v, want the brood genome carried through", b.Genome)
	}
	if !hasEvent(w, "hatched") {
		t.Fatalf("missing hatch event")
	}
}

func TestEgg_DirectHatchKeepsHome(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	w.insert(&actor.Actor{Kind: actor.KindEgg, Species: "ant", Pos: actor.Vec2i{X: 3, Y: 3}, HomeID: "ant-colony-5", Health: 10, Timer: 1, Genome: genomeAll(0.5)})

	w.StepOnce()

	if kindCount(w, actor.KindEgg) != 0 {
		t.Fatalf("ant eggs hatch directly, no cocoon stage")
	}
	a := one(t, w, actor.KindInsect)
	if a.Species != "ant" || a.HomeID != "ant-colony-5" {
		t.Fatalf("hatchling %q home %q, want ant bound to its colony", a.Species, a.HomeID)
	}
}

func TestCorpse_RotsIntoNutrient(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	w.insert(&actor.Actor{Kind: actor.KindCorpse, Species: "bird", Pos: actor.Vec2i{X: 2, Y: 2}, Food: 4, Timer: 2})

	w.StepOnce()
	w.StepOnce()

	if kindCount(w, actor.KindCorpse) != 0 {
		t.Fatalf("corpse should have decayed")
	}
	n := one(t, w, actor.KindNutrient)
	if n.Pos != (actor.Vec2i{X: 2, Y: 2}) || n.Food != 4 {
		t.Fatalf("nutrient at %v food %.1f, want leftover food 4 on the corpse cell", n.Pos, n.Food)
	}
}

func TestNutrient_FeedsAdjacentFlowerDry(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	f := addFlower(w, actor.Vec2i{X: 3, Y: 3}, genomeAll(0.5), 50, 1)
	w.insert(&actor.Actor{Kind: actor.KindNutrient, Pos: actor.Vec2i{X: 3, Y: 4}, Food: 1})

	for i := 0; i < 4; i++ {
		w.StepOnce()
	}

	if kindCount(w, actor.KindNutrient) != 0 {
		t.Fatalf("nutrient should be drawn down to nothing")
	}
	got := w.actors[f.ID]
	// 4 resilience ticks plus 1.0 food at heal rate 2
	if want := 50 + 4*0.13 + 2.0; math.Abs(got.Health-want) > 1e-9 {
		t.Fatalf("flower health %.4f, want %.4f", got.Health, want)
	}
}

func TestNutrient_EvaporatesUnused(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	n := w.insert(&actor.Actor{Kind: actor.KindNutrient, Pos: actor.Vec2i{X: 3, Y: 3}, Food: 0.12})

	w.StepOnce()
	w.StepOnce()
	if _, ok := w.actors[n.ID]; !ok {
		t.Fatalf("nutrient evaporated too fast")
	}
	w.StepOnce()
	if _, ok := w.actors[n.ID]; ok {
		t.Fatalf("unused nutrient should evaporate away")
	}
}

func TestFlower_WiltsInHostileClimate(t *testing.T) {
	tune := testTune(8, 8)
	tune.Climate.TempBase = 40 // comfort 0.28, resilience goes negative
	w := newTestWorld(t, tune)
	g := genomeAll(0.5)
	g[genetics.GeneNutrients] = 0
	g[genetics.GeneStamina] = 0
	f := addFlower(w, actor.Vec2i{X: 3, Y: 3}, g, 0.05, 1)

	w.StepOnce()

	if _, ok := w.actors[f.ID]; ok {
		t.Fatalf("flower should have wilted")
	}
	n := one(t, w, actor.KindNutrient)
	if n.Food != 2.0 {
		t.Fatalf("wilt nutrient food %.2f, want base 2.0 for a zero-nutrient genome", n.Food)
	}
	if !hasEvent(w, "wilted away") {
		t.Fatalf("missing wilt event")
	}
}

func TestSeed_WithersPastLifespan(t *testing.T) {
	tune := testTune(8, 8)
	tune.Factory.SeedLifespanTicks = 2
	w := newTestWorld(t, tune)
	s := w.insert(&actor.Actor{Kind: actor.KindFlowerSeed, Pos: actor.Vec2i{X: 3, Y: 3}, Health: 20, ReqID: "req-99"})

	w.StepOnce()
	w.StepOnce()
	if _, ok := w.actors[s.ID]; !ok {
		t.Fatalf("seed withered inside its lifespan")
	}
	w.StepOnce()
	if _, ok := w.actors[s.ID]; ok {
		t.Fatalf("seed should wither past its lifespan")
	}
	if !hasEvent(w, "withered before sprouting") {
		t.Fatalf("missing wither event")
	}
}

func TestStructure_StarvesAndFalls(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	colony := addNest(t, w, actor.KindAntColony, "ant", actor.Vec2i{X: 2, Y: 2})
	colony.Stored = 0
	colony.Health = 0.3

	w.StepOnce()

	if kindCount(w, actor.KindAntColony) != 0 {
		t.Fatalf("starved colony should collapse")
	}
	c := one(t, w, actor.KindCorpse)
	if c.Pos != (actor.Vec2i{X: 2, Y: 2}) || c.Food != 8 || c.Timer != 120 {
		t.Fatalf("colony corpse %v food %.1f timer %d, want (2,2)/8/120", c.Pos, c.Food, c.Timer)
	}
	if !hasEvent(w, "has fallen") {
		t.Fatalf("missing collapse event")
	}
}

func TestStructure_BroodsWhileStocked(t *testing.T) {
	w := newTestWorld(t, testTune(8, 8))
	setSpecies(w, "ant", func(d *catalogs.SpeciesDef) { d.Params["brood_chance"] = 1 })
	colony := addNest(t, w, actor.KindAntColony, "ant", actor.Vec2i{X: 1, Y: 1})

	w.StepOnce()

	egg := one(t, w, actor.KindEgg)
	if egg.Species != "ant" || egg.HomeID != colony.ID || egg.Timer != 3 {
		t.Fatalf("egg %q home %q timer %d, want colony brood", egg.Species, egg.HomeID, egg.Timer)
	}
	got := one(t, w, actor.KindAntColony)
	if want := 10 - 0.05 - 4; math.Abs(got.Stored-want) > 1e-9 {
		t.Fatalf("stored %.4f, want %.4f after the egg", got.Stored, want)
	}

	// stores run low after a second egg; the brood then matures
	for i := 0; i < 3; i++ {
		w.StepOnce()
	}
	var hatched *actor.Actor
	for _, a := range w.actors {
		if a.Kind == actor.KindInsect && a.Species == "ant" {
			hatched = a
		}
	}
	if hatched == nil || hatched.HomeID != colony.ID {
		t.Fatalf("no colony-bound ant hatched from the brood")
	}
}
