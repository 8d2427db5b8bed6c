package world

import (
	"context"
	"sort"
	"strings"
	"testing"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
)

// testTune is a small, quiet world: no initial content, no weather, no
// population sampling, so handcrafted actors are the only moving parts.
func testTune(width, height int) tuning.Tuning {
	return tuning.Tuning{
		ProtocolVersion: "1.0",
		GridWidth:       width,
		GridHeight:      height,
		TickRateHz:      10,
		Seed:            11,
		Climate: tuning.Climate{
			YearTicks:    2400,
			TempBase:     22,
			HumidityBase: 0.5,
			WindDirDeg:   0,
			WindStrength: 1,
		},
		Trend: tuning.Trend{
			Window:             8,
			MinSamples:         4,
			GrowThreshold:      0.05,
			DeclineThreshold:   0.05,
			BirdCooldownTicks:  50,
			EagleCooldownTicks: 50,
			EagleMinBirds:      2,
			RoachCooldownTicks: 50,
			PlaneCooldownTicks: 50,
		},
		Factory: tuning.Factory{
			Workers:           1,
			TimeoutMs:         1000,
			MaxInFlight:       8,
			SeedLifespanTicks: 50,
		},
		Herbicide: tuning.Herbicide{
			FlowerDensityThreshold: 2, // never triggers unless a test lowers it
			SmokeTTLTicks:          10,
			SmokeDamage:            0.6,
			PlaneSpeed:             3,
		},
	}
}

func testCatalogs() *catalogs.Catalogs {
	defs := map[string]catalogs.SpeciesDef{
		"butterfly": {
			ID: "butterfly", Strategy: "pollinator", Kind: "INSECT",
			Speed: 1, Vision: 6, MaxHealth: 26, MaxStamina: 30,
			HealthDecay: 0.04, MoveCost: 0.5, StaminaRegen: 0.8,
			DecayTo: "CORPSE", CorpseFood: 3, DecayTicks: 80,
			EggTicks: 4, CocoonTicks: 3, ReproCost: 6, ReproCooldown: 120,
			Params: map[string]float64{
				"pollinate_chance": 1, "bite_damage": 2, "toxin_factor": 3,
				"nutrient_factor": 4, "dist_penalty": 0.05, "escape_chance": 0,
			},
		},
		"ant": {
			ID: "ant", Strategy: "ant", Kind: "INSECT",
			Speed: 1, Vision: 5, MaxHealth: 22, MaxStamina: 34,
			HealthDecay: 0.03, MoveCost: 0.4, StaminaRegen: 0.9,
			AttackDamage: 2.5, AttackCost: 1.2,
			DecayTo: "CORPSE", CorpseFood: 2, DecayTicks: 60, EggTicks: 3,
			Params: map[string]float64{
				"harvest_bite": 2, "food_stamina": 6, "emergency_frac": 0.15,
				"emergency_bite": 1, "brood_food": 3, "escape_chance": 0,
				"brood_chance": 0, "nest_health": 60, "nest_stored": 10,
				"nest_upkeep": 0.05, "nest_starve": 0.4, "nest_cap": 10,
				"brood_cost": 4,
			},
		},
		"bee": {
			ID: "bee", Strategy: "bee", Kind: "INSECT",
			Speed: 1, Vision: 6, MaxHealth: 20, MaxStamina: 36,
			HealthDecay: 0.03, MoveCost: 0.4, StaminaRegen: 0.9,
			AttackDamage: 2, AttackCost: 1,
			DecayTo: "CORPSE", CorpseFood: 2, DecayTicks: 60,
			EggTicks: 3, CocoonTicks: 2,
			Params: map[string]float64{
				"nectar_factor": 3, "nectar_value": 2, "hive_ema": 0.2,
				"food_stamina": 6, "brood_food": 3, "escape_chance": 0,
				"brood_chance": 0, "nest_health": 70, "nest_stored": 10,
				"nest_upkeep": 0.05, "nest_starve": 0.4, "nest_cap": 12,
				"brood_cost": 4,
			},
		},
		"spider": {
			ID: "spider", Strategy: "spider", Kind: "INSECT",
			Speed: 1, Vision: 7, MaxHealth: 34, MaxStamina: 30,
			HealthDecay: 0.025, MoveCost: 0.6, StaminaRegen: 0.7,
			AttackDamage: 4, AttackCost: 1.5,
			DecayTo: "CORPSE", CorpseFood: 4, DecayTicks: 90, EggTicks: 60,
			Params: map[string]float64{
				"decide_every": 2, "escape_chance": 0,
			},
		},
		"cockroach": {
			ID: "cockroach", Strategy: "scavenger", Kind: "COCKROACH",
			Speed: 1, Vision: 5, MaxHealth: 28, MaxStamina: 32,
			HealthDecay: 0.02, MoveCost: 0.4, StaminaRegen: 0.9,
			DecayTo: "CORPSE", CorpseFood: 2, DecayTicks: 50,
			EggTicks: 2, ReproCost: 4, ReproCooldown: 200,
			Params: map[string]float64{
				"scavenge_bite": 2, "scavenge_health": 1.5, "scavenge_stamina": 2,
				"egg_fed": 5, "slime_ttl": 20, "escape_chance": 0,
			},
		},
		"bird": {
			ID: "bird", Strategy: "bird", Kind: "BIRD",
			Speed: 2, Vision: 10, MaxHealth: 60, MaxStamina: 50,
			HealthDecay: 0.05, MoveCost: 0.6, StaminaRegen: 1,
			AttackDamage: 8, AttackCost: 2,
			DecayTo: "CORPSE", CorpseFood: 6, DecayTicks: 100,
			Params: map[string]float64{"prey_health": 2, "prey_stamina": 3},
		},
		"eagle": {
			ID: "eagle", Strategy: "eagle", Kind: "EAGLE",
			Speed: 2, Vision: 14, MaxHealth: 90, MaxStamina: 60,
			HealthDecay: 0.06, MoveCost: 0.8, StaminaRegen: 1.1,
			AttackDamage: 14, AttackCost: 3,
			DecayTo: "CORPSE", CorpseFood: 8, DecayTicks: 120,
			Params: map[string]float64{"prey_health": 2, "prey_stamina": 3},
		},
		"plane": {
			ID: "plane", Strategy: "plane", Kind: "HERBICIDE_PLANE",
			Speed: 3, Vision: 1, MaxHealth: 1000, MaxStamina: 1,
			StaminaRegen: 1, DecayTo: "NUTRIENT",
		},
	}

	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	idx := make(map[string]uint16, len(ids))
	for i, id := range ids {
		idx[id] = uint16(i)
	}
	return &catalogs.Catalogs{
		Species: catalogs.SpeciesCatalog{
			Palette:       ids,
			Index:         idx,
			Defs:          defs,
			PaletteDigest: "test-palette",
			DefsDigest:    "test-species",
		},
		Weather: catalogs.WeatherCatalog{ByID: map[string]catalogs.WeatherDef{}, Digest: "test-weather"},
	}
}

func newTestWorld(t *testing.T, tune tuning.Tuning) *World {
	t.Helper()
	return newTestWorldGen(t, tune, flowergen.NewLocal())
}

func newTestWorldGen(t *testing.T, tune tuning.Tuning, gen flowergen.Generator) *World {
	t.Helper()
	w, err := New(WorldConfig{ID: "t1", Tune: tune, SyncFactory: true}, testCatalogs(), gen)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

// setSpecies rewrites one stat block in a world's catalog copy.
func setSpecies(w *World, id string, mut func(*catalogs.SpeciesDef)) {
	d := w.cats.Species.Defs[id]
	mut(&d)
	w.cats.Species.Defs[id] = d
}

func genomeAll(v float64) genetics.Genome {
	var g genetics.Genome
	for i := range g {
		g[i] = v
	}
	return g
}

func addFlower(w *World, pos actor.Vec2i, g genetics.Genome, health, growth float64) *actor.Actor {
	r := w.climate.At(w.tick.Load())
	st := w.gen.Stats(g, r.Humidity, r.Temperature)
	return w.insert(&actor.Actor{
		Kind:      actor.KindFlower,
		Pos:       pos,
		Health:    health,
		Genome:    g,
		Sex:       "F",
		Growth:    growth,
		Toxicity:  st.Toxicity,
		Attract:   st.Attract,
		Nutrients: st.Nutrients,
		Effects:   st.Effects,
		Image:     w.gen.Image(g, "F"),
	})
}

func addBug(t *testing.T, w *World, species string, pos actor.Vec2i) *actor.Actor {
	t.Helper()
	def, ok := w.speciesDef(species)
	if !ok {
		t.Fatalf("no %q in test catalog", species)
	}
	return w.insert(&actor.Actor{
		Kind:    actor.Kind(def.Kind),
		Species: species,
		Pos:     pos,
		Health:  def.MaxHealth,
		Stamina: def.MaxStamina,
		Genome:  genomeAll(0.5),
	})
}

func addNest(t *testing.T, w *World, kind actor.Kind, species string, pos actor.Vec2i) *actor.Actor {
	t.Helper()
	def, ok := w.speciesDef(species)
	if !ok {
		t.Fatalf("no %q in test catalog", species)
	}
	return w.insert(&actor.Actor{
		Kind:    kind,
		Species: species,
		Pos:     pos,
		Health:  def.Param("nest_health", 60),
		Stored:  def.Param("nest_stored", 10),
		Genome:  genomeAll(0.5),
	})
}

func kindCount(w *World, k actor.Kind) int {
	n := 0
	for _, a := range w.actors {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// one returns the single live actor of a kind, failing on zero or many.
func one(t *testing.T, w *World, k actor.Kind) *actor.Actor {
	t.Helper()
	var found *actor.Actor
	for _, a := range w.actors {
		if a.Kind != k {
			continue
		}
		if found != nil {
			t.Fatalf("more than one %s", k)
		}
		found = a
	}
	if found == nil {
		t.Fatalf("no %s in world", k)
	}
	return found
}

func hasEvent(w *World, substr string) bool {
	items, _ := w.ring.Since(0, 500)
	for _, it := range items {
		if strings.Contains(it.Event.Message, substr) {
			return true
		}
	}
	return false
}

// heldRunner queues generation jobs without resolving them until the test
// releases each one, standing in for a slow external generator.
type heldRunner struct {
	gen  flowergen.Generator
	jobs []flowergen.Job
	done []flowergen.Completion
}

func (h *heldRunner) Submit(j flowergen.Job) bool {
	h.jobs = append(h.jobs, j)
	return true
}

func (h *heldRunner) Drain(dst []flowergen.Completion, max int) []flowergen.Completion {
	for len(dst) < max && len(h.done) > 0 {
		dst = append(dst, h.done[0])
		h.done = h.done[1:]
	}
	return dst
}

func (h *heldRunner) Close() {}

// release resolves the oldest held job.
func (h *heldRunner) release() {
	if len(h.jobs) == 0 {
		return
	}
	j := h.jobs[0]
	h.jobs = h.jobs[1:]
	res, err := h.gen.Generate(context.Background(), j.Seed, j.Parents)
	h.done = append(h.done, flowergen.Completion{ReqID: j.ReqID, Result: res, Err: err})
}
