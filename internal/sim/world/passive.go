package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/genetics"
)

const (
	flowerMaxHealth    = 100.0
	flowerSpreadChance = 0.004
	flowerSpreadHealth = 70.0

	trailEvaporate = 0.02

	nutrientAbsorb = 0.3
	nutrientHeal   = 2.0
	nutrientEvap   = 0.05
)

// process runs one actor's tick. Every id in the dispatch order comes
// through here; actors removed earlier in the same tick fall out at the
// liveness check.
func (ts *tickState) process(id string) {
	cur, ok := ts.alive(id)
	if !ok {
		return
	}
	if cur.Kind.Mobile() {
		ts.processMobile(id)
		return
	}
	switch cur.Kind {
	case actor.KindFlower:
		ts.processFlower(id)
	case actor.KindFlowerSeed:
		ts.processSeed(id)
	case actor.KindEgg:
		ts.processEgg(id)
	case actor.KindCocoon:
		ts.processCocoon(id)
	case actor.KindCorpse:
		ts.processCorpse(id)
	case actor.KindNutrient:
		ts.processNutrient(id)
	case actor.KindSpiderWeb:
		ts.processWeb(id)
	case actor.KindSlimeTrail:
		ts.processSlime(id)
	case actor.KindPheromoneTrail, actor.KindTerritoryMark:
		ts.processMarker(id)
	case actor.KindHerbicideSmoke:
		ts.processSmoke(id)
	case actor.KindAntColony, actor.KindHive:
		ts.processStructure(id)
	}
}

// processFlower re-realizes the flower's stats for the current climate,
// grows it toward maturity, and drifts its health by resilience. Mature,
// healthy flowers occasionally self-seed downwind.
func (ts *tickState) processFlower(id string) {
	f := ts.mutate(id)
	f.Age++

	st := ts.w.gen.Stats(f.Genome, ts.climate.Humidity, ts.climate.Temperature)
	f.Toxicity = st.Toxicity
	f.Attract = st.Attract
	f.Nutrients = st.Nutrients
	f.Effects = st.Effects
	if f.Growth < 1 {
		f.Growth = math.Min(1, f.Growth+st.GrowthRate)
	}
	f.Health = math.Min(flowerMaxHealth, f.Health+st.Resilience)

	if f.Health <= 0 {
		ts.remove(id)
		ts.spawn(&actor.Actor{Kind: actor.KindNutrient, Pos: f.Pos, Food: 2 + f.Nutrients*4})
		ts.eventf(protocol.SeverityInfo, 0.3, &f.Pos, "a flower wilted away")
		return
	}

	if f.Growth >= 1 && f.Health >= flowerSpreadHealth && ts.w.rng.Float64() < flowerSpreadChance {
		if cell, ok := ts.seedCellNear(f.Pos); ok {
			if seed := ts.w.requestFlower(ts, cell, []genetics.Genome{f.Genome}); seed != nil {
				ts.eventf(protocol.SeverityInfo, 0.25, &cell, "a flower scattered a seed on the wind")
			}
		}
	}
}

// processSeed ages the placeholder holding a generation request's cell.
// A seed that dies or outlives the expiry window cancels its request.
func (ts *tickState) processSeed(id string) {
	s := ts.mutate(id)
	s.Age++
	if s.Health > 0 && s.Age <= ts.w.tune.Factory.SeedLifespanTicks {
		return
	}
	ts.w.factory.Cancel(s.ReqID)
	ts.remove(id)
	ts.eventf(protocol.SeverityInfo, 0.2, &s.Pos, "a seed withered before sprouting")
}

func (ts *tickState) processEgg(id string) {
	e := ts.mutate(id)
	if e.Health <= 0 {
		ts.remove(id)
		return
	}
	e.Timer--
	if e.Timer > 0 {
		return
	}
	def, ok := ts.w.speciesDef(e.Species)
	if !ok {
		ts.w.warnOnce("species:"+e.Species, "unknown species %q: discarding brood %s", e.Species, id)
		ts.remove(id)
		return
	}
	if def.CocoonTicks > 0 {
		ts.remove(id)
		ts.spawn(&actor.Actor{
			Kind:    actor.KindCocoon,
			Species: e.Species,
			Pos:     e.Pos,
			Health:  eggHealth,
			Timer:   def.CocoonTicks,
			Genome:  e.Genome,
			HomeID:  e.HomeID,
		})
		return
	}
	ts.hatch(e)
}

func (ts *tickState) processCocoon(id string) {
	c := ts.mutate(id)
	if c.Health <= 0 {
		ts.remove(id)
		return
	}
	c.Timer--
	if c.Timer > 0 {
		return
	}
	ts.hatch(c)
}

// hatch replaces a ripe egg or cocoon with a full-grown member of its
// species.
func (ts *tickState) hatch(brood *actor.Actor) {
	def, ok := ts.w.speciesDef(brood.Species)
	if !ok {
		ts.remove(brood.ID)
		return
	}
	ts.remove(brood.ID)
	ts.spawn(&actor.Actor{
		Kind:    actor.Kind(def.Kind),
		Species: brood.Species,
		Pos:     brood.Pos,
		Health:  def.MaxHealth,
		Stamina: def.MaxStamina,
		Genome:  brood.Genome,
		HomeID:  brood.HomeID,
	})
	ts.eventf(protocol.SeverityInfo, 0.3, &brood.Pos, "a %s hatched", brood.Species)
}

// processCorpse counts down decay, then converts what the scavengers left
// into soil nutrients.
func (ts *tickState) processCorpse(id string) {
	c := ts.mutate(id)
	if c.Food <= 0 {
		ts.remove(id)
		return
	}
	c.Timer--
	if c.Timer > 0 {
		return
	}
	ts.remove(id)
	ts.spawn(&actor.Actor{Kind: actor.KindNutrient, Pos: c.Pos, Food: c.Food})
}

// processNutrient feeds adjacent flowers, evaporating slowly when nothing
// draws from it.
func (ts *tickState) processNutrient(id string) {
	n := ts.mutate(id)
	absorbed := false
	for _, p := range ts.visionFlowers(n.Pos, 1) {
		if n.Food <= 0 {
			break
		}
		f, ok := ts.alive(p.ID)
		if !ok || f.Kind != actor.KindFlower {
			continue
		}
		bite := math.Min(nutrientAbsorb, n.Food)
		n.Food -= bite
		fm := ts.mutate(p.ID)
		fm.Health = math.Min(flowerMaxHealth, fm.Health+bite*nutrientHeal)
		absorbed = true
	}
	if !absorbed {
		n.Food -= nutrientEvap
	}
	if n.Food <= 0 {
		ts.remove(id)
	}
}

func (ts *tickState) processWeb(id string) {
	w := ts.mutate(id)
	w.Lifespan--
	if w.Lifespan > 0 && w.Strength > 0 {
		return
	}
	if w.TrappedID != "" {
		if prey, ok := ts.alive(w.TrappedID); ok && prey.TrappedIn == w.ID {
			ts.mutate(prey.ID).TrappedIn = ""
		}
	}
	ts.remove(id)
}

func (ts *tickState) processSlime(id string) {
	s := ts.mutate(id)
	s.Lifespan--
	if s.Lifespan <= 0 {
		ts.remove(id)
	}
}

// processMarker decays a pheromone trail or territory mark and spreads any
// signal it carried at the start of the tick one hop to same-owner
// neighbors. Spreading from the snapshot keeps the flood to one ring per
// tick no matter how ids sort.
func (ts *tickState) processMarker(id string) {
	m := ts.mutate(id)
	m.Lifespan--
	if m.Kind == actor.KindPheromoneTrail {
		m.Strength = math.Max(0, m.Strength-trailEvaporate)
	}
	if m.Lifespan <= 0 || (m.Kind == actor.KindPheromoneTrail && m.Strength <= 0) {
		ts.remove(id)
		return
	}

	prev, had := ts.snap[id]
	if !had || prev.Signal == nil {
		return
	}
	if prev.Signal.TTL > 1 {
		hop := actor.Signal{Type: prev.Signal.Type, Origin: prev.Signal.Origin, TTL: prev.Signal.TTL - 1}
		for _, nb := range actor.Neighbors8(m.Pos) {
			var nid string
			var ok bool
			if m.Kind == actor.KindPheromoneTrail {
				nid, ok = ts.trailAt[trailKey{Owner: m.OwnerID, Cell: nb}]
			} else {
				nid, ok = ts.markAt[nb]
			}
			if !ok {
				continue
			}
			n, live := ts.alive(nid)
			if !live || n.OwnerID != m.OwnerID || n.Signal != nil {
				continue
			}
			s := hop
			ts.mutate(nid).Signal = &s
		}
	}
	// A reader may have consumed the live signal earlier this tick.
	if m.Signal != nil {
		m.Signal.TTL--
		if m.Signal.TTL <= 0 {
			m.Signal = nil
		}
	}
}

// processSmoke burns down the puff's timer and poisons the flora on its
// cell. Death itself runs in the flora processors.
func (ts *tickState) processSmoke(id string) {
	s := ts.mutate(id)
	s.Timer--
	if s.Timer <= 0 {
		ts.remove(id)
		return
	}
	fid, ok := ts.claimed[s.Pos]
	if !ok {
		return
	}
	f, live := ts.alive(fid)
	if !live || !f.Kind.ClaimsCell() {
		return
	}
	ts.mutate(fid).Health -= ts.w.tune.Herbicide.SmokeDamage
}

// processStructure runs a colony or hive: upkeep from stores, starvation
// when they run dry, and brood eggs while below the member cap.
func (ts *tickState) processStructure(id string) {
	cur, _ := ts.alive(id)
	def, ok := ts.w.speciesDef(cur.Species)
	if !ok {
		ts.w.warnOnce("species:"+cur.Species, "unknown species %q on structure %s", cur.Species, id)
		return
	}
	s := ts.mutate(id)
	s.Age++
	s.Stored -= def.Param("nest_upkeep", 0.05)
	if s.Stored < 0 {
		s.Stored = 0
		s.Health -= def.Param("nest_starve", 0.4)
	}
	if s.Health <= 0 {
		ts.remove(id)
		ts.spawn(&actor.Actor{Kind: actor.KindCorpse, Pos: s.Pos, Food: 8 + s.Stored*0.5, Timer: 120})
		ts.eventf(protocol.SeverityAlert, 0.9, &s.Pos, "%s has fallen", displayName(s))
		return
	}

	cost := def.Param("brood_cost", 4)
	if s.Stored < cost || ts.members[s.ID] >= int(def.Param("nest_cap", 10)) {
		return
	}
	if ts.w.rng.Float64() >= def.Param("brood_chance", 0.06) {
		return
	}
	cell, free := ts.freeNeighbor(s.Pos)
	if !free {
		return
	}
	s.Stored -= cost
	ts.spawn(&actor.Actor{
		Kind:    actor.KindEgg,
		Species: s.Species,
		Pos:     cell,
		Health:  eggHealth,
		Timer:   def.EggTicks,
		Genome:  genetics.Mutate(ts.w.rng, s.Genome, def.Param("mutate_prob", 0.1), def.Param("mutate_amount", 0.15)),
		HomeID:  s.ID,
	})
}
