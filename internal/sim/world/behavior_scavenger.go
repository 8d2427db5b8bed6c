package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
)

// stepScavenger runs the cockroach: eat decay matter, trail slime, and lay
// a solitary egg once fed enough. Slime is laid on the departed cell so
// trails record where the roach has been.
func stepScavenger(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if ts.scavengerLay(a, def, bs) {
		return
	}

	if meal, ok := ts.adjacentDecay(a); ok {
		ts.scavengerEat(a, def, bs, meal)
		return
	}

	from := a.Pos
	if target, ok := ts.nearestDecay(a, def); ok {
		ts.moveToward(a, def, target.Pos)
	} else {
		ts.wander(a, def)
	}
	if a.Pos != from {
		ts.leaveSlime(a, def, from)
	}
}

// scavengerLay converts accumulated food into a single egg. Roaches
// reproduce alone, so the genome only mutates.
func (ts *tickState) scavengerLay(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) bool {
	if bs.Fed < def.Param("egg_fed", 5) || bs.ReproCool > 0 {
		return false
	}
	if ts.w.rng.Float64() >= def.ReproChance {
		return false
	}
	cell, ok := ts.freeNeighbor(a.Pos)
	if !ok {
		return false
	}
	a.Stamina = math.Max(0, a.Stamina-def.ReproCost)
	bs.Fed = 0
	bs.ReproCool = def.ReproCooldown
	ts.spawn(&actor.Actor{
		Kind:    actor.KindEgg,
		Species: a.Species,
		Pos:     cell,
		Health:  eggHealth,
		Timer:   def.EggTicks,
		Genome:  genetics.Mutate(ts.w.rng, a.Genome, def.Param("mutate_prob", 0.1), def.Param("mutate_amount", 0.15)),
	})
	ts.eventf(protocol.SeverityInfo, 0.3, &cell, "a cockroach hid an egg")
	return true
}

func (ts *tickState) scavengerEat(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard, meal *actor.Actor) {
	bite := math.Min(def.Param("scavenge_bite", 2), meal.Food)
	mm := ts.mutate(meal.ID)
	mm.Food -= bite
	a.Health = math.Min(def.MaxHealth, a.Health+bite*def.Param("scavenge_health", 1.5))
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+bite*def.Param("scavenge_stamina", 2))
	bs.Fed += bite
	if mm.Food <= 0 {
		ts.remove(meal.ID)
	}
}

func (ts *tickState) adjacentDecay(a *actor.Actor) (*actor.Actor, bool) {
	for _, p := range ts.vision(a.Pos, 1) {
		o, ok := ts.alive(p.ID)
		if !ok {
			continue
		}
		if o.Kind == actor.KindCorpse || o.Kind == actor.KindNutrient {
			return o, true
		}
	}
	return nil, false
}

func (ts *tickState) nearestDecay(a *actor.Actor, def catalogs.SpeciesDef) (*actor.Actor, bool) {
	var best *actor.Actor
	bestDist := math.MaxInt32
	for _, p := range ts.vision(a.Pos, def.Vision) {
		o, ok := ts.alive(p.ID)
		if !ok {
			continue
		}
		if o.Kind != actor.KindCorpse && o.Kind != actor.KindNutrient {
			continue
		}
		if d := actor.Chebyshev(a.Pos, o.Pos); d < bestDist {
			bestDist, best = d, o
		}
	}
	return best, best != nil
}

// leaveSlime refreshes the slime on the departed cell or starts a new
// patch. One slime patch per cell.
func (ts *tickState) leaveSlime(a *actor.Actor, def catalogs.SpeciesDef, cell actor.Vec2i) {
	ttl := int(def.Param("slime_ttl", 20))
	if id, ok := ts.slimeAt[cell]; ok {
		if s, live := ts.alive(id); live {
			sm := ts.mutate(s.ID)
			sm.Lifespan = ttl
			sm.OwnerID = a.ID
			return
		}
	}
	s := ts.spawn(&actor.Actor{
		Kind:     actor.KindSlimeTrail,
		Pos:      cell,
		OwnerID:  a.ID,
		Strength: 1,
		Lifespan: ttl,
	})
	ts.slimeAt[cell] = s.ID
}

// freeNeighbor picks the first unoccupied, unclaimed adjacent cell in
// neighbor order.
func (ts *tickState) freeNeighbor(pos actor.Vec2i) (actor.Vec2i, bool) {
	for _, n := range actor.Neighbors8(pos) {
		if !ts.inBounds(n) {
			continue
		}
		if _, taken := ts.occupied[n]; taken {
			continue
		}
		if _, claimed := ts.claimed[n]; claimed {
			continue
		}
		return n, true
	}
	return actor.Vec2i{}, false
}
