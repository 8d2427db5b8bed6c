package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
)

func stepBird(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	ts.predate(a, def, bs, actor.KindInsect, actor.KindCockroach)
}

func stepEagle(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	ts.predate(a, def, bs, actor.KindBird)
}

// predate hunts the nearest actor of the prey kinds. Adjacent prey is
// swallowed whole; its food value comes from its species decay value.
func (ts *tickState) predate(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard, preyKinds ...actor.Kind) {
	prey, ok := ts.resolveTarget(bs)
	if !ok || !kindIn(prey.Kind, preyKinds) {
		bs.TargetID = ""
		prey, ok = ts.nearestPrey(a, def, preyKinds)
		if ok {
			bs.TargetID = prey.ID
		}
	}
	if !ok {
		ts.wander(a, def)
		return
	}
	if actor.Chebyshev(a.Pos, prey.Pos) > 1 {
		ts.moveToward(a, def, prey.Pos)
		return
	}
	ts.devour(a, def, prey)
	bs.TargetID = ""
}

func (ts *tickState) nearestPrey(a *actor.Actor, def catalogs.SpeciesDef, preyKinds []actor.Kind) (*actor.Actor, bool) {
	var best *actor.Actor
	bestDist := math.MaxInt32
	for _, p := range ts.vision(a.Pos, def.Vision) {
		o, ok := ts.alive(p.ID)
		if !ok || !kindIn(o.Kind, preyKinds) {
			continue
		}
		if o.TrappedIn != "" {
			continue
		}
		if d := actor.Chebyshev(a.Pos, o.Pos); d < bestDist {
			bestDist, best = d, o
		}
	}
	return best, best != nil
}

// devour removes the prey outright. No corpse: swallowed prey leaves
// nothing for the decomposition chain.
func (ts *tickState) devour(a *actor.Actor, def catalogs.SpeciesDef, prey *actor.Actor) {
	preyDef, known := ts.w.speciesDef(prey.Species)
	food := 3.0
	if known && preyDef.CorpseFood > 0 {
		food = preyDef.CorpseFood
	}
	a.Health = math.Min(def.MaxHealth, a.Health+food*def.Param("prey_health", 2))
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+food*def.Param("prey_stamina", 3))
	if prey.HomeID != "" {
		kind := actor.KindPheromoneTrail
		if prey.Species == actor.SpeciesBee {
			kind = actor.KindTerritoryMark
		}
		ts.raiseAlarm(prey.HomeID, kind, prey.Pos)
	}
	ts.remove(prey.ID)
	ts.eventf(protocol.SeverityWarn, 0.55, &prey.Pos, "a %s snatched a %s", a.Species, displayName(prey))
}

func kindIn(k actor.Kind, kinds []actor.Kind) bool {
	for _, c := range kinds {
		if k == c {
			return true
		}
	}
	return false
}
