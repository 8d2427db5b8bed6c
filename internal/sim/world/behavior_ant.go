package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
)

// stepAnt cycles SEEKING_FOOD -> RETURNING, interrupted into HUNTING by a
// rival in sight or a same-colony under-attack signal. Outbound pathing
// follows pheromone gradients; returning ants reinforce the trail scaled
// by what they carry.
func stepAnt(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if bs.State == "" {
		bs.State = stateSeeking
	}

	if bs.State != stateHunting {
		if rival, ok := ts.spotRival(a, def, actor.KindAntColony); ok {
			bs.PrevState = bs.State
			bs.State = stateHunting
			bs.TargetID = rival
			bs.HasCell = false
		} else if origin, ok := ts.consumeSignal(a, def, actor.KindPheromoneTrail, actor.SignalUnderAttack); ok {
			bs.PrevState = bs.State
			bs.State = stateHunting
			bs.TargetID = ""
			bs.TargetCell = origin
			bs.HasCell = true
		}
	}

	switch bs.State {
	case stateHunting:
		ts.colonyHunt(a, def, bs)
	case stateReturning:
		ts.antReturn(a, def, bs)
	default:
		ts.antSeek(a, def, bs)
	}
}

func (ts *tickState) antSeek(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	ts.emergencyEat(a, def, bs)
	if bs.Carry > 0 {
		bs.State = stateReturning
		ts.antReturn(a, def, bs)
		return
	}

	t, ok := ts.resolveTarget(bs)
	if ok && !harvestable(t.Kind) {
		bs.TargetID = ""
		ok = false
	}
	if ok && actor.Chebyshev(a.Pos, t.Pos) <= 1 {
		if ts.harvest(a, def, bs, t.ID) && bs.Carry > 0 {
			bs.State = stateReturning
		}
		if _, still := ts.alive(t.ID); !still {
			bs.TargetID = ""
		}
		return
	}
	if !ok {
		if id, found := ts.nearestFood(a, def); found {
			bs.TargetID = id
			t, ok = ts.alive(id)
		}
	}
	if ok {
		ts.moveToward(a, def, t.Pos)
		return
	}
	if ts.followGradient(a, def) {
		return
	}
	ts.wander(a, def)
}

func (ts *tickState) antReturn(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	ts.emergencyEat(a, def, bs)
	if bs.State != stateReturning {
		return // emergency-eat exhausted the load; back to foraging next pass
	}
	colony, ok := ts.alive(a.HomeID)
	if !ok {
		// Home is gone. Keep the food as a meal and forage on.
		a.Stamina = math.Min(def.MaxStamina, a.Stamina+bs.Carry*def.Param("food_stamina", 6))
		bs.Carry = 0
		bs.State = stateSeeking
		return
	}
	if actor.Chebyshev(a.Pos, colony.Pos) <= 1 {
		cm := ts.mutate(colony.ID)
		cm.Stored += bs.Carry
		bs.Carry = 0
		bs.State = stateSeeking
		return
	}
	from := a.Pos
	if ts.moveToward(a, def, colony.Pos) > 0 {
		ts.reinforceTrail(a, from, bs)
	}
}

// colonyHunt drives HUNTING for both ants and bees: close on the target,
// trade stamina for damage, stand down when it dies or the pool runs dry.
func (ts *tickState) colonyHunt(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	t, ok := ts.resolveTarget(bs)
	if !ok && bs.HasCell {
		if a.Pos == bs.TargetCell {
			bs.HasCell = false
		} else {
			structKind := actor.KindAntColony
			if a.Species == actor.SpeciesBee {
				structKind = actor.KindHive
			}
			if rival, found := ts.spotRival(a, def, structKind); found {
				bs.TargetID = rival
				t, ok = ts.alive(rival)
			} else {
				ts.moveToward(a, def, bs.TargetCell)
				return
			}
		}
	}
	if !ok {
		ts.standDown(a, bs)
		return
	}
	if actor.Chebyshev(a.Pos, t.Pos) <= 1 {
		if ts.attack(a, def, t.ID) {
			bs.TargetID = ""
			ts.standDown(a, bs)
		} else if a.Stamina < def.AttackCost {
			bs.TargetID = ""
			ts.standDown(a, bs)
		}
		return
	}
	ts.moveToward(a, def, t.Pos)
}

// standDown leaves HUNTING for the interrupted state. Bees post an
// all-clear for hivemates still answering the alarm.
func (ts *tickState) standDown(a *actor.Actor, bs *blackboard) {
	prev := bs.PrevState
	if prev == "" || prev == stateHunting {
		prev = stateSeeking
	}
	bs.State = prev
	bs.PrevState = ""
	bs.HasCell = false
	if a.Species == actor.SpeciesBee && a.HomeID != "" {
		ts.leaveMark(a, a.Pos, &actor.Signal{Type: actor.SignalAllClear, Origin: a.Pos, TTL: signalTTL})
	}
}

// spotRival returns the nearest same-caste member of another colony, or a
// rival colony structure itself.
func (ts *tickState) spotRival(a *actor.Actor, def catalogs.SpeciesDef, structKind actor.Kind) (string, bool) {
	if a.HomeID == "" {
		return "", false
	}
	bestID := ""
	bestDist := math.MaxInt32
	for _, p := range ts.vision(a.Pos, def.Vision) {
		if p.ID == a.ID {
			continue
		}
		o, ok := ts.alive(p.ID)
		if !ok {
			continue
		}
		rival := (o.Kind == a.Kind && o.Species == a.Species && o.HomeID != "" && o.HomeID != a.HomeID) ||
			(o.Kind == structKind && o.ID != a.HomeID)
		if !rival {
			continue
		}
		if d := actor.Chebyshev(a.Pos, o.Pos); d < bestDist {
			bestDist, bestID = d, o.ID
		}
	}
	return bestID, bestID != ""
}

// consumeSignal reads and clears the first matching signal on a same-owner
// marker in sight. The first reader in dispatch order wins the signal.
func (ts *tickState) consumeSignal(a *actor.Actor, def catalogs.SpeciesDef, kind actor.Kind, sigType string) (actor.Vec2i, bool) {
	if a.HomeID == "" {
		return actor.Vec2i{}, false
	}
	for _, p := range ts.vision(a.Pos, def.Vision) {
		m, ok := ts.alive(p.ID)
		if !ok || m.Kind != kind || m.OwnerID != a.HomeID || m.Signal == nil || m.Signal.Type != sigType {
			continue
		}
		origin := m.Signal.Origin
		ts.mutate(m.ID).Signal = nil
		return origin, true
	}
	return actor.Vec2i{}, false
}

// emergencyEat nibbles the carried load when stamina turns critical. An
// exhausted load flips a returning ant back to foraging.
func (ts *tickState) emergencyEat(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if bs.Carry <= 0 || a.Stamina > def.MaxStamina*def.Param("emergency_frac", 0.15) {
		return
	}
	bite := math.Min(bs.Carry, def.Param("emergency_bite", 1))
	bs.Carry -= bite
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+bite*def.Param("food_stamina", 6))
	if bs.Carry <= 0 && bs.State == stateReturning {
		bs.State = stateSeeking
	}
}

func harvestable(k actor.Kind) bool {
	switch k {
	case actor.KindCorpse, actor.KindNutrient, actor.KindEgg, actor.KindCocoon:
		return true
	}
	return false
}

// harvest takes food from an adjacent item: corpses and nutrients a
// bounded bite per visit, rival eggs and cocoons wholesale.
func (ts *tickState) harvest(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard, id string) bool {
	t, ok := ts.alive(id)
	if !ok {
		return false
	}
	switch t.Kind {
	case actor.KindCorpse, actor.KindNutrient:
		tm := ts.mutate(id)
		bite := math.Min(tm.Food, def.Param("harvest_bite", 2))
		if bite <= 0 {
			return false
		}
		tm.Food -= bite
		bs.Carry += bite
		if tm.Food <= 0 {
			ts.remove(id)
		}
		return true
	case actor.KindEgg, actor.KindCocoon:
		if t.HomeID != "" && t.HomeID == a.HomeID {
			return false
		}
		bs.Carry += def.Param("brood_food", 3)
		ts.remove(id)
		ts.eventf(protocol.SeverityInfo, 0.35, &t.Pos, "a %s carried off a brood item", displayName(a))
		return true
	}
	return false
}

// nearestFood scans vision for the closest harvestable item that is not
// the colony's own brood.
func (ts *tickState) nearestFood(a *actor.Actor, def catalogs.SpeciesDef) (string, bool) {
	bestID := ""
	bestDist := math.MaxInt32
	for _, p := range ts.vision(a.Pos, def.Vision) {
		o, ok := ts.alive(p.ID)
		if !ok || !harvestable(o.Kind) {
			continue
		}
		if (o.Kind == actor.KindEgg || o.Kind == actor.KindCocoon) && o.HomeID != "" && o.HomeID == a.HomeID {
			continue
		}
		if d := actor.Chebyshev(a.Pos, o.Pos); d < bestDist {
			bestDist, bestID = d, o.ID
		}
	}
	return bestID, bestID != ""
}

// followGradient climbs same-colony pheromone strength, biased away from
// the colony so foragers run the trail outward, not home.
func (ts *tickState) followGradient(a *actor.Actor, def catalogs.SpeciesDef) bool {
	if a.HomeID == "" || a.Stamina < def.MoveCost {
		return false
	}
	colony, hasHome := ts.alive(a.HomeID)
	best := ts.trailStrengthAt(a.HomeID, a.Pos)
	bestCell := a.Pos
	found := false
	for _, n := range actor.Neighbors8(a.Pos) {
		if !ts.inBounds(n) {
			continue
		}
		s := ts.trailStrengthAt(a.HomeID, n)
		if s <= best {
			continue
		}
		if hasHome && actor.Chebyshev(n, colony.Pos) < actor.Chebyshev(a.Pos, colony.Pos) {
			continue
		}
		best, bestCell, found = s, n, true
	}
	if !found {
		return false
	}
	from := a.Pos
	a.Pos = bestCell
	a.Stamina -= def.MoveCost
	ts.moved(from, bestCell)
	ts.trapCheck(a)
	return true
}

func (ts *tickState) trailStrengthAt(owner string, cell actor.Vec2i) float64 {
	id, ok := ts.trailAt[trailKey{Owner: owner, Cell: cell}]
	if !ok {
		return 0
	}
	t, live := ts.alive(id)
	if !live {
		return 0
	}
	return t.Strength
}

// reinforceTrail deposits pheromone on the cell just departed, scaled by
// the value of the carried load.
func (ts *tickState) reinforceTrail(a *actor.Actor, cell actor.Vec2i, bs *blackboard) {
	if a.HomeID == "" {
		return
	}
	dep := trailDeposit * (1 + bs.Carry*0.5)
	key := trailKey{Owner: a.HomeID, Cell: cell}
	if id, ok := ts.trailAt[key]; ok {
		if _, live := ts.alive(id); live {
			tm := ts.mutate(id)
			tm.Strength += dep
			if tm.Lifespan < trailLifespan {
				tm.Lifespan = trailLifespan
			}
			return
		}
	}
	ts.spawn(&actor.Actor{Kind: actor.KindPheromoneTrail, Pos: cell, OwnerID: a.HomeID, Strength: dep, Lifespan: trailLifespan})
}
