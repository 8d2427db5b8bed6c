package world

import (
	"math"

	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
)

// stepBee cycles SEEKING_FOOD -> RETURNING like the ant, but works flowers
// instead of carrion. A delivery folds the carried pollen into the hive
// genome by an exponential moving average weighted by pollen quality. Bees
// stake territory marks as they fly and answer alarm signals carried on
// same-hive marks.
func stepBee(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if bs.State == "" {
		bs.State = stateSeeking
	}

	if bs.State != stateHunting {
		if rival, ok := ts.spotRival(a, def, actor.KindHive); ok {
			bs.PrevState = bs.State
			bs.State = stateHunting
			bs.TargetID = rival
			bs.HasCell = false
		} else if origin, ok := ts.consumeSignal(a, def, actor.KindTerritoryMark, actor.SignalUnderAttack); ok {
			bs.PrevState = bs.State
			bs.State = stateHunting
			bs.TargetID = ""
			bs.TargetCell = origin
			bs.HasCell = true
		}
	} else if bs.TargetID == "" && bs.HasCell {
		if _, ok := ts.consumeSignal(a, def, actor.KindTerritoryMark, actor.SignalAllClear); ok {
			ts.standDown(a, bs)
		}
	}

	switch bs.State {
	case stateHunting:
		ts.colonyHunt(a, def, bs)
	case stateReturning:
		ts.beeReturn(a, def, bs)
	default:
		ts.beeSeek(a, def, bs)
	}
}

func (ts *tickState) beeSeek(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	t, ok := ts.resolveTarget(bs)
	if ok && t.Kind != actor.KindFlower {
		bs.TargetID = ""
		ok = false
	}

	if ok && actor.Chebyshev(a.Pos, t.Pos) <= 1 {
		ts.tryPollinate(a, bs, t.ID, def)
		f, still := ts.alive(t.ID)
		if still && f.Growth >= 1 {
			bs.PollenID = f.ID
			bs.PollenGenome = f.Genome
			bs.Carry = clamp01(f.Attract)
			a.Stamina = math.Min(def.MaxStamina, a.Stamina+f.Nutrients*def.Param("nectar_factor", 3))
			bs.TargetID = ""
			bs.State = stateReturning
		} else if !still {
			bs.TargetID = ""
		}
		return
	}

	if !ok {
		if id, found := ts.bestFlower(a, def); found {
			bs.TargetID = id
			t, ok = ts.alive(id)
		}
	}
	if ok && ts.w.rng.Float64() >= def.WanderChance {
		from := a.Pos
		if ts.moveToward(a, def, t.Pos) > 0 {
			ts.leaveMark(a, from, nil)
		}
		return
	}
	ts.wander(a, def)
}

func (ts *tickState) beeReturn(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	hive, ok := ts.alive(a.HomeID)
	if !ok {
		bs.Carry = 0
		bs.State = stateSeeking
		return
	}
	if actor.Chebyshev(a.Pos, hive.Pos) <= 1 {
		hm := ts.mutate(hive.ID)
		quality := clamp01(bs.Carry)
		hm.Genome = genetics.Lerp(hm.Genome, bs.PollenGenome, def.Param("hive_ema", 0.2)*quality)
		hm.Stored += quality * def.Param("nectar_value", 2)
		bs.Carry = 0
		bs.State = stateSeeking
		return
	}
	from := a.Pos
	if ts.moveToward(a, def, hive.Pos) > 0 {
		ts.leaveMark(a, from, nil)
	}
}

// leaveMark stakes or refreshes a territory mark. Marks overwrite: a rival
// mark on the cell flips to this bee's hive.
func (ts *tickState) leaveMark(a *actor.Actor, cell actor.Vec2i, sig *actor.Signal) {
	if a.HomeID == "" || !ts.inBounds(cell) {
		return
	}
	if id, ok := ts.markAt[cell]; ok {
		if _, live := ts.alive(id); live {
			mm := ts.mutate(id)
			mm.OwnerID = a.HomeID
			mm.Lifespan = markLifespan
			if sig != nil {
				mm.Signal = sig
			}
			return
		}
	}
	ts.spawn(&actor.Actor{Kind: actor.KindTerritoryMark, Pos: cell, OwnerID: a.HomeID, Strength: 1, Lifespan: markLifespan, Signal: sig})
}
