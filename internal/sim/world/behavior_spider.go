package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
)

// stepSpider runs the ambush predator: BUILDING -> REPAIRING -> AMBUSHING
// -> CONSUMING, re-decided only when the decision cooldown expires. Webs
// are scored onto cells that maximize nearby flower attraction, where prey
// traffic is densest.
func stepSpider(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if !bs.BudgetSet {
		bs.WebBudget = def.Param("web_budget", 10)
		bs.BudgetSet = true
	}
	bs.WebBudget = math.Min(def.Param("web_budget", 10), bs.WebBudget+def.Param("budget_regen", 0.05))

	if bs.Cooldown > 0 {
		bs.Cooldown--
	} else {
		ts.spiderDecide(a, def, bs)
		bs.Cooldown = int(def.Param("decide_every", 8))
	}

	switch bs.State {
	case stateBuilding:
		ts.spiderBuild(a, def, bs)
	case stateRepairing:
		ts.spiderRepair(a, def, bs)
	case stateConsuming:
		ts.spiderConsume(a, def, bs)
	default:
		ts.spiderAmbush(a, def, bs)
	}
}

// spiderDecide prunes dead webs and picks the next state from web
// inventory, the web stamina budget, and trapped prey.
func (ts *tickState) spiderDecide(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	live := bs.WebIDs[:0]
	trappedWeb := ""
	weakID := ""
	weakStrength := math.Inf(1)
	for _, id := range bs.WebIDs {
		w, ok := ts.alive(id)
		if !ok || w.Kind != actor.KindSpiderWeb || w.OwnerID != a.ID {
			continue
		}
		live = append(live, id)
		if w.TrappedID != "" && trappedWeb == "" {
			trappedWeb = id
		}
		if w.Strength < weakStrength {
			weakStrength, weakID = w.Strength, id
		}
	}
	bs.WebIDs = live

	buildCost := def.Param("build_cost", 3)
	switch {
	case trappedWeb != "":
		bs.State = stateConsuming
		bs.TargetID = trappedWeb
	case len(live) < int(def.Param("max_webs", 3)) && bs.WebBudget >= buildCost:
		if site, ok := ts.bestWebSite(a, def); ok {
			bs.State = stateBuilding
			bs.TargetCell = site
			bs.HasCell = true
		} else {
			bs.State = stateAmbushing
		}
	case weakID != "" && weakStrength < def.Param("repair_below", 3) && bs.WebBudget >= def.Param("repair_cost", 1):
		bs.State = stateRepairing
		bs.TargetID = weakID
	default:
		bs.State = stateAmbushing
	}
}

// bestWebSite scores free cells in vision by the flower attraction within
// two cells of each candidate.
func (ts *tickState) bestWebSite(a *actor.Actor, def catalogs.SpeciesDef) (actor.Vec2i, bool) {
	best := actor.Vec2i{}
	bestScore := math.Inf(-1)
	found := false
	for dy := -def.Vision; dy <= def.Vision; dy++ {
		for dx := -def.Vision; dx <= def.Vision; dx++ {
			cell := actor.Vec2i{X: a.Pos.X + dx, Y: a.Pos.Y + dy}
			if !ts.inBounds(cell) {
				continue
			}
			if _, webbed := ts.webAt[cell]; webbed {
				continue
			}
			if _, claimed := ts.claimed[cell]; claimed {
				continue
			}
			score := 0.0
			for _, p := range ts.visionFlowers(cell, 2) {
				if f, ok := ts.alive(p.ID); ok && f.Kind == actor.KindFlower {
					score += f.Attract
				}
			}
			if score > bestScore {
				bestScore, best, found = score, cell, true
			}
		}
	}
	return best, found
}

func (ts *tickState) spiderBuild(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	if !bs.HasCell {
		bs.State = stateAmbushing
		return
	}
	if a.Pos != bs.TargetCell {
		ts.moveToward(a, def, bs.TargetCell)
		return
	}
	bs.HasCell = false
	if _, webbed := ts.webAt[a.Pos]; webbed {
		bs.State = stateAmbushing
		return
	}
	web := ts.spawn(&actor.Actor{
		Kind:     actor.KindSpiderWeb,
		Pos:      a.Pos,
		OwnerID:  a.ID,
		Strength: def.Param("web_strength", 6),
		Lifespan: int(def.Param("web_lifespan", 400)),
	})
	bs.WebIDs = append(bs.WebIDs, web.ID)
	bs.WebBudget -= def.Param("build_cost", 3)
	bs.State = stateAmbushing
	ts.eventf(protocol.SeverityInfo, 0.35, &a.Pos, "a spider strung a web at (%d,%d)", a.Pos.X, a.Pos.Y)
}

func (ts *tickState) spiderRepair(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	web, ok := ts.resolveTarget(bs)
	if !ok || web.Kind != actor.KindSpiderWeb {
		bs.TargetID = ""
		bs.State = stateAmbushing
		return
	}
	if actor.Chebyshev(a.Pos, web.Pos) > 1 {
		ts.moveToward(a, def, web.Pos)
		return
	}
	wm := ts.mutate(web.ID)
	wm.Strength = math.Min(def.Param("web_strength", 6), wm.Strength+def.Param("repair_amount", 2))
	bs.WebBudget -= def.Param("repair_cost", 1)
	bs.TargetID = ""
	bs.State = stateAmbushing
}

func (ts *tickState) spiderConsume(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	web, ok := ts.resolveTarget(bs)
	if !ok || web.Kind != actor.KindSpiderWeb {
		bs.TargetID = ""
		bs.State = stateAmbushing
		return
	}
	prey, preyOK := ts.alive(web.TrappedID)
	if web.TrappedID == "" || !preyOK {
		if web.TrappedID != "" {
			ts.mutate(web.ID).TrappedID = ""
		}
		bs.TargetID = ""
		bs.State = stateAmbushing
		return
	}
	if actor.Chebyshev(a.Pos, web.Pos) > 1 {
		ts.moveToward(a, def, web.Pos)
		return
	}

	a.Health = math.Min(def.MaxHealth, a.Health+def.Param("prey_health", 8))
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+def.Param("prey_stamina", 8))
	if prey.HomeID != "" {
		kind := actor.KindPheromoneTrail
		if prey.Species == actor.SpeciesBee {
			kind = actor.KindTerritoryMark
		}
		ts.raiseAlarm(prey.HomeID, kind, prey.Pos)
	}
	preyDef, _ := ts.w.speciesDef(prey.Species)
	ts.remove(prey.ID)
	ts.spawn(&actor.Actor{
		Kind:    actor.KindCorpse,
		Pos:     web.Pos,
		Species: prey.Species,
		Food:    math.Max(1, preyDef.CorpseFood*0.5),
		Timer:   maxInt(preyDef.DecayTicks, 60),
	})
	ts.mutate(web.ID).TrappedID = ""
	ts.eventf(protocol.SeverityInfo, 0.5, &web.Pos, "a spider drained a trapped %s", displayName(prey))
	bs.TargetID = ""
	bs.State = stateAmbushing
}

// spiderAmbush waits beside the nearest web, wandering a little when the
// spider has none.
func (ts *tickState) spiderAmbush(a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	nearest := ""
	nearestDist := math.MaxInt32
	for _, id := range bs.WebIDs {
		w, ok := ts.alive(id)
		if !ok {
			continue
		}
		if d := actor.Chebyshev(a.Pos, w.Pos); d < nearestDist {
			nearestDist, nearest = d, id
		}
	}
	if nearest == "" {
		if ts.w.rng.Float64() < 0.3 {
			ts.wander(a, def)
		}
		return
	}
	if nearestDist > 1 {
		w, _ := ts.alive(nearest)
		ts.moveToward(a, def, w.Pos)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
