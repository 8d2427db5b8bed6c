package world

import (
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
)

// stepPollinator is the generic grazer: score every flower in sight by
// genome affinity, work toward the best one, feed on arrival, and spread
// pollen between mature plants. Butterflies and ladybugs differ only in
// their catalog stat blocks.
func stepPollinator(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	target, ok := ts.resolveTarget(bs)
	if ok && target.Kind != actor.KindFlower {
		bs.TargetID = ""
		ok = false
	}

	if ok && actor.Chebyshev(a.Pos, target.Pos) <= 1 {
		ts.tryPollinate(a, bs, target.ID, def)
		ts.graze(a, def, target.ID)
		if _, still := ts.alive(target.ID); !still {
			bs.TargetID = ""
		}
		ts.tryMate(a, bs, def)
		return
	}

	ts.tryMate(a, bs, def)

	if !ok {
		if id, found := ts.bestFlower(a, def); found {
			bs.TargetID = id
			target, ok = ts.alive(id)
		}
	}

	if ok && ts.w.rng.Float64() >= def.WanderChance {
		ts.moveToward(a, def, target.Pos)
		return
	}
	ts.wander(a, def)
}
