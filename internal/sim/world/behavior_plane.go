package world

import (
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
)

// stepPlane flies the herbicide plane across the grid in a serpentine
// sweep, shedding a smoke puff on every cell it crosses. The plane ignores
// stamina and terrain and despawns after clearing the last row.
func stepPlane(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard) {
	speed := ts.w.tune.Herbicide.PlaneSpeed
	if speed < 1 {
		speed = 1
	}
	for i := 0; i < speed; i++ {
		ts.dropSmoke(a.Pos)
		next, done := planeNext(a.Pos, ts.w.tune.GridWidth, ts.w.tune.GridHeight)
		if done {
			ts.remove(a.ID)
			ts.eventf(protocol.SeverityInfo, 0.6, nil, "the crop duster finished its pass and left")
			return
		}
		ts.moved(a.Pos, next)
		a.Pos = next
	}
}

// dropSmoke lays a smoke puff on the cell, refreshing an existing puff
// instead of stacking a second one.
func (ts *tickState) dropSmoke(cell actor.Vec2i) {
	ttl := ts.w.tune.Herbicide.SmokeTTLTicks
	for _, p := range ts.vision(cell, 0) {
		if o, ok := ts.alive(p.ID); ok && o.Kind == actor.KindHerbicideSmoke {
			ts.mutate(o.ID).Timer = ttl
			return
		}
	}
	ts.spawn(&actor.Actor{
		Kind:  actor.KindHerbicideSmoke,
		Pos:   cell,
		Timer: ttl,
	})
}

// planeNext advances one cell along the sweep: even rows run west to east,
// odd rows east to west, stepping down a row at each edge.
func planeNext(p actor.Vec2i, width, height int) (actor.Vec2i, bool) {
	next := p
	if p.Y%2 == 0 {
		if p.X < width-1 {
			next.X++
		} else {
			next.Y++
		}
	} else {
		if p.X > 0 {
			next.X--
		} else {
			next.Y++
		}
	}
	if next.Y >= height {
		return p, true
	}
	return next, false
}
