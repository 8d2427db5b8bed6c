package world

import (
	"fmt"
	"sort"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/climate"
	"gardensim.ai/internal/sim/quadtree"
)

// trailKey addresses a pheromone trail by owner and cell. At most one trail
// per colony per cell exists; reinforcement strengthens it instead of
// stacking a second one.
type trailKey struct {
	Owner string
	Cell  actor.Vec2i
}

// tickState is the working context of one tick. snap is the frozen
// start-of-tick view every behavior perceives through; next is the only
// map written to, copy-on-write. Both start sharing actor pointers, so an
// actor must be cloned through mutate before any field changes.
type tickState struct {
	w    *World
	tick uint64

	snap  map[string]*actor.Actor
	next  map[string]*actor.Actor
	dirty map[string]bool
	added map[string]bool

	order []string // snapshot ids, sorted; the dispatch sequence

	all     *quadtree.Tree
	flowers *quadtree.Tree

	climate climate.Reading

	// Start-of-tick lookup maps, updated by same-tick spawns so exclusivity
	// rules hold within the tick as well.
	claimed  map[actor.Vec2i]string // flower/seed cells plus in-flight request cells
	trailAt  map[trailKey]string
	markAt   map[actor.Vec2i]string
	webAt    map[actor.Vec2i]string
	slimeAt  map[actor.Vec2i]string
	occupied map[actor.Vec2i]int

	members map[string]int // live ants/bees per colony or hive id
	census  map[actor.Kind]int

	// No flowers, corpses, or nutrients anywhere: grazing species take
	// scarcity decay this tick.
	starving bool

	events []protocol.NarrativeEvent

	qbuf []quadtree.Point
}

func (w *World) beginTick(nowTick uint64) *tickState {
	ts := &tickState{
		w:        w,
		tick:     nowTick,
		snap:     w.actors,
		next:     make(map[string]*actor.Actor, len(w.actors)+16),
		dirty:    map[string]bool{},
		added:    map[string]bool{},
		all:      quadtree.New(w.tune.GridWidth, w.tune.GridHeight),
		flowers:  quadtree.New(w.tune.GridWidth, w.tune.GridHeight),
		claimed:  map[actor.Vec2i]string{},
		trailAt:  map[trailKey]string{},
		markAt:   map[actor.Vec2i]string{},
		webAt:    map[actor.Vec2i]string{},
		slimeAt:  map[actor.Vec2i]string{},
		occupied: map[actor.Vec2i]int{},
		members:  map[string]int{},
		census:   map[actor.Kind]int{},
	}

	ts.order = make([]string, 0, len(w.actors))
	for id, a := range w.actors {
		ts.order = append(ts.order, id)
		ts.next[id] = a
		ts.all.Insert(a.Pos.X, a.Pos.Y, id)
		ts.occupied[a.Pos]++
		ts.census[a.Kind]++

		switch a.Kind {
		case actor.KindFlower:
			ts.flowers.Insert(a.Pos.X, a.Pos.Y, id)
			ts.claimed[a.Pos] = id
		case actor.KindFlowerSeed:
			ts.claimed[a.Pos] = id
		case actor.KindPheromoneTrail:
			ts.trailAt[trailKey{Owner: a.OwnerID, Cell: a.Pos}] = id
		case actor.KindTerritoryMark:
			ts.markAt[a.Pos] = id
		case actor.KindSpiderWeb:
			ts.webAt[a.Pos] = id
		case actor.KindSlimeTrail:
			ts.slimeAt[a.Pos] = id
		case actor.KindInsect, actor.KindCockroach:
			if a.HomeID != "" {
				ts.members[a.HomeID]++
			}
		}
	}
	sort.Strings(ts.order)

	// In-flight generation requests keep their cells reserved even before
	// this tick's placeholders land.
	for cell, id := range w.factory.byCell {
		if _, taken := ts.claimed[cell]; !taken {
			ts.claimed[cell] = id
		}
	}

	ts.starving = ts.census[actor.KindFlower] == 0 &&
		ts.census[actor.KindCorpse] == 0 &&
		ts.census[actor.KindNutrient] == 0

	return ts
}

// alive returns the live next-state copy of id. Behaviors perceive through
// the snapshot and indices, then cross-check here before acting.
func (ts *tickState) alive(id string) (*actor.Actor, bool) {
	a, ok := ts.next[id]
	return a, ok
}

// mutate returns a writable copy of id, cloning it into next on first use.
// The snapshot copy stays frozen for the rest of the tick.
func (ts *tickState) mutate(id string) *actor.Actor {
	a, ok := ts.next[id]
	if !ok {
		return nil
	}
	if ts.dirty[id] || ts.added[id] {
		return a
	}
	c := a.Clone()
	ts.next[id] = c
	ts.dirty[id] = true
	return c
}

// spawn assigns an id and inserts a freshly built actor into next-state,
// registering it in the per-tick lookup maps.
func (ts *tickState) spawn(a *actor.Actor) *actor.Actor {
	a.ID = ts.w.newID(a.Kind)
	ts.next[a.ID] = a
	ts.added[a.ID] = true
	ts.occupied[a.Pos]++

	switch a.Kind {
	case actor.KindFlower, actor.KindFlowerSeed:
		ts.claimed[a.Pos] = a.ID
	case actor.KindPheromoneTrail:
		ts.trailAt[trailKey{Owner: a.OwnerID, Cell: a.Pos}] = a.ID
	case actor.KindTerritoryMark:
		ts.markAt[a.Pos] = a.ID
	case actor.KindSpiderWeb:
		ts.webAt[a.Pos] = a.ID
	case actor.KindSlimeTrail:
		ts.slimeAt[a.Pos] = a.ID
	}
	return a
}

// remove drops id from next-state. The disappearance becomes a Remove
// delta at diff time.
func (ts *tickState) remove(id string) {
	a, ok := ts.next[id]
	if !ok {
		return
	}
	delete(ts.next, id)
	if n := ts.occupied[a.Pos]; n > 1 {
		ts.occupied[a.Pos] = n - 1
	} else {
		delete(ts.occupied, a.Pos)
	}
	switch a.Kind {
	case actor.KindFlower, actor.KindFlowerSeed:
		if ts.claimed[a.Pos] == id {
			delete(ts.claimed, a.Pos)
		}
	case actor.KindPheromoneTrail:
		k := trailKey{Owner: a.OwnerID, Cell: a.Pos}
		if ts.trailAt[k] == id {
			delete(ts.trailAt, k)
		}
	case actor.KindTerritoryMark:
		if ts.markAt[a.Pos] == id {
			delete(ts.markAt, a.Pos)
		}
	case actor.KindSpiderWeb:
		if ts.webAt[a.Pos] == id {
			delete(ts.webAt, a.Pos)
		}
	case actor.KindSlimeTrail:
		if ts.slimeAt[a.Pos] == id {
			delete(ts.slimeAt, a.Pos)
		}
	}
}

// moved keeps the occupancy map honest when an actor changes cells.
func (ts *tickState) moved(from, to actor.Vec2i) {
	if n := ts.occupied[from]; n > 1 {
		ts.occupied[from] = n - 1
	} else {
		delete(ts.occupied, from)
	}
	ts.occupied[to]++
}

// vision runs a Chebyshev range query against the start-of-tick index.
// The returned slice is reused across calls; do not retain it.
func (ts *tickState) vision(pos actor.Vec2i, radius int) []quadtree.Point {
	ts.qbuf = ts.qbuf[:0]
	ts.qbuf = ts.all.QueryInto(quadtree.Around(pos.X, pos.Y, radius), ts.qbuf)
	return ts.qbuf
}

// visionFlowers is vision against the flower-only index.
func (ts *tickState) visionFlowers(pos actor.Vec2i, radius int) []quadtree.Point {
	ts.qbuf = ts.qbuf[:0]
	ts.qbuf = ts.flowers.QueryInto(quadtree.Around(pos.X, pos.Y, radius), ts.qbuf)
	return ts.qbuf
}

// eventf records a narrative event for this tick's frame and the event log.
func (ts *tickState) eventf(severity string, importance float64, pos *actor.Vec2i, format string, args ...any) {
	ev := protocol.NarrativeEvent{
		Tick:       ts.tick,
		Message:    fmt.Sprintf(format, args...),
		Severity:   severity,
		Importance: importance,
	}
	if pos != nil {
		p := pos.ToArray()
		ev.Pos = &p
	}
	ts.events = append(ts.events, ev)
}

func (ts *tickState) inBounds(p actor.Vec2i) bool {
	return actor.InBounds(p, ts.w.tune.GridWidth, ts.w.tune.GridHeight)
}

// freeForPlanting reports whether a cell can take a flower or seed.
func (ts *tickState) freeForPlanting(p actor.Vec2i) bool {
	if !ts.inBounds(p) {
		return false
	}
	_, taken := ts.claimed[p]
	return !taken
}
