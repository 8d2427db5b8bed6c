package world

import (
	"math"
	"sort"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
)

// diff turns the tick's snap/next divergence into wire deltas: removals,
// then updates, then additions, each group sorted by id.
func (ts *tickState) diff() []protocol.Delta {
	var removes, updates, adds []protocol.Delta

	for id := range ts.snap {
		if _, ok := ts.next[id]; !ok {
			removes = append(removes, protocol.Delta{Op: protocol.OpRemove, ID: id})
		}
	}
	for id := range ts.dirty {
		cur, ok := ts.next[id]
		if !ok {
			continue // mutated, then removed the same tick
		}
		fields := changedFields(ts.snap[id], cur)
		if len(fields) == 0 {
			continue
		}
		updates = append(updates, protocol.Delta{Op: protocol.OpUpdate, ID: id, Fields: fields})
	}
	for id := range ts.added {
		if a, ok := ts.next[id]; ok {
			adds = append(adds, protocol.Delta{Op: protocol.OpAdd, ID: id, Actor: wireActor(a)})
		}
	}

	byID := func(ds []protocol.Delta) {
		sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
	}
	byID(removes)
	byID(updates)
	byID(adds)

	out := make([]protocol.Delta, 0, len(removes)+len(updates)+len(adds))
	out = append(out, removes...)
	out = append(out, updates...)
	out = append(out, adds...)
	return out
}

// wireActor renders an actor into its full wire form for Add deltas and
// keyframes.
func wireActor(a *actor.Actor) *protocol.ActorState {
	st := &protocol.ActorState{
		ID:       a.ID,
		Kind:     string(a.Kind),
		Species:  a.Species,
		Pos:      a.Pos.ToArray(),
		Health:   round3(a.Health),
		Stamina:  round3(a.Stamina),
		Sex:      a.Sex,
		Growth:   round3(a.Growth),
		Toxic:    round3(a.Toxicity),
		Attract:  round3(a.Attract),
		OwnerID:  a.OwnerID,
		HomeID:   a.HomeID,
		Strength: round3(a.Strength),
		Lifespan: a.Lifespan,
		Timer:    a.Timer,
		Food:     round3(a.Food),
		Stored:   round3(a.Stored),
	}
	if a.Kind == actor.KindFlower {
		eff := a.Effects
		st.Effects = &eff
		st.Image = a.Image
	}
	return st
}

// changedFields compares snapshot and live copies field by field, keyed by
// the wire tags. Float fields compare rounded to three decimals so slow
// climate drift on flowers does not emit an update every tick.
func changedFields(prev, cur *actor.Actor) map[string]any {
	f := map[string]any{}
	if prev.Pos != cur.Pos {
		f["pos"] = cur.Pos.ToArray()
	}
	diffF := func(key string, a, b float64) {
		if round3(a) != round3(b) {
			f[key] = round3(b)
		}
	}
	diffF("health", prev.Health, cur.Health)
	diffF("stamina", prev.Stamina, cur.Stamina)
	diffF("growth", prev.Growth, cur.Growth)
	diffF("toxicity", prev.Toxicity, cur.Toxicity)
	diffF("attract", prev.Attract, cur.Attract)
	diffF("strength", prev.Strength, cur.Strength)
	diffF("food", prev.Food, cur.Food)
	diffF("stored", prev.Stored, cur.Stored)
	if prev.Lifespan != cur.Lifespan {
		f["lifespan"] = cur.Lifespan
	}
	if prev.Timer != cur.Timer {
		f["timer"] = cur.Timer
	}
	if prev.OwnerID != cur.OwnerID {
		f["owner_id"] = cur.OwnerID
	}
	if cur.Kind == actor.KindFlower {
		for i := range cur.Effects {
			if round3(prev.Effects[i]) != round3(cur.Effects[i]) {
				eff := cur.Effects
				f["effects"] = &eff
				break
			}
		}
	}
	return f
}

// summary is the post-tick census by kind.
func (ts *tickState) summary() map[string]int {
	return censusOf(ts.next)
}

func censusOf(actors map[string]*actor.Actor) map[string]int {
	s := make(map[string]int, 18)
	for _, a := range actors {
		s[string(a.Kind)]++
	}
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
