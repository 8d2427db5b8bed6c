package world

import (
	"fmt"
	"sort"

	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/climate"
	"gardensim.ai/internal/sim/genetics"
)

// ExportSnapshot captures the complete post-tick state. Safe only on the
// loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	rngState, _ := w.rngSrc.MarshalBinary()
	cs := w.climate.Export()

	s := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: w.cfg.ID, Tick: nowTick},
		Params: w.tune,
		RNG:    rngState,
		Climate: snapshot.ClimateV1{
			Event:     cs.Event,
			Until:     cs.Until,
			TempDelta: cs.TempDelta,
			HumDelta:  cs.HumDelta,
			WindDelta: cs.WindDelta,
		},
		Population:    w.pop.export(),
		Counters:      make(map[string]uint64, len(w.counters)),
		NextReq:       w.factory.nextReq,
		Pending:       w.factory.ExportPending(),
		SpeciesDigest: w.cats.Species.DefsDigest,
		WeatherDigest: w.cats.Weather.Digest,
	}
	for k, n := range w.counters {
		s.Counters[string(k)] = n
	}

	ids := make([]string, 0, len(w.actors))
	for id := range w.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.Actors = make([]snapshot.ActorV1, 0, len(ids))
	for _, id := range ids {
		s.Actors = append(s.Actors, actorToV1(w.actors[id]))
	}
	return s
}

// ImportSnapshot replaces the in-memory state with the snapshot and sets
// the tick to snapshotTick+1, the next tick to simulate. Call only while
// the loop is stopped. Seed and grid size must match the running config;
// everything else in the recorded params is adopted as authoritative.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.tune.Seed != s.Params.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.tune.Seed, s.Params.Seed)
	}
	if w.tune.GridWidth != s.Params.GridWidth || w.tune.GridHeight != s.Params.GridHeight {
		return fmt.Errorf("snapshot grid mismatch: cfg=%dx%d snap=%dx%d",
			w.tune.GridWidth, w.tune.GridHeight, s.Params.GridWidth, s.Params.GridHeight)
	}
	if s.SpeciesDigest != "" && s.SpeciesDigest != w.cats.Species.DefsDigest {
		w.logf("species catalog changed since snapshot (was %.8s, now %.8s)", s.SpeciesDigest, w.cats.Species.DefsDigest)
	}
	if s.WeatherDigest != "" && s.WeatherDigest != w.cats.Weather.Digest {
		w.logf("weather catalog changed since snapshot (was %.8s, now %.8s)", s.WeatherDigest, w.cats.Weather.Digest)
	}

	tickRate := w.tune.TickRateHz
	w.tune = s.Params
	if w.tune.TickRateHz <= 0 {
		w.tune.TickRateHz = tickRate
	}
	w.climate = climate.New(climateConfig(w.tune.Climate), weatherEvents(w.cats.Weather))
	w.climate.Restore(climate.State{
		Event:     s.Climate.Event,
		Until:     s.Climate.Until,
		TempDelta: s.Climate.TempDelta,
		HumDelta:  s.Climate.HumDelta,
		WindDelta: s.Climate.WindDelta,
	})
	w.pop = newPopulationManager(w.tune.Trend, w.tune.Herbicide)
	w.pop.restore(s.Population)

	if len(s.RNG) > 0 {
		if err := w.rngSrc.UnmarshalBinary(s.RNG); err != nil {
			return fmt.Errorf("rng state: %w", err)
		}
	}

	w.counters = make(map[actor.Kind]uint64, len(s.Counters))
	for k, n := range s.Counters {
		w.counters[actor.Kind(k)] = n
	}

	w.actors = make(map[string]*actor.Actor, len(s.Actors))
	for i := range s.Actors {
		a := actorFromV1(s.Actors[i])
		if !a.Kind.Valid() {
			w.logf("snapshot actor %s has unknown kind %q: dropped", a.ID, a.Kind)
			continue
		}
		if a.Kind == actor.KindFlower {
			a.Image = w.gen.Image(a.Genome, a.Sex)
		}
		w.actors[a.ID] = a
	}
	w.blackboards = map[string]*blackboard{}
	w.pendingPlants = nil
	w.recordedPlants = nil

	// Unresolved generation requests are re-issued with their recorded
	// seeds and re-bound to the seed placeholders standing on their cells.
	w.factory.Reset()
	if w.tune.Factory.MaxInFlight > 0 {
		w.factory.max = w.tune.Factory.MaxInFlight
	}
	w.factory.RestorePending(s.Pending, s.NextReq)
	for _, a := range w.actors {
		if a.Kind == actor.KindFlowerSeed && a.ReqID != "" {
			w.factory.Bind(a.ReqID, a.ID)
		}
	}

	w.tick.Store(s.Header.Tick + 1)
	return nil
}

func actorToV1(a *actor.Actor) snapshot.ActorV1 {
	v := snapshot.ActorV1{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Species:   a.Species,
		X:         a.Pos.X,
		Y:         a.Pos.Y,
		Health:    a.Health,
		Stamina:   a.Stamina,
		Age:       a.Age,
		Genome:    [8]float64(a.Genome),
		Sex:       a.Sex,
		Growth:    a.Growth,
		Toxicity:  a.Toxicity,
		Attract:   a.Attract,
		Nutrients: a.Nutrients,
		Effects:   a.Effects,
		Timer:     a.Timer,
		ReqID:     a.ReqID,
		OwnerID:   a.OwnerID,
		Strength:  a.Strength,
		Lifespan:  a.Lifespan,
		HomeID:    a.HomeID,
		Stored:    a.Stored,
		TrappedID: a.TrappedID,
		TrappedIn: a.TrappedIn,
		Food:      a.Food,
	}
	if a.Signal != nil {
		v.Signal = &snapshot.SignalV1{Type: a.Signal.Type, OriginX: a.Signal.Origin.X, OriginY: a.Signal.Origin.Y, TTL: a.Signal.TTL}
	}
	return v
}

func actorFromV1(v snapshot.ActorV1) *actor.Actor {
	a := &actor.Actor{
		ID:        v.ID,
		Kind:      actor.Kind(v.Kind),
		Species:   v.Species,
		Pos:       actor.Vec2i{X: v.X, Y: v.Y},
		Health:    v.Health,
		Stamina:   v.Stamina,
		Age:       v.Age,
		Genome:    genetics.Genome(v.Genome),
		Sex:       v.Sex,
		Growth:    v.Growth,
		Toxicity:  v.Toxicity,
		Attract:   v.Attract,
		Nutrients: v.Nutrients,
		Effects:   v.Effects,
		Timer:     v.Timer,
		ReqID:     v.ReqID,
		OwnerID:   v.OwnerID,
		Strength:  v.Strength,
		Lifespan:  v.Lifespan,
		HomeID:    v.HomeID,
		Stored:    v.Stored,
		TrappedID: v.TrappedID,
		TrappedIn: v.TrappedIn,
		Food:      v.Food,
	}
	if v.Signal != nil {
		a.Signal = &actor.Signal{Type: v.Signal.Type, Origin: actor.Vec2i{X: v.Signal.OriginX, Y: v.Signal.OriginY}, TTL: v.Signal.TTL}
	}
	return a
}
