package world

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
)

const (
	trendStable    = "stable"
	trendGrowing   = "growing"
	trendDeclining = "declining"
)

// trendSeries is a sliding window of population samples classified by the
// recency-weighted mean of per-sample growth rates.
type trendSeries struct {
	window  int
	samples []float64
}

func (t *trendSeries) push(v float64) {
	if t.window < 2 {
		t.window = 2
	}
	if len(t.samples) < t.window {
		t.samples = append(t.samples, v)
		return
	}
	copy(t.samples, t.samples[1:])
	t.samples[len(t.samples)-1] = v
}

// classify weighs later rates heavier so a fresh reversal shows up before
// the whole window turns over.
func (t *trendSeries) classify(minSamples int, grow, decline float64) string {
	if len(t.samples) < minSamples || len(t.samples) < 2 {
		return trendStable
	}
	rates := make([]float64, 0, len(t.samples)-1)
	weights := make([]float64, 0, len(t.samples)-1)
	for i := 1; i < len(t.samples); i++ {
		base := math.Max(t.samples[i-1], 1)
		rates = append(rates, (t.samples[i]-t.samples[i-1])/base)
		weights = append(weights, float64(i))
	}
	m := stat.Mean(rates, weights)
	switch {
	case m >= grow:
		return trendGrowing
	case m <= -decline:
		return trendDeclining
	}
	return trendStable
}

// populationManager watches the census and injects outside pressure:
// birds against booming insects, eagles against booming birds, roaches
// onto piling rot, and the herbicide plane against flower overgrowth.
// Each arrival sits behind its own cooldown.
type populationManager struct {
	trend tuning.Trend
	herb  tuning.Herbicide

	insects trendSeries
	birds   trendSeries
	decomp  trendSeries

	birdReady  uint64
	eagleReady uint64
	roachReady uint64
	planeReady uint64
}

func newPopulationManager(trend tuning.Trend, herb tuning.Herbicide) *populationManager {
	return &populationManager{
		trend:   trend,
		herb:    herb,
		insects: trendSeries{window: trend.Window},
		birds:   trendSeries{window: trend.Window},
		decomp:  trendSeries{window: trend.Window},
	}
}

func (pm *populationManager) step(ts *tickState) {
	if pm.trend.SampleEveryTicks > 0 && ts.tick%uint64(pm.trend.SampleEveryTicks) == 0 {
		pm.insects.push(float64(ts.census[actor.KindInsect]))
		pm.birds.push(float64(ts.census[actor.KindBird]))
		pm.decomp.push(float64(ts.census[actor.KindCorpse] + ts.census[actor.KindNutrient]))
	}

	insectTrend := pm.insects.classify(pm.trend.MinSamples, pm.trend.GrowThreshold, pm.trend.DeclineThreshold)
	decompTrend := pm.decomp.classify(pm.trend.MinSamples, pm.trend.GrowThreshold, pm.trend.DeclineThreshold)

	if insectTrend == trendGrowing && ts.tick >= pm.birdReady {
		if ts.arrive(actor.SpeciesBird, ts.randomEdgeCell()) != nil {
			pm.birdReady = ts.tick + uint64(pm.trend.BirdCooldownTicks)
			ts.eventf(protocol.SeverityWarn, 0.7, nil, "a bird swooped into the garden, drawn by the swarming insects")
		}
	}
	if insectTrend == trendDeclining && ts.census[actor.KindBird] >= pm.trend.EagleMinBirds && ts.tick >= pm.eagleReady {
		if ts.arrive(actor.SpeciesEagle, ts.randomEdgeCell()) != nil {
			pm.eagleReady = ts.tick + uint64(pm.trend.EagleCooldownTicks)
			ts.eventf(protocol.SeverityWarn, 0.8, nil, "an eagle circles overhead, hunting the garden's birds")
		}
	}
	if decompTrend == trendGrowing && ts.tick >= pm.roachReady {
		cell, ok := ts.randomFreeCell(20)
		if !ok {
			cell = ts.randomEdgeCell()
		}
		if ts.arrive(actor.SpeciesCockroach, cell) != nil {
			pm.roachReady = ts.tick + uint64(pm.trend.RoachCooldownTicks)
			ts.eventf(protocol.SeverityInfo, 0.5, &cell, "cockroaches crept in to feed on the rot")
		}
	}

	cells := float64(ts.w.tune.GridWidth * ts.w.tune.GridHeight)
	density := float64(ts.census[actor.KindFlower]) / cells
	if density > pm.herb.FlowerDensityThreshold && ts.census[actor.KindHerbicidePlane] == 0 && ts.tick >= pm.planeReady {
		if ts.arrive(actor.SpeciesPlane, actor.Vec2i{}) != nil {
			pm.planeReady = ts.tick + uint64(pm.trend.PlaneCooldownTicks)
			ts.eventf(protocol.SeverityAlert, 0.9, nil, "a crop duster approaches: the garden has grown too thick")
		}
	}
}

func (pm *populationManager) export() snapshot.PopulationV1 {
	return snapshot.PopulationV1{
		Insects:        append([]float64(nil), pm.insects.samples...),
		Birds:          append([]float64(nil), pm.birds.samples...),
		Decomp:         append([]float64(nil), pm.decomp.samples...),
		BirdReadyTick:  pm.birdReady,
		EagleReadyTick: pm.eagleReady,
		RoachReadyTick: pm.roachReady,
		PlaneReadyTick: pm.planeReady,
	}
}

func (pm *populationManager) restore(p snapshot.PopulationV1) {
	pm.insects.samples = append(pm.insects.samples[:0], p.Insects...)
	pm.birds.samples = append(pm.birds.samples[:0], p.Birds...)
	pm.decomp.samples = append(pm.decomp.samples[:0], p.Decomp...)
	pm.birdReady = p.BirdReadyTick
	pm.eagleReady = p.EagleReadyTick
	pm.roachReady = p.RoachReadyTick
	pm.planeReady = p.PlaneReadyTick
}

// arrive drops a fresh outsider of a species onto the grid.
func (ts *tickState) arrive(species string, pos actor.Vec2i) *actor.Actor {
	def, ok := ts.w.speciesDef(species)
	if !ok {
		ts.w.warnOnce("species:"+species, "unknown species %q: cannot spawn", species)
		return nil
	}
	return ts.spawn(&actor.Actor{
		Kind:    actor.Kind(def.Kind),
		Species: species,
		Pos:     pos,
		Health:  def.MaxHealth,
		Stamina: def.MaxStamina,
		Genome:  genetics.Random(ts.w.rng),
	})
}

// randomEdgeCell picks a uniformly random border cell; outsiders walk or
// fly in from off the grid.
func (ts *tickState) randomEdgeCell() actor.Vec2i {
	w, h := ts.w.tune.GridWidth, ts.w.tune.GridHeight
	switch ts.w.rng.IntN(4) {
	case 0:
		return actor.Vec2i{X: ts.w.rng.IntN(w), Y: 0}
	case 1:
		return actor.Vec2i{X: ts.w.rng.IntN(w), Y: h - 1}
	case 2:
		return actor.Vec2i{X: 0, Y: ts.w.rng.IntN(h)}
	default:
		return actor.Vec2i{X: w - 1, Y: ts.w.rng.IntN(h)}
	}
}

// randomFreeCell tries a bounded number of draws for an unoccupied,
// unclaimed cell.
func (ts *tickState) randomFreeCell(attempts int) (actor.Vec2i, bool) {
	for i := 0; i < attempts; i++ {
		c := actor.Vec2i{X: ts.w.rng.IntN(ts.w.tune.GridWidth), Y: ts.w.rng.IntN(ts.w.tune.GridHeight)}
		if _, taken := ts.occupied[c]; taken {
			continue
		}
		if _, claimed := ts.claimed[c]; claimed {
			continue
		}
		return c, true
	}
	return actor.Vec2i{}, false
}
