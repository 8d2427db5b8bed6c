// Package flowergen produces flower content: genomes bred from parents,
// climate-dependent realized stats, and sprite images. The simulation core
// only depends on the Generator interface; the in-process Local generator
// derives everything deterministically from its inputs so that two worlds
// with the same seed stay identical.
package flowergen

import (
	"context"
	"math"
	"math/rand/v2"

	"gardensim.ai/internal/sim/genetics"
)

// FlowerStats are the realized per-tick stats of a flower under a given
// climate. Toxicity is signed: negative values heal grazers.
type FlowerStats struct {
	Toxicity   float64
	Attract    float64
	Nutrients  float64
	GrowthRate float64
	Resilience float64 // health drift per tick; negative means wilting
	Effects    [4]float64
}

// Result is the product of one generation request.
type Result struct {
	Genome genetics.Genome
	Sex    string
	Image  []byte
}

// Generator is the external content boundary. Generate may be slow and is
// always called off the tick loop; Stats and Image are cheap and called
// inline. Implementations must be deterministic in their arguments.
type Generator interface {
	Generate(ctx context.Context, seed uint64, parents []genetics.Genome) (Result, error)
	Stats(g genetics.Genome, humidity, temperature float64) FlowerStats
	Image(g genetics.Genome, sex string) []byte
}

// Local is the in-process generator.
type Local struct {
	MutateProb   float64
	MutateAmount float64
}

// NewLocal returns a Local with the default breeding rates.
func NewLocal() *Local {
	return &Local{MutateProb: 0.15, MutateAmount: 0.2}
}

// Generate breeds a child genome from the parents (or draws a fresh one
// when no parents are given) and renders its sprite. The seed alone decides
// every draw.
func (l *Local) Generate(ctx context.Context, seed uint64, parents []genetics.Genome) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	var g genetics.Genome
	switch len(parents) {
	case 0:
		g = genetics.Random(rng)
	case 1:
		g = genetics.Mutate(rng, parents[0], l.MutateProb, l.MutateAmount)
	default:
		g = genetics.Crossover(rng, parents[0], parents[1])
		g = genetics.Mutate(rng, g, l.MutateProb, l.MutateAmount)
	}
	sex := "F"
	if rng.IntN(2) == 1 {
		sex = "M"
	}
	return Result{Genome: g, Sex: sex, Image: l.Image(g, sex)}, nil
}

// Stats maps a genome onto realized stats. Temperature pulls growth and
// resilience toward an optimum of 22 degrees; humidity feeds nutrients and
// attraction.
func (l *Local) Stats(g genetics.Genome, humidity, temperature float64) FlowerStats {
	comfort := 1 - math.Abs(temperature-22)/25
	if comfort < 0 {
		comfort = 0
	}
	s := FlowerStats{
		Toxicity:   (g[genetics.GeneToxicity] - 0.5) * 2,
		Attract:    clamp01(0.4*g[genetics.GeneFragrance] + 0.3*g[genetics.GeneHue] + 0.3*g[genetics.GeneSheen]) * (0.6 + 0.4*humidity),
		Nutrients:  g[genetics.GeneNutrients] * (0.5 + 0.5*humidity),
		GrowthRate: 0.02 * (0.25 + 0.75*comfort) * (0.5 + g[genetics.GeneHealth]),
		Resilience: (comfort-0.35)*0.2 + (g[genetics.GeneStamina]-0.5)*0.1,
	}
	s.Effects = [4]float64{
		g[genetics.GeneFragrance],
		g[genetics.GeneNectar],
		g[genetics.GeneHue],
		g[genetics.GeneSheen],
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
