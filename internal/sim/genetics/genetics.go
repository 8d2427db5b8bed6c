// Package genetics implements the genome operations shared by flowers and
// insects: crossover, multiplicative mutation, and trait scoring.
package genetics

import "math/rand/v2"

// NumGenes is the fixed length of every genome vector.
const NumGenes = 8

// Gene indices. The first four weigh a flower's core stats, the last four
// its effect axes.
const (
	GeneHealth = iota
	GeneStamina
	GeneToxicity
	GeneNutrients
	GeneFragrance
	GeneNectar
	GeneHue
	GeneSheen
)

// Genome is an ordered vector of real-valued trait weights. For insects the
// weights express flower preference; for flowers and hives they are the
// heritable material itself.
type Genome [NumGenes]float64

// Random draws a fresh genome with every gene uniform in [0,1).
func Random(rng *rand.Rand) Genome {
	var g Genome
	for i := range g {
		g[i] = rng.Float64()
	}
	return g
}

// Crossover builds a child by picking each gene uniformly from one of the
// two parents. Identical parents therefore always yield an identical child.
func Crossover(rng *rand.Rand, a, b Genome) Genome {
	var child Genome
	for i := 0; i < NumGenes; i++ {
		if rng.IntN(2) == 0 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

// Mutate returns a copy of g where each gene independently mutates with
// probability prob; a triggered gene is scaled by 1+u, u drawn uniformly
// from [-amount, +amount). One gate draw is consumed per gene and one scale
// draw per triggered gene, so the output is bit-exact for a fixed source.
func Mutate(rng *rand.Rand, g Genome, prob, amount float64) Genome {
	out := g
	for i := 0; i < NumGenes; i++ {
		if rng.Float64() < prob {
			u := (rng.Float64()*2 - 1) * amount
			out[i] *= 1 + u
		}
	}
	return out
}

// Lerp blends two genomes elementwise: a*(1-t) + b*t. Hives fold delivered
// pollen into their stored genome with this.
func Lerp(a, b Genome, t float64) Genome {
	var out Genome
	for i := range out {
		out[i] = a[i]*(1-t) + b[i]*t
	}
	return out
}

// Score rates a candidate's normalized trait vector against the genome: dot
// product of weights and traits minus a linear distance penalty.
func Score(g Genome, traits Genome, dist, distPenalty float64) float64 {
	var s float64
	for i := range g {
		s += g[i] * traits[i]
	}
	return s - dist*distPenalty
}
