// Package actor defines the tagged-union actor record shared by the
// simulation core, persistence, and the renderer protocol.
package actor

import (
	"fmt"
	"strings"

	"gardensim.ai/internal/sim/genetics"
)

// Kind tags the concrete variant an Actor represents.
type Kind string

const (
	KindFlower         Kind = "FLOWER"
	KindFlowerSeed     Kind = "FLOWER_SEED"
	KindInsect         Kind = "INSECT"
	KindCockroach      Kind = "COCKROACH"
	KindEgg            Kind = "EGG"
	KindCocoon         Kind = "COCOON"
	KindCorpse         Kind = "CORPSE"
	KindNutrient       Kind = "NUTRIENT"
	KindBird           Kind = "BIRD"
	KindEagle          Kind = "EAGLE"
	KindSlimeTrail     Kind = "SLIME_TRAIL"
	KindPheromoneTrail Kind = "PHEROMONE_TRAIL"
	KindTerritoryMark  Kind = "TERRITORY_MARK"
	KindSpiderWeb      Kind = "SPIDER_WEB"
	KindAntColony      Kind = "ANT_COLONY"
	KindHive           Kind = "HIVE"
	KindHerbicidePlane Kind = "HERBICIDE_PLANE"
	KindHerbicideSmoke Kind = "HERBICIDE_SMOKE"
)

// Species identifiers route mobile actors through the behavior table.
const (
	SpeciesButterfly = "butterfly"
	SpeciesLadybug   = "ladybug"
	SpeciesAnt       = "ant"
	SpeciesBee       = "bee"
	SpeciesSpider    = "spider"
	SpeciesCockroach = "cockroach"
	SpeciesBird      = "bird"
	SpeciesEagle     = "eagle"
	SpeciesPlane     = "plane"
)

// Signal types carried by pheromone trails and territory marks.
const (
	SignalUnderAttack = "UNDER_ATTACK"
	SignalAllClear    = "ALL_CLEAR"
)

// Signal is a time-limited message riding on a trail or mark. It propagates
// to same-owner neighbors by bounded flood fill and is consumed by the first
// same-tick reader or expires.
type Signal struct {
	Type   string `json:"type"`
	Origin Vec2i  `json:"origin"`
	TTL    int    `json:"ttl"`
}

// Actor is the single concrete record for every entity on the grid. Kind
// selects which field groups are meaningful; unused fields stay zero.
type Actor struct {
	ID      string
	Kind    Kind
	Species string // behavior table key for mobile kinds; brood carries it forward

	Pos Vec2i

	Health  float64
	Stamina float64
	Age     int

	// Flower material and realized stats.
	Genome    genetics.Genome
	Sex       string
	Growth    float64 // 0..1, mature at 1
	Toxicity  float64 // negative values heal grazers
	Attract   float64
	Nutrients float64
	Effects   [4]float64

	// Image is the rendered sprite for flowers. It is derived from the
	// genome, regenerated on snapshot load, and excluded from digests.
	Image []byte

	// Timer counts down brood transitions, corpse decay, and smoke.
	Timer int

	// ReqID names the in-flight generation request backing a FLOWER_SEED.
	ReqID string

	// Trails, marks, webs, smoke.
	OwnerID  string
	Strength float64
	Lifespan int
	Signal   *Signal

	// Colony and hive state.
	HomeID string
	Stored float64

	// Web entanglement. Both sides hold the other's id; the ids are
	// re-resolved against live state every tick and cleared when stale.
	TrappedID string
	TrappedIn string

	// Remaining food value of corpses and nutrients.
	Food float64
}

// Clone returns an independent copy safe to mutate in the next-state map
// while the snapshot copy stays frozen.
func (a *Actor) Clone() *Actor {
	c := *a
	if a.Signal != nil {
		s := *a.Signal
		c.Signal = &s
	}
	if a.Image != nil {
		c.Image = append([]byte(nil), a.Image...)
	}
	return &c
}

// Mobile reports whether the kind routes through the behavior table.
func (k Kind) Mobile() bool {
	switch k {
	case KindInsect, KindCockroach, KindBird, KindEagle, KindHerbicidePlane:
		return true
	}
	return false
}

// ClaimsCell reports whether the kind occupies a cell exclusively for
// planting purposes.
func (k Kind) ClaimsCell() bool {
	return k == KindFlower || k == KindFlowerSeed
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindFlower, KindFlowerSeed, KindInsect, KindCockroach, KindEgg,
		KindCocoon, KindCorpse, KindNutrient, KindBird, KindEagle,
		KindSlimeTrail, KindPheromoneTrail, KindTerritoryMark, KindSpiderWeb,
		KindAntColony, KindHive, KindHerbicidePlane, KindHerbicideSmoke:
		return true
	}
	return false
}

// FormatID builds the stable id for the n-th actor of a kind, e.g.
// "flower-seed-17". Counters never rewind, so ids are never reused.
func FormatID(k Kind, n uint64) string {
	return fmt.Sprintf("%s-%d", strings.ReplaceAll(strings.ToLower(string(k)), "_", "-"), n)
}
