package main

import (
	"fmt"
	"log"

	"gardensim.ai/internal/persistence/indexdb"
	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/genetics"
)

// Flowers at or above this attraction are worth banking.
const notableAttract = 0.75

// seedBank adapts the sqlite index to the ws transport's resolver.
type seedBank struct {
	idx *indexdb.SQLiteIndex
}

func (b seedBank) Resolve(bankID int64) (genetics.Genome, bool, error) {
	e, ok, err := b.idx.SeedByID(bankID)
	if err != nil || !ok {
		return genetics.Genome{}, false, err
	}
	return e.Genome, true, nil
}

// autoBanker saves the genome of the most attractive flower in each
// snapshot, once per flower unless it improved, so gardeners can replant
// standouts long after the original wilted.
type autoBanker struct {
	idx       *indexdb.SQLiteIndex
	threshold float64
	banked    map[string]float64
}

func newAutoBanker(idx *indexdb.SQLiteIndex, threshold float64) *autoBanker {
	return &autoBanker{idx: idx, threshold: threshold, banked: map[string]float64{}}
}

func (b *autoBanker) BankNotable(snap snapshot.SnapshotV1, logger *log.Logger) {
	if b.idx == nil {
		return
	}
	best := b.threshold
	var pick *snapshot.ActorV1
	for i := range snap.Actors {
		a := &snap.Actors[i]
		if actor.Kind(a.Kind) != actor.KindFlower {
			continue
		}
		if prev, seen := b.banked[a.ID]; seen && a.Attract <= prev {
			continue
		}
		if a.Attract >= best {
			best, pick = a.Attract, a
		}
	}
	if pick == nil {
		return
	}
	id, err := b.idx.SaveSeed(indexdb.SeedEntry{
		Label:    fmt.Sprintf("notable-%d", snap.Header.Tick),
		Genome:   pick.Genome,
		Sex:      pick.Sex,
		SourceID: pick.ID,
		Attract:  pick.Attract,
		Toxicity: pick.Toxicity,
		Tick:     snap.Header.Tick,
		X:        pick.X,
		Y:        pick.Y,
	})
	if err != nil {
		logger.Printf("seed bank: %v", err)
		return
	}
	b.banked[pick.ID] = pick.Attract
	logger.Printf("seed bank: flower %s attract=%.2f banked as seed %d", pick.ID, pick.Attract, id)
}
