package world

import (
	"sort"

	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/genetics"
)

// populate seeds a fresh garden: flowers scattered over a shuffled cell
// deck, ant colonies and hives with their broods, then the loose starting
// populations. Spawn order is fixed so equal seeds produce equal gardens.
func (w *World) populate() {
	r0 := w.climate.At(0)

	cells := make([]actor.Vec2i, 0, w.tune.GridWidth*w.tune.GridHeight)
	for y := 0; y < w.tune.GridHeight; y++ {
		for x := 0; x < w.tune.GridWidth; x++ {
			cells = append(cells, actor.Vec2i{X: x, Y: y})
		}
	}
	for i := len(cells) - 1; i > 0; i-- {
		j := w.rng.IntN(i + 1)
		cells[i], cells[j] = cells[j], cells[i]
	}
	nextCell := 0
	draw := func() (actor.Vec2i, bool) {
		if nextCell >= len(cells) {
			return actor.Vec2i{}, false
		}
		c := cells[nextCell]
		nextCell++
		return c, true
	}

	for i := 0; i < w.tune.InitialFlowers; i++ {
		cell, ok := draw()
		if !ok {
			w.logf("initial flowers truncated at %d: grid exhausted", i)
			break
		}
		g := genetics.Random(w.rng)
		sex := "F"
		if w.rng.IntN(2) == 1 {
			sex = "M"
		}
		st := w.gen.Stats(g, r0.Humidity, r0.Temperature)
		w.insert(&actor.Actor{
			Kind:      actor.KindFlower,
			Pos:       cell,
			Health:    60 + w.rng.Float64()*30,
			Genome:    g,
			Sex:       sex,
			Growth:    0.5 + w.rng.Float64()*0.5,
			Toxicity:  st.Toxicity,
			Attract:   st.Attract,
			Nutrients: st.Nutrients,
			Effects:   st.Effects,
			Image:     w.gen.Image(g, sex),
		})
	}

	w.foundNests(actor.KindAntColony, actor.SpeciesAnt, w.tune.AntColonies, w.tune.AntsPerColony, draw)
	w.foundNests(actor.KindHive, actor.SpeciesBee, w.tune.Hives, w.tune.BeesPerHive, draw)

	species := make([]string, 0, len(w.tune.InitialPopulation))
	for sp := range w.tune.InitialPopulation {
		species = append(species, sp)
	}
	sort.Strings(species)
	for _, sp := range species {
		def, ok := w.speciesDef(sp)
		if !ok {
			w.logf("initial_population: unknown species %q skipped", sp)
			continue
		}
		for i := 0; i < w.tune.InitialPopulation[sp]; i++ {
			cell, ok := draw()
			if !ok {
				w.logf("initial %s truncated at %d: grid exhausted", sp, i)
				break
			}
			w.insert(&actor.Actor{
				Kind:    actor.Kind(def.Kind),
				Species: sp,
				Pos:     cell,
				Health:  def.MaxHealth,
				Stamina: def.MaxStamina,
				Genome:  genetics.Random(w.rng),
			})
		}
	}
}

// foundNests places count structures of a kind, each ringed by its members.
// Members inherit a mutated copy of the structure genome.
func (w *World) foundNests(kind actor.Kind, species string, count, members int, draw func() (actor.Vec2i, bool)) {
	def, ok := w.speciesDef(species)
	if !ok {
		w.logf("no %q species in catalog: skipping %s placement", species, kind)
		return
	}
	for i := 0; i < count; i++ {
		cell, found := draw()
		if !found {
			w.logf("%s placement truncated at %d: grid exhausted", kind, i)
			return
		}
		nest := w.insert(&actor.Actor{
			Kind:    kind,
			Species: species,
			Pos:     cell,
			Health:  def.Param("nest_health", 60),
			Stored:  def.Param("nest_stored", 10),
			Genome:  genetics.Random(w.rng),
		})
		ring := actor.Neighbors8(cell)
		for k := 0; k < members; k++ {
			pos := ring[k%len(ring)]
			if !actor.InBounds(pos, w.tune.GridWidth, w.tune.GridHeight) {
				pos = cell
			}
			w.insert(&actor.Actor{
				Kind:    actor.Kind(def.Kind),
				Species: species,
				Pos:     pos,
				Health:  def.MaxHealth,
				Stamina: def.MaxStamina,
				Genome:  genetics.Mutate(w.rng, nest.Genome, def.Param("mutate_prob", 0.1), def.Param("mutate_amount", 0.15)),
				HomeID:  nest.ID,
			})
		}
	}
}

func (w *World) insert(a *actor.Actor) *actor.Actor {
	a.ID = w.newID(a.Kind)
	w.actors[a.ID] = a
	return a
}
