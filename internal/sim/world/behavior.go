package world

import (
	"math"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
)

// Behavior state names shared across the species files.
const (
	stateSeeking   = "SEEKING_FOOD"
	stateReturning = "RETURNING"
	stateHunting   = "HUNTING"
	stateBuilding  = "BUILDING"
	stateRepairing = "REPAIRING"
	stateAmbushing = "AMBUSHING"
	stateConsuming = "CONSUMING"
)

const (
	// Extra health loss per tick for grazing kinds once no flower, corpse,
	// or nutrient remains anywhere on the grid.
	scarcityDecay = 0.5

	seedHealth = 20.0
	eggHealth  = 10.0

	struggleCost   = 1.5
	struggleDamage = 0.8

	signalTTL     = 4
	alarmRadius   = 2
	trailDeposit  = 1.0
	trailLifespan = 60
	markLifespan  = 80
)

// strategyFunc is one tick of one species. a is already the live
// copy-on-write clone with shared upkeep applied.
type strategyFunc func(ts *tickState, a *actor.Actor, def catalogs.SpeciesDef, bs *blackboard)

// strategies maps catalog strategy names to implementations. Species files
// register here; an unknown name is a logged, non-fatal skip.
var strategies = map[string]strategyFunc{
	"pollinator": stepPollinator,
	"ant":        stepAnt,
	"bee":        stepBee,
	"spider":     stepSpider,
	"scavenger":  stepScavenger,
	"bird":       stepBird,
	"eagle":      stepEagle,
	"plane":      stepPlane,
}

// blackboard is the per-mobile-actor behavior scratch. Created the first
// tick an actor is processed, dropped with the actor, never persisted.
type blackboard struct {
	State     string
	PrevState string

	TargetID   string
	TargetCell actor.Vec2i
	HasCell    bool

	Carry float64
	Fed   float64

	PollenID     string
	PollenGenome genetics.Genome

	Cooldown  int
	ReproCool int

	WebIDs    []string
	WebBudget float64
	BudgetSet bool
}

func (w *World) board(id string) *blackboard {
	b := w.blackboards[id]
	if b == nil {
		b = &blackboard{}
		w.blackboards[id] = b
	}
	return b
}

// processMobile applies the shared cross-species rules, then hands the
// actor to its strategy. Convention for every species: interactions are
// resolved before movement, so arriving and acting on the same tick stay
// consistent.
func (ts *tickState) processMobile(id string) {
	cur, ok := ts.alive(id)
	if !ok {
		return // removed earlier this tick
	}
	def, ok := ts.w.speciesDef(cur.Species)
	if !ok {
		ts.w.warnOnce("species:"+cur.Species, "unknown species %q: skipping %s this tick", cur.Species, id)
		return
	}
	strat, ok := strategies[def.Strategy]
	if !ok {
		ts.w.warnOnce("strategy:"+def.Strategy, "species %q names unknown strategy %q: skipping", cur.Species, def.Strategy)
		return
	}

	a := ts.mutate(id)
	bs := ts.w.board(id)
	if bs.ReproCool > 0 {
		bs.ReproCool--
	}

	a.Age++
	a.Health -= def.HealthDecay
	if ts.starving && (a.Kind == actor.KindInsect || a.Kind == actor.KindCockroach) {
		a.Health -= scarcityDecay
	}
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+def.StaminaRegen)
	if a.Health <= 0 {
		ts.kill(a, def)
		return
	}
	if a.TrappedIn != "" {
		ts.struggle(a, def)
		return
	}
	strat(ts, a, def, bs)
}

// kill removes a dead actor and leaves what its species decays into.
func (ts *tickState) kill(a *actor.Actor, def catalogs.SpeciesDef) {
	ts.remove(a.ID)
	if a.TrappedIn != "" {
		if web, ok := ts.alive(a.TrappedIn); ok && web.TrappedID == a.ID {
			ts.mutate(web.ID).TrappedID = ""
		}
	}
	switch def.DecayTo {
	case "NUTRIENT":
		ts.spawn(&actor.Actor{Kind: actor.KindNutrient, Pos: a.Pos, Food: def.CorpseFood})
	default:
		ts.spawn(&actor.Actor{Kind: actor.KindCorpse, Pos: a.Pos, Species: a.Species, Food: def.CorpseFood, Timer: def.DecayTicks})
	}
	ts.eventf(protocol.SeverityInfo, 0.3, &a.Pos, "a %s perished", displayName(a))
}

// struggle is a trapped actor's whole tick: a chance to tear free,
// otherwise the web absorbs the thrashing.
func (ts *tickState) struggle(a *actor.Actor, def catalogs.SpeciesDef) {
	web, ok := ts.alive(a.TrappedIn)
	if !ok || web.TrappedID != a.ID {
		a.TrappedIn = ""
		return
	}
	a.Stamina = math.Max(0, a.Stamina-struggleCost)
	if ts.w.rng.Float64() < def.Param("escape_chance", 0.12) {
		ts.mutate(web.ID).TrappedID = ""
		a.TrappedIn = ""
		ts.eventf(protocol.SeverityInfo, 0.3, &a.Pos, "a %s tore free of a web", displayName(a))
		return
	}
	wm := ts.mutate(web.ID)
	wm.Strength -= struggleDamage
	if wm.Strength <= 0 {
		ts.remove(web.ID)
		a.TrappedIn = ""
	}
}

// moveToward advances a up to its speed toward dest, paying stamina per
// cell. Movement stops early at the destination, on an exhausted stamina
// pool, or when the actor blunders into a web.
func (ts *tickState) moveToward(a *actor.Actor, def catalogs.SpeciesDef, dest actor.Vec2i) int {
	steps := def.Speed
	if steps <= 0 {
		steps = 1
	}
	moved := 0
	for i := 0; i < steps; i++ {
		if a.Pos == dest || a.Stamina < def.MoveCost {
			break
		}
		next := actor.StepToward(a.Pos, dest)
		if !ts.inBounds(next) {
			break
		}
		from := a.Pos
		a.Pos = next
		a.Stamina -= def.MoveCost
		ts.moved(from, next)
		moved++
		if ts.trapCheck(a) {
			break
		}
	}
	return moved
}

// wander picks a uniformly random in-bounds neighbor cell.
func (ts *tickState) wander(a *actor.Actor, def catalogs.SpeciesDef) {
	if a.Stamina < def.MoveCost {
		return
	}
	opts := make([]actor.Vec2i, 0, 8)
	for _, n := range actor.Neighbors8(a.Pos) {
		if ts.inBounds(n) {
			opts = append(opts, n)
		}
	}
	if len(opts) == 0 {
		return
	}
	next := opts[ts.w.rng.IntN(len(opts))]
	from := a.Pos
	a.Pos = next
	a.Stamina -= def.MoveCost
	ts.moved(from, next)
	ts.trapCheck(a)
}

// trapCheck snares a grounded insect that stepped onto a free rival web.
func (ts *tickState) trapCheck(a *actor.Actor) bool {
	if a.Kind != actor.KindInsect && a.Kind != actor.KindCockroach {
		return false
	}
	webID, ok := ts.webAt[a.Pos]
	if !ok {
		return false
	}
	web, ok := ts.alive(webID)
	if !ok || web.OwnerID == a.ID || web.TrappedID != "" {
		return false
	}
	ts.mutate(webID).TrappedID = a.ID
	a.TrappedIn = webID
	ts.eventf(protocol.SeverityInfo, 0.4, &a.Pos, "a %s is caught in a spider web", displayName(a))
	return true
}

// resolveTarget returns the live target of a blackboard, clearing ids that
// went stale since they were stored.
func (ts *tickState) resolveTarget(bs *blackboard) (*actor.Actor, bool) {
	if bs.TargetID == "" {
		return nil, false
	}
	t, ok := ts.alive(bs.TargetID)
	if !ok {
		bs.TargetID = ""
		return nil, false
	}
	return t, true
}

// attack resolves one strike against a live target. Reports whether the
// target died, in which case the caller clears its own target and resumes
// its prior state.
func (ts *tickState) attack(att *actor.Actor, attDef catalogs.SpeciesDef, targetID string) (killed bool) {
	t, ok := ts.alive(targetID)
	if !ok || att.Stamina < attDef.AttackCost {
		return false
	}
	att.Stamina -= attDef.AttackCost
	tm := ts.mutate(t.ID)
	tm.Health -= attDef.AttackDamage
	switch tm.Kind {
	case actor.KindAntColony:
		ts.raiseAlarm(tm.ID, actor.KindPheromoneTrail, tm.Pos)
	case actor.KindHive:
		ts.raiseAlarm(tm.ID, actor.KindTerritoryMark, tm.Pos)
	default:
		if tm.HomeID != "" {
			kind := actor.KindPheromoneTrail
			if tm.Species == actor.SpeciesBee {
				kind = actor.KindTerritoryMark
			}
			ts.raiseAlarm(tm.HomeID, kind, tm.Pos)
		}
	}
	if tm.Health > 0 {
		return false
	}
	switch tm.Kind {
	case actor.KindAntColony, actor.KindHive:
		ts.remove(tm.ID)
		ts.spawn(&actor.Actor{Kind: actor.KindCorpse, Pos: tm.Pos, Food: 8 + tm.Stored*0.5, Timer: 120})
		ts.eventf(protocol.SeverityAlert, 0.9, &tm.Pos, "%s has fallen", displayName(tm))
	default:
		tdef, ok := ts.w.speciesDef(tm.Species)
		if !ok {
			tdef = attDef
		}
		ts.kill(tm, tdef)
	}
	return true
}

// raiseAlarm plants an UNDER_ATTACK signal on the owner's nearest marker,
// spawning a fresh one under the victim when none is close enough. The
// marker processors flood the signal outward from there.
func (ts *tickState) raiseAlarm(ownerID string, kind actor.Kind, pos actor.Vec2i) {
	for dy := -alarmRadius; dy <= alarmRadius; dy++ {
		for dx := -alarmRadius; dx <= alarmRadius; dx++ {
			cell := actor.Vec2i{X: pos.X + dx, Y: pos.Y + dy}
			var id string
			var ok bool
			if kind == actor.KindPheromoneTrail {
				id, ok = ts.trailAt[trailKey{Owner: ownerID, Cell: cell}]
			} else {
				id, ok = ts.markAt[cell]
			}
			if !ok {
				continue
			}
			m, live := ts.alive(id)
			if !live || m.OwnerID != ownerID {
				continue
			}
			mm := ts.mutate(id)
			mm.Signal = &actor.Signal{Type: actor.SignalUnderAttack, Origin: pos, TTL: signalTTL}
			return
		}
	}
	if !ts.inBounds(pos) {
		return
	}
	sig := &actor.Signal{Type: actor.SignalUnderAttack, Origin: pos, TTL: signalTTL}
	if kind == actor.KindTerritoryMark {
		// Marks overwrite: a rival mark on the cell flips to our side.
		if id, ok := ts.markAt[pos]; ok {
			if _, live := ts.alive(id); live {
				mm := ts.mutate(id)
				mm.OwnerID = ownerID
				mm.Lifespan = markLifespan
				mm.Signal = sig
				return
			}
		}
		ts.spawn(&actor.Actor{Kind: kind, Pos: pos, OwnerID: ownerID, Strength: trailDeposit, Lifespan: markLifespan, Signal: sig})
		return
	}
	ts.spawn(&actor.Actor{Kind: kind, Pos: pos, OwnerID: ownerID, Strength: trailDeposit, Lifespan: trailLifespan, Signal: sig})
}

// flowerTraits projects a flower's realized stats onto the genome axes:
// vigor, growth, toxicity, nutrients, then the four effect axes.
func flowerTraits(f *actor.Actor) genetics.Genome {
	return genetics.Genome{
		clamp01(f.Health / 100),
		f.Growth,
		(f.Toxicity + 1) / 2,
		clamp01(f.Nutrients),
		f.Effects[0],
		f.Effects[1],
		f.Effects[2],
		f.Effects[3],
	}
}

// bestFlower scores visible flowers by genome affinity minus a distance
// penalty. Perception runs against the snapshot index; every candidate is
// re-checked against live state.
func (ts *tickState) bestFlower(a *actor.Actor, def catalogs.SpeciesDef) (string, bool) {
	penalty := def.Param("dist_penalty", 0.05)
	bestID := ""
	bestScore := math.Inf(-1)
	for _, p := range ts.visionFlowers(a.Pos, def.Vision) {
		f, ok := ts.alive(p.ID)
		if !ok || f.Kind != actor.KindFlower {
			continue
		}
		d := float64(actor.Chebyshev(a.Pos, f.Pos))
		s := genetics.Score(a.Genome, flowerTraits(f), d, penalty)
		if s > bestScore {
			bestScore, bestID = s, p.ID
		}
	}
	return bestID, bestID != ""
}

// graze feeds a on a flower: the bite chips the flower, and the flower's
// toxicity sign decides whether the visitor is healed or poisoned.
func (ts *tickState) graze(a *actor.Actor, def catalogs.SpeciesDef, flowerID string) {
	f, ok := ts.alive(flowerID)
	if !ok || f.Kind != actor.KindFlower {
		return
	}
	fm := ts.mutate(flowerID)
	fm.Health -= def.Param("bite_damage", 2)
	a.Health = math.Min(def.MaxHealth, a.Health-f.Toxicity*def.Param("toxin_factor", 3))
	a.Stamina = math.Min(def.MaxStamina, a.Stamina+f.Nutrients*def.Param("nutrient_factor", 4))
	if fm.Health <= 0 {
		ts.remove(flowerID)
		ts.spawn(&actor.Actor{Kind: actor.KindNutrient, Pos: fm.Pos, Food: 2 + fm.Nutrients*4})
		ts.eventf(protocol.SeverityInfo, 0.35, &fm.Pos, "a flower was grazed to nothing")
	}
}

// tryPollinate issues a generation request next to f when the carried
// pollen came from a different plant. Returns true when a seed landed.
func (ts *tickState) tryPollinate(a *actor.Actor, bs *blackboard, flowerID string, def catalogs.SpeciesDef) bool {
	f, ok := ts.alive(flowerID)
	if !ok || f.Kind != actor.KindFlower || f.Growth < 1 {
		return false
	}
	hadForeign := bs.PollenID != "" && bs.PollenID != f.ID
	if !hadForeign {
		bs.PollenID, bs.PollenGenome = f.ID, f.Genome
		return false
	}
	if ts.w.rng.Float64() >= def.Param("pollinate_chance", 0.25) {
		return false
	}
	cell, ok := ts.seedCellNear(f.Pos)
	if !ok {
		return false
	}
	seed := ts.w.requestFlower(ts, cell, []genetics.Genome{f.Genome, bs.PollenGenome})
	if seed == nil {
		return false
	}
	ts.eventf(protocol.SeverityInfo, 0.5, &cell, "a %s pollinated a flower; a seed rests at (%d,%d)", displayName(a), cell.X, cell.Y)
	bs.PollenID, bs.PollenGenome = f.ID, f.Genome
	return true
}

// seedCellNear picks a free planting cell adjacent to pos, leaning
// downwind when several qualify.
func (ts *tickState) seedCellNear(pos actor.Vec2i) (actor.Vec2i, bool) {
	r := ts.climate
	best := actor.Vec2i{}
	bestDot := math.Inf(-1)
	found := false
	for _, n := range actor.Neighbors8(pos) {
		if !ts.freeForPlanting(n) {
			continue
		}
		dot := float64(n.X-pos.X)*r.WindX + float64(n.Y-pos.Y)*r.WindY
		dot *= r.WindStrength
		if !found || dot > bestDot {
			best, bestDot, found = n, dot, true
		}
	}
	return best, found
}

// tryMate lays a two-parent egg when an adjacent ready partner of the same
// species exists. Both parents pay the cost and enter cooldown.
func (ts *tickState) tryMate(a *actor.Actor, bs *blackboard, def catalogs.SpeciesDef) bool {
	if bs.ReproCool > 0 || def.ReproChance <= 0 || a.Stamina < def.ReproCost {
		return false
	}
	if ts.w.rng.Float64() >= def.ReproChance {
		return false
	}
	for _, p := range ts.vision(a.Pos, 1) {
		if p.ID == a.ID {
			continue
		}
		m, ok := ts.alive(p.ID)
		if !ok || m.Kind != a.Kind || m.Species != a.Species || m.Stamina < def.ReproCost {
			continue
		}
		if ts.w.board(p.ID).ReproCool > 0 {
			continue
		}
		child := genetics.Crossover(ts.w.rng, a.Genome, m.Genome)
		child = genetics.Mutate(ts.w.rng, child, def.Param("mutate_prob", 0.1), def.Param("mutate_amount", 0.15))
		a.Stamina -= def.ReproCost
		ts.mutate(p.ID).Stamina -= def.ReproCost
		bs.ReproCool = def.ReproCooldown
		ts.w.board(p.ID).ReproCool = def.ReproCooldown
		ts.spawn(&actor.Actor{Kind: actor.KindEgg, Species: a.Species, Pos: a.Pos, Genome: child, HomeID: a.HomeID, Health: eggHealth, Timer: def.EggTicks})
		ts.eventf(protocol.SeverityInfo, 0.3, &a.Pos, "a pair of %s left an egg at (%d,%d)", displayName(a), a.Pos.X, a.Pos.Y)
		return true
	}
	return false
}

// displayName renders an actor for narrative text. Structures carry their
// member species, so the kind wins over the species field.
func displayName(a *actor.Actor) string {
	switch a.Kind {
	case actor.KindAntColony:
		return "an ant colony"
	case actor.KindHive:
		return "a hive"
	case actor.KindFlower:
		return "flower"
	}
	if a.Species != "" {
		return a.Species
	}
	return string(a.Kind)
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
