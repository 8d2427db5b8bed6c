// Package climate advances the seasonal cycle and transient weather events
// that feed flower stat evaluation and behavior costs.
package climate

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Season names, one per quarter of the year cycle.
const (
	SeasonSpring = "SPRING"
	SeasonSummer = "SUMMER"
	SeasonAutumn = "AUTUMN"
	SeasonWinter = "WINTER"
)

// Config holds the climate knobs from tuning.
type Config struct {
	YearTicks    int
	TempBase     float64
	TempAmp      float64
	HumidityBase float64
	HumidityAmp  float64
	WindDirDeg   float64
	WindStrength float64

	// Weather event gating.
	EventChance float64 // per-tick start probability while calm
}

// EventDef is one weather event template from the weather catalog.
type EventDef struct {
	ID            string  `json:"id"`
	Weight        float64 `json:"weight"`
	MinTicks      int     `json:"min_ticks"`
	MaxTicks      int     `json:"max_ticks"`
	TempDelta     float64 `json:"temp_delta"`
	HumidityDelta float64 `json:"humidity_delta"`
	WindDelta     float64 `json:"wind_delta"`
}

// Reading is the climate as seen by the simulation on one tick.
type Reading struct {
	Season       string  `json:"season"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	WindX        float64 `json:"wind_x"`
	WindY        float64 `json:"wind_y"`
	WindStrength float64 `json:"wind_strength"`
	Event        string  `json:"event,omitempty"`
}

// State is the persistable weather state.
type State struct {
	Event     string
	Until     uint64
	TempDelta float64
	HumDelta  float64
	WindDelta float64
}

// Model owns the seasonal cycle plus at most one active weather event.
type Model struct {
	cfg    Config
	events []EventDef

	active    string
	until     uint64
	tempDelta float64
	humDelta  float64
	windDelta float64
}

func New(cfg Config, events []EventDef) *Model {
	if cfg.YearTicks <= 0 {
		cfg.YearTicks = 2400
	}
	return &Model{cfg: cfg, events: events}
}

// Step advances weather by one tick. It returns the ids of an event that
// started and one that ended this tick ("" for neither). Draw order is
// fixed so two same-seed models consume identical randomness.
func (m *Model) Step(rng *rand.Rand, nowTick uint64) (started, ended string) {
	if m.active != "" {
		if nowTick >= m.until {
			ended = m.active
			m.active = ""
			m.tempDelta, m.humDelta, m.windDelta = 0, 0, 0
		}
		return "", ended
	}
	if len(m.events) == 0 || rng.Float64() >= m.cfg.EventChance {
		return "", ""
	}
	def, ok := m.pick(rng)
	if !ok {
		return "", ""
	}
	dur := def.MinTicks
	if def.MaxTicks > def.MinTicks {
		dur += rng.IntN(def.MaxTicks - def.MinTicks + 1)
	}
	if dur < 1 {
		dur = 1
	}
	m.active = def.ID
	m.until = nowTick + uint64(dur)
	m.tempDelta = def.TempDelta
	m.humDelta = def.HumidityDelta
	m.windDelta = def.WindDelta
	return def.ID, ""
}

// pick samples an event definition by weight, walking ids in sorted order
// so the draw is stable across map orderings.
func (m *Model) pick(rng *rand.Rand) (EventDef, bool) {
	idx := make([]int, 0, len(m.events))
	var total float64
	for i, d := range m.events {
		if d.Weight > 0 {
			idx = append(idx, i)
			total += d.Weight
		}
	}
	if total <= 0 {
		return EventDef{}, false
	}
	sort.Slice(idx, func(a, b int) bool { return m.events[idx[a]].ID < m.events[idx[b]].ID })
	target := rng.Float64() * total
	var acc float64
	for _, i := range idx {
		acc += m.events[i].Weight
		if target <= acc {
			return m.events[i], true
		}
	}
	return m.events[idx[len(idx)-1]], true
}

// At evaluates the climate for a tick: the seasonal sine cycle plus any
// active event deltas. Pure given the model state.
func (m *Model) At(nowTick uint64) Reading {
	year := uint64(m.cfg.YearTicks)
	phase := 2 * math.Pi * float64(nowTick%year) / float64(year)

	r := Reading{
		Temperature:  m.cfg.TempBase + m.cfg.TempAmp*math.Sin(phase) + m.tempDelta,
		Humidity:     m.cfg.HumidityBase - m.cfg.HumidityAmp*math.Sin(phase) + m.humDelta,
		WindStrength: m.cfg.WindStrength + m.windDelta,
		Event:        m.active,
	}
	if r.Humidity < 0 {
		r.Humidity = 0
	}
	if r.Humidity > 1 {
		r.Humidity = 1
	}
	rad := m.cfg.WindDirDeg * math.Pi / 180
	r.WindX = math.Cos(rad)
	r.WindY = math.Sin(rad)

	switch int(4 * float64(nowTick%year) / float64(year)) {
	case 0:
		r.Season = SeasonSpring
	case 1:
		r.Season = SeasonSummer
	case 2:
		r.Season = SeasonAutumn
	default:
		r.Season = SeasonWinter
	}
	return r
}

// ActiveEvent reports the current event id, "" when calm.
func (m *Model) ActiveEvent() string { return m.active }

// Export captures the weather state for snapshots.
func (m *Model) Export() State {
	return State{Event: m.active, Until: m.until, TempDelta: m.tempDelta, HumDelta: m.humDelta, WindDelta: m.windDelta}
}

// Restore reinstates weather state from a snapshot.
func (m *Model) Restore(s State) {
	m.active = s.Event
	m.until = s.Until
	m.tempDelta = s.TempDelta
	m.humDelta = s.HumDelta
	m.windDelta = s.WindDelta
}
