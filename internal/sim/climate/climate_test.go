package climate

import (
	"math"
	"math/rand/v2"
	"testing"
)

func testConfig() Config {
	return Config{
		YearTicks:    400,
		TempBase:     18,
		TempAmp:      10,
		HumidityBase: 0.5,
		HumidityAmp:  0.3,
		WindDirDeg:   0,
		WindStrength: 1,
		EventChance:  0,
	}
}

func TestSeasonQuarters(t *testing.T) {
	m := New(testConfig(), nil)
	cases := []struct {
		tick uint64
		want string
	}{
		{0, SeasonSpring},
		{99, SeasonSpring},
		{100, SeasonSummer},
		{199, SeasonSummer},
		{200, SeasonAutumn},
		{300, SeasonWinter},
		{399, SeasonWinter},
		{400, SeasonSpring}, // wraps
	}
	for _, c := range cases {
		if got := m.At(c.tick).Season; got != c.want {
			t.Fatalf("tick %d: season %s, want %s", c.tick, got, c.want)
		}
	}
}

func TestSeasonalCycle(t *testing.T) {
	m := New(testConfig(), nil)
	// Quarter year: sine peak. Temperature maxes, humidity bottoms out.
	r := m.At(100)
	if math.Abs(r.Temperature-28) > 1e-9 {
		t.Fatalf("peak temperature = %v, want 28", r.Temperature)
	}
	if math.Abs(r.Humidity-0.2) > 1e-9 {
		t.Fatalf("trough humidity = %v, want 0.2", r.Humidity)
	}
	// Three-quarter year: sine trough.
	r = m.At(300)
	if math.Abs(r.Temperature-8) > 1e-9 {
		t.Fatalf("trough temperature = %v, want 8", r.Temperature)
	}
	if math.Abs(r.Humidity-0.8) > 1e-9 {
		t.Fatalf("peak humidity = %v, want 0.8", r.Humidity)
	}
}

func TestHumidityClamped(t *testing.T) {
	cfg := testConfig()
	cfg.HumidityBase = 0.9
	cfg.HumidityAmp = 0.5
	m := New(cfg, nil)
	for tick := uint64(0); tick < 400; tick += 10 {
		h := m.At(tick).Humidity
		if h < 0 || h > 1 {
			t.Fatalf("tick %d: humidity %v outside [0,1]", tick, h)
		}
	}
}

func TestEventLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.EventChance = 1
	defs := []EventDef{
		{ID: "RAIN", Weight: 1, MinTicks: 3, MaxTicks: 3, HumidityDelta: 0.2},
	}
	m := New(cfg, defs)
	rng := rand.New(rand.NewPCG(5, 0))

	started, ended := m.Step(rng, 10)
	if started != "RAIN" || ended != "" {
		t.Fatalf("step 10: started=%q ended=%q", started, ended)
	}
	if m.ActiveEvent() != "RAIN" {
		t.Fatalf("event not active after start")
	}
	base := New(cfg, nil).At(11).Humidity
	if got := m.At(11).Humidity; math.Abs(got-(base+0.2)) > 1e-9 {
		t.Fatalf("active event humidity = %v, want %v", got, base+0.2)
	}

	// Runs for its duration, then ends exactly once.
	for tick := uint64(11); tick < 13; tick++ {
		if s, e := m.Step(rng, tick); s != "" || e != "" {
			t.Fatalf("tick %d: unexpected transition %q/%q", tick, s, e)
		}
	}
	if s, e := m.Step(rng, 13); s != "" || e != "RAIN" {
		t.Fatalf("tick 13: started=%q ended=%q, want end of RAIN", s, e)
	}
	if m.ActiveEvent() != "" {
		t.Fatalf("event still active after end")
	}
	if got := m.At(14).Event; got != "" {
		t.Fatalf("reading still reports event %q", got)
	}
}

func TestPickSkipsZeroWeights(t *testing.T) {
	cfg := testConfig()
	cfg.EventChance = 1
	defs := []EventDef{
		{ID: "DROUGHT", Weight: 0, MinTicks: 1, MaxTicks: 1},
		{ID: "HEATWAVE", Weight: 2, MinTicks: 1, MaxTicks: 1},
	}
	m := New(cfg, defs)
	rng := rand.New(rand.NewPCG(9, 0))
	for i := 0; i < 20; i++ {
		started, _ := m.Step(rng, uint64(i*10))
		if started == "DROUGHT" {
			t.Fatalf("zero-weight event selected")
		}
		// Immediately expire so the next iteration can start fresh.
		m.Restore(State{})
	}
}

func TestStateRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.EventChance = 1
	defs := []EventDef{{ID: "COLD_SNAP", Weight: 1, MinTicks: 5, MaxTicks: 5, TempDelta: -8}}
	m := New(cfg, defs)
	rng := rand.New(rand.NewPCG(2, 0))
	if s, _ := m.Step(rng, 100); s != "COLD_SNAP" {
		t.Fatalf("event did not start")
	}

	restored := New(cfg, defs)
	restored.Restore(m.Export())
	if restored.ActiveEvent() != "COLD_SNAP" {
		t.Fatalf("restored model lost active event")
	}
	if a, b := m.At(102), restored.At(102); a != b {
		t.Fatalf("restored reading diverged: %+v vs %+v", a, b)
	}
	// Both end at the same tick.
	if _, e := restored.Step(rng, 105); e != "COLD_SNAP" {
		t.Fatalf("restored model did not end event on schedule")
	}
}

func TestStepSameSeedSameDraws(t *testing.T) {
	cfg := testConfig()
	cfg.EventChance = 0.3
	defs := []EventDef{
		{ID: "RAIN", Weight: 3, MinTicks: 2, MaxTicks: 6, HumidityDelta: 0.2},
		{ID: "WIND_SURGE", Weight: 1, MinTicks: 1, MaxTicks: 4, WindDelta: 2},
	}
	a, b := New(cfg, defs), New(cfg, defs)
	ra := rand.New(rand.NewPCG(77, 0))
	rb := rand.New(rand.NewPCG(77, 0))
	for tick := uint64(0); tick < 500; tick++ {
		sa, ea := a.Step(ra, tick)
		sb, eb := b.Step(rb, tick)
		if sa != sb || ea != eb {
			t.Fatalf("tick %d: transitions diverged (%q,%q) vs (%q,%q)", tick, sa, ea, sb, eb)
		}
		if a.At(tick) != b.At(tick) {
			t.Fatalf("tick %d: readings diverged", tick)
		}
	}
}
