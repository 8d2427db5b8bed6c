package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	doc := `
protocol_version: "1.0"
grid_width: 15
grid_height: 10
tick_rate_hz: 4
seed: 42
snapshot_every_ticks: 500
initial_flowers: 12
initial_population:
  butterfly: 3
  spider: 1
ant_colonies: 1
ants_per_colony: 5
climate:
  year_ticks: 1200
  temp_base: 20
  temp_amp: 8
  humidity_base: 0.6
  humidity_amp: 0.2
  wind_dir_deg: 90
  wind_strength: 1.5
  event_chance: 0.01
trend:
  window: 8
  min_samples: 4
  sample_every_ticks: 5
  grow_threshold: 0.05
  decline_threshold: 0.05
  bird_cooldown_ticks: 100
factory:
  workers: 3
  timeout_ms: 250
  max_in_flight: 64
  seed_lifespan_ticks: 200
herbicide:
  flower_density_threshold: 0.5
  smoke_ttl_ticks: 20
  smoke_damage: 0.4
  plane_speed: 2
`
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.GridWidth != 15 || got.GridHeight != 10 || got.Seed != 42 {
		t.Fatalf("world knobs = %+v", got)
	}
	if got.InitialPopulation["butterfly"] != 3 || got.InitialPopulation["spider"] != 1 {
		t.Fatalf("initial population = %v", got.InitialPopulation)
	}
	if got.Climate.YearTicks != 1200 || got.Climate.WindDirDeg != 90 {
		t.Fatalf("climate = %+v", got.Climate)
	}
	if got.Trend.Window != 8 || got.Trend.BirdCooldownTicks != 100 {
		t.Fatalf("trend = %+v", got.Trend)
	}
	if got.Factory.TimeoutMs != 250 || got.Herbicide.PlaneSpeed != 2 {
		t.Fatalf("factory/herbicide = %+v %+v", got.Factory, got.Herbicide)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestDefaultsAreUsable(t *testing.T) {
	d := Defaults()
	if d.GridWidth <= 0 || d.GridHeight <= 0 || d.TickRateHz <= 0 {
		t.Fatalf("defaults unusable: %+v", d)
	}
	if d.Trend.Window < d.Trend.MinSamples {
		t.Fatalf("trend window shorter than min samples")
	}
	if d.Factory.Workers <= 0 || d.Factory.MaxInFlight <= 0 {
		t.Fatalf("factory defaults unusable: %+v", d.Factory)
	}
	if d.Herbicide.FlowerDensityThreshold <= 0 || d.Herbicide.FlowerDensityThreshold >= 1 {
		t.Fatalf("density threshold out of range: %v", d.Herbicide.FlowerDensityThreshold)
	}
}
