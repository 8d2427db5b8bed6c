// Package tuning holds the runtime parameter struct loaded from
// tuning.yaml. Species stat blocks live in the catalogs; everything
// world-level is here.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	GridWidth          int   `yaml:"grid_width"`
	GridHeight         int   `yaml:"grid_height"`
	TickRateHz         int   `yaml:"tick_rate_hz"`
	Seed               int64 `yaml:"seed"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`

	// Initial census. Population maps species id to member count;
	// colony-bound species spawn around their structures instead.
	InitialFlowers    int            `yaml:"initial_flowers"`
	InitialPopulation map[string]int `yaml:"initial_population"`
	AntColonies       int            `yaml:"ant_colonies"`
	AntsPerColony     int            `yaml:"ants_per_colony"`
	Hives             int            `yaml:"hives"`
	BeesPerHive       int            `yaml:"bees_per_hive"`

	Climate   Climate   `yaml:"climate"`
	Trend     Trend     `yaml:"trend"`
	Factory   Factory   `yaml:"factory"`
	Herbicide Herbicide `yaml:"herbicide"`
}

type Climate struct {
	YearTicks    int     `yaml:"year_ticks"`
	TempBase     float64 `yaml:"temp_base"`
	TempAmp      float64 `yaml:"temp_amp"`
	HumidityBase float64 `yaml:"humidity_base"`
	HumidityAmp  float64 `yaml:"humidity_amp"`
	WindDirDeg   float64 `yaml:"wind_dir_deg"`
	WindStrength float64 `yaml:"wind_strength"`
	EventChance  float64 `yaml:"event_chance"`
}

type Trend struct {
	Window           int     `yaml:"window"`
	MinSamples       int     `yaml:"min_samples"`
	SampleEveryTicks int     `yaml:"sample_every_ticks"`
	GrowThreshold    float64 `yaml:"grow_threshold"`
	DeclineThreshold float64 `yaml:"decline_threshold"`

	BirdCooldownTicks  int `yaml:"bird_cooldown_ticks"`
	EagleCooldownTicks int `yaml:"eagle_cooldown_ticks"`
	EagleMinBirds      int `yaml:"eagle_min_birds"`
	RoachCooldownTicks int `yaml:"roach_cooldown_ticks"`
	PlaneCooldownTicks int `yaml:"plane_cooldown_ticks"`
}

type Factory struct {
	Workers           int `yaml:"workers"`
	TimeoutMs         int `yaml:"timeout_ms"`
	MaxInFlight       int `yaml:"max_in_flight"`
	SeedLifespanTicks int `yaml:"seed_lifespan_ticks"`
}

type Herbicide struct {
	FlowerDensityThreshold float64 `yaml:"flower_density_threshold"`
	SmokeTTLTicks          int     `yaml:"smoke_ttl_ticks"`
	SmokeDamage            float64 `yaml:"smoke_damage"`
	PlaneSpeed             int     `yaml:"plane_speed"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults is the tuning used when no tuning.yaml is present, for example
// when resuming from a snapshot in a fresh working directory.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		GridWidth:          48,
		GridHeight:         32,
		TickRateHz:         10,
		Seed:               1,
		SnapshotEveryTicks: 3000,

		InitialFlowers: 60,
		InitialPopulation: map[string]int{
			"butterfly": 14,
			"ladybug":   6,
			"spider":    3,
			"cockroach": 4,
		},
		AntColonies:   2,
		AntsPerColony: 8,
		Hives:         2,
		BeesPerHive:   8,

		Climate: Climate{
			YearTicks:    4800,
			TempBase:     18,
			TempAmp:      9,
			HumidityBase: 0.55,
			HumidityAmp:  0.25,
			WindDirDeg:   45,
			WindStrength: 1,
			EventChance:  0.004,
		},
		Trend: Trend{
			Window:           16,
			MinSamples:       6,
			SampleEveryTicks: 10,
			GrowThreshold:    0.03,
			DeclineThreshold: 0.03,

			BirdCooldownTicks:  600,
			EagleCooldownTicks: 1200,
			EagleMinBirds:      3,
			RoachCooldownTicks: 500,
			PlaneCooldownTicks: 2000,
		},
		Factory: Factory{
			Workers:           2,
			TimeoutMs:         4000,
			MaxInFlight:       256,
			SeedLifespanTicks: 400,
		},
		Herbicide: Herbicide{
			FlowerDensityThreshold: 0.35,
			SmokeTTLTicks:          30,
			SmokeDamage:            0.6,
			PlaneSpeed:             3,
		},
	}
}
