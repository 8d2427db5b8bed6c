// Package catalogs loads the content definition files: species stat blocks
// and weather event templates. Catalog digests are surfaced to clients on
// WELCOME and recorded next to snapshots so a replay can prove it ran
// against the same content.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Species SpeciesCatalog
	Weather WeatherCatalog
}

type SpeciesCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]SpeciesDef
	PaletteDigest string
	DefsDigest    string
}

// SpeciesDef is one species stat block. Strategy selects the behavior
// implementation; Kind names the actor kind a member instantiates.
type SpeciesDef struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
	Kind     string `json:"kind"`

	Speed        int     `json:"speed"`
	Vision       int     `json:"vision"`
	MaxHealth    float64 `json:"max_health"`
	MaxStamina   float64 `json:"max_stamina"`
	HealthDecay  float64 `json:"health_decay"`
	MoveCost     float64 `json:"move_cost"`
	StaminaRegen float64 `json:"stamina_regen"`
	WanderChance float64 `json:"wander_chance"`

	AttackDamage float64 `json:"attack_damage,omitempty"`
	AttackCost   float64 `json:"attack_cost,omitempty"`

	// Death conversion: "CORPSE" or "NUTRIENT".
	DecayTo    string  `json:"decay_to"`
	CorpseFood float64 `json:"corpse_food,omitempty"`
	DecayTicks int     `json:"decay_ticks,omitempty"`

	EggTicks      int     `json:"egg_ticks,omitempty"`
	CocoonTicks   int     `json:"cocoon_ticks,omitempty"`
	ReproChance   float64 `json:"repro_chance,omitempty"`
	ReproCost     float64 `json:"repro_cost,omitempty"`
	ReproCooldown int     `json:"repro_cooldown_ticks,omitempty"`

	// Strategy-specific knobs; read through Param with a default.
	Params map[string]float64 `json:"params,omitempty"`
}

// Param reads a strategy knob, falling back to def when absent.
func (d SpeciesDef) Param(key string, def float64) float64 {
	if v, ok := d.Params[key]; ok {
		return v
	}
	return def
}

type WeatherCatalog struct {
	ByID   map[string]WeatherDef
	Digest string
}

// WeatherDef is one weather event template.
type WeatherDef struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Severity      string  `json:"severity"`
	BaseWeight    float64 `json:"base_weight"`
	MinTicks      int     `json:"min_ticks"`
	MaxTicks      int     `json:"max_ticks"`
	TempDelta     float64 `json:"temp_delta"`
	HumidityDelta float64 `json:"humidity_delta"`
	WindDelta     float64 `json:"wind_delta"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadSpecies(filepath.Join(configDir, "species.json"), &c.Species); err != nil {
		return nil, err
	}
	if err := loadWeather(filepath.Join(configDir, "weather.json"), &c.Weather); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadSpecies(path string, out *SpeciesCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []SpeciesDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("species.json: %w", err)
	}
	out.Defs = map[string]SpeciesDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("species.json: empty id")
		}
		if d.Strategy == "" {
			return fmt.Errorf("species.json: %s: empty strategy", d.ID)
		}
		if d.Kind == "" {
			return fmt.Errorf("species.json: %s: empty kind", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("species.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadWeather(path string, out *WeatherCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// A world without weather events is legal.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.ByID = map[string]WeatherDef{}
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []WeatherDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("weather.json: %w", err)
	}
	out.ByID = map[string]WeatherDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("weather.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}
