// Package telemetry appends periodic census rows to CSV for offline
// analysis. Rows derive from broadcast frames, so recording never touches
// the tick loop.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/tuning"
)

// CensusRow is one telemetry.csv record.
type CensusRow struct {
	Tick        uint64  `csv:"tick"`
	Season      string  `csv:"season"`
	Temperature float64 `csv:"temperature"`
	Humidity    float64 `csv:"humidity"`
	Weather     string  `csv:"weather"`

	Flowers   int `csv:"flowers"`
	Seeds     int `csv:"seeds"`
	Insects   int `csv:"insects"`
	Roaches   int `csv:"roaches"`
	Birds     int `csv:"birds"`
	Eagles    int `csv:"eagles"`
	Eggs      int `csv:"eggs"`
	Corpses   int `csv:"corpses"`
	Nutrients int `csv:"nutrients"`
	Colonies  int `csv:"colonies"`
	Hives     int `csv:"hives"`
	Webs      int `csv:"webs"`
	Markers   int `csv:"markers"`
	Planes    int `csv:"planes"`
	Total     int `csv:"total"`
}

// FromFrame folds a frame's summary and climate into one census row.
func FromFrame(f protocol.FrameMsg) CensusRow {
	s := f.Summary
	row := CensusRow{
		Tick:        f.Tick,
		Season:      f.Climate.Season,
		Temperature: f.Climate.Temperature,
		Humidity:    f.Climate.Humidity,
		Weather:     f.Climate.Event,

		Flowers:   s["FLOWER"],
		Seeds:     s["FLOWER_SEED"],
		Insects:   s["INSECT"],
		Roaches:   s["COCKROACH"],
		Birds:     s["BIRD"],
		Eagles:    s["EAGLE"],
		Eggs:      s["EGG"],
		Corpses:   s["CORPSE"],
		Nutrients: s["NUTRIENT"],
		Colonies:  s["ANT_COLONY"],
		Hives:     s["HIVE"],
		Webs:      s["SPIDER_WEB"],
		Markers:   s["PHEROMONE_TRAIL"] + s["TERRITORY_MARK"] + s["SLIME_TRAIL"],
		Planes:    s["HERBICIDE_PLANE"],
	}
	for _, n := range s {
		row.Total += n
	}
	return row
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir        string
	censusFile *os.File

	censusHeaderWritten bool
}

// NewOutputManager creates the output directory and opens telemetry.csv.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	om.censusFile = f
	return om, nil
}

// WriteCensus appends one census record to telemetry.csv.
func (om *OutputManager) WriteCensus(row CensusRow) error {
	if om == nil {
		return nil
	}

	records := []CensusRow{row}
	if !om.censusHeaderWritten {
		if err := gocsv.Marshal(records, om.censusFile); err != nil {
			return fmt.Errorf("writing census: %w", err)
		}
		om.censusHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.censusFile); err != nil {
		return fmt.Errorf("writing census: %w", err)
	}
	return nil
}

// WriteTuning saves the effective tuning next to the CSV, so a run's output
// directory is self-describing.
func (om *OutputManager) WriteTuning(tune tuning.Tuning) error {
	if om == nil {
		return nil
	}
	b, err := yaml.Marshal(tune)
	if err != nil {
		return fmt.Errorf("marshaling tuning: %w", err)
	}
	return os.WriteFile(filepath.Join(om.dir, "tuning.yaml"), b, 0o644)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes the output files.
func (om *OutputManager) Close() error {
	if om == nil || om.censusFile == nil {
		return nil
	}
	return om.censusFile.Close()
}
