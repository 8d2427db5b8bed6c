// Package snapshot defines the on-disk world snapshot: a zstd stream
// holding one JSON header line followed by a gob payload. The header lets
// tooling identify a snapshot without decoding the payload.
//
// Flower sprites are not persisted. They derive from the genome and are
// regenerated through the flower generator on import.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gardensim.ai/internal/sim/tuning"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Label   string `json:"label,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Effective tuning captured so a resume does not depend on the config
	// directory still being present.
	Params tuning.Tuning `json:"params"`

	// Serialized PCG state. Restoring it resumes the exact random stream.
	RNG []byte `json:"rng"`

	Climate    ClimateV1    `json:"climate"`
	Population PopulationV1 `json:"population"`

	// Per-kind id counters. Ids are never reused, so these only grow.
	Counters map[string]uint64 `json:"counters"`
	NextReq  uint64            `json:"next_req"`

	Actors  []ActorV1      `json:"actors"`
	Pending []PendingReqV1 `json:"pending,omitempty"`

	SpeciesDigest string `json:"species_digest,omitempty"`
	WeatherDigest string `json:"weather_digest,omitempty"`
}

type ClimateV1 struct {
	Event     string  `json:"event,omitempty"`
	Until     uint64  `json:"until,omitempty"`
	TempDelta float64 `json:"temp_delta,omitempty"`
	HumDelta  float64 `json:"hum_delta,omitempty"`
	WindDelta float64 `json:"wind_delta,omitempty"`
}

type PopulationV1 struct {
	Insects []float64 `json:"insects,omitempty"`
	Birds   []float64 `json:"birds,omitempty"`
	Decomp  []float64 `json:"decomp,omitempty"`

	BirdReadyTick  uint64 `json:"bird_ready_tick,omitempty"`
	EagleReadyTick uint64 `json:"eagle_ready_tick,omitempty"`
	RoachReadyTick uint64 `json:"roach_ready_tick,omitempty"`
	PlaneReadyTick uint64 `json:"plane_ready_tick,omitempty"`
}

type SignalV1 struct {
	Type    string `json:"type"`
	OriginX int    `json:"origin_x"`
	OriginY int    `json:"origin_y"`
	TTL     int    `json:"ttl"`
}

// ActorV1 is the persisted form of one actor. Fields unused by a kind stay
// zero and gob encodes them compactly.
type ActorV1 struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Species string `json:"species,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`

	Health  float64 `json:"health,omitempty"`
	Stamina float64 `json:"stamina,omitempty"`
	Age     int     `json:"age,omitempty"`

	Genome    [8]float64 `json:"genome,omitempty"`
	Sex       string     `json:"sex,omitempty"`
	Growth    float64    `json:"growth,omitempty"`
	Toxicity  float64    `json:"toxicity,omitempty"`
	Attract   float64    `json:"attract,omitempty"`
	Nutrients float64    `json:"nutrients,omitempty"`
	Effects   [4]float64 `json:"effects,omitempty"`

	Timer int    `json:"timer,omitempty"`
	ReqID string `json:"req_id,omitempty"`

	OwnerID  string    `json:"owner_id,omitempty"`
	Strength float64   `json:"strength,omitempty"`
	Lifespan int       `json:"lifespan,omitempty"`
	Signal   *SignalV1 `json:"signal,omitempty"`

	HomeID string  `json:"home_id,omitempty"`
	Stored float64 `json:"stored,omitempty"`

	TrappedID string `json:"trapped_id,omitempty"`
	TrappedIn string `json:"trapped_in,omitempty"`

	Food float64 `json:"food,omitempty"`
}

// PendingReqV1 is an unresolved generation request. Import re-submits it
// with the recorded seed, so the generator reproduces the same flower the
// original run would have received.
type PendingReqV1 struct {
	ReqID   string       `json:"req_id"`
	X       int          `json:"x"`
	Y       int          `json:"y"`
	Seed    uint64       `json:"seed"`
	Parents [][8]float64 `json:"parents,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line first; the gob payload repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line, for listing snapshots
// without paying for the full payload.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
