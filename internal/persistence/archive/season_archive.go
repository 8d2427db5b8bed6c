// Package archive keeps one snapshot per season under
// worldDir/archives/, so a garden's history stays browsable after the
// regular snapshot directory gets pruned.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gardensim.ai/internal/persistence/snapshot"
)

type SeasonArchiveMeta struct {
	Year      int    `json:"year"`
	Season    string `json:"season"`
	EndTick   uint64 `json:"end_tick"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	YearTicks int    `json:"year_ticks"`
	Actors    int    `json:"actors"`
}

// seasonOrdinal numbers seasons from world start, four per year cycle.
func seasonOrdinal(tick uint64, yearTicks int) uint64 {
	return 4 * tick / uint64(yearTicks)
}

func seasonName(ord uint64) string {
	switch ord % 4 {
	case 0:
		return "spring"
	case 1:
		return "summer"
	case 2:
		return "autumn"
	default:
		return "winter"
	}
}

// ArchiveSeasonSnapshot copies a season's closing snapshot into
// worldDir/archives/year_NNN_<season>/ next to a meta.json. A snapshot
// closes its season when the next one on the regular cadence would fall
// in a later season. The cadence and year length come from the snapshot's
// own params, so the decision needs no server state.
func ArchiveSeasonSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (label, archivedPath string, archived bool, err error) {
	yearTicks := snap.Params.Climate.YearTicks
	every := snap.Params.SnapshotEveryTicks
	if yearTicks <= 0 || every <= 0 {
		return "", "", false, nil
	}
	ord := seasonOrdinal(snap.Header.Tick, yearTicks)
	if seasonOrdinal(snap.Header.Tick+uint64(every), yearTicks) == ord {
		return "", "", false, nil
	}

	year := int(ord/4) + 1
	label = fmt.Sprintf("year_%03d_%s", year, seasonName(ord))
	archiveDir := filepath.Join(worldDir, "archives", label)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", "", false, err
	}

	meta := SeasonArchiveMeta{
		Year:      year,
		Season:    seasonName(ord),
		EndTick:   snap.Header.Tick,
		Seed:      snap.Params.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		YearTicks: yearTicks,
		Actors:    len(snap.Actors),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return label, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
