package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gardensim.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "prune":
			pruneCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "seeds":
			seedsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// pruneCmd clears a rectangle of garden beds in a snapshot: actors inside
// the rect are removed and the result is written as a new snapshot the
// server can resume from.
func pruneCmd(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to prune (optional; defaults to latest)")
	rect := fs.String("rect", "", "cell rectangle x1,y1:x2,y2 (required)")
	kinds := fs.String("kinds", "", "comma-separated actor kinds to remove, e.g. FLOWER,CORPSE (optional; default all)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run the server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	removed, dropped, cleared := applyPrune(&snap, min, max, parseKinds(*kinds))

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.pruned.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("prune ok: snapshot=%s tick=%d rect=%s removed=%d pending_dropped=%d refs_cleared=%d kept=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *rect, removed, dropped, cleared, len(snap.Actors), *outPath)
}

func applyPrune(snap *snapshot.SnapshotV1, min, max [2]int, kinds map[string]bool) (removed, droppedPending, cleared int) {
	gone := map[string]bool{}
	goneReq := map[string]bool{}
	kept := snap.Actors[:0]
	for _, a := range snap.Actors {
		in := a.X >= min[0] && a.X <= max[0] && a.Y >= min[1] && a.Y <= max[1]
		if in && (len(kinds) == 0 || kinds[a.Kind]) {
			gone[a.ID] = true
			if a.ReqID != "" {
				goneReq[a.ReqID] = true
			}
			removed++
			continue
		}
		kept = append(kept, a)
	}
	snap.Actors = kept

	// A pending request whose seed placeholder was pruned would still sprout
	// on import; drop the pair together.
	if len(goneReq) > 0 {
		pend := snap.Pending[:0]
		for _, p := range snap.Pending {
			if goneReq[p.ReqID] {
				droppedPending++
				continue
			}
			pend = append(pend, p)
		}
		snap.Pending = pend
	}

	// Survivors may reference pruned actors; clear dangling ids.
	for i := range snap.Actors {
		a := &snap.Actors[i]
		for _, f := range []*string{&a.OwnerID, &a.HomeID, &a.TrappedID, &a.TrappedIn} {
			if *f != "" && gone[*f] {
				*f = ""
				cleared++
			}
		}
	}
	return removed, droppedPending, cleared
}

func parseKinds(s string) map[string]bool {
	out := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out[p] = true
		}
	}
	return out
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
