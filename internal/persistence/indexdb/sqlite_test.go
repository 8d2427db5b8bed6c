package indexdb

import (
	"path/filepath"
	"testing"

	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/world"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSeedBank_SaveAndLookup(t *testing.T) {
	s := openTestIndex(t)

	g := genetics.Genome{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	id, err := s.SaveSeed(SeedEntry{
		Label: "prize rose", Genome: g, Sex: "F", SourceID: "flower-42",
		Attract: 0.91, Toxicity: 0.1, Tick: 1200, X: 7, Y: 3,
	})
	if err != nil {
		t.Fatalf("SaveSeed: %v", err)
	}
	if id == 0 {
		t.Fatalf("bank id not assigned")
	}

	e, ok, err := s.SeedByID(id)
	if err != nil || !ok {
		t.Fatalf("SeedByID(%d): ok=%v err=%v", id, ok, err)
	}
	if e.Genome != g || e.Label != "prize rose" || e.SourceID != "flower-42" || e.Tick != 1200 {
		t.Fatalf("banked entry mangled: %+v", e)
	}

	if _, ok, err := s.SeedByID(id + 999); err != nil || ok {
		t.Fatalf("unknown id should miss cleanly: ok=%v err=%v", ok, err)
	}
}

func TestSeedBank_ListsBestFirst(t *testing.T) {
	s := openTestIndex(t)

	for i, attract := range []float64{0.3, 0.9, 0.6} {
		if _, err := s.SaveSeed(SeedEntry{Label: "x", Genome: genetics.Genome{}, Sex: "M", SourceID: "f", Attract: attract, X: i}); err != nil {
			t.Fatalf("SaveSeed %d: %v", i, err)
		}
	}

	list, err := s.ListSeeds(2)
	if err != nil {
		t.Fatalf("ListSeeds: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListSeeds returned %d entries, want 2", len(list))
	}
	if list[0].Attract != 0.9 || list[1].Attract != 0.6 {
		t.Fatalf("bank not ordered by attraction: %+v", list)
	}
}

func TestIndex_TickAndEventRows(t *testing.T) {
	s := openTestIndex(t)

	g := [8]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	if err := s.WriteTick(world.TickLogEntry{
		Tick: 12, Removes: 1, Updates: 3, Adds: 2, Events: 1, Digest: "abc",
		Plants: []world.RecordedPlant{{SessionID: "S1", Cell: [2]int{4, 5}, Genome: &g, ReqID: "req-3"}},
	}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	pos := [2]int{4, 5}
	if err := s.WriteEvent(protocol.NarrativeEvent{Tick: 12, Severity: protocol.SeverityInfo, Importance: 0.5, Message: "the gardener planted a seed at (4,5)", Pos: &pos}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	s.Flush()

	var digest string
	var adds int
	if err := s.db.QueryRow(`SELECT digest, adds FROM ticks WHERE tick=12`).Scan(&digest, &adds); err != nil {
		t.Fatalf("tick row: %v", err)
	}
	if digest != "abc" || adds != 2 {
		t.Fatalf("tick row digest=%q adds=%d", digest, adds)
	}

	var reqID string
	if err := s.db.QueryRow(`SELECT req_id FROM plants WHERE tick=12 AND seq=0`).Scan(&reqID); err != nil {
		t.Fatalf("plant row: %v", err)
	}
	if reqID != "req-3" {
		t.Fatalf("plant row req_id=%q", reqID)
	}

	var msg string
	if err := s.db.QueryRow(`SELECT message FROM events WHERE tick=12`).Scan(&msg); err != nil {
		t.Fatalf("event row: %v", err)
	}
	if msg == "" {
		t.Fatalf("event message empty")
	}
}

func TestIndex_LatestSnapshot(t *testing.T) {
	s := openTestIndex(t)

	if _, ok, err := s.LatestSnapshot(); err != nil || ok {
		t.Fatalf("empty index claims a snapshot: ok=%v err=%v", ok, err)
	}

	for _, tick := range []uint64{100, 300, 200} {
		snap := snapshot.SnapshotV1{}
		snap.Header = snapshot.Header{Version: 1, WorldID: "g1", Tick: tick, Label: "auto"}
		snap.Params.Seed = 7
		s.RecordSnapshot(filepath.Join("snaps", "t.snap.zst"), snap)
	}
	s.Flush()

	info, ok, err := s.LatestSnapshot()
	if err != nil || !ok {
		t.Fatalf("LatestSnapshot: ok=%v err=%v", ok, err)
	}
	if info.Tick != 300 || info.Seed != 7 || info.Label != "auto" {
		t.Fatalf("latest snapshot row %+v", info)
	}
}

func TestIndex_QueueDropCounting(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteEvent(protocol.NarrativeEvent{Tick: 2})
	s.RecordSnapshot("/tmp/x.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop totals %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
