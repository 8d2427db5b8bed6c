package log

import (
	"testing"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/world"
)

func TestTickLogRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tl := NewTickLogger(dir)
	for i := uint64(0); i < 5; i++ {
		entry := world.TickLogEntry{Tick: i, Adds: int(i), Digest: "d"}
		if i == 3 {
			g := [8]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
			entry.Plants = []world.RecordedPlant{{SessionID: "S1", Cell: [2]int{4, 5}, Genome: &g, ReqID: "req-7"}}
		}
		if err := tl.WriteTick(entry); err != nil {
			t.Fatalf("write tick %d: %v", i, err)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadTicks(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("read %d entries, wrote 5", len(got))
	}
	for i, e := range got {
		if e.Tick != uint64(i) || e.Adds != i {
			t.Fatalf("entry %d out of order: %+v", i, e)
		}
	}
	plants := got[3].Plants
	if len(plants) != 1 || plants[0].ReqID != "req-7" || plants[0].Cell != [2]int{4, 5} {
		t.Fatalf("plant order lost: %+v", plants)
	}
	if plants[0].Genome == nil || plants[0].Genome[2] != 0.3 {
		t.Fatalf("plant genome lost: %+v", plants[0].Genome)
	}
}

func TestTickLogAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	for round := 0; round < 2; round++ {
		tl := NewTickLogger(dir)
		if err := tl.WriteTick(world.TickLogEntry{Tick: uint64(round), Digest: "d"}); err != nil {
			t.Fatalf("round %d write: %v", round, err)
		}
		if err := tl.Close(); err != nil {
			t.Fatalf("round %d close: %v", round, err)
		}
	}

	got, err := ReadTicks(dir)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 0 || got[1].Tick != 1 {
		t.Fatalf("reopened log lost entries: %+v", got)
	}
}

func TestEventLoggerWrites(t *testing.T) {
	dir := t.TempDir()

	el := NewEventLogger(dir)
	ev := protocol.NarrativeEvent{Tick: 9, Message: "a bird swooped into the garden", Severity: protocol.SeverityInfo, Importance: 0.6}
	if err := el.WriteEvent(ev); err != nil {
		t.Fatalf("write event: %v", err)
	}
	if err := el.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
