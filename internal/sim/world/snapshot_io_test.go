package world

import (
	"context"
	"strings"
	"testing"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
)

func TestSnapshot_RoundTripRestoresDigest(t *testing.T) {
	w1 := newDefaultWorld(t)
	for i := 0; i < 8; i++ {
		w1.StepOnce()
	}
	snapTick := w1.CurrentTick() - 1
	snap := w1.ExportSnapshot(snapTick)
	if snap.Header.Version != 1 || snap.Header.Tick != snapTick {
		t.Fatalf("snapshot header %+v", snap.Header)
	}
	if len(snap.Actors) != len(w1.actors) {
		t.Fatalf("snapshot carries %d actors, world has %d", len(snap.Actors), len(w1.actors))
	}

	w2 := newDefaultWorld(t)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.CurrentTick() != snapTick+1 {
		t.Fatalf("resumed tick %d, want %d", w2.CurrentTick(), snapTick+1)
	}
	if w1.stateDigest(snapTick) != w2.stateDigest(snapTick) {
		t.Fatalf("state digest changed across export/import")
	}
}

// TestSnapshot_PassiveWorldResumesInLockstep resumes a world of flowers,
// rot, and markers and requires the resumed run to match the uninterrupted
// one tick for tick. Only passive actors take part; behavior scratch state
// is ephemeral and would fork a resumed mobile.
func TestSnapshot_PassiveWorldResumesInLockstep(t *testing.T) {
	build := func() *World {
		return newTestWorld(t, testTune(8, 8))
	}
	w1 := build()
	addFlower(w1, actor.Vec2i{X: 2, Y: 2}, genomeAll(0.5), 50, 0)
	addFlower(w1, actor.Vec2i{X: 5, Y: 5}, genomeAll(0.7), 40, 0.5)
	w1.insert(&actor.Actor{Kind: actor.KindCorpse, Species: "bird", Pos: actor.Vec2i{X: 6, Y: 1}, Food: 2, Timer: 30})
	w1.insert(&actor.Actor{Kind: actor.KindNutrient, Pos: actor.Vec2i{X: 2, Y: 3}, Food: 2})
	w1.insert(&actor.Actor{
		Kind: actor.KindPheromoneTrail, Pos: actor.Vec2i{X: 4, Y: 4}, OwnerID: "ant-colony-9",
		Strength: 2, Lifespan: 40,
		Signal:   &actor.Signal{Type: actor.SignalUnderAttack, Origin: actor.Vec2i{X: 0, Y: 0}, TTL: 3},
	})
	w1.insert(&actor.Actor{Kind: actor.KindTerritoryMark, Pos: actor.Vec2i{X: 1, Y: 6}, OwnerID: "hive-9", Strength: 1, Lifespan: 30})
	w1.insert(&actor.Actor{Kind: actor.KindSpiderWeb, Pos: actor.Vec2i{X: 6, Y: 6}, OwnerID: "spider-9", Strength: 6, Lifespan: 40})
	w1.insert(&actor.Actor{Kind: actor.KindEgg, Species: "butterfly", Pos: actor.Vec2i{X: 0, Y: 5}, Health: eggHealth, Timer: 30, Genome: genomeAll(0.6)})

	for i := 0; i < 3; i++ {
		w1.StepOnce()
	}
	snap := w1.ExportSnapshot(w1.CurrentTick() - 1)

	w2 := build()
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	for i := 0; i < 6; i++ {
		t1, d1 := w1.StepOnce()
		t2, d2 := w2.StepOnce()
		if t1 != t2 || d1 != d2 {
			t.Fatalf("resumed world forked at tick %d/%d:\n  live    %s\n  resumed %s", t1, t2, d1, d2)
		}
	}
}

func TestSnapshot_ImportRejectsMismatches(t *testing.T) {
	base := newTestWorld(t, testTune(6, 6))

	snap := base.ExportSnapshot(0)
	snap.Header.Version = 2
	if err := newTestWorld(t, testTune(6, 6)).ImportSnapshot(snap); err == nil || !strings.Contains(err.Error(), "unsupported snapshot version") {
		t.Fatalf("version check: %v", err)
	}

	snap = base.ExportSnapshot(0)
	snap.Params.Seed = 999
	if err := newTestWorld(t, testTune(6, 6)).ImportSnapshot(snap); err == nil || !strings.Contains(err.Error(), "seed mismatch") {
		t.Fatalf("seed check: %v", err)
	}

	snap = base.ExportSnapshot(0)
	snap.Params.GridWidth = 12
	if err := newTestWorld(t, testTune(6, 6)).ImportSnapshot(snap); err == nil || !strings.Contains(err.Error(), "grid mismatch") {
		t.Fatalf("grid check: %v", err)
	}
}

// TestSnapshot_PendingRequestResumes interrupts a world while a flower is
// still being generated, resumes elsewhere, and expects the same flower:
// the request is re-issued with its recorded seed.
func TestSnapshot_PendingRequestResumes(t *testing.T) {
	a := newTestWorld(t, testTune(6, 6))
	a.factory = newFlowerFactory(&heldRunner{gen: flowergen.NewLocal()}, 8)

	resp := make(chan protocol.AckMsg, 1)
	a.handleControl(ControlEnvelope{
		SessionID: "S1",
		Msg:       protocol.ControlMsg{Command: protocol.CmdPlant, ReqID: "p1", Plant: &protocol.PlantCmd{Cell: [2]int{3, 3}}},
		Resp:      resp,
	})
	if ack := <-resp; !ack.Accepted {
		t.Fatalf("plant refused: %+v", ack)
	}
	a.StepOnce()
	if kindCount(a, actor.KindFlowerSeed) != 1 {
		t.Fatalf("seed placeholder missing while generation is held")
	}

	snap := a.ExportSnapshot(a.CurrentTick() - 1)
	if len(snap.Pending) != 1 || snap.Pending[0].X != 3 || snap.Pending[0].Y != 3 {
		t.Fatalf("pending export %+v", snap.Pending)
	}

	b := newTestWorld(t, testTune(6, 6))
	if err := b.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	b.StepOnce()

	f := one(t, b, actor.KindFlower)
	if f.Pos != (actor.Vec2i{X: 3, Y: 3}) || f.Health != sproutHealth {
		t.Fatalf("resumed sprout %+v", f)
	}
	if kindCount(b, actor.KindFlowerSeed) != 0 {
		t.Fatalf("seed placeholder survived its own sprout")
	}

	want, err := flowergen.NewLocal().Generate(context.Background(), snap.Pending[0].Seed, nil)
	if err != nil {
		t.Fatalf("reference generate: %v", err)
	}
	if f.Genome != want.Genome || f.Sex != want.Sex {
		t.Fatalf("resumed flower differs from the recorded request:\n got  %v %s\n want %v %s",
			f.Genome, f.Sex, want.Genome, want.Sex)
	}
}
