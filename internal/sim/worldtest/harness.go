// Package worldtest drives a world the way a connected client does:
// through the attach and control channels, reading broadcast frames.
// Tests here stay outside the world package on purpose, so they can only
// reach what real transports reach.
package worldtest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
	"gardensim.ai/internal/sim/world"
)

// BaseTune is the quiet-garden tuning the harness boots with: small grid,
// nothing pre-seeded, no random weather. Tests add what they need.
func BaseTune() tuning.Tuning {
	tune := tuning.Defaults()
	tune.GridWidth, tune.GridHeight = 12, 10
	// The world boots paused and advances with STEP. 2 Hz keeps resumed
	// stretches fast enough to wait on and slow enough to sleep past.
	tune.TickRateHz = 2
	tune.InitialFlowers = 0
	tune.InitialPopulation = nil
	tune.AntColonies, tune.Hives = 0, 0
	tune.Climate.EventChance = 0
	return tune
}

type Harness struct {
	T *testing.T
	W *world.World

	SessionID string

	out     chan []byte
	snaps   chan snapshot.SnapshotV1
	nextReq int

	last   protocol.FrameMsg
	actors map[string]protocol.ActorState
}

func NewHarness(t *testing.T, mutate func(*tuning.Tuning)) *Harness {
	t.Helper()

	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := BaseTune()
	if mutate != nil {
		mutate(&tune)
	}

	w, err := world.New(world.WorldConfig{
		ID:          "worldtest",
		Tune:        tune,
		SyncFactory: true,
		StartPaused: true,
	}, cats, flowergen.NewLocal())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	h := &Harness{
		T:      t,
		W:      w,
		out:    make(chan []byte, 256),
		snaps:  make(chan snapshot.SnapshotV1, 4),
		actors: map[string]protocol.ActorState{},
	}
	w.SetSnapshotSink(h.snaps)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)

	resp := make(chan world.AttachResponse, 1)
	select {
	case w.Attach() <- world.AttachRequest{ClientName: "worldtest", Out: h.out, Resp: resp}:
	case <-time.After(5 * time.Second):
		t.Fatalf("world loop never served the attach")
	}
	select {
	case ar := <-resp:
		h.SessionID = ar.SessionID
		if !ar.Keyframe.Paused {
			t.Fatalf("world came up running despite StartPaused")
		}
		h.applyFrame(ar.Keyframe)
	case <-time.After(5 * time.Second):
		t.Fatalf("no attach response")
	}
	return h
}

// Control submits one command and waits for its ack.
func (h *Harness) Control(cmd string, mut func(*protocol.ControlMsg), genome *genetics.Genome) protocol.AckMsg {
	h.T.Helper()
	h.nextReq++
	msg := protocol.ControlMsg{
		Type:            protocol.TypeControl,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("h-%d", h.nextReq),
		Command:         cmd,
	}
	if mut != nil {
		mut(&msg)
	}
	resp := make(chan protocol.AckMsg, 1)
	env := world.ControlEnvelope{SessionID: h.SessionID, Msg: msg, Genome: genome, Resp: resp}
	select {
	case h.W.Control() <- env:
	case <-time.After(5 * time.Second):
		h.T.Fatalf("world loop never served %s", cmd)
	}
	select {
	case ack := <-resp:
		return ack
	case <-time.After(5 * time.Second):
		h.T.Fatalf("no ack for %s", cmd)
		return protocol.AckMsg{}
	}
}

func (h *Harness) Pause() protocol.AckMsg {
	return h.Control(protocol.CmdPause, nil, nil)
}

func (h *Harness) Resume() protocol.AckMsg {
	return h.Control(protocol.CmdResume, nil, nil)
}

// StepTick advances the paused world one tick and returns that tick's
// broadcast frame. The stepped frame is queued before the ack, so after
// the ack the newest drained frame is always the one the step produced.
func (h *Harness) StepTick() protocol.FrameMsg {
	h.T.Helper()
	ack := h.Control(protocol.CmdStep, nil, nil)
	if !ack.Accepted {
		h.T.Fatalf("step refused: %+v", ack)
	}
	h.drainFrames()
	if h.last.Tick+1 != ack.ServerTick {
		h.T.Fatalf("frame tick %d does not match stepped tick %d", h.last.Tick, ack.ServerTick-1)
	}
	return h.last
}

// Plant queues a seed for the next tick. A nil genome plants a fresh
// random draw, mirroring a PLANT without a bank id.
func (h *Harness) Plant(cell [2]int, genome *genetics.Genome) protocol.AckMsg {
	return h.Control(protocol.CmdPlant, func(m *protocol.ControlMsg) {
		m.Plant = &protocol.PlantCmd{Cell: cell}
	}, genome)
}

// Save exports a labeled snapshot through the sink.
func (h *Harness) Save(label string) snapshot.SnapshotV1 {
	h.T.Helper()
	ack := h.Control(protocol.CmdSave, func(m *protocol.ControlMsg) {
		m.SaveName = label
	}, nil)
	if !ack.Accepted {
		h.T.Fatalf("save refused: %+v", ack)
	}
	select {
	case snap := <-h.snaps:
		return snap
	case <-time.After(5 * time.Second):
		h.T.Fatalf("snapshot never reached the sink")
		return snapshot.SnapshotV1{}
	}
}

// Count reads the population of one kind from the latest frame summary.
func (h *Harness) Count(kind string) int {
	return h.last.Summary[kind]
}

// ActorAt scans the frame mirror for an actor of kind at cell.
func (h *Harness) ActorAt(cell [2]int, kind string) (protocol.ActorState, bool) {
	for _, a := range h.actors {
		if a.Kind == kind && a.Pos == cell {
			return a, true
		}
	}
	return protocol.ActorState{}, false
}

// WaitTickAbove blocks until a broadcast frame beyond tick arrives. Used
// against a resumed world, where the ticker drives frames instead of STEP.
func (h *Harness) WaitTickAbove(tick uint64, timeout time.Duration) protocol.FrameMsg {
	h.T.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case b := <-h.out:
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				h.T.Fatalf("frame decode: %v", err)
			}
			h.applyFrame(f)
			if f.Tick > tick {
				return f
			}
		case <-deadline:
			h.T.Fatalf("no frame beyond tick %d within %v", tick, timeout)
		}
	}
}

// drainFrames consumes every broadcast frame currently queued, folding
// adds and removes into the actor mirror. Field updates are ignored: the
// mirror tracks presence, not live stats.
func (h *Harness) drainFrames() {
	h.T.Helper()
	for {
		select {
		case b := <-h.out:
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				h.T.Fatalf("frame decode: %v", err)
			}
			h.applyFrame(f)
		default:
			return
		}
	}
}

func (h *Harness) applyFrame(f protocol.FrameMsg) {
	for _, d := range f.Deltas {
		switch d.Op {
		case protocol.OpAdd:
			if d.Actor != nil {
				h.actors[d.ID] = *d.Actor
			}
		case protocol.OpRemove:
			delete(h.actors, d.ID)
		}
	}
	h.last = f
}
