// The gardener is a headless client that keeps a garden stocked: it
// watches the frame stream for free beds and plants a seed every few
// ticks, optionally cloning a genome from the seed bank.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "gardener", "client name")
		plantEvery = flag.Uint64("plant_every", 120, "ticks between plantings")
		bankID     = flag.Int64("bank_id", 0, "seed bank id to clone (0 plants fresh random seeds)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gardener] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	g := &gardener{
		logger:     logger,
		plantEvery: *plantEvery,
		bankID:     *bankID,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		cells:      map[[2]int]bool{},
		claims:     map[string][2]int{},
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			g.width = w.WorldParams.GridWidth
			g.height = w.WorldParams.GridHeight
			logger.Printf("WELCOME session=%s tick=%d grid=%dx%d seed=%d", w.SessionID, w.Tick, g.width, g.height, w.WorldParams.Seed)

		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			g.handleFrame(conn, &f)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				logger.Printf("%s refused: %s %s", a.AckFor, a.Code, a.Message)
			}
		}
	}
}

type gardener struct {
	logger     *log.Logger
	plantEvery uint64
	bankID     int64
	rng        *rand.Rand

	width, height int

	// Cells claimed by flowers and seed placeholders, maintained from deltas.
	cells  map[[2]int]bool
	claims map[string][2]int
}

func (g *gardener) handleFrame(conn *websocket.Conn, f *protocol.FrameMsg) {
	for _, d := range f.Deltas {
		switch d.Op {
		case protocol.OpAdd:
			if d.Actor == nil {
				continue
			}
			if actor.Kind(d.Actor.Kind).ClaimsCell() {
				g.cells[d.Actor.Pos] = true
				g.claims[d.ID] = d.Actor.Pos
			}
		case protocol.OpRemove:
			if cell, ok := g.claims[d.ID]; ok {
				delete(g.cells, cell)
				delete(g.claims, d.ID)
			}
		}
	}

	for _, ev := range f.Events {
		if ev.Severity == protocol.SeverityAlert {
			g.logger.Printf("tick=%d %s", ev.Tick, ev.Message)
		}
	}

	if f.Paused || g.width == 0 || g.plantEvery == 0 || f.Tick%g.plantEvery != 0 {
		return
	}
	cell, ok := g.freeCell()
	if !ok {
		g.logger.Printf("tick=%d no free beds left", f.Tick)
		return
	}
	cmd := protocol.ControlMsg{
		Type:            protocol.TypeControl,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("plant-%d", f.Tick),
		Command:         protocol.CmdPlant,
		Plant:           &protocol.PlantCmd{Cell: cell, BankID: g.bankID},
	}
	if err := conn.WriteJSON(cmd); err == nil {
		g.logger.Printf("tick=%d planting at (%d,%d)", f.Tick, cell[0], cell[1])
	}
}

// freeCell samples random beds, falling back to a full scan when the
// garden is crowded.
func (g *gardener) freeCell() ([2]int, bool) {
	for i := 0; i < 32; i++ {
		c := [2]int{g.rng.IntN(g.width), g.rng.IntN(g.height)}
		if !g.cells[c] {
			return c, true
		}
	}
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			c := [2]int{x, y}
			if !g.cells[c] {
				return c, true
			}
		}
	}
	return [2]int{}, false
}
