package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/world"
	"gardensim.ai/internal/telemetry"
)

// runCensus attaches to the world as an ordinary observer session and folds
// every Nth frame into a csv row. Keeping it on the frame stream means the
// csv can never disagree with what clients saw.
func runCensus(ctx context.Context, w *world.World, out *telemetry.OutputManager, every uint64, logger *log.Logger) {
	if every == 0 {
		every = 1
	}

	frames := make(chan []byte, 64)
	resp := make(chan world.AttachResponse, 1)
	select {
	case w.Attach() <- world.AttachRequest{ClientName: "telemetry", Out: frames, Resp: resp}:
	case <-ctx.Done():
		return
	}
	var sessionID string
	select {
	case ar := <-resp:
		sessionID = ar.SessionID
	case <-ctx.Done():
		return
	}
	defer func() {
		select {
		case w.Detach() <- sessionID:
		case <-time.After(2 * time.Second):
		}
	}()

	var lastTick uint64
	wrote := false
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-frames:
			var f protocol.FrameMsg
			if err := json.Unmarshal(raw, &f); err != nil || f.Type != protocol.TypeFrame {
				continue
			}
			if wrote && f.Tick < lastTick+every {
				continue
			}
			if err := out.WriteCensus(telemetry.FromFrame(f)); err != nil {
				logger.Printf("telemetry: census: %v", err)
				return
			}
			lastTick, wrote = f.Tick, true
		}
	}
}
