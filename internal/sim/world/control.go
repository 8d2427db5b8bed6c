package world

import (
	"fmt"
	"sort"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
)

// handleControl serves one control command between ticks. PAUSE, RESUME,
// STEP, and SAVE act immediately; PLANT validates now, acks, and lands at
// the next tick boundary so the insertion rides the normal delta stream.
func (w *World) handleControl(env ControlEnvelope) {
	msg := env.Msg
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          msg.ReqID,
		ServerTick:      w.tick.Load(),
	}

	switch msg.Command {
	case protocol.CmdPause:
		w.paused = true
		ack.Accepted = true
	case protocol.CmdResume:
		w.paused = false
		ack.Accepted = true
	case protocol.CmdStep:
		if !w.paused {
			ack.Code, ack.Message = protocol.ErrNotPaused, "STEP requires a paused world"
		} else {
			w.step()
			ack.Accepted = true
			ack.ServerTick = w.tick.Load()
		}
	case protocol.CmdSave:
		if w.snapshotSink == nil {
			ack.Code, ack.Message = protocol.ErrInternal, "no snapshot store attached"
			break
		}
		// Between ticks the counter names the next tick to run; the state
		// being saved is the one the previous tick left behind. Stamping the
		// completed tick keeps a resumed world in step with this one.
		snapTick := w.tick.Load()
		if snapTick > 0 {
			snapTick--
		}
		snap := w.ExportSnapshot(snapTick)
		snap.Header.Label = msg.SaveName
		select {
		case w.snapshotSink <- snap:
			ack.Accepted = true
		default:
			ack.Code, ack.Message = protocol.ErrInternal, "snapshot store is backed up"
		}
	case protocol.CmdPlant:
		if code, text := w.queuePlant(env); code != "" {
			ack.Code, ack.Message = code, text
		} else {
			ack.Accepted = true
		}
	default:
		ack.Code, ack.Message = protocol.ErrBadRequest, fmt.Sprintf("unknown command %q", msg.Command)
	}

	if env.Resp != nil {
		select {
		case env.Resp <- ack:
		default:
		}
	}
}

// queuePlant validates a plant order against current state and queues it.
// Returns an empty code on acceptance.
func (w *World) queuePlant(env ControlEnvelope) (code, message string) {
	p := env.Msg.Plant
	if p == nil {
		return protocol.ErrBadRequest, "PLANT carries no plant payload"
	}
	cell := actor.Vec2i{X: p.Cell[0], Y: p.Cell[1]}
	if !actor.InBounds(cell, w.tune.GridWidth, w.tune.GridHeight) {
		return protocol.ErrOutOfBounds, fmt.Sprintf("cell (%d,%d) is outside the %dx%d grid", cell.X, cell.Y, w.tune.GridWidth, w.tune.GridHeight)
	}
	for _, a := range w.actors {
		if a.Kind.ClaimsCell() && a.Pos == cell {
			return protocol.ErrCellOccupied, fmt.Sprintf("cell (%d,%d) already holds a %s", cell.X, cell.Y, a.Kind)
		}
	}
	if w.factory.CellBusy(cell) {
		return protocol.ErrCellOccupied, fmt.Sprintf("cell (%d,%d) has a flower on the way", cell.X, cell.Y)
	}
	for _, q := range w.pendingPlants {
		if q.Cell == cell {
			return protocol.ErrCellOccupied, fmt.Sprintf("cell (%d,%d) is already queued", cell.X, cell.Y)
		}
	}
	if w.factory.InFlight()+len(w.pendingPlants) >= w.tune.Factory.MaxInFlight {
		return protocol.ErrFactoryBusy, "the flower factory is at capacity"
	}
	w.pendingPlants = append(w.pendingPlants, plantOrder{SessionID: env.SessionID, Cell: cell, Genome: env.Genome})
	return "", ""
}

// handleAttach registers an observer session and hands back the WELCOME
// plus a keyframe. Registration happens on the loop goroutine, so the
// keyframe and the first streamed frame can never miss a tick between them.
func (w *World) handleAttach(req AttachRequest) {
	w.nextSession++
	id := fmt.Sprintf("S%d", w.nextSession)
	if req.Out != nil {
		w.clients[id] = &clientState{Out: req.Out}
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       id,
		Tick:            w.tick.Load(),
		Paused:          w.paused,
		WorldParams: protocol.WorldParams{
			TickRateHz: w.tune.TickRateHz,
			GridWidth:  w.tune.GridWidth,
			GridHeight: w.tune.GridHeight,
			YearTicks:  w.tune.Climate.YearTicks,
			Seed:       w.tune.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			SpeciesPalette: protocol.DigestRef{Digest: w.cats.Species.PaletteDigest, Count: len(w.cats.Species.Palette)},
			SpeciesDigest:  w.cats.Species.DefsDigest,
			WeatherDigest:  w.cats.Weather.Digest,
		},
	}

	if req.Resp != nil {
		req.Resp <- AttachResponse{SessionID: id, Welcome: welcome, Keyframe: w.keyframe()}
	}
}

// keyframe renders the entire live state as one frame of Add deltas.
func (w *World) keyframe() protocol.FrameMsg {
	ids := make([]string, 0, len(w.actors))
	for id := range w.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	deltas := make([]protocol.Delta, 0, len(ids))
	for _, id := range ids {
		deltas = append(deltas, protocol.Delta{Op: protocol.OpAdd, ID: id, Actor: wireActor(w.actors[id])})
	}
	now := w.tick.Load()
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            now,
		Deltas:          deltas,
		Summary:         censusOf(w.actors),
		Climate:         climateState(w.climate.At(now)),
		Cursor:          w.ring.Cursor(),
		Paused:          w.paused,
	}
}

func (w *World) handleEventBatch(env EventBatchEnvelope) {
	items, next := w.ring.Since(env.Msg.SinceCursor, env.Msg.Limit)
	resp := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		ReqID:           env.Msg.ReqID,
		Events:          items,
		NextCursor:      next,
	}
	if env.Resp != nil {
		select {
		case env.Resp <- resp:
		default:
		}
	}
}
