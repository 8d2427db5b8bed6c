// Package world owns one authoritative garden simulation: the tick loop,
// per-actor behavior dispatch, the flower generation factory, population
// pressure, climate, and the renderer-facing delta stream. All state is
// confined to the Run goroutine; channels are the only way in.
package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/climate"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
)

const (
	sproutHealth  = 40.0
	eventRingSize = 4096
)

// WorldConfig selects the per-world knobs that are not tuning content.
type WorldConfig struct {
	ID   string
	Tune tuning.Tuning

	// SyncFactory resolves generation requests inline on the tick that
	// issues them. Replays and tests need this; the server runs async.
	SyncFactory bool

	// StartPaused boots the world waiting for a RESUME, so nothing ticks
	// before the first client takes control.
	StartPaused bool
}

// AttachRequest connects an observer session to the frame stream.
type AttachRequest struct {
	ClientName string
	Out        chan []byte
	Resp       chan AttachResponse
}

// AttachResponse carries the handshake payload: the WELCOME plus one full
// keyframe so the renderer starts from complete state.
type AttachResponse struct {
	SessionID string
	Welcome   protocol.WelcomeMsg
	Keyframe  protocol.FrameMsg
}

// ControlEnvelope is one control command routed into the loop. Genome is
// the resolved seed-bank genome for PLANT; nil means a fresh random draw.
type ControlEnvelope struct {
	SessionID string
	Msg       protocol.ControlMsg
	Genome    *genetics.Genome
	Resp      chan protocol.AckMsg
}

// EventBatchEnvelope is a cursor-based narrative backfill request.
type EventBatchEnvelope struct {
	SessionID string
	Msg       protocol.EventBatchReqMsg
	Resp      chan protocol.EventBatchMsg
}

type plantOrder struct {
	SessionID string
	Cell      actor.Vec2i
	Genome    *genetics.Genome
}

// TickLogEntry is one line of the deterministic tick log.
type TickLogEntry struct {
	Tick    uint64          `json:"tick"`
	Removes int             `json:"removes,omitempty"`
	Updates int             `json:"updates,omitempty"`
	Adds    int             `json:"adds,omitempty"`
	Events  int             `json:"events,omitempty"`
	Plants  []RecordedPlant `json:"plants,omitempty"`
	Digest  string          `json:"digest"`
}

// RecordedPlant is a gardener plant order as applied, genome included, so
// a replay reproduces it without the seed bank.
type RecordedPlant struct {
	SessionID string      `json:"session_id,omitempty"`
	Cell      [2]int      `json:"cell"`
	Genome    *[8]float64 `json:"genome,omitempty"`
	ReqID     string      `json:"req_id"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(ev protocol.NarrativeEvent) error
}

// Metrics is the world's observability surface; the server wires a
// Prometheus implementation, tests leave it nil.
type Metrics interface {
	ObserveTickDuration(seconds float64)
	SetPopulation(kind string, count int)
	SetClients(n int)
	SetFactoryInFlight(n int)
	AddEvents(n int)
}

type clientState struct {
	Out chan []byte
}

// World is one running garden.
type World struct {
	cfg  WorldConfig
	tune tuning.Tuning
	cats *catalogs.Catalogs
	gen  flowergen.Generator

	tick   atomic.Uint64
	paused bool

	// The only randomness source in the simulation. Draw order is part of
	// the determinism contract; rngSrc is kept for snapshot marshaling.
	rngSrc *rand.PCG
	rng    *rand.Rand

	actors      map[string]*actor.Actor
	counters    map[actor.Kind]uint64
	blackboards map[string]*blackboard

	climate *climate.Model
	pop     *populationManager
	factory *flowerFactory
	ring    *eventRing

	pendingPlants  []plantOrder
	recordedPlants []RecordedPlant

	clients     map[string]*clientState
	nextSession uint64

	attach  chan AttachRequest
	detach  chan string
	control chan ControlEnvelope
	batch   chan EventBatchEnvelope
	stop    chan struct{}

	logger       *log.Logger
	tickLogger   TickLogger
	eventLogger  EventLogger
	metrics      Metrics
	snapshotSink chan<- snapshot.SnapshotV1

	warned map[string]bool
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, gen flowergen.Generator) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if gen == nil {
		return nil, fmt.Errorf("world: nil generator")
	}
	if cfg.ID == "" {
		cfg.ID = "garden-1"
	}
	tune := cfg.Tune
	if tune.GridWidth <= 0 || tune.GridHeight <= 0 {
		return nil, fmt.Errorf("world: grid %dx%d", tune.GridWidth, tune.GridHeight)
	}
	if tune.TickRateHz <= 0 {
		tune.TickRateHz = 10
	}

	src := rand.NewPCG(uint64(tune.Seed), 0)
	w := &World{
		cfg:         cfg,
		tune:        tune,
		cats:        cats,
		gen:         gen,
		rngSrc:      src,
		rng:         rand.New(src),
		actors:      map[string]*actor.Actor{},
		counters:    map[actor.Kind]uint64{},
		blackboards: map[string]*blackboard{},
		climate:     climate.New(climateConfig(tune.Climate), weatherEvents(cats.Weather)),
		pop:         newPopulationManager(tune.Trend, tune.Herbicide),
		ring:        newEventRing(eventRingSize),
		clients:     map[string]*clientState{},
		attach:      make(chan AttachRequest, 16),
		detach:      make(chan string, 64),
		control:     make(chan ControlEnvelope, 256),
		batch:       make(chan EventBatchEnvelope, 64),
		stop:        make(chan struct{}),
		logger:      log.Default(),
		warned:      map[string]bool{},
	}

	timeout := time.Duration(tune.Factory.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	var runner generatorRunner
	if cfg.SyncFactory {
		runner = &syncRunner{gen: gen, timeout: timeout}
	} else {
		runner = flowergen.NewPool(gen, tune.Factory.Workers, timeout)
	}
	w.factory = newFlowerFactory(runner, tune.Factory.MaxInFlight)
	w.paused = cfg.StartPaused

	w.populate()
	return w, nil
}

func (w *World) SetLogger(l *log.Logger)                       { w.logger = l }
func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetEventLogger(l EventLogger)                  { w.eventLogger = l }
func (w *World) SetMetrics(m Metrics)                          { w.metrics = m }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Attach() chan<- AttachRequest        { return w.attach }
func (w *World) Detach() chan<- string               { return w.detach }
func (w *World) Control() chan<- ControlEnvelope     { return w.control }
func (w *World) EventBatch() chan<- EventBatchEnvelope { return w.batch }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) ID() string          { return w.cfg.ID }

// Run drives the loop until ctx is done or Stop is called. Attach,
// control, and batch requests are served between ticks on this goroutine,
// so no lock guards world state.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.attach:
			w.handleAttach(req)
		case id := <-w.detach:
			delete(w.clients, id)
		case env := <-w.control:
			w.handleControl(env)
		case env := <-w.batch:
			w.handleEventBatch(env)
		case <-ticker.C:
			if !w.paused {
				w.step()
			}
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Close releases the generation workers. Call after Run has returned.
func (w *World) Close() { w.factory.Close() }

// StepOnce advances exactly one tick and returns the advanced tick number
// with the post-tick state digest. Replays and determinism tests drive the
// world through this instead of Run.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step()
	return tick, w.stateDigest(tick)
}

// QueueRecordedPlants re-enqueues plant orders from a tick log entry.
// Queue them before stepping the entry's tick and the replayed world applies
// them at the same boundary the live run did.
func (w *World) QueueRecordedPlants(plants []RecordedPlant) {
	for _, rp := range plants {
		po := plantOrder{SessionID: rp.SessionID, Cell: actor.Vec2i{X: rp.Cell[0], Y: rp.Cell[1]}}
		if rp.Genome != nil {
			g := genetics.Genome(*rp.Genome)
			po.Genome = &g
		}
		w.pendingPlants = append(w.pendingPlants, po)
	}
}

func (w *World) step() {
	start := time.Now()
	nowTick := w.tick.Load()
	ts := w.beginTick(nowTick)

	started, ended := w.climate.Step(w.rng, nowTick)
	ts.climate = w.climate.At(nowTick)
	if started != "" {
		def := w.cats.Weather.ByID[started]
		ts.eventf(weatherSeverity(def.Severity), weatherImportance(def.Severity), nil, "%s", weatherMessage(def, started))
	}
	if ended != "" {
		def := w.cats.Weather.ByID[ended]
		ts.eventf(protocol.SeverityInfo, 0.3, nil, "the %s passed", weatherTitle(def, ended))
	}

	// Completions resolve before new orders land. A request can never
	// sprout inside its own tick, so sync and pooled runners produce the
	// same tick-by-tick state as long as generation beats the tick rate.
	w.drainFactory(ts)
	w.applyPlantOrders(ts)

	for _, id := range ts.order {
		ts.process(id)
	}

	w.pop.step(ts)

	deltas := ts.diff()
	summary := ts.summary()

	for _, ev := range ts.events {
		w.ring.Append(ev)
		if w.eventLogger != nil {
			_ = w.eventLogger.WriteEvent(ev)
		}
	}

	frame := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Deltas:          deltas,
		Events:          ts.events,
		Summary:         summary,
		Climate:         climateState(ts.climate),
		Cursor:          w.ring.Cursor(),
		Paused:          w.paused,
	}
	if b, err := json.Marshal(frame); err == nil {
		for _, cl := range w.clients {
			sendLatest(cl.Out, b)
		}
	}

	w.actors = ts.next
	for id := range w.blackboards {
		if _, ok := ts.next[id]; !ok {
			delete(w.blackboards, id)
		}
	}

	if w.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Events: len(ts.events), Plants: w.recordedPlants, Digest: w.stateDigest(nowTick)}
		for _, d := range deltas {
			switch d.Op {
			case protocol.OpRemove:
				entry.Removes++
			case protocol.OpUpdate:
				entry.Updates++
			case protocol.OpAdd:
				entry.Adds++
			}
		}
		_ = w.tickLogger.WriteTick(entry)
	}
	w.recordedPlants = nil

	if w.metrics != nil {
		w.metrics.ObserveTickDuration(time.Since(start).Seconds())
		for k, n := range summary {
			w.metrics.SetPopulation(k, n)
		}
		w.metrics.SetClients(len(w.clients))
		w.metrics.SetFactoryInFlight(w.factory.InFlight())
		w.metrics.AddEvents(len(ts.events))
	}

	if w.snapshotSink != nil && nowTick != 0 && w.tune.SnapshotEveryTicks > 0 && nowTick%uint64(w.tune.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop when the store is backed up; the next cadence retries.
		}
	}

	w.tick.Add(1)
}

// applyPlantOrders lands queued gardener plants at the tick boundary so
// every insertion flows through the normal delta stream.
func (w *World) applyPlantOrders(ts *tickState) {
	for _, po := range w.pendingPlants {
		if !ts.freeForPlanting(po.Cell) || w.factory.CellBusy(po.Cell) {
			w.logf("plant at (%d,%d) lost its cell before the tick", po.Cell.X, po.Cell.Y)
			continue
		}
		var parents []genetics.Genome
		if po.Genome != nil {
			parents = []genetics.Genome{*po.Genome}
		}
		seed := w.requestFlower(ts, po.Cell, parents)
		if seed == nil {
			w.logf("plant at (%d,%d) refused by the factory", po.Cell.X, po.Cell.Y)
			continue
		}
		rp := RecordedPlant{SessionID: po.SessionID, Cell: po.Cell.ToArray(), ReqID: seed.ReqID}
		if po.Genome != nil {
			g := [8]float64(*po.Genome)
			rp.Genome = &g
		}
		w.recordedPlants = append(w.recordedPlants, rp)
		ts.eventf(protocol.SeverityInfo, 0.6, &po.Cell, "the gardener planted a seed at (%d,%d)", po.Cell.X, po.Cell.Y)
	}
	w.pendingPlants = w.pendingPlants[:0]
}

// requestFlower issues a generation request for cell and stands a seed
// placeholder on it. Returns nil when the cell is taken or the factory
// refuses.
func (w *World) requestFlower(ts *tickState, cell actor.Vec2i, parents []genetics.Genome) *actor.Actor {
	if !ts.freeForPlanting(cell) || w.factory.CellBusy(cell) {
		return nil
	}
	reqID, ok := w.factory.Request(cell, w.rng.Uint64(), parents)
	if !ok {
		return nil
	}
	s := ts.spawn(&actor.Actor{Kind: actor.KindFlowerSeed, Pos: cell, Health: seedHealth, ReqID: reqID})
	w.factory.Bind(reqID, s.ID)
	return s
}

// drainFactory applies completed generation results: each one replaces its
// seed placeholder with a sprouted flower. Late results whose request was
// cancelled are discarded.
func (w *World) drainFactory(ts *tickState) {
	for _, c := range w.factory.Drain() {
		p, ok := w.factory.Take(c.ReqID)
		if !ok {
			w.warnOnce("factory:unknown", "generator returned unknown request %s", c.ReqID)
			continue
		}
		if p.Cancelled {
			continue
		}
		seedA, live := ts.alive(p.SeedActor)
		if c.Err != nil {
			w.logf("flowergen %s: %v", c.ReqID, c.Err)
			if live && seedA.Kind == actor.KindFlowerSeed {
				ts.remove(p.SeedActor)
			}
			continue
		}
		if !live || seedA.Kind != actor.KindFlowerSeed {
			continue
		}
		ts.remove(p.SeedActor)
		st := w.gen.Stats(c.Result.Genome, ts.climate.Humidity, ts.climate.Temperature)
		f := ts.spawn(&actor.Actor{
			Kind:      actor.KindFlower,
			Pos:       p.Cell,
			Health:    sproutHealth,
			Genome:    c.Result.Genome,
			Sex:       c.Result.Sex,
			Toxicity:  st.Toxicity,
			Attract:   st.Attract,
			Nutrients: st.Nutrients,
			Effects:   st.Effects,
			Image:     c.Result.Image,
		})
		ts.eventf(protocol.SeverityInfo, 0.4, &f.Pos, "a flower sprouted at (%d,%d)", f.Pos.X, f.Pos.Y)
	}
}

func (w *World) newID(k actor.Kind) string {
	w.counters[k]++
	return actor.FormatID(k, w.counters[k])
}

func (w *World) speciesDef(id string) (catalogs.SpeciesDef, bool) {
	d, ok := w.cats.Species.Defs[id]
	return d, ok
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf("[%s] "+format, append([]any{w.cfg.ID}, args...)...)
	}
}

// warnOnce logs a recurring condition a single time per key, so a bad
// catalog entry does not flood the log every tick.
func (w *World) warnOnce(key, format string, args ...any) {
	if w.warned[key] {
		return
	}
	w.warned[key] = true
	w.logf(format, args...)
}

// stateDigest hashes the full simulation state in sorted order. Sprite
// bytes are excluded: they are derived from the genome. Two worlds with
// equal digests will evolve identically.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	putI := func(v int) { put(uint64(int64(v))) }
	putF := func(v float64) { put(math.Float64bits(v)) }
	putS := func(s string) {
		put(uint64(len(s)))
		h.Write([]byte(s))
	}

	put(nowTick)
	put(uint64(w.tune.Seed))

	cs := w.climate.Export()
	putS(cs.Event)
	put(cs.Until)
	putF(cs.TempDelta)
	putF(cs.HumDelta)
	putF(cs.WindDelta)

	ids := make([]string, 0, len(w.actors))
	for id := range w.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := w.actors[id]
		putS(id)
		putS(string(a.Kind))
		putS(a.Species)
		putI(a.Pos.X)
		putI(a.Pos.Y)
		putF(a.Health)
		putF(a.Stamina)
		putI(a.Age)
		for _, g := range a.Genome {
			putF(g)
		}
		putS(a.Sex)
		putF(a.Growth)
		putF(a.Toxicity)
		putF(a.Attract)
		putF(a.Nutrients)
		for _, e := range a.Effects {
			putF(e)
		}
		putI(a.Timer)
		putS(a.ReqID)
		putS(a.OwnerID)
		putF(a.Strength)
		putI(a.Lifespan)
		if a.Signal != nil {
			putS(a.Signal.Type)
			putI(a.Signal.Origin.X)
			putI(a.Signal.Origin.Y)
			putI(a.Signal.TTL)
		} else {
			put(0)
		}
		putS(a.HomeID)
		putF(a.Stored)
		putS(a.TrappedID)
		putS(a.TrappedIn)
		putF(a.Food)
	}

	kinds := make([]string, 0, len(w.counters))
	for k := range w.counters {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		putS(k)
		put(w.counters[actor.Kind(k)])
	}

	for _, p := range w.factory.ExportPending() {
		putS(p.ReqID)
		putI(p.X)
		putI(p.Y)
		put(p.Seed)
	}
	put(w.factory.nextReq)

	pp := w.pop.export()
	for _, series := range [][]float64{pp.Insects, pp.Birds, pp.Decomp} {
		put(uint64(len(series)))
		for _, s := range series {
			putF(s)
		}
	}
	put(pp.BirdReadyTick)
	put(pp.EagleReadyTick)
	put(pp.RoachReadyTick)
	put(pp.PlaneReadyTick)

	return hex.EncodeToString(h.Sum(nil))
}

func climateConfig(c tuning.Climate) climate.Config {
	return climate.Config{
		YearTicks:    c.YearTicks,
		TempBase:     c.TempBase,
		TempAmp:      c.TempAmp,
		HumidityBase: c.HumidityBase,
		HumidityAmp:  c.HumidityAmp,
		WindDirDeg:   c.WindDirDeg,
		WindStrength: c.WindStrength,
		EventChance:  c.EventChance,
	}
}

func weatherEvents(wc catalogs.WeatherCatalog) []climate.EventDef {
	out := make([]climate.EventDef, 0, len(wc.ByID))
	for _, d := range wc.ByID {
		out = append(out, climate.EventDef{
			ID:            d.ID,
			Weight:        d.BaseWeight,
			MinTicks:      d.MinTicks,
			MaxTicks:      d.MaxTicks,
			TempDelta:     d.TempDelta,
			HumidityDelta: d.HumidityDelta,
			WindDelta:     d.WindDelta,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func climateState(r climate.Reading) protocol.ClimateState {
	return protocol.ClimateState{
		Season:       r.Season,
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		WindX:        r.WindX,
		WindY:        r.WindY,
		WindStrength: r.WindStrength,
		Event:        r.Event,
	}
}

func weatherTitle(def catalogs.WeatherDef, id string) string {
	if def.Title != "" {
		return def.Title
	}
	return id
}

func weatherMessage(def catalogs.WeatherDef, id string) string {
	if def.Description != "" {
		return def.Description
	}
	return weatherTitle(def, id) + " sweeps over the garden"
}

func weatherSeverity(s string) string {
	switch s {
	case protocol.SeverityWarn, protocol.SeverityAlert:
		return s
	}
	return protocol.SeverityInfo
}

func weatherImportance(s string) float64 {
	switch s {
	case protocol.SeverityAlert:
		return 0.8
	case protocol.SeverityWarn:
		return 0.6
	}
	return 0.4
}

// sendLatest delivers b without ever blocking the loop: when the client's
// queue is full the oldest frame is dropped to make room.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
