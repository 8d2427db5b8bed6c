package world

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/persistence/snapshot"
	"gardensim.ai/internal/sim/actor"
	"gardensim.ai/internal/sim/genetics"
)

// generatorRunner is where generation work actually executes. The async
// runner hands jobs to a worker pool; the sync runner executes inline so
// replays and tests resolve requests on a fixed tick.
type generatorRunner interface {
	Submit(flowergen.Job) bool
	Drain(dst []flowergen.Completion, max int) []flowergen.Completion
	Close()
}

type syncRunner struct {
	gen     flowergen.Generator
	timeout time.Duration
	queue   []flowergen.Completion
}

func (r *syncRunner) Submit(j flowergen.Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	res, err := r.gen.Generate(ctx, j.Seed, j.Parents)
	cancel()
	r.queue = append(r.queue, flowergen.Completion{ReqID: j.ReqID, Result: res, Err: err})
	return true
}

func (r *syncRunner) Drain(dst []flowergen.Completion, max int) []flowergen.Completion {
	for len(dst) < max && len(r.queue) > 0 {
		dst = append(dst, r.queue[0])
		r.queue = r.queue[1:]
	}
	return dst
}

func (r *syncRunner) Close() {}

// pendingReq tracks one in-flight generation request. The entry survives
// cancellation until its completion is drained, so a late result can be
// recognized and discarded instead of resurrecting the cell.
type pendingReq struct {
	ID        string
	Cell      actor.Vec2i
	Seed      uint64
	Parents   []genetics.Genome
	SeedActor string
	Cancelled bool
}

// flowerFactory is the request/cancel protocol around the flower
// generator. All methods run on the world loop goroutine.
type flowerFactory struct {
	runner  generatorRunner
	max     int
	nextReq uint64

	pending map[string]*pendingReq
	byCell  map[actor.Vec2i]string

	drainBuf []flowergen.Completion
}

func newFlowerFactory(runner generatorRunner, maxInFlight int) *flowerFactory {
	if maxInFlight <= 0 {
		maxInFlight = 256
	}
	return &flowerFactory{
		runner:  runner,
		max:     maxInFlight,
		pending: map[string]*pendingReq{},
		byCell:  map[actor.Vec2i]string{},
	}
}

// Request issues a generation request for cell. It refuses when the cell
// already has an in-flight request, when the factory is at capacity, or
// when the runner's queue is full. The caller places the placeholder actor
// and records its id via Bind.
func (f *flowerFactory) Request(cell actor.Vec2i, seed uint64, parents []genetics.Genome) (string, bool) {
	if _, busy := f.byCell[cell]; busy {
		return "", false
	}
	if len(f.pending) >= f.max {
		return "", false
	}
	f.nextReq++
	reqID := fmt.Sprintf("req-%d", f.nextReq)
	ps := make([]genetics.Genome, len(parents))
	copy(ps, parents)
	if !f.runner.Submit(flowergen.Job{ReqID: reqID, Seed: seed, Parents: ps}) {
		f.nextReq--
		return "", false
	}
	f.pending[reqID] = &pendingReq{ID: reqID, Cell: cell, Seed: seed, Parents: ps}
	f.byCell[cell] = reqID
	return reqID, true
}

// Bind records the placeholder actor standing in for reqID.
func (f *flowerFactory) Bind(reqID, seedActorID string) {
	if p := f.pending[reqID]; p != nil {
		p.SeedActor = seedActorID
	}
}

// Cancel suppresses a request's eventual result. Idempotent, and a no-op
// for ids that already resolved.
func (f *flowerFactory) Cancel(reqID string) {
	p := f.pending[reqID]
	if p == nil || p.Cancelled {
		return
	}
	p.Cancelled = true
	delete(f.byCell, p.Cell)
}

// Drain collects completions that arrived since the last call, sorted by
// request id so application order is stable.
func (f *flowerFactory) Drain() []flowergen.Completion {
	f.drainBuf = f.drainBuf[:0]
	f.drainBuf = f.runner.Drain(f.drainBuf, cap(f.drainBuf)+64)
	sort.Slice(f.drainBuf, func(i, j int) bool { return f.drainBuf[i].ReqID < f.drainBuf[j].ReqID })
	return f.drainBuf
}

// Take pops the pending entry for a completed request. ok is false when the
// request was never issued or was already taken.
func (f *flowerFactory) Take(reqID string) (*pendingReq, bool) {
	p, ok := f.pending[reqID]
	if !ok {
		return nil, false
	}
	delete(f.pending, reqID)
	if !p.Cancelled {
		delete(f.byCell, p.Cell)
	}
	return p, true
}

// InFlight reports the number of unresolved requests, cancelled included.
func (f *flowerFactory) InFlight() int { return len(f.pending) }

// CellBusy reports whether cell has an uncancelled in-flight request.
func (f *flowerFactory) CellBusy(cell actor.Vec2i) bool {
	_, ok := f.byCell[cell]
	return ok
}

// Reset drops all pending bookkeeping, for snapshot import. Results still
// in flight from before the reset drain as unknown requests and are
// discarded.
func (f *flowerFactory) Reset() {
	f.pending = map[string]*pendingReq{}
	f.byCell = map[actor.Vec2i]string{}
}

// ExportPending captures unresolved, uncancelled requests for a snapshot.
func (f *flowerFactory) ExportPending() []snapshot.PendingReqV1 {
	out := make([]snapshot.PendingReqV1, 0, len(f.pending))
	for _, p := range f.pending {
		if p.Cancelled {
			continue
		}
		pv := snapshot.PendingReqV1{ReqID: p.ID, X: p.Cell.X, Y: p.Cell.Y, Seed: p.Seed}
		for _, g := range p.Parents {
			pv.Parents = append(pv.Parents, [8]float64(g))
		}
		out = append(out, pv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReqID < out[j].ReqID })
	return out
}

// RestorePending re-submits snapshotted requests with their original seeds,
// so the generator reproduces the same flowers the interrupted run would
// have received.
func (f *flowerFactory) RestorePending(reqs []snapshot.PendingReqV1, nextReq uint64) {
	f.nextReq = nextReq
	for i := range reqs {
		r := reqs[i]
		cell := actor.Vec2i{X: r.X, Y: r.Y}
		parents := make([]genetics.Genome, 0, len(r.Parents))
		for _, g := range r.Parents {
			parents = append(parents, genetics.Genome(g))
		}
		if !f.runner.Submit(flowergen.Job{ReqID: r.ReqID, Seed: r.Seed, Parents: parents}) {
			continue
		}
		f.pending[r.ReqID] = &pendingReq{ID: r.ReqID, Cell: cell, Seed: r.Seed, Parents: parents}
		f.byCell[cell] = r.ReqID
	}
}

func (f *flowerFactory) Close() { f.runner.Close() }
