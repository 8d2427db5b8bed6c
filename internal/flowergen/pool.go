package flowergen

import (
	"context"
	"sync"
	"time"

	"gardensim.ai/internal/sim/genetics"
)

// Job is one generation request handed to the pool.
type Job struct {
	ReqID   string
	Seed    uint64
	Parents []genetics.Genome
}

// Completion pairs a request id with its outcome. Err is set on generator
// failure or timeout.
type Completion struct {
	ReqID  string
	Result Result
	Err    error
}

// Pool runs Generate calls on worker goroutines so the tick loop never
// blocks on content generation. Submit is fire-and-forget; finished work
// accumulates in a buffered completion queue the world drains each tick.
type Pool struct {
	gen     Generator
	timeout time.Duration
	jobs    chan Job
	done    chan Completion
	wg      sync.WaitGroup
}

func NewPool(gen Generator, workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// done must outsize jobs so a worker send never blocks as long as the
	// world drains completions every tick.
	p := &Pool{
		gen:     gen,
		timeout: timeout,
		jobs:    make(chan Job, 1024),
		done:    make(chan Completion, 2048),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		res, err := p.gen.Generate(ctx, job.Seed, job.Parents)
		cancel()
		p.done <- Completion{ReqID: job.ReqID, Result: res, Err: err}
	}
}

// Submit enqueues a job without blocking. It reports false when the queue
// is full, in which case the caller must treat the request as refused.
func (p *Pool) Submit(j Job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Drain moves up to max pending completions into dst without blocking.
func (p *Pool) Drain(dst []Completion, max int) []Completion {
	for len(dst) < max {
		select {
		case c := <-p.done:
			dst = append(dst, c)
		default:
			return dst
		}
	}
	return dst
}

// Close stops accepting jobs and waits for in-flight work to finish.
// Unread completions stay buffered and may still be drained.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
