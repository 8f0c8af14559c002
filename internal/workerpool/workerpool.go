// Package workerpool runs a batch of independent jobs over a bounded number
// of goroutines.
package workerpool

import "sync"

// DefaultWorkers caps concurrency when the caller does not choose.
const DefaultWorkers = 16

// Pool distributes jobs across workers and collects their results.
type Pool[Job any, Result any] struct {
	workers int
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
}

// New creates a pool sized for numJobs jobs. workers <= 0 means
// DefaultWorkers; the pool never starts more workers than jobs.
func New[Job any, Result any](workers, numJobs int) *Pool[Job, Result] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if numJobs > 0 {
		workers = min(workers, numJobs)
	}
	return &Pool[Job, Result]{
		workers: workers,
		jobs:    make(chan Job, numJobs),
		results: make(chan Result, numJobs),
	}
}

// Workers returns the number of goroutines Start launches.
func (p *Pool[Job, Result]) Workers() int { return p.workers }

// Start launches the workers. fn must not panic.
func (p *Pool[Job, Result]) Start(fn func(Job) Result) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- fn(job)
			}
		}()
	}
}

// Submit queues a job.
func (p *Pool[Job, Result]) Submit(job Job) {
	p.jobs <- job
}

// Close stops accepting jobs. Results is closed once every worker is done.
func (p *Pool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the result channel.
func (p *Pool[Job, Result]) Results() <-chan Result {
	return p.results
}

// Map runs fn over every job and returns the results once all have settled,
// in completion order.
func Map[Job any, Result any](workers int, jobs []Job, fn func(Job) Result) []Result {
	if len(jobs) == 0 {
		return nil
	}
	p := New[Job, Result](workers, len(jobs))
	p.Start(fn)
	for _, j := range jobs {
		p.Submit(j)
	}
	p.Close()

	out := make([]Result, 0, len(jobs))
	for r := range p.Results() {
		out = append(out, r)
	}
	return out
}
