package refresh

import (
	"context"
	"sync"
)

// Job asks for one dataset's global cache to be refetched.
type Job struct {
	DatasetID string
	Target    Refresher
}

type processFunc func(ctx context.Context, job Job) error

// pool runs refresh jobs on a fixed set of workers so a slow open-data
// endpoint cannot stall the other datasets.
type pool struct {
	numWorkers int
	jobs       chan Job
	processor  processFunc
	wg         sync.WaitGroup
}

func newPool(numWorkers, bufferSize int, processor processFunc) *pool {
	return &pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		processor:  processor,
	}
}

func (p *pool) start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processor(ctx, job)
		}
	}
}

func (p *pool) submit(job Job) {
	p.jobs <- job
}

func (p *pool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
