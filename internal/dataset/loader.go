package dataset

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"saliency-forge/internal/model"
)

// LoaderOptions configures batching and prefetch.
type LoaderOptions struct {
	BatchSize  int
	Shuffle    bool
	Seed       int64
	NumWorkers int
}

// Loader assembles batches from a Dataset on a pool of workers and delivers
// them in order. With Shuffle set, every pass draws a new permutation.
type Loader struct {
	ds   Dataset
	opts LoaderOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLoader wraps ds.
func NewLoader(ds Dataset, opts LoaderOptions) (*Loader, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("loader: empty dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return &Loader{ds: ds, opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}, nil
}

// Len returns the number of batches per pass. The last batch may be short.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Batches starts one pass over the dataset. The batch channel closes at the
// end of the pass or on the first error, which is then readable from the
// error channel. Cancelling ctx stops the workers.
func (l *Loader) Batches(parent context.Context) (<-chan model.Batch, <-chan error) {
	order := l.order()
	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan batchJob, l.opts.NumWorkers)
	done := make(chan batchResult, l.opts.NumWorkers)
	out := make(chan model.Batch, l.opts.NumWorkers)
	errCh := make(chan error, 1)

	go produceJobs(ctx, jobs, order, l.opts.BatchSize)

	var wg sync.WaitGroup
	for i := 0; i < l.opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, l.ds, jobs, done)
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	go func() {
		defer cancel()
		defer close(errCh)
		defer close(out)
		runAggregator(ctx, done, out, errCh)
	}()

	return out, errCh
}

func (l *Loader) order() []int {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		l.mu.Lock()
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		l.mu.Unlock()
	}
	return order
}

type batchJob struct {
	id      int64
	indices []int
}

type batchResult struct {
	id    int64
	batch model.Batch
	err   error
}

func produceJobs(ctx context.Context, jobs chan<- batchJob, order []int, batchSize int) {
	defer close(jobs)
	var id int64
	for lo := 0; lo < len(order); lo += batchSize {
		hi := lo + batchSize
		if hi > len(order) {
			hi = len(order)
		}
		select {
		case <-ctx.Done():
			return
		case jobs <- batchJob{id: id, indices: order[lo:hi]}:
			id++
		}
	}
}

func worker(ctx context.Context, ds Dataset, jobs <-chan batchJob, done chan<- batchResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			batch, err := assemble(ds, job.indices)
			select {
			case <-ctx.Done():
				return
			case done <- batchResult{id: job.id, batch: batch, err: err}:
			}
		}
	}
}

func assemble(ds Dataset, indices []int) (model.Batch, error) {
	g := ds.Geometry()
	n := len(indices)
	images := make([]float64, n*g.ImageSize())
	labels := make([]float64, n*g.MapSize())
	for k, idx := range indices {
		ex, err := ds.Example(idx)
		if err != nil {
			return model.Batch{}, err
		}
		if len(ex.Image) != g.ImageSize() || len(ex.Map) != g.MapSize() {
			return model.Batch{}, errors.Errorf("loader: example %d has %d/%d values, want %d/%d",
				idx, len(ex.Image), len(ex.Map), g.ImageSize(), g.MapSize())
		}
		copy(images[k*g.ImageSize():], ex.Image)
		copy(labels[k*g.MapSize():], ex.Map)
	}
	return model.Batch{
		Images: tensor.New(tensor.WithShape(n, g.Channels, g.Height, g.Width), tensor.WithBacking(images)),
		Labels: mat.NewDense(n, g.MapSize(), labels),
	}, nil
}

// runAggregator re-sequences worker results so batches leave in job order.
func runAggregator(ctx context.Context, done <-chan batchResult, out chan<- model.Batch, errCh chan<- error) {
	pending := make(map[int64]batchResult)
	var nextID int64
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-done:
			if !ok {
				return
			}
			pending[res.id] = res
		}

		for {
			res, ok := pending[nextID]
			if !ok {
				break
			}
			delete(pending, nextID)
			if res.err != nil {
				errCh <- res.err
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- res.batch:
			}
			nextID++
		}
	}
}
