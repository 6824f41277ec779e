package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/metrics"
)

// Pool executes submitted units concurrently.
type Pool interface {
	// Submit schedules a unit. It does not wait for the unit to finish and
	// may block while the pool is at capacity.
	Submit(unit string, params Params)
	// AwaitAll blocks until every submitted unit has finished and returns
	// the first failure, if any. The pool accepts a new batch afterwards.
	AwaitAll() error
}

// UnitError is the failure of one unit.
type UnitError struct {
	Unit   string
	Output string
	Err    error
}

func (e *UnitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("unit %s (%s): %v", e.Unit, e.Output, e.Err)
	}
	return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// PoolOption configures a pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	logger  *log.Logger
	metrics *metrics.Collector
}

// WithLogger sets the pool logger.
func WithLogger(l *log.Logger) PoolOption {
	return func(o *poolOptions) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) PoolOption {
	return func(o *poolOptions) { o.metrics = c }
}

// InProcessPool runs units on goroutines, at most parallel at a time.
// Once a unit fails, units that have not started yet are skipped.
type InProcessPool struct {
	ctx      context.Context
	registry *Registry
	parallel int
	opts     poolOptions

	mu    sync.Mutex
	group *errgroup.Group
	gctx  context.Context
}

// NewInProcessPool creates a pool running units from registry.
// A parallel value below one means one.
func NewInProcessPool(ctx context.Context, registry *Registry, parallel int, opts ...PoolOption) *InProcessPool {
	if parallel < 1 {
		parallel = 1
	}
	p := &InProcessPool{ctx: ctx, registry: registry, parallel: parallel}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// batch returns the errgroup of the current batch, starting one if needed.
func (p *InProcessPool) batch() (*errgroup.Group, context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group == nil {
		p.group, p.gctx = errgroup.WithContext(p.ctx)
		p.group.SetLimit(p.parallel)
	}
	return p.group, p.gctx
}

// Submit implements Pool.
func (p *InProcessPool) Submit(unit string, params Params) {
	g, gctx := p.batch()
	p.opts.metrics.IncUnitSubmitted()

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := p.registry.Run(gctx, unit, params); err != nil {
			p.opts.metrics.IncUnitFailed()
			p.opts.logger.Warn("unit failed", map[string]any{
				"unit":   unit,
				"output": params.OutputPath(),
				"error":  err.Error(),
			})
			return &UnitError{Unit: unit, Output: params.OutputPath(), Err: err}
		}
		p.opts.metrics.IncUnitSucceeded()
		return nil
	})
}

// AwaitAll implements Pool.
func (p *InProcessPool) AwaitAll() error {
	p.mu.Lock()
	g := p.group
	p.group, p.gctx = nil, nil
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}
