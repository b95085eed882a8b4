package task

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/rtquake/internal/logger"
)

// Executor runs graphs on a bounded number of workers.
type Executor struct {
	workers int
	sem     chan struct{}
}

// NewExecutor creates an executor. workers <= 0 uses one worker per CPU.
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{
		workers: workers,
		sem:     make(chan struct{}, workers),
	}
}

// Workers returns the worker count.
func (e *Executor) Workers() int { return e.workers }

// Run is a submitted graph.
type Run struct {
	eg    *errgroup.Group
	graph *Graph
}

// Wait blocks until every task finished and returns the first task error.
func (r *Run) Wait() error {
	return r.eg.Wait()
}

// Submit validates g and starts its root tasks. A task is dispatched once
// all of its predecessors completed. After the first error no further
// task bodies run.
func (e *Executor) Submit(ctx context.Context, g *Graph) (*Run, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(ctx)
	r := &Run{eg: eg, graph: g}

	pending := make([]atomic.Int32, len(g.nodes))
	remaining := make([]atomic.Int32, len(g.nodes))
	for i := range g.nodes {
		pending[i].Store(int32(g.nodes[i].preds))
		remaining[i].Store(int32(g.nodes[i].count))
	}

	var dispatch func(id ID)
	dispatch = func(id ID) {
		n := &g.nodes[id]
		for i := 0; i < n.count; i++ {
			eg.Go(func() error {
				if err := e.runInstance(ctx, n, i); err != nil {
					return err
				}
				if remaining[id].Add(-1) == 0 {
					for _, s := range n.succ {
						if pending[s].Add(-1) == 0 {
							dispatch(s)
						}
					}
				}
				return nil
			})
		}
	}

	logger.Named("task").Debug("submitting graph",
		zap.Int("tasks", g.Len()),
		zap.Int("instances", g.Instances()),
		zap.Int("workers", e.workers))

	for i := range g.nodes {
		if g.nodes[i].preds == 0 {
			dispatch(ID(i))
		}
	}
	return r, nil
}

func (e *Executor) runInstance(ctx context.Context, n *node, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	if err := n.fn(i); err != nil {
		return fmt.Errorf("task %s[%d]: %w", n.name, i, err)
	}
	return nil
}
