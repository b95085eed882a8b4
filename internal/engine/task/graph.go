// Package task builds per-frame dependency graphs and runs them either on a
// fork-join worker pool or serially in topological order.
package task

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is returned when a graph holds more task instances
	// than the pool capacity.
	ErrPoolExhausted = errors.New("task: pool exhausted")
	// ErrCycle is returned for a graph whose edges form a cycle.
	ErrCycle = errors.New("task: dependency cycle")
)

// Func is a task body. Indexed tasks receive their instance index, plain
// tasks receive 0.
type Func func(index int) error

// ID identifies a task within its graph.
type ID int

type node struct {
	name  string
	fn    Func
	count int
	succ  []ID
	preds int
}

// Graph is a set of tasks with must-complete-before edges. A graph is
// built once per frame and discarded after it ran.
type Graph struct {
	nodes     []node
	capacity  int
	instances int
	err       error
}

// NewGraph creates a graph that may hold up to capacity task instances.
func NewGraph(capacity int) *Graph {
	return &Graph{capacity: capacity}
}

// Add adds a task that runs once.
func (g *Graph) Add(name string, fn Func) ID {
	return g.AddIndexed(name, 1, fn)
}

// AddIndexed adds a task that runs n times with indices 0..n-1. The task
// completes when every instance has returned. Exceeding the capacity is
// recorded and reported by Validate.
func (g *Graph) AddIndexed(name string, n int, fn Func) ID {
	if n < 1 {
		n = 1
	}
	g.instances += n
	if g.instances > g.capacity && g.err == nil {
		g.err = fmt.Errorf("%w: %q needs %d instances, capacity %d", ErrPoolExhausted, name, g.instances, g.capacity)
	}
	g.nodes = append(g.nodes, node{name: name, fn: fn, count: n})
	return ID(len(g.nodes) - 1)
}

// Depend makes after wait for before to complete.
func (g *Graph) Depend(before, after ID) {
	g.nodes[before].succ = append(g.nodes[before].succ, after)
	g.nodes[after].preds++
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.nodes) }

// Instances returns the number of task instances.
func (g *Graph) Instances() int { return g.instances }

// Name returns the name of task id.
func (g *Graph) Name(id ID) string { return g.nodes[id].name }

// Validate reports capacity overflow or a cycle.
func (g *Graph) Validate() error {
	_, err := g.TopoOrder()
	return err
}

// TopoOrder returns the tasks in a valid execution order. Among ready
// tasks the one added first comes first, so a graph built in the intended
// serial order runs in exactly that order.
func (g *Graph) TopoOrder() ([]ID, error) {
	if g.err != nil {
		return nil, g.err
	}

	preds := make([]int, len(g.nodes))
	for i := range g.nodes {
		preds[i] = g.nodes[i].preds
	}
	done := make([]bool, len(g.nodes))
	order := make([]ID, 0, len(g.nodes))

	for len(order) < len(g.nodes) {
		next := -1
		for i := range g.nodes {
			if !done[i] && preds[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i := range g.nodes {
				if !done[i] {
					stuck = append(stuck, g.nodes[i].name)
				}
			}
			return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
		}
		done[next] = true
		order = append(order, ID(next))
		for _, s := range g.nodes[next].succ {
			preds[s]--
		}
	}
	return order, nil
}

// RunSerial runs every task on the calling goroutine in topological order.
// The first error stops the run.
func (g *Graph) RunSerial() error {
	order, err := g.TopoOrder()
	if err != nil {
		return err
	}
	for _, id := range order {
		n := &g.nodes[id]
		for i := 0; i < n.count; i++ {
			if err := n.fn(i); err != nil {
				return fmt.Errorf("task %s[%d]: %w", n.name, i, err)
			}
		}
	}
	return nil
}
