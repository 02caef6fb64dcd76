// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host drives dataflow nodes as a graph.
//
// Graph owns the nodes in a generation-checked arena, stores the links
// between output and input ports, and runs one tick at a time: it pulls new
// upstream packets into each node's inputs and calls Process on every node
// in topological order. Runner repeats Tick at a fixed rate with tracing and
// fans each TickReport out to observers.
//
// Nodes stay single-threaded. Graph serialises all node access behind one
// mutex so the tick loop and API goroutines can share it.
package host

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
)

// Endpoint names one port on one node.
type Endpoint struct {
	Node dataflow.Handle `json:"node"`
	Port string          `json:"port"`
}

// String renders the endpoint as "handle/port".
func (e Endpoint) String() string {
	return e.Node.String() + "/" + e.Port
}

// Link connects an output endpoint to an input endpoint.
type Link struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

type slot struct {
	gen  uint32
	node *dataflow.Node

	// portsVersion is the node's PortsVersion when its links were last validated.
	portsVersion uint64
}

// delivery identifies the packet last copied over a link. Ports are compared
// by identity because a rebuilt port restarts its sequence.
type delivery struct {
	out *dataflow.Port
	in  *dataflow.Port
	seq uint64
}

// Graph is the reference host for dataflow nodes.
//
// Thread Safety:
//
//	Graph is safe for concurrent use. Nodes returned by Node must only be
//	touched from the goroutine that owns the graph; use WithNode otherwise.
type Graph struct {
	mu       sync.Mutex
	registry *registry.Registry
	logger   *slog.Logger

	slots []slot
	free  []uint32

	// links maps an input endpoint to the output feeding it.
	links map[Endpoint]Endpoint

	// delivered records the last copy made into each linked input.
	delivered map[Endpoint]delivery

	ticks uint64
}

// NewGraph creates an empty graph.
//
// Inputs:
//
//	reg - Registry used by AddNode. May be nil if only Insert is used.
//	logger - Logger for graph events. If nil, uses slog.Default().
func NewGraph(reg *registry.Registry, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		registry:  reg,
		logger:    logger,
		links:     make(map[Endpoint]Endpoint),
		delivered: make(map[Endpoint]delivery),
	}
}

// AddNode creates a node from the registry and places it.
//
// Outputs:
//
//	dataflow.Handle - The node's handle.
//	error - ErrNilRegistry or ErrUnknownNodeType.
func (g *Graph) AddNode(typeID string) (dataflow.Handle, error) {
	if g.registry == nil {
		return dataflow.Handle{}, ErrNilRegistry
	}
	n, ok := g.registry.Create(typeID)
	if !ok {
		return dataflow.Handle{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, typeID)
	}
	return g.Insert(n)
}

// Insert places an already constructed node and binds its handle.
func (g *Graph) Insert(n *dataflow.Node) (dataflow.Handle, error) {
	if n == nil {
		return dataflow.Handle{}, ErrNilNode
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var h dataflow.Handle
	if len(g.free) > 0 {
		idx := g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		s := &g.slots[idx]
		s.node = n
		s.portsVersion = n.PortsVersion()
		h = dataflow.Handle{Index: idx, Generation: s.gen}
	} else {
		g.slots = append(g.slots, slot{gen: 1, node: n, portsVersion: n.PortsVersion()})
		h = dataflow.Handle{Index: uint32(len(g.slots) - 1), Generation: 1}
	}
	n.Bind(h)

	g.logger.Debug("node placed",
		slog.String("handle", h.String()),
		slog.String("type", n.TypeID()),
	)
	return h, nil
}

// RemoveNode drops the node and every link touching it. The handle and any
// copies of it become stale.
func (g *Graph) RemoveNode(h dataflow.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lookup(h) == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, h)
	}
	for to, from := range g.links {
		if to.Node == h || from.Node == h {
			g.unlink(to)
		}
	}

	s := &g.slots[h.Index]
	s.node = nil
	s.portsVersion = 0
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	g.free = append(g.free, h.Index)

	g.logger.Debug("node removed", slog.String("handle", h.String()))
	return nil
}

// Node resolves a handle.
//
// Description:
//
//	The returned node is not guarded by the graph's mutex. Callers on other
//	goroutines than the tick loop must use WithNode instead.
func (g *Graph) Node(h dataflow.Handle) (*dataflow.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.lookup(h)
	return n, n != nil
}

// WithNode runs fn on the node under the graph's mutex.
//
// Description:
//
//	fn may reconfigure the node, including rebuilding its ports. Links made
//	invalid by a rebuild are dropped before the next delivery.
func (g *Graph) WithNode(h dataflow.Handle, fn func(n *dataflow.Node) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.lookup(h)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, h)
	}
	err := fn(n)
	g.revalidate(h)
	return err
}

// Handles returns the handles of all placed nodes in arena order.
func (g *Graph) Handles() []dataflow.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handles()
}

// Len returns the number of placed nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots) - len(g.free)
}

func (g *Graph) handles() []dataflow.Handle {
	out := make([]dataflow.Handle, 0, len(g.slots))
	for i, s := range g.slots {
		if s.node != nil {
			out = append(out, dataflow.Handle{Index: uint32(i), Generation: s.gen})
		}
	}
	return out
}

func (g *Graph) lookup(h dataflow.Handle) *dataflow.Node {
	if h.IsZero() || int(h.Index) >= len(g.slots) {
		return nil
	}
	s := g.slots[h.Index]
	if s.gen != h.Generation {
		return nil
	}
	return s.node
}

// =============================================================================
// Links
// =============================================================================

// Connect links an output port to an input port.
//
// Description:
//
//	Both ports must exist with the right directions and equal DataTypes.
//	An input takes at most one link. Links that would close a cycle are
//	rejected with a *CycleError. The current output packet, if any, is
//	delivered on the next tick.
//
// Outputs:
//
//	error - A *LinkError wrapping ErrNodeNotFound, dataflow.ErrPortNotFound,
//	dataflow.ErrWrongDirection, dataflow.ErrTypeMismatch, ErrInputLinked or
//	a *CycleError.
func (g *Graph) Connect(from, to Endpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	wrap := func(err error) error {
		return &LinkError{From: from, To: to, Err: err}
	}

	src := g.lookup(from.Node)
	if src == nil {
		return wrap(fmt.Errorf("%w: %s", ErrNodeNotFound, from.Node))
	}
	dst := g.lookup(to.Node)
	if dst == nil {
		return wrap(fmt.Errorf("%w: %s", ErrNodeNotFound, to.Node))
	}

	out, err := portOf(src, from.Port, dataflow.Output)
	if err != nil {
		return wrap(err)
	}
	in, err := portOf(dst, to.Port, dataflow.Input)
	if err != nil {
		return wrap(err)
	}
	if !out.Type().Equal(in.Type()) {
		return wrap(fmt.Errorf("%w: %s into %s", dataflow.ErrTypeMismatch, out.Type(), in.Type()))
	}
	if _, linked := g.links[to]; linked {
		return wrap(ErrInputLinked)
	}
	if err := g.detectCycle(from.Node, to.Node); err != nil {
		return wrap(err)
	}

	g.links[to] = from
	g.delivered[to] = delivery{}
	g.logger.Debug("link added",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return nil
}

// Disconnect removes the link into the given input.
func (g *Graph) Disconnect(to Endpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.links[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLinked, to)
	}
	g.unlink(to)
	return nil
}

// Links returns all links ordered by target node then target input index.
func (g *Graph) Links() []Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedLinks()
}

func (g *Graph) sortedLinks() []Link {
	out := make([]Link, 0, len(g.links))
	for to, from := range g.links {
		out = append(out, Link{From: from, To: to})
	}
	slices.SortFunc(out, func(a, b Link) int {
		if c := cmp.Compare(a.To.Node.Index, b.To.Node.Index); c != 0 {
			return c
		}
		return cmp.Compare(g.inputIndex(a.To), g.inputIndex(b.To))
	})
	return out
}

func (g *Graph) inputIndex(e Endpoint) int {
	n := g.lookup(e.Node)
	if n == nil {
		return -1
	}
	return n.InputIndex(e.Port)
}

func (g *Graph) unlink(to Endpoint) {
	delete(g.links, to)
	delete(g.delivered, to)
}

func portOf(n *dataflow.Node, name string, dir dataflow.Direction) (*dataflow.Port, error) {
	var (
		p  *dataflow.Port
		ok bool
	)
	if dir == dataflow.Input {
		p, ok = n.Input(name)
		if !ok {
			_, ok = n.Output(name)
		}
	} else {
		p, ok = n.Output(name)
		if !ok {
			_, ok = n.Input(name)
		}
	}
	switch {
	case p != nil:
		return p, nil
	case ok:
		return nil, dataflow.NewPortError(name, dataflow.ErrWrongDirection)
	default:
		return nil, dataflow.NewPortError(name, dataflow.ErrPortNotFound)
	}
}

// successors maps each node to the distinct nodes it feeds.
func (g *Graph) successors() map[dataflow.Handle][]dataflow.Handle {
	adj := make(map[dataflow.Handle][]dataflow.Handle)
	for to, from := range g.links {
		if !slices.Contains(adj[from.Node], to.Node) {
			adj[from.Node] = append(adj[from.Node], to.Node)
		}
	}
	for _, succ := range adj {
		slices.SortFunc(succ, func(a, b dataflow.Handle) int { return cmp.Compare(a.Index, b.Index) })
	}
	return adj
}

// detectCycle reports whether adding from->to closes a cycle, using DFS
// from to looking for a path back to from.
func (g *Graph) detectCycle(from, to dataflow.Handle) error {
	if from == to {
		return NewCycleError([]dataflow.Handle{from, from})
	}

	adj := g.successors()
	visited := make(map[dataflow.Handle]bool)
	path := make([]dataflow.Handle, 0)

	var dfs func(h dataflow.Handle) bool
	dfs = func(h dataflow.Handle) bool {
		visited[h] = true
		path = append(path, h)
		if h == from {
			return true
		}
		for _, next := range adj[h] {
			if !visited[next] && dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(to) {
		cycle := append([]dataflow.Handle{from}, path...)
		return NewCycleError(cycle)
	}
	return nil
}

// revalidate drops links touching h whose ports no longer exist or whose
// types no longer match, after a port rebuild.
func (g *Graph) revalidate(h dataflow.Handle) {
	n := g.lookup(h)
	if n == nil {
		return
	}
	s := &g.slots[h.Index]
	if s.portsVersion == n.PortsVersion() {
		return
	}
	s.portsVersion = n.PortsVersion()

	for to, from := range g.links {
		if to.Node != h && from.Node != h {
			continue
		}
		if g.linkValid(from, to) {
			continue
		}
		g.unlink(to)
		g.logger.Info("link dropped after port rebuild",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
}

func (g *Graph) linkValid(from, to Endpoint) bool {
	src, dst := g.lookup(from.Node), g.lookup(to.Node)
	if src == nil || dst == nil {
		return false
	}
	out, ok := src.Output(from.Port)
	if !ok {
		return false
	}
	in, ok := dst.Input(to.Port)
	if !ok {
		return false
	}
	return out.Type().Equal(in.Type())
}
