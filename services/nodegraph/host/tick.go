// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// NodeSample is one node's result for one tick.
type NodeSample struct {
	Handle dataflow.Handle `json:"handle"`
	TypeID string          `json:"type_id"`

	// Ran is true when Process invoked the kernel.
	Ran bool `json:"ran"`

	// ExecMs is the node's LastExecutionMs after the tick.
	ExecMs float32 `json:"exec_ms"`

	// CriticalPathMs is the largest SelfMs+UpstreamMs over the node's
	// output packets. Zero when it has produced nothing yet.
	CriticalPathMs float32 `json:"critical_path_ms"`
}

// TickReport summarises one Tick.
type TickReport struct {
	Seq      uint64        `json:"seq"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`

	// Delivered counts packets copied from outputs into inputs.
	Delivered int `json:"delivered"`

	// Rejected counts deliveries refused by a node, which drops the link.
	Rejected int `json:"rejected"`

	Nodes []NodeSample `json:"nodes"`
}

// Executed returns how many nodes ran their kernel.
func (r TickReport) Executed() int {
	n := 0
	for _, s := range r.Nodes {
		if s.Ran {
			n++
		}
	}
	return n
}

// Order returns the handles in deterministic topological order.
//
// Description:
//
//	Kahn's algorithm over the link set; among nodes that are ready at the
//	same time the lower arena index goes first. Unlinked nodes are ordered
//	by index.
func (g *Graph) Order() []dataflow.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order()
}

func (g *Graph) order() []dataflow.Handle {
	all := g.handles()
	adj := g.successors()

	indegree := make(map[dataflow.Handle]int, len(all))
	for _, succ := range adj {
		for _, h := range succ {
			indegree[h]++
		}
	}

	byIndex := func(a, b dataflow.Handle) int { return cmp.Compare(a.Index, b.Index) }

	ready := make([]dataflow.Handle, 0, len(all))
	for _, h := range all {
		if indegree[h] == 0 {
			ready = append(ready, h)
		}
	}

	out := make([]dataflow.Handle, 0, len(all))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		out = append(out, h)

		released := false
		for _, next := range adj[h] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			slices.SortFunc(ready, byIndex)
		}
	}
	return out
}

// Tick runs every node once.
//
// Description:
//
//	Nodes are visited in Order. Before a node is processed, each linked
//	input whose upstream output has been written since the last delivery
//	receives a copy of that packet through SetInput, which marks it fresh.
//	Outputs that were not rewritten are not re-delivered, so Synchronous
//	nodes only fire on genuinely new data. A delivery the node refuses
//	drops the link.
//
// Outputs:
//
//	TickReport - Per-node samples in processing order.
func (g *Graph) Tick() TickReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ticks++
	report := TickReport{Seq: g.ticks, Started: time.Now()}

	for _, h := range g.handles() {
		g.revalidate(h)
	}

	order := g.order()
	report.Nodes = make([]NodeSample, 0, len(order))

	for _, h := range order {
		n := g.lookup(h)
		delivered, rejected := g.deliver(h, n)
		report.Delivered += delivered
		report.Rejected += rejected

		ran := n.Process()
		report.Nodes = append(report.Nodes, NodeSample{
			Handle:         h,
			TypeID:         n.TypeID(),
			Ran:            ran,
			ExecMs:         n.LastExecutionMs(),
			CriticalPathMs: criticalPath(n),
		})
	}

	report.Duration = time.Since(report.Started)
	return report
}

// Ticks returns how many ticks have run.
func (g *Graph) Ticks() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ticks
}

func (g *Graph) deliver(h dataflow.Handle, n *dataflow.Node) (delivered, rejected int) {
	for _, in := range n.Inputs() {
		to := Endpoint{Node: h, Port: in.Name()}
		from, ok := g.links[to]
		if !ok {
			continue
		}
		src := g.lookup(from.Node)
		if src == nil {
			g.unlink(to)
			continue
		}
		out, ok := src.Output(from.Port)
		if !ok || !out.HasPacket() {
			continue
		}
		last := g.delivered[to]
		if last.out == out && last.in == in && last.seq == out.Sequence() {
			continue
		}

		pkt, _ := out.Packet()
		if err := n.SetInput(to.Port, pkt); err != nil {
			g.unlink(to)
			rejected++
			g.logger.Warn("delivery rejected, link dropped",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		g.delivered[to] = delivery{out: out, in: in, seq: out.Sequence()}
		delivered++
	}
	return delivered, rejected
}

func criticalPath(n *dataflow.Node) float32 {
	var worst float32
	for _, p := range n.Outputs() {
		pkt, ok := p.Packet()
		if !ok {
			continue
		}
		if t := pkt.Perf.Total(); t > worst {
			worst = t
		}
	}
	return worst
}
