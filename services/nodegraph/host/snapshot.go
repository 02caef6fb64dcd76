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
	"maps"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// PortView is a read-only copy of a port's state.
type PortView struct {
	Name      string                    `json:"name"`
	Index     int                       `json:"index"`
	Type      dataflow.DataType         `json:"type"`
	HasPacket bool                      `json:"has_packet"`
	Fresh     bool                      `json:"fresh"`
	Value     any                       `json:"value,omitempty"`
	Perf      *dataflow.PerformanceData `json:"perf,omitempty"`
}

// NodeView is a read-only copy of a node's state.
type NodeView struct {
	ID       string          `json:"id"`
	Handle   dataflow.Handle `json:"handle"`
	TypeID   string          `json:"type_id"`
	Policy   string          `json:"policy"`
	Edge     string          `json:"edge"`
	Controls bool            `json:"execution_controls"`
	ExecMs   float32         `json:"exec_ms"`

	Params  map[string]string `json:"params,omitempty"`
	Inputs  []PortView        `json:"inputs"`
	Outputs []PortView        `json:"outputs"`
}

// Snapshot is a consistent copy of the whole graph.
type Snapshot struct {
	Ticks uint64     `json:"ticks"`
	Nodes []NodeView `json:"nodes"`
	Links []Link     `json:"links"`
}

type paramSource interface {
	Params() map[string]string
}

// Snapshot copies the graph state under the mutex.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	hs := g.handles()
	s := Snapshot{
		Ticks: g.ticks,
		Nodes: make([]NodeView, 0, len(hs)),
		Links: g.sortedLinks(),
	}
	for _, h := range hs {
		s.Nodes = append(s.Nodes, viewOf(h, g.lookup(h)))
	}
	return s
}

// View returns the view of one node.
func (g *Graph) View(h dataflow.Handle) (NodeView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.lookup(h)
	if n == nil {
		return NodeView{}, false
	}
	return viewOf(h, n), true
}

func viewOf(h dataflow.Handle, n *dataflow.Node) NodeView {
	v := NodeView{
		ID:       h.String(),
		Handle:   h,
		TypeID:   n.TypeID(),
		Policy:   n.UpdatePolicy().String(),
		Edge:     n.TriggerEdge().String(),
		Controls: n.NeedsExecutionControls(),
		ExecMs:   n.LastExecutionMs(),
		Inputs:   portViews(n.Inputs()),
		Outputs:  portViews(n.Outputs()),
	}
	if ps, ok := n.Kernel().(paramSource); ok {
		v.Params = maps.Clone(ps.Params())
	}
	return v
}

func portViews(ports []*dataflow.Port) []PortView {
	out := make([]PortView, len(ports))
	for i, p := range ports {
		pv := PortView{
			Name:  p.Name(),
			Index: i,
			Type:  p.Type(),
			Fresh: p.IsFresh(),
		}
		if pkt, ok := p.Packet(); ok {
			perf := pkt.Perf
			pv.HasPacket = true
			pv.Value = pkt.Value.Raw()
			pv.Perf = &perf
		}
		out[i] = pv
	}
	return out
}
