// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
	"github.com/AleutianAI/nodegraph/services/nodegraph/nodes"
)

// demoNode is one node of the bundled graph.
type demoNode struct {
	name   string
	typeID string
	params map[string]string
}

// demoLink connects two demo nodes by name.
type demoLink struct {
	from, fromPort string
	to, toPort     string
}

// The demo computes (3 + 4) / 2 every tick and counts rising edges of a
// toggle with period 2.
var (
	demoNodes = []demoNode{
		{"a", nodes.TypeConstant, map[string]string{"value": "3"}},
		{"b", nodes.TypeConstant, map[string]string{"value": "4"}},
		{"c", nodes.TypeConstant, map[string]string{"value": "2"}},
		{"sum", nodes.TypeAdd, nil},
		{"ratio", nodes.TypeDivide, nil},
		{"clock", nodes.TypeToggle, map[string]string{"period": "2"}},
		{"edges", nodes.TypeCounter, nil},
	}
	demoLinks = []demoLink{
		{"a", "Value", "sum", "A"},
		{"b", "Value", "sum", "B"},
		{"sum", "Sum", "ratio", "A"},
		{"c", "Value", "ratio", "B"},
		{"clock", "Out", "edges", dataflow.TriggerPortName},
	}
)

// buildDemo places the demo graph into g and returns handles by name.
func buildDemo(g *host.Graph) (map[string]dataflow.Handle, error) {
	handles := make(map[string]dataflow.Handle, len(demoNodes))
	for _, d := range demoNodes {
		h, err := g.AddNode(d.typeID)
		if err != nil {
			return nil, fmt.Errorf("demo node %s: %w", d.name, err)
		}
		err = g.WithNode(h, func(n *dataflow.Node) error {
			for k, v := range d.params {
				if err := nodes.Configure(n, k, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("demo node %s: %w", d.name, err)
		}
		handles[d.name] = h
	}
	for _, l := range demoLinks {
		from := host.Endpoint{Node: handles[l.from], Port: l.fromPort}
		to := host.Endpoint{Node: handles[l.to], Port: l.toPort}
		if err := g.Connect(from, to); err != nil {
			return nil, fmt.Errorf("demo link: %w", err)
		}
	}
	return handles, nil
}
