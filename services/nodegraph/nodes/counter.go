// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"strconv"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// Counter counts its own executions and writes the total to "Count".
//
// Description:
//
//	Counter starts Triggered on the Rising edge, which makes it an edge
//	counter for whatever drives its Trigger input. Under other policies it
//	counts ticks.
type Counter struct {
	count int
}

// NewCounter creates an edge counter.
func NewCounter() *dataflow.Node {
	n := dataflow.NewNode(&Counter{},
		dataflow.WithUpdatePolicy(dataflow.Triggered),
		dataflow.WithTriggerEdge(dataflow.Rising),
	)
	n.MustAddOutput("Count", Int)
	return n
}

// Compute implements dataflow.Kernel.
func (c *Counter) Compute(n *dataflow.Node) {
	c.count++
	dataflow.SetOutput(n, "Count", c.count)
}

// Count returns the number of executions so far.
func (c *Counter) Count() int {
	return c.count
}

// Params implements Configurable.
func (c *Counter) Params() map[string]string {
	return map[string]string{"count": strconv.Itoa(c.count)}
}

// Configure implements Configurable. "count" sets the running total.
func (c *Counter) Configure(key, value string) error {
	if key != "count" {
		return unknownParam(key)
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return invalidParam(key, value)
	}
	c.count = v
	return nil
}
