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

// Constant emits a fixed float on "Value" every tick.
//
// Description:
//
//	Constants have no meaningful scheduling choice, so they opt out of
//	execution controls. The value is re-emitted every tick so downstream
//	Synchronous nodes see it as fresh.
type Constant struct {
	value float64
}

// NewConstant creates a constant node emitting v.
func NewConstant(v float64) *dataflow.Node {
	n := dataflow.NewNode(&Constant{value: v})
	n.MustAddOutput("Value", Float)
	return n
}

// Compute implements dataflow.Kernel.
func (c *Constant) Compute(n *dataflow.Node) {
	dataflow.SetOutput(n, "Value", c.value)
}

// NeedsExecutionControls implements dataflow.ExecutionControlled.
func (c *Constant) NeedsExecutionControls() bool {
	return false
}

// Value returns the emitted value.
func (c *Constant) Value() float64 {
	return c.value
}

// SetValue changes the emitted value.
func (c *Constant) SetValue(v float64) {
	c.value = v
}

// Params implements Configurable.
func (c *Constant) Params() map[string]string {
	return map[string]string{"value": strconv.FormatFloat(c.value, 'g', -1, 64)}
}

// Configure implements Configurable. The only key is "value".
func (c *Constant) Configure(key, value string) error {
	if key != "value" {
		return unknownParam(key)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return invalidParam(key, value)
	}
	c.value = v
	return nil
}

// Toggle flips a bool on "Out" every Period computations.
//
// Description:
//
//	Toggle is the graph's clock source. Wired into another node's Trigger
//	it produces a rising edge every 2*Period ticks.
type Toggle struct {
	period int
	count  int
	state  bool
}

// NewToggle creates a toggle that flips every period ticks. Periods below 1
// are treated as 1.
func NewToggle(period int) *dataflow.Node {
	t := &Toggle{}
	t.setPeriod(period)
	n := dataflow.NewNode(t)
	n.MustAddOutput("Out", Bool)
	return n
}

// Compute implements dataflow.Kernel.
func (t *Toggle) Compute(n *dataflow.Node) {
	t.count++
	if t.count >= t.period {
		t.count = 0
		t.state = !t.state
	}
	dataflow.SetOutput(n, "Out", t.state)
}

// State returns the last emitted value.
func (t *Toggle) State() bool {
	return t.state
}

// Params implements Configurable.
func (t *Toggle) Params() map[string]string {
	return map[string]string{"period": strconv.Itoa(t.period)}
}

// Configure implements Configurable. The only key is "period".
func (t *Toggle) Configure(key, value string) error {
	if key != "period" {
		return unknownParam(key)
	}
	p, err := strconv.Atoi(value)
	if err != nil || p < 1 {
		return invalidParam(key, value)
	}
	t.setPeriod(p)
	return nil
}

func (t *Toggle) setPeriod(p int) {
	if p < 1 {
		p = 1
	}
	t.period = p
	t.count = 0
}
