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
	"fmt"
	"strings"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

type unitInfo struct {
	dimension string
	toBase    float64
}

// units maps a unit symbol to its dimension and factor to the SI base unit.
var units = map[string]unitInfo{
	dataflow.Unitless: {dimension: "none", toBase: 1},

	"m":  {dimension: "length", toBase: 1},
	"km": {dimension: "length", toBase: 1000},
	"cm": {dimension: "length", toBase: 0.01},
	"mm": {dimension: "length", toBase: 0.001},

	"s":   {dimension: "time", toBase: 1},
	"ms":  {dimension: "time", toBase: 0.001},
	"min": {dimension: "time", toBase: 60},

	"rad": {dimension: "angle", toBase: 1},
	"deg": {dimension: "angle", toBase: 0.017453292519943295},
}

// ConversionFactor returns the multiplier taking a value in from to a value in to.
func ConversionFactor(from, to string) (float64, error) {
	f, okF := units[from]
	t, okT := units[to]
	if !okF || !okT || f.dimension != t.dimension {
		return 0, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, from, to)
	}
	return f.toBase / t.toBase, nil
}

// Converter scales a float from one unit to another.
//
// Description:
//
//	The port types carry the units, so changing units rebuilds both ports:
//	"In" becomes float[from] and "Out" becomes float[to]. Links into or out
//	of the old ports no longer type-check and the host drops them.
type Converter struct {
	node   *dataflow.Node
	from   string
	to     string
	factor float64
}

// NewConverter creates a converter between two units of the same dimension.
func NewConverter(from, to string) (*dataflow.Node, error) {
	factor, err := ConversionFactor(from, to)
	if err != nil {
		return nil, err
	}
	c := &Converter{from: from, to: to, factor: factor}
	n := dataflow.NewNode(c)
	c.node = n
	n.MustAddInput("In", dataflow.NewDataType("float", from))
	n.MustAddOutput("Out", dataflow.NewDataType("float", to))
	return n, nil
}

// Compute implements dataflow.Kernel.
func (c *Converter) Compute(n *dataflow.Node) {
	v, ok := dataflow.GetInput[float64](n, "In")
	if !ok {
		return
	}
	dataflow.SetOutput(n, "Out", v*c.factor)
}

// Units returns the current source and target units.
func (c *Converter) Units() (from, to string) {
	return c.from, c.to
}

// SetUnits changes the conversion and rebuilds the In and Out ports.
//
// Description:
//
//	Nothing changes when the units are unsupported. When they are the same
//	as the current ones the ports are left alone. Otherwise both ports are
//	removed, discarding their packets, and re-added with the new types at
//	the same indices.
func (c *Converter) SetUnits(from, to string) error {
	factor, err := ConversionFactor(from, to)
	if err != nil {
		return err
	}
	if from == c.from && to == c.to {
		return nil
	}
	n := c.node
	if err := n.RemovePort("In", dataflow.Input); err != nil {
		return err
	}
	if err := n.RemovePort("Out", dataflow.Output); err != nil {
		return err
	}
	n.MustAddInput("In", dataflow.NewDataType("float", from))
	n.MustAddOutput("Out", dataflow.NewDataType("float", to))
	c.from, c.to, c.factor = from, to, factor
	return nil
}

// Params implements Configurable.
func (c *Converter) Params() map[string]string {
	return map[string]string{"from": c.from, "to": c.to, "units": c.from + ":" + c.to}
}

// Configure implements Configurable. Keys are "from", "to" and "units",
// the latter taking "from:to" so the dimension can change in one step.
func (c *Converter) Configure(key, value string) error {
	switch key {
	case "units":
		from, to, ok := strings.Cut(value, ":")
		if !ok {
			return invalidParam(key, value)
		}
		return c.SetUnits(from, to)
	case "from":
		return c.SetUnits(value, c.to)
	case "to":
		return c.SetUnits(c.from, value)
	default:
		return unknownParam(key)
	}
}
