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
	"math"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// DivideEpsilon is the denominator magnitude below which Divide fails.
const DivideEpsilon = 1e-9

// Add writes A+B to "Sum". Missing inputs leave the output stale.
type Add struct{}

// NewAdd creates an adder.
func NewAdd() *dataflow.Node {
	n := dataflow.NewNode(Add{})
	n.MustAddInput("A", Float)
	n.MustAddInput("B", Float)
	n.MustAddOutput("Sum", Float)
	return n
}

// Compute implements dataflow.Kernel.
func (Add) Compute(n *dataflow.Node) {
	a, okA := dataflow.GetInput[float64](n, "A")
	b, okB := dataflow.GetInput[float64](n, "B")
	if !okA || !okB {
		return
	}
	dataflow.SetOutput(n, "Sum", a+b)
}

// Divide writes A/B to "Quotient" and reports on "Success".
//
// Description:
//
//	When |B| < DivideEpsilon the quotient is withheld and Success is false,
//	so downstream consumers keep the previous quotient and can branch on
//	the flag. Missing inputs write nothing at all.
type Divide struct{}

// NewDivide creates a divider.
func NewDivide() *dataflow.Node {
	n := dataflow.NewNode(Divide{})
	n.MustAddInput("A", Float)
	n.MustAddInput("B", Float)
	n.MustAddOutput("Quotient", Float)
	n.MustAddOutput("Success", Bool)
	return n
}

// Compute implements dataflow.Kernel.
func (Divide) Compute(n *dataflow.Node) {
	a, okA := dataflow.GetInput[float64](n, "A")
	b, okB := dataflow.GetInput[float64](n, "B")
	if !okA || !okB {
		return
	}
	if math.Abs(b) < DivideEpsilon {
		dataflow.SetOutput(n, "Success", false)
		return
	}
	dataflow.SetOutput(n, "Quotient", a/b)
	dataflow.SetOutput(n, "Success", true)
}
