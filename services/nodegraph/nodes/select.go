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

// MaxSelectCases bounds the number of Case ports on a Select node.
const MaxSelectCases = 64

// Select forwards the Case input chosen by "Index" to "Out".
//
// Description:
//
//	The node has a variable number of float inputs Case0..CaseN-1. Growing
//	the count appends ports after the existing ones; shrinking removes the
//	highest-numbered cases. Either way the surviving cases keep their names
//	and indices, so links to them stay valid. An out-of-range index or an
//	empty case leaves "Out" stale.
type Select struct {
	node  *dataflow.Node
	cases int
}

// NewSelect creates a select with count cases. Counts are clamped to
// [1, MaxSelectCases].
func NewSelect(count int) *dataflow.Node {
	s := &Select{}
	n := dataflow.NewNode(s)
	s.node = n
	n.MustAddInput("Index", Int)
	n.MustAddOutput("Out", Float)
	s.SetCaseCount(count)
	return n
}

// CaseName returns the port name of case i.
func CaseName(i int) string {
	return "Case" + strconv.Itoa(i)
}

// CaseCount returns the current number of cases.
func (s *Select) CaseCount() int {
	return s.cases
}

// SetCaseCount grows or shrinks the case ports.
func (s *Select) SetCaseCount(count int) {
	count = max(1, min(count, MaxSelectCases))
	for s.cases < count {
		s.node.MustAddInput(CaseName(s.cases), Float)
		s.cases++
	}
	for s.cases > count {
		s.cases--
		_ = s.node.RemovePort(CaseName(s.cases), dataflow.Input)
	}
}

// Compute implements dataflow.Kernel.
func (s *Select) Compute(n *dataflow.Node) {
	idx, ok := dataflow.GetInput[int](n, "Index")
	if !ok || idx < 0 || idx >= s.cases {
		return
	}
	v, ok := dataflow.GetInput[float64](n, CaseName(idx))
	if !ok {
		return
	}
	dataflow.SetOutput(n, "Out", v)
}

// Params implements Configurable.
func (s *Select) Params() map[string]string {
	return map[string]string{"cases": strconv.Itoa(s.cases)}
}

// Configure implements Configurable. The only key is "cases".
func (s *Select) Configure(key, value string) error {
	if key != "cases" {
		return unknownParam(key)
	}
	c, err := strconv.Atoi(value)
	if err != nil || c < 1 || c > MaxSelectCases {
		return invalidParam(key, value)
	}
	s.SetCaseCount(c)
	return nil
}
