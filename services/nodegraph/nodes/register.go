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
	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
)

// Node type identifiers.
const (
	TypeConstant  = "core.source.constant"
	TypeToggle    = "core.source.toggle"
	TypeAdd       = "core.math.add"
	TypeDivide    = "core.math.divide"
	TypeConverter = "core.units.converter"
	TypeSelect    = "core.flow.select"
	TypeCounter   = "core.flow.counter"
)

type registration struct {
	id   string
	desc registry.Descriptor
	ctor registry.Constructor
}

func builtins() []registration {
	return []registration{
		{TypeConstant, registry.Descriptor{
			DisplayName: "Constant",
			Category:    "Sources",
			Description: "Emits a fixed float every tick.",
		}, func() *dataflow.Node { return NewConstant(0) }},
		{TypeToggle, registry.Descriptor{
			DisplayName: "Toggle",
			Category:    "Sources",
			Description: "Flips a bool every period ticks.",
		}, func() *dataflow.Node { return NewToggle(1) }},
		{TypeAdd, registry.Descriptor{
			DisplayName: "Add",
			Category:    "Math/Arithmetic",
			Description: "Sum of two floats.",
		}, NewAdd},
		{TypeDivide, registry.Descriptor{
			DisplayName: "Divide",
			Category:    "Math/Arithmetic",
			Description: "Quotient of two floats with a Success flag.",
		}, NewDivide},
		{TypeConverter, registry.Descriptor{
			DisplayName: "Unit Converter",
			Category:    "Math/Units",
			Description: "Scales a float between units of the same dimension.",
		}, func() *dataflow.Node {
			n, _ := NewConverter("m", "cm")
			return n
		}},
		{TypeSelect, registry.Descriptor{
			DisplayName: "Select",
			Category:    "Flow",
			Description: "Forwards the case chosen by Index.",
		}, func() *dataflow.Node { return NewSelect(2) }},
		{TypeCounter, registry.Descriptor{
			DisplayName: "Edge Counter",
			Category:    "Flow",
			Description: "Counts rising edges on Trigger.",
		}, NewCounter},
	}
}

// RegisterAll registers every built-in node type in a fixed order.
func RegisterAll(r *registry.Registry) error {
	for _, b := range builtins() {
		if err := r.Register(b.id, b.desc, b.ctor); err != nil {
			return err
		}
	}
	return nil
}

// Module is RegisterAll as a registry.Module.
var Module registry.Module = RegisterAll
