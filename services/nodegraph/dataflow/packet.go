// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataflow

import "fmt"

// Unitless is the unit string for dimensionless values.
const Unitless = "unitless"

// TriggerPortName is the name of the implicit input every node carries.
const TriggerPortName = "Trigger"

// TriggerType is the DataType of the implicit Trigger input.
var TriggerType = DataType{Name: "bool", Unit: Unitless}

// DataType describes what a Port or Packet carries.
//
// Description:
//
//	A DataType pairs a type name with a physical unit. Two DataTypes are
//	equal iff both fields match, so {float, m} and {float, mm} are distinct
//	and cannot be linked without a converter.
type DataType struct {
	// Name is the value type, e.g. "float", "bool", "matrix3".
	Name string `json:"name"`

	// Unit is the physical unit, e.g. "m", "rad/s", or Unitless.
	Unit string `json:"unit"`
}

// NewDataType creates a DataType. An empty unit is normalised to Unitless.
func NewDataType(name, unit string) DataType {
	if unit == "" {
		unit = Unitless
	}
	return DataType{Name: name, Unit: unit}
}

// Equal reports whether both name and unit match.
func (d DataType) Equal(other DataType) bool {
	return d.Name == other.Name && d.Unit == other.Unit
}

// String renders the type as "name[unit]".
func (d DataType) String() string {
	return fmt.Sprintf("%s[%s]", d.Name, d.Unit)
}

// Value is a type-erased container for whatever a node produces.
//
// Description:
//
//	Value is the runtime's dynamic value. It is read back with As, a checked
//	downcast that reports absence instead of panicking when the stored Go
//	type differs from the requested one.
//
// Ownership:
//
//	Packets copy the Value struct, not what it points to. Kernels must treat
//	reference-typed payloads (slices, maps, pointers) they receive as
//	read-only and allocate fresh ones for their outputs.
type Value struct {
	v any
}

// ValueOf wraps v in a Value.
func ValueOf(v any) Value {
	return Value{v: v}
}

// Raw returns the wrapped value.
func (v Value) Raw() any {
	return v.v
}

// IsNil reports whether the Value holds nothing.
func (v Value) IsNil() bool {
	return v.v == nil
}

// As performs a checked downcast of v to T.
//
// Outputs:
//
//	T - The value when the stored type is exactly T, otherwise the zero value.
//	bool - True when the downcast succeeded.
func As[T any](v Value) (T, bool) {
	t, ok := v.v.(T)
	return t, ok
}

// PerformanceData accumulates execution latency alongside a value.
type PerformanceData struct {
	// SelfMs is the measured cost of the producing node's last computation.
	SelfMs float32 `json:"self_ms"`

	// UpstreamMs is the critical-path latency of everything feeding the
	// producer: the max of SelfMs+UpstreamMs over its input packets.
	UpstreamMs float32 `json:"upstream_ms"`
}

// Total returns SelfMs + UpstreamMs.
func (p PerformanceData) Total() float32 {
	return p.SelfMs + p.UpstreamMs
}

// Packet is the unit of transfer between ports.
type Packet struct {
	Value Value           `json:"-"`
	Type  DataType        `json:"type"`
	Perf  PerformanceData `json:"perf"`
}

// NewPacket creates a packet holding v declared as dt, with zero perf data.
func NewPacket[T any](v T, dt DataType) Packet {
	return Packet{Value: ValueOf(v), Type: dt}
}

// PacketValue downcasts the packet's value to T.
func PacketValue[T any](p Packet) (T, bool) {
	return As[T](p.Value)
}
