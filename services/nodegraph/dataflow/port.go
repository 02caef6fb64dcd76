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

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the data flow direction of a port.
type Direction int

const (
	// Input ports receive packets from the host.
	Input Direction = iota

	// Output ports are written by the node's kernel.
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Handle identifies a node inside a host's arena.
//
// Description:
//
//	Ports refer to their owner by Handle rather than by pointer. The host
//	bumps Generation whenever an arena slot is reused, so a stale handle
//	never resolves to a different node.
type Handle struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

// IsZero reports whether the handle was never assigned.
func (h Handle) IsZero() bool {
	return h.Generation == 0
}

// String renders the handle as "index.generation".
func (h Handle) String() string {
	return fmt.Sprintf("%d.%d", h.Index, h.Generation)
}

// ParseHandle parses the String form of a Handle.
func ParseHandle(s string) (Handle, error) {
	idx, gen, ok := strings.Cut(s, ".")
	if !ok {
		return Handle{}, fmt.Errorf("parse handle %q: missing generation", s)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("parse handle %q: %w", s, err)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return Handle{}, fmt.Errorf("parse handle %q: %w", s, err)
	}
	return Handle{Index: uint32(i), Generation: uint32(g)}, nil
}

// Port is a named, directioned socket on a node.
//
// Description:
//
//	A Port holds at most one Packet and a freshness flag. Write is
//	permissive and stores whatever it is given; type checking belongs to
//	Node.SetInput and SetOutput, which are the supported entry points.
type Port struct {
	name      string
	dataType  DataType
	direction Direction
	owner     Handle

	packet    Packet
	hasPacket bool
	fresh     bool
	seq       uint64
}

func newPort(name string, dt DataType, dir Direction, owner Handle) *Port {
	return &Port{
		name:      name,
		dataType:  dt,
		direction: dir,
		owner:     owner,
	}
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Type returns the declared DataType.
func (p *Port) Type() DataType {
	return p.dataType
}

// Direction returns Input or Output.
func (p *Port) Direction() Direction {
	return p.direction
}

// Owner returns the handle of the owning node.
func (p *Port) Owner() Handle {
	return p.owner
}

// Packet returns a copy of the stored packet.
func (p *Port) Packet() (Packet, bool) {
	return p.packet, p.hasPacket
}

// HasPacket reports whether a packet has ever been written.
func (p *Port) HasPacket() bool {
	return p.hasPacket
}

// IsFresh reports whether unconsumed data was written since the last
// Synchronous firing.
func (p *Port) IsFresh() bool {
	return p.fresh
}

// Sequence counts writes to this port. Hosts compare it to detect new data.
func (p *Port) Sequence() uint64 {
	return p.seq
}

// Write stores pkt, marks the port fresh and bumps its sequence.
func (p *Port) Write(pkt Packet) {
	p.packet = pkt
	p.hasPacket = true
	p.fresh = true
	p.seq++
}

// consume clears freshness. Only the Synchronous branch of Process calls it.
func (p *Port) consume() {
	p.fresh = false
}

// ReadPort downcasts the port's packet value to T.
//
// Outputs:
//
//	T - The value, or the zero value when absent or of another type.
//	bool - True when a packet of type T is present.
func ReadPort[T any](p *Port) (T, bool) {
	if p == nil || !p.hasPacket {
		var zero T
		return zero, false
	}
	return PacketValue[T](p.packet)
}
