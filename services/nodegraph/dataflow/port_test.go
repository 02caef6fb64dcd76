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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort_WriteSetsFreshAndSequence(t *testing.T) {
	p := newPort("A", floatType, Input, Handle{})
	assert.False(t, p.HasPacket())
	assert.False(t, p.IsFresh())
	assert.Equal(t, uint64(0), p.Sequence())

	p.Write(NewPacket(1.0, floatType))
	assert.True(t, p.HasPacket())
	assert.True(t, p.IsFresh())
	assert.Equal(t, uint64(1), p.Sequence())

	p.consume()
	assert.False(t, p.IsFresh())
	assert.True(t, p.HasPacket(), "consuming keeps the packet")

	p.Write(NewPacket(2.0, floatType))
	assert.Equal(t, uint64(2), p.Sequence())
}

// Direct writes are permissive; only Node entry points type-check.
func TestPort_WriteIsPermissive(t *testing.T) {
	p := newPort("A", floatType, Input, Handle{})
	p.Write(NewPacket("not a float", stringType))

	pkt, ok := p.Packet()
	require.True(t, ok)
	assert.Equal(t, stringType, pkt.Type)

	_, ok = ReadPort[float64](p)
	assert.False(t, ok)
}

func TestReadPort(t *testing.T) {
	p := newPort("A", floatType, Input, Handle{})

	_, ok := ReadPort[float64](p)
	assert.False(t, ok, "empty port reads as absent")

	p.Write(NewPacket(4.0, floatType))
	v, ok := ReadPort[float64](p)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)

	_, ok = ReadPort[float64](nil)
	assert.False(t, ok, "nil port reads as absent")
}

func TestPort_PacketIsCopied(t *testing.T) {
	p := newPort("A", floatType, Input, Handle{})
	p.Write(Packet{Value: ValueOf(1.0), Type: floatType, Perf: PerformanceData{SelfMs: 1}})

	pkt, _ := p.Packet()
	pkt.Perf.SelfMs = 99

	again, _ := p.Packet()
	assert.Equal(t, float32(1), again.Perf.SelfMs)
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "input", Input.String())
	assert.Equal(t, "output", Output.String())
	assert.Equal(t, "unknown", Direction(9).String())
}

func TestHandle_RoundTrip(t *testing.T) {
	h := Handle{Index: 4, Generation: 2}
	assert.Equal(t, "4.2", h.String())
	assert.False(t, h.IsZero())
	assert.True(t, Handle{}.IsZero())

	parsed, err := ParseHandle("4.2")
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	for _, bad := range []string{"", "4", "x.1", "1.y", "-1.1"} {
		_, err := ParseHandle(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
