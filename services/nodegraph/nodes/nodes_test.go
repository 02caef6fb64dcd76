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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
)

func feed[T any](t *testing.T, n *dataflow.Node, port string, v T) {
	t.Helper()
	p, ok := n.Input(port)
	require.True(t, ok, "input %s", port)
	require.NoError(t, n.SetInput(port, dataflow.NewPacket(v, p.Type())))
}

func output[T any](t *testing.T, n *dataflow.Node, port string) (T, bool) {
	t.Helper()
	pkt, ok := n.OutputPacket(port)
	if !ok {
		var zero T
		return zero, false
	}
	return dataflow.PacketValue[T](pkt)
}

func TestConstant(t *testing.T) {
	n := NewConstant(2.5)
	assert.False(t, n.NeedsExecutionControls())
	require.True(t, n.Process())

	v, ok := output[float64](t, n, "Value")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	require.NoError(t, Configure(n, "value", "-1"))
	n.Process()
	v, _ = output[float64](t, n, "Value")
	assert.Equal(t, -1.0, v)
	assert.Equal(t, map[string]string{"value": "-1"}, Params(n))

	assert.ErrorIs(t, Configure(n, "value", "abc"), ErrInvalidParam)
	assert.ErrorIs(t, Configure(n, "nope", "1"), ErrUnknownParam)
}

func TestToggle(t *testing.T) {
	n := NewToggle(2)
	var got []bool
	for i := 0; i < 6; i++ {
		n.Process()
		v, _ := output[bool](t, n, "Out")
		got = append(got, v)
	}
	assert.Equal(t, []bool{false, true, true, false, false, true}, got)

	assert.ErrorIs(t, Configure(n, "period", "0"), ErrInvalidParam)
	require.NoError(t, Configure(n, "period", "1"))
	assert.Equal(t, "1", Params(n)["period"])
}

func TestAdd(t *testing.T) {
	n := NewAdd()
	feed(t, n, "A", 1.5)
	n.Process()
	_, ok := output[float64](t, n, "Sum")
	assert.False(t, ok, "missing B leaves Sum unwritten")

	feed(t, n, "B", 2.0)
	n.Process()
	v, ok := output[float64](t, n, "Sum")
	require.True(t, ok)
	assert.Equal(t, 3.5, v)
	assert.True(t, n.NeedsExecutionControls())
}

func TestDivide_SuccessPort(t *testing.T) {
	n := NewDivide()
	feed(t, n, "A", 6.0)
	feed(t, n, "B", 3.0)
	n.Process()

	q, ok := output[float64](t, n, "Quotient")
	require.True(t, ok)
	assert.Equal(t, 2.0, q)
	success, _ := output[bool](t, n, "Success")
	assert.True(t, success)

	feed(t, n, "B", 1e-12)
	n.Process()

	q, ok = output[float64](t, n, "Quotient")
	require.True(t, ok)
	assert.Equal(t, 2.0, q, "quotient is withheld and stays stale")
	success, _ = output[bool](t, n, "Success")
	assert.False(t, success)
}

func TestConversionFactor(t *testing.T) {
	f, err := ConversionFactor("m", "cm")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, f, 1e-9)

	f, err = ConversionFactor("min", "s")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, f, 1e-9)

	_, err = ConversionFactor("m", "s")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
	_, err = ConversionFactor("furlong", "m")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestConverter_Compute(t *testing.T) {
	n, err := NewConverter("km", "m")
	require.NoError(t, err)

	in, _ := n.Input("In")
	assert.Equal(t, dataflow.NewDataType("float", "km"), in.Type())

	feed(t, n, "In", 1.5)
	n.Process()
	v, ok := output[float64](t, n, "Out")
	require.True(t, ok)
	assert.InDelta(t, 1500.0, v, 1e-9)

	pkt, _ := n.OutputPacket("Out")
	assert.Equal(t, dataflow.NewDataType("float", "m"), pkt.Type)
}

func TestConverter_SetUnitsRebuildsPorts(t *testing.T) {
	n, err := NewConverter("m", "cm")
	require.NoError(t, err)
	c := n.Kernel().(*Converter)

	feed(t, n, "In", 2.0)
	n.Process()
	version := n.PortsVersion()
	inIdx := n.InputIndex("In")

	require.NoError(t, c.SetUnits("s", "ms"))
	assert.Greater(t, n.PortsVersion(), version)
	assert.Equal(t, inIdx, n.InputIndex("In"), "rebuilt port keeps its index")

	in, _ := n.Input("In")
	assert.Equal(t, dataflow.NewDataType("float", "s"), in.Type())
	assert.False(t, in.HasPacket(), "old packet is discarded")
	_, ok := n.OutputPacket("Out")
	assert.False(t, ok)

	err = n.SetInput("In", dataflow.NewPacket(1.0, dataflow.NewDataType("float", "m")))
	assert.ErrorIs(t, err, dataflow.ErrTypeMismatch)

	version = n.PortsVersion()
	require.NoError(t, c.SetUnits("s", "ms"))
	assert.Equal(t, version, n.PortsVersion(), "same units do not rebuild")

	assert.ErrorIs(t, c.SetUnits("s", "m"), ErrUnsupportedConversion)
	from, to := c.Units()
	assert.Equal(t, "s", from)
	assert.Equal(t, "ms", to)
}

func TestConverter_Configure(t *testing.T) {
	n, err := NewConverter("m", "cm")
	require.NoError(t, err)

	require.NoError(t, Configure(n, "to", "mm"))
	require.NoError(t, Configure(n, "units", "deg:rad"))
	assert.Equal(t, "deg:rad", Params(n)["units"])

	assert.ErrorIs(t, Configure(n, "from", "s"), ErrUnsupportedConversion)
	assert.ErrorIs(t, Configure(n, "units", "deg"), ErrInvalidParam)

	_, err = NewConverter("m", "s")
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestSelect_CasePorts(t *testing.T) {
	n := NewSelect(2)
	s := n.Kernel().(*Select)
	assert.Equal(t, 2, s.CaseCount())
	assert.Equal(t, 2, n.InputIndex("Case0"))

	feed(t, n, "Case1", 9.0)
	s.SetCaseCount(4)
	assert.Equal(t, 4, s.CaseCount())
	assert.Equal(t, 5, n.InputIndex("Case3"))

	in, _ := n.Input("Case1")
	assert.True(t, in.HasPacket(), "growing keeps existing packets")

	s.SetCaseCount(1)
	assert.Equal(t, -1, n.InputIndex("Case1"))
	assert.Equal(t, 2, n.InputIndex("Case0"))

	s.SetCaseCount(0)
	assert.Equal(t, 1, s.CaseCount(), "count is clamped")

	assert.ErrorIs(t, Configure(n, "cases", "0"), ErrInvalidParam)
	require.NoError(t, Configure(n, "cases", "3"))
	assert.Equal(t, "3", Params(n)["cases"])
}

func TestSelect_Compute(t *testing.T) {
	n := NewSelect(3)
	feed(t, n, "Case0", 1.0)
	feed(t, n, "Case2", 3.0)

	feed(t, n, "Index", 2)
	n.Process()
	v, ok := output[float64](t, n, "Out")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	feed(t, n, "Index", 1)
	n.Process()
	v, _ = output[float64](t, n, "Out")
	assert.Equal(t, 3.0, v, "empty case leaves Out stale")

	feed(t, n, "Index", 7)
	n.Process()
	v, _ = output[float64](t, n, "Out")
	assert.Equal(t, 3.0, v, "out of range leaves Out stale")
}

func TestCounter_CountsRisingEdges(t *testing.T) {
	n := NewCounter()
	assert.Equal(t, dataflow.Triggered, n.UpdatePolicy())

	for _, level := range []bool{false, true, true, false, true, false} {
		require.NoError(t, n.SetInput(dataflow.TriggerPortName, dataflow.NewPacket(level, dataflow.TriggerType)))
		n.Process()
	}
	c := n.Kernel().(*Counter)
	assert.Equal(t, 2, c.Count())
	v, _ := output[int](t, n, "Count")
	assert.Equal(t, 2, v)

	require.NoError(t, Configure(n, "count", "0"))
	assert.Equal(t, 0, c.Count())
}

func TestConfigure_NotConfigurable(t *testing.T) {
	n := NewAdd()
	assert.ErrorIs(t, Configure(n, "x", "1"), ErrNotConfigurable)
	assert.Nil(t, Params(n))
}

func TestRegisterAll(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.Install(Module))

	assert.Equal(t, []string{
		TypeCounter, TypeSelect, TypeAdd, TypeDivide, TypeConstant, TypeToggle, TypeConverter,
	}, r.IDs())

	for _, id := range r.IDs() {
		n, ok := r.Create(id)
		require.True(t, ok, id)
		assert.Equal(t, id, n.TypeID())
		assert.Equal(t, dataflow.TriggerPortName, n.Inputs()[0].Name())
	}

	d, ok := r.Describe(TypeDivide)
	require.True(t, ok)
	assert.Equal(t, "Math/Arithmetic", d.Category)
}
