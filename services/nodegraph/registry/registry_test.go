// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

type markerKernel struct{ tag string }

func (markerKernel) Compute(*dataflow.Node) {}

func markerCtor(tag string) Constructor {
	return func() *dataflow.Node {
		return dataflow.NewNode(markerKernel{tag: tag})
	}
}

func testRegistry(buf *bytes.Buffer) *Registry {
	return New(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestRegistry_CreateUnknown(t *testing.T) {
	r := New(nil)
	n, ok := r.Create("bar")
	assert.False(t, ok)
	assert.Nil(t, n)
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("foo", Descriptor{DisplayName: "Foo", Category: "Test/Foo"}, markerCtor("one")))

	n, ok := r.Create("foo")
	require.True(t, ok)
	assert.Equal(t, "foo", n.TypeID())
	assert.Equal(t, markerKernel{tag: "one"}, n.Kernel())

	other, ok := r.Create("foo")
	require.True(t, ok)
	assert.NotSame(t, n, other, "each Create builds a fresh instance")
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	var buf bytes.Buffer
	r := testRegistry(&buf)

	require.NoError(t, r.Register("foo", Descriptor{DisplayName: "First"}, markerCtor("first")))
	require.NoError(t, r.Register("foo", Descriptor{DisplayName: "Second"}, markerCtor("second")))

	n, ok := r.Create("foo")
	require.True(t, ok)
	assert.Equal(t, markerKernel{tag: "second"}, n.Kernel())

	d, ok := r.Describe("foo")
	require.True(t, ok)
	assert.Equal(t, "Second", d.DisplayName)
	assert.Equal(t, 1, r.Len())
	assert.Contains(t, buf.String(), "re-registered")

	_, ok = r.Create("bar")
	assert.False(t, ok)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := New(nil)
	err := r.Register("", Descriptor{}, markerCtor("x"))
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	err = r.Register("foo", Descriptor{}, nil)
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_NilConstructorResult(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("nil", Descriptor{}, func() *dataflow.Node { return nil }))
	n, ok := r.Create("nil")
	assert.False(t, ok)
	assert.Nil(t, n)
}

func TestRegistry_ListIsCopy(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("b", Descriptor{Category: "Math/Arithmetic"}, markerCtor("b")))
	require.NoError(t, r.Register("a", Descriptor{Category: "Sources"}, markerCtor("a")))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Math/Arithmetic", list["b"].Category)

	delete(list, "a")
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.IDs())
}

func TestRegistry_Install(t *testing.T) {
	r := New(nil)
	var order []string
	modA := func(r *Registry) error {
		order = append(order, "a")
		return r.Register("a", Descriptor{}, markerCtor("a"))
	}
	modB := func(r *Registry) error {
		order = append(order, "b")
		return r.Register("b", Descriptor{}, markerCtor("b"))
	}

	require.NoError(t, r.Install(modA, nil, modB))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_InstallStopsOnError(t *testing.T) {
	r := New(nil)
	boom := errors.New("boom")
	called := false

	err := r.Install(
		func(*Registry) error { return boom },
		func(*Registry) error { called = true; return nil },
	)
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)

	var nilReg *Registry
	assert.ErrorIs(t, nilReg.Install(), ErrNilRegistry)
}

func TestRegistry_Default(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("foo", Descriptor{}, markerCtor("foo")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.Create("foo")
				_ = r.List()
			}
		}()
	}
	wg.Wait()
}
