// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nodes provides the built-in node kernels and their registration.
//
// The set is deliberately small: constants and a toggle source to feed
// graphs, arithmetic with an explicit Success port, a unit converter that
// rebuilds its ports, a variadic select and an edge counter. Together they
// exercise every scheduling and port feature of the dataflow runtime.
package nodes

import (
	"errors"
	"fmt"
	"maps"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// Common data types.
var (
	Float = dataflow.NewDataType("float", dataflow.Unitless)
	Int   = dataflow.NewDataType("int", dataflow.Unitless)
	Bool  = dataflow.NewDataType("bool", dataflow.Unitless)
)

var (
	// ErrNotConfigurable is returned when a node's kernel takes no parameters.
	ErrNotConfigurable = errors.New("node is not configurable")

	// ErrUnknownParam is returned for a parameter key the kernel does not know.
	ErrUnknownParam = errors.New("unknown parameter")

	// ErrInvalidParam is returned when a parameter value cannot be applied.
	ErrInvalidParam = errors.New("invalid parameter value")

	// ErrUnsupportedConversion is returned when two units have no common dimension.
	ErrUnsupportedConversion = errors.New("unsupported unit conversion")
)

// Configurable is implemented by kernels with user-editable parameters.
//
// Description:
//
//	Configure may rebuild the node's ports. Callers holding port lists or
//	indices must re-query them afterwards.
type Configurable interface {
	Params() map[string]string
	Configure(key, value string) error
}

// Configure applies one parameter to n's kernel.
//
// Outputs:
//
//	error - ErrNotConfigurable, or the kernel's error wrapped with the key.
func Configure(n *dataflow.Node, key, value string) error {
	c, ok := n.Kernel().(Configurable)
	if !ok {
		return ErrNotConfigurable
	}
	if err := c.Configure(key, value); err != nil {
		return fmt.Errorf("configure %q: %w", key, err)
	}
	return nil
}

// Params returns a copy of n's kernel parameters, or nil.
func Params(n *dataflow.Node) map[string]string {
	c, ok := n.Kernel().(Configurable)
	if !ok {
		return nil
	}
	return maps.Clone(c.Params())
}

func unknownParam(key string) error {
	return fmt.Errorf("%w: %s", ErrUnknownParam, key)
}

func invalidParam(key, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrInvalidParam, key, value)
}
