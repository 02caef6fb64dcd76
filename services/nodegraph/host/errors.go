// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

// Sentinel errors for graph operations.
var (
	// ErrNilNode is returned when a nil node is inserted.
	ErrNilNode = errors.New("node must not be nil")

	// ErrNilRegistry is returned when the graph has no registry to create from.
	ErrNilRegistry = errors.New("graph has no registry")

	// ErrUnknownNodeType is returned when the registry has no such type id.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrNodeNotFound is returned for a handle that does not resolve,
	// including stale handles to removed nodes.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInputLinked is returned when connecting to an input that already
	// has a link. Inputs accept exactly one link.
	ErrInputLinked = errors.New("input already linked")

	// ErrNotLinked is returned when disconnecting an input with no link.
	ErrNotLinked = errors.New("input not linked")

	// ErrCycle is matched by every CycleError.
	ErrCycle = errors.New("link would create a cycle")

	// ErrNilGraph is returned when a runner is created without a graph.
	ErrNilGraph = errors.New("graph must not be nil")
)

// CycleError reports the node path a rejected link would have closed.
type CycleError struct {
	Path []dataflow.Handle
}

// Error returns the cycle description.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, h := range e.Path {
		parts[i] = h.String()
	}
	return fmt.Sprintf("cycle detected: %s", strings.Join(parts, " -> "))
}

// Unwrap returns ErrCycle.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// NewCycleError creates a CycleError.
func NewCycleError(path []dataflow.Handle) *CycleError {
	return &CycleError{Path: path}
}

// LinkError wraps a link failure with its endpoints.
type LinkError struct {
	From Endpoint
	To   Endpoint
	Err  error
}

// Error returns the error message.
func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	return e.Err
}
