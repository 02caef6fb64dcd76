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
	"strings"
)

// UpdatePolicy selects when Process invokes the node's kernel.
type UpdatePolicy int

const (
	// Asynchronous runs the kernel on every Process call. A true Trigger holds the node.
	Asynchronous UpdatePolicy = iota

	// Synchronous runs the kernel only when every non-Trigger input is fresh.
	// A true Trigger holds the node.
	Synchronous

	// Triggered runs the kernel on the configured TriggerEdge of the Trigger input.
	Triggered
)

// String returns the lowercase policy name.
func (p UpdatePolicy) String() string {
	switch p {
	case Asynchronous:
		return "asynchronous"
	case Synchronous:
		return "synchronous"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// ParseUpdatePolicy parses a policy name (case-insensitive).
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asynchronous", "async", "continuous":
		return Asynchronous, nil
	case "synchronous", "sync":
		return Synchronous, nil
	case "triggered", "trigger":
		return Triggered, nil
	default:
		return Asynchronous, fmt.Errorf("unknown update policy %q", s)
	}
}

// TriggerEdge selects which transition of the Trigger input fires a Triggered node.
type TriggerEdge int

const (
	// Rising fires on false -> true.
	Rising TriggerEdge = iota

	// Falling fires on true -> false.
	Falling

	// Both fires on any change.
	Both
)

// String returns the lowercase edge name.
func (e TriggerEdge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// ParseTriggerEdge parses an edge name (case-insensitive).
func ParseTriggerEdge(s string) (TriggerEdge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising":
		return Rising, nil
	case "falling":
		return Falling, nil
	case "both", "any":
		return Both, nil
	default:
		return Rising, fmt.Errorf("unknown trigger edge %q", s)
	}
}

// fires reports whether the transition prev -> cur satisfies the edge.
func (e TriggerEdge) fires(prev, cur bool) bool {
	switch e {
	case Rising:
		return !prev && cur
	case Falling:
		return prev && !cur
	case Both:
		return prev != cur
	default:
		return false
	}
}
