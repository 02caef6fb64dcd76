// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry maps stable node type identifiers to constructors.
//
// Node modules register their types explicitly at startup through Install,
// in a fixed order chosen by the program, instead of relying on package
// initialisation side effects. Re-registering an identifier replaces the
// previous entry.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
)

var (
	// ErrInvalidRegistration is returned for an empty id or nil constructor.
	ErrInvalidRegistration = errors.New("invalid node registration")

	// ErrNilRegistry is returned when a module is installed into a nil registry.
	ErrNilRegistry = errors.New("registry must not be nil")
)

// Descriptor is the display metadata of a node type.
type Descriptor struct {
	// DisplayName is the human-readable name shown in menus.
	DisplayName string `json:"display_name"`

	// Category is a "/"-delimited menu path, e.g. "Math/Arithmetic".
	// The registry treats it as an opaque string.
	Category string `json:"category"`

	// Description is a one-line summary.
	Description string `json:"description"`
}

// Constructor creates a fresh node instance.
type Constructor func() *dataflow.Node

// Module registers one or more node types. Node packages expose these.
type Module func(r *Registry) error

type entry struct {
	descriptor  Descriptor
	constructor Constructor
}

// Registry is the lookup from node type id to descriptor and constructor.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. Registration normally happens once
//	at startup, but lookups may come from API goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *slog.Logger
}

// New creates an empty registry.
//
// Inputs:
//
//	logger - Logger for registration events. If nil, uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New(nil)
	})
	return defaultRegistry
}

// Register adds or replaces a node type.
//
// Description:
//
//	Registering an id that already exists replaces the previous entry; the
//	last registration wins. The replacement is logged at Warn so colliding
//	modules are visible, but it is not an error.
//
// Inputs:
//
//	id - Stable, process-wide unique identifier. Must not be empty.
//	d - Display metadata.
//	c - Constructor. Must not be nil.
//
// Outputs:
//
//	error - ErrInvalidRegistration when id is empty or c is nil.
func (r *Registry) Register(id string, d Descriptor, c Constructor) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRegistration)
	}
	if c == nil {
		return fmt.Errorf("%w: nil constructor for %q", ErrInvalidRegistration, id)
	}

	r.mu.Lock()
	_, replaced := r.entries[id]
	r.entries[id] = entry{descriptor: d, constructor: c}
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("node type re-registered, previous entry replaced",
			slog.String("id", id),
			slog.String("category", d.Category),
		)
	} else {
		r.logger.Debug("node type registered",
			slog.String("id", id),
			slog.String("category", d.Category),
		)
	}
	return nil
}

// Create builds a new node of the given type.
//
// Outputs:
//
//	*dataflow.Node - The node with its TypeID set, or nil.
//	bool - False when the id is unknown or the constructor returned nil.
func (r *Registry) Create(id string) (*dataflow.Node, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	n := e.constructor()
	if n == nil {
		r.logger.Warn("node constructor returned nil", slog.String("id", id))
		return nil, false
	}
	n.SetTypeID(id)
	return n, true
}

// Describe returns the descriptor for id.
func (r *Registry) Describe(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.descriptor, ok
}

// List returns a copy of all descriptors keyed by id.
func (r *Registry) List() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Descriptor, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.descriptor
	}
	return out
}

// IDs returns all registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Install runs modules in order and stops at the first error.
func (r *Registry) Install(mods ...Module) error {
	if r == nil {
		return ErrNilRegistry
	}
	for i, mod := range mods {
		if mod == nil {
			continue
		}
		if err := mod(r); err != nil {
			return fmt.Errorf("install module %d: %w", i, err)
		}
	}
	r.logger.Info("node modules installed",
		slog.Int("modules", len(mods)),
		slog.Int("node_types", r.Len()),
	)
	return nil
}
