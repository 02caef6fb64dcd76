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
	"time"
)

// Kernel is the user logic of a node.
//
// Description:
//
//	Compute reads inputs with GetInput, performs the node's work and writes
//	results with SetOutput. A kernel that cannot produce a value simply does
//	not write the output; downstream ports keep their previous packet.
//	Compute must not call Process.
type Kernel interface {
	Compute(n *Node)
}

// KernelFunc adapts a function to the Kernel interface.
//
// Example:
//
//	n := dataflow.NewNode(dataflow.KernelFunc(func(n *dataflow.Node) {
//	    dataflow.SetOutput(n, "Out", true)
//	}))
type KernelFunc func(n *Node)

// Compute calls f(n).
func (f KernelFunc) Compute(n *Node) {
	f(n)
}

// ExecutionControlled is implemented by kernels that want to tell the host
// whether policy controls are meaningful for them. Kernels that do not
// implement it are treated as needing controls.
type ExecutionControlled interface {
	NeedsExecutionControls() bool
}

// Option configures a Node at construction.
type Option func(*Node)

// WithClock overrides the wall clock used to time Process.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

// WithUpdatePolicy sets the initial update policy.
func WithUpdatePolicy(p UpdatePolicy) Option {
	return func(n *Node) {
		n.policy = p
	}
}

// WithTriggerEdge sets the initial trigger edge.
func WithTriggerEdge(e TriggerEdge) Option {
	return func(n *Node) {
		n.edge = e
	}
}

// Node is the execution unit of the graph.
//
// Description:
//
//	Node owns its ports and the scheduling state machine. Process is the
//	single per-tick entry point; it decides from UpdatePolicy, TriggerEdge and
//	port freshness whether the Kernel runs, and times the run.
//
//	Every node starts with the implicit input "Trigger" of TriggerType.
//	Further ports are appended by the kernel's constructor and may be added
//	or removed later. Port order within a direction is stable: removing or
//	adding a port never reorders the others.
//
// Thread Safety:
//
//	Node is NOT safe for concurrent use.
type Node struct {
	kernel Kernel
	typeID string
	handle Handle

	ports        []*Port
	trigger      *Port
	portsVersion uint64

	policy      UpdatePolicy
	edge        TriggerEdge
	lastTrigger bool
	lastExecMs  float32

	now func() time.Time
}

// NewNode creates a node around kernel with the implicit Trigger input.
//
// Inputs:
//
//	kernel - The node's compute logic. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Node - The node, Asynchronous with a Rising edge unless configured otherwise.
func NewNode(kernel Kernel, opts ...Option) *Node {
	n := &Node{
		kernel: kernel,
		policy: Asynchronous,
		edge:   Rising,
		now:    time.Now,
	}
	n.trigger = newPort(TriggerPortName, TriggerType, Input, n.handle)
	n.ports = []*Port{n.trigger}

	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kernel returns the node's kernel.
func (n *Node) Kernel() Kernel {
	return n.kernel
}

// TypeID returns the registry identifier the node was created from, if any.
func (n *Node) TypeID() string {
	return n.typeID
}

// SetTypeID records the registry identifier. Called by the registry.
func (n *Node) SetTypeID(id string) {
	n.typeID = id
}

// Handle returns the node's arena handle. Zero until a host binds it.
func (n *Node) Handle() Handle {
	return n.handle
}

// Bind assigns the node's arena handle and re-points every port at it.
func (n *Node) Bind(h Handle) {
	n.handle = h
	for _, p := range n.ports {
		p.owner = h
	}
}

// UpdatePolicy returns the current policy.
func (n *Node) UpdatePolicy() UpdatePolicy {
	return n.policy
}

// SetUpdatePolicy changes the policy. Freshness and trigger state are kept.
func (n *Node) SetUpdatePolicy(p UpdatePolicy) {
	n.policy = p
}

// TriggerEdge returns the edge used under the Triggered policy.
func (n *Node) TriggerEdge() TriggerEdge {
	return n.edge
}

// SetTriggerEdge changes the edge used under the Triggered policy.
func (n *Node) SetTriggerEdge(e TriggerEdge) {
	n.edge = e
}

// LastExecutionMs returns the wall time of the last Process call that ran the kernel.
func (n *Node) LastExecutionMs() float32 {
	return n.lastExecMs
}

// NeedsExecutionControls reports whether the host should expose policy controls.
func (n *Node) NeedsExecutionControls() bool {
	if ec, ok := n.kernel.(ExecutionControlled); ok {
		return ec.NeedsExecutionControls()
	}
	return true
}

// PortsVersion increments whenever a port is added or removed.
func (n *Node) PortsVersion() uint64 {
	return n.portsVersion
}

// =============================================================================
// Ports
// =============================================================================

// Ports returns all ports in insertion order. The slice is a copy.
func (n *Node) Ports() []*Port {
	out := make([]*Port, len(n.ports))
	copy(out, n.ports)
	return out
}

// Inputs returns the input ports in index order, Trigger first.
func (n *Node) Inputs() []*Port {
	return n.byDirection(Input)
}

// Outputs returns the output ports in index order.
func (n *Node) Outputs() []*Port {
	return n.byDirection(Output)
}

// Input returns the named input port.
func (n *Node) Input(name string) (*Port, bool) {
	p := n.find(name, Input)
	return p, p != nil
}

// Output returns the named output port.
func (n *Node) Output(name string) (*Port, bool) {
	p := n.find(name, Output)
	return p, p != nil
}

// InputIndex returns the index of the named input, or -1.
func (n *Node) InputIndex(name string) int {
	return n.indexOf(name, Input)
}

// OutputIndex returns the index of the named output, or -1.
func (n *Node) OutputIndex(name string) int {
	return n.indexOf(name, Output)
}

// AddInput appends an input port.
//
// Inputs:
//
//	name - Port name, unique among inputs.
//	dt - Declared type.
//
// Outputs:
//
//	*Port - The new port.
//	error - ErrInvalidPortName, ErrDuplicatePort or ErrReservedPort.
func (n *Node) AddInput(name string, dt DataType) (*Port, error) {
	return n.addPort(name, dt, Input)
}

// AddOutput appends an output port. Names must be unique among outputs.
func (n *Node) AddOutput(name string, dt DataType) (*Port, error) {
	return n.addPort(name, dt, Output)
}

// MustAddInput is AddInput for constructors whose port names are constant.
// It panics on error.
func (n *Node) MustAddInput(name string, dt DataType) *Port {
	p, err := n.AddInput(name, dt)
	if err != nil {
		panic(err)
	}
	return p
}

// MustAddOutput is AddOutput for constructors whose port names are constant.
// It panics on error.
func (n *Node) MustAddOutput(name string, dt DataType) *Port {
	p, err := n.AddOutput(name, dt)
	if err != nil {
		panic(err)
	}
	return p
}

// RemovePort removes the named port and discards its packet.
//
// Description:
//
//	The remaining ports keep their relative order. The Trigger input cannot
//	be removed. Hosts must re-query port lists afterwards; PortsVersion
//	changes to signal the rebuild.
func (n *Node) RemovePort(name string, dir Direction) error {
	if dir == Input && name == TriggerPortName {
		return NewPortError(name, ErrReservedPort)
	}
	for i, p := range n.ports {
		if p.name == name && p.direction == dir {
			n.ports = append(n.ports[:i], n.ports[i+1:]...)
			n.portsVersion++
			return nil
		}
	}
	return NewPortError(name, ErrPortNotFound)
}

func (n *Node) addPort(name string, dt DataType, dir Direction) (*Port, error) {
	if name == "" {
		return nil, ErrInvalidPortName
	}
	if dir == Input && name == TriggerPortName {
		return nil, NewPortError(name, ErrReservedPort)
	}
	if n.find(name, dir) != nil {
		return nil, NewPortError(name, ErrDuplicatePort)
	}
	p := newPort(name, dt, dir, n.handle)
	n.ports = append(n.ports, p)
	n.portsVersion++
	return p, nil
}

func (n *Node) find(name string, dir Direction) *Port {
	for _, p := range n.ports {
		if p.name == name && p.direction == dir {
			return p
		}
	}
	return nil
}

func (n *Node) indexOf(name string, dir Direction) int {
	idx := 0
	for _, p := range n.ports {
		if p.direction != dir {
			continue
		}
		if p.name == name {
			return idx
		}
		idx++
	}
	return -1
}

func (n *Node) byDirection(dir Direction) []*Port {
	out := make([]*Port, 0, len(n.ports))
	for _, p := range n.ports {
		if p.direction == dir {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// Host entry points
// =============================================================================

// SetInput writes pkt to the named input and marks it fresh.
//
// Description:
//
//	The packet is stored by value. A packet whose Type differs from the
//	port's declared type is rejected and the port is left untouched.
//
// Outputs:
//
//	error - A *PortError wrapping ErrPortNotFound, ErrWrongDirection or
//	ErrTypeMismatch. Nil on success.
func (n *Node) SetInput(name string, pkt Packet) error {
	p := n.find(name, Input)
	if p == nil {
		if n.find(name, Output) != nil {
			return NewPortError(name, ErrWrongDirection)
		}
		return NewPortError(name, ErrPortNotFound)
	}
	if !pkt.Type.Equal(p.dataType) {
		return NewPortError(name, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, pkt.Type, p.dataType))
	}
	p.Write(pkt)
	return nil
}

// InputPacket returns a copy of the packet on the named input.
func (n *Node) InputPacket(name string) (Packet, bool) {
	p := n.find(name, Input)
	if p == nil {
		return Packet{}, false
	}
	return p.Packet()
}

// OutputPacket returns a copy of the packet on the named output.
func (n *Node) OutputPacket(name string) (Packet, bool) {
	p := n.find(name, Output)
	if p == nil {
		return Packet{}, false
	}
	return p.Packet()
}

// Process runs one scheduling decision and, if it passes, the kernel.
//
// Description:
//
//	The decision depends on UpdatePolicy:
//	  Asynchronous - run unless Trigger holds true.
//	  Synchronous  - unless Trigger holds true, run iff every non-Trigger
//	                 input is fresh; freshness is consumed before Compute.
//	  Triggered    - run iff the Trigger transition since the previous call
//	                 matches TriggerEdge; the last trigger state is updated
//	                 on every call.
//	LastExecutionMs is updated only when the kernel ran.
//
// Outputs:
//
//	bool - True when Compute was invoked.
func (n *Node) Process() bool {
	start := n.now()
	if !n.ready() {
		return false
	}
	if n.kernel != nil {
		n.kernel.Compute(n)
	}
	n.lastExecMs = float32(n.now().Sub(start).Seconds() * 1000)
	return true
}

func (n *Node) ready() bool {
	trigger, _ := ReadPort[bool](n.trigger)

	switch n.policy {
	case Asynchronous:
		return !trigger

	case Synchronous:
		if trigger {
			return false
		}
		inputs := make([]*Port, 0, len(n.ports))
		for _, p := range n.ports {
			if p.direction != Input || p == n.trigger {
				continue
			}
			if !p.fresh {
				return false
			}
			inputs = append(inputs, p)
		}
		for _, p := range inputs {
			p.consume()
		}
		return true

	case Triggered:
		prev := n.lastTrigger
		n.lastTrigger = trigger
		return n.edge.fires(prev, trigger)

	default:
		return false
	}
}

// upstreamMs is the max of SelfMs+UpstreamMs over all current input packets.
func (n *Node) upstreamMs() float32 {
	var upstream float32
	for _, p := range n.ports {
		if p.direction != Input || !p.hasPacket {
			continue
		}
		if total := p.packet.Perf.Total(); total > upstream {
			upstream = total
		}
	}
	return upstream
}

// =============================================================================
// Kernel helpers
// =============================================================================

// GetInput downcasts the named input's packet value to T.
//
// Outputs:
//
//	T - The value, or the zero value when absent or of another Go type.
//	bool - True when present with type T.
func GetInput[T any](n *Node, name string) (T, bool) {
	return ReadPort[T](n.find(name, Input))
}

// SetOutput writes v to the named output with derived performance data.
//
// Outputs:
//
//	bool - False when no output of that name exists.
func SetOutput[T any](n *Node, name string, v T) bool {
	return n.SetOutputValue(name, ValueOf(v))
}

// SetOutputValue writes v to the named output.
//
// Description:
//
//	The packet is stamped with the port's declared type regardless of what v
//	holds. Perf.SelfMs is LastExecutionMs, which during Compute is still the
//	previous run's cost. Perf.UpstreamMs is the critical path over the
//	node's current input packets.
func (n *Node) SetOutputValue(name string, v Value) bool {
	p := n.find(name, Output)
	if p == nil {
		return false
	}
	p.Write(Packet{
		Value: v,
		Type:  p.dataType,
		Perf: PerformanceData{
			SelfMs:     n.lastExecMs,
			UpstreamMs: n.upstreamMs(),
		},
	})
	return true
}
