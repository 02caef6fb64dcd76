// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataflow provides the typed node execution runtime.
//
// A Node owns an ordered list of typed, named Ports and a Kernel that holds
// the node's domain logic. The host feeds input ports with SetInput, calls
// Process once per tick, and pulls results with OutputPacket. Process decides
// whether the Kernel runs based on the node's UpdatePolicy:
//   - Asynchronous: run every tick unless the Trigger input holds true
//   - Synchronous: run only when every non-Trigger input carries fresh data
//   - Triggered: run on the configured edge of the Trigger input
//
// Values travel as Packets. A Packet carries a type-erased Value, the
// DataType it was written as, and PerformanceData describing the latency of
// everything that fed it. SetOutput stamps that metadata automatically.
//
// # Thread Safety
//
// Nodes are NOT safe for concurrent use. The runtime assumes one logical
// thread drives every node; hosts that serve other goroutines must serialize
// access themselves.
//
// # Example
//
//	type doubler struct{}
//
//	func (doubler) Compute(n *dataflow.Node) {
//	    v, ok := dataflow.GetInput[float64](n, "In")
//	    if !ok {
//	        return
//	    }
//	    dataflow.SetOutput(n, "Out", v*2)
//	}
//
//	n := dataflow.NewNode(doubler{})
//	n.AddInput("In", floatType)
//	n.AddOutput("Out", floatType)
//	_ = n.SetInput("In", dataflow.NewPacket(21.0, floatType))
//	n.Process()
package dataflow
