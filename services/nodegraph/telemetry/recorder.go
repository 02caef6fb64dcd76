// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

// Recorder turns tick reports into metrics.
//
// Description:
//
//	All metrics use the "nodegraph_" prefix. Node-level instruments carry a
//	"node.type" attribute; handles are not used as attributes to keep
//	cardinality bounded.
//
// Thread Safety: Safe for concurrent use after creation.
type Recorder struct {
	ticksTotal      metric.Int64Counter
	tickDuration    metric.Float64Histogram
	deliveriesTotal metric.Int64Counter
	rejectedTotal   metric.Int64Counter

	nodeRunsTotal metric.Int64Counter
	nodeSkipped   metric.Int64Counter
	nodeExecMs    metric.Float64Histogram
	criticalPath  metric.Float64Histogram
}

// NewRecorder registers the tick metrics with meter.
//
// Inputs:
//
//	meter - The meter to register with. If nil, uses otel.Meter("nodegraph").
//
// Outputs:
//
//	*Recorder - The recorder.
//	error - Non-nil if registration fails.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter("nodegraph")
	}

	r := &Recorder{}
	var err error

	if r.ticksTotal, err = meter.Int64Counter("nodegraph_ticks_total",
		metric.WithDescription("Number of graph ticks"),
	); err != nil {
		return nil, fmt.Errorf("ticks_total: %w", err)
	}

	if r.tickDuration, err = meter.Float64Histogram("nodegraph_tick_duration_seconds",
		metric.WithDescription("Wall time of one graph tick"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("tick_duration: %w", err)
	}

	if r.deliveriesTotal, err = meter.Int64Counter("nodegraph_deliveries_total",
		metric.WithDescription("Packets copied from outputs into inputs"),
	); err != nil {
		return nil, fmt.Errorf("deliveries_total: %w", err)
	}

	if r.rejectedTotal, err = meter.Int64Counter("nodegraph_deliveries_rejected_total",
		metric.WithDescription("Deliveries refused by a node, each dropping its link"),
	); err != nil {
		return nil, fmt.Errorf("deliveries_rejected_total: %w", err)
	}

	if r.nodeRunsTotal, err = meter.Int64Counter("nodegraph_node_runs_total",
		metric.WithDescription("Node Process calls that invoked the kernel"),
	); err != nil {
		return nil, fmt.Errorf("node_runs_total: %w", err)
	}

	if r.nodeSkipped, err = meter.Int64Counter("nodegraph_node_skipped_total",
		metric.WithDescription("Node Process calls that did not invoke the kernel"),
	); err != nil {
		return nil, fmt.Errorf("node_skipped_total: %w", err)
	}

	if r.nodeExecMs, err = meter.Float64Histogram("nodegraph_node_exec_ms",
		metric.WithDescription("Kernel wall time of nodes that ran"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("node_exec_ms: %w", err)
	}

	if r.criticalPath, err = meter.Float64Histogram("nodegraph_node_critical_path_ms",
		metric.WithDescription("Critical-path latency of node outputs"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("node_critical_path_ms: %w", err)
	}

	return r, nil
}

// ObserveTick implements host.TickObserver.
func (r *Recorder) ObserveTick(ctx context.Context, report host.TickReport) {
	r.ticksTotal.Add(ctx, 1)
	r.tickDuration.Record(ctx, report.Duration.Seconds())
	if report.Delivered > 0 {
		r.deliveriesTotal.Add(ctx, int64(report.Delivered))
	}
	if report.Rejected > 0 {
		r.rejectedTotal.Add(ctx, int64(report.Rejected))
	}

	for _, s := range report.Nodes {
		attrs := metric.WithAttributes(attribute.String("node.type", s.TypeID))
		if !s.Ran {
			r.nodeSkipped.Add(ctx, 1, attrs)
			continue
		}
		r.nodeRunsTotal.Add(ctx, 1, attrs)
		r.nodeExecMs.Record(ctx, float64(s.ExecMs), attrs)
		if s.CriticalPathMs > 0 {
			r.criticalPath.Record(ctx, float64(s.CriticalPathMs), attrs)
		}
	}
}
