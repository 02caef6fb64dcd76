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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	assert.Equal(t, "nodegraph", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.True(t, cfg.OTLPInsecure)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("NODEGRAPH_ENV", "ci")

	cfg := DefaultConfig()
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "ci", cfg.Environment)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoopExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "carrier-pigeon"
	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg.TraceExporter = "none"
	cfg.MetricExporter = "smoke-signal"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	h := MetricsHandler()
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByType(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("node.type"))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestRecorder_ObserveTick(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	rec, err := NewRecorder(mp.Meter("test"))
	require.NoError(t, err)

	report := host.TickReport{
		Seq:       1,
		Duration:  2 * time.Millisecond,
		Delivered: 3,
		Rejected:  1,
		Nodes: []host.NodeSample{
			{Handle: dataflow.Handle{Index: 0, Generation: 1}, TypeID: "core.source.constant", Ran: true, ExecMs: 0.1, CriticalPathMs: 0.1},
			{Handle: dataflow.Handle{Index: 1, Generation: 1}, TypeID: "core.math.add", Ran: true, ExecMs: 0.2, CriticalPathMs: 0.4},
			{Handle: dataflow.Handle{Index: 2, Generation: 1}, TypeID: "core.flow.counter", Ran: false},
		},
	}
	rec.ObserveTick(context.Background(), report)
	rec.ObserveTick(context.Background(), report)

	metrics := collect(t, reader)

	ticks := metrics["nodegraph_ticks_total"].Data.(metricdata.Sum[int64])
	require.Len(t, ticks.DataPoints, 1)
	assert.Equal(t, int64(2), ticks.DataPoints[0].Value)

	deliveries := metrics["nodegraph_deliveries_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(6), deliveries.DataPoints[0].Value)

	rejected := metrics["nodegraph_deliveries_rejected_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(2), rejected.DataPoints[0].Value)

	assert.Equal(t, map[string]int64{
		"core.source.constant": 2,
		"core.math.add":        2,
	}, sumByType(t, metrics["nodegraph_node_runs_total"]))
	assert.Equal(t, map[string]int64{
		"core.flow.counter": 2,
	}, sumByType(t, metrics["nodegraph_node_skipped_total"]))

	hist, ok := metrics["nodegraph_tick_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	_, ok = metrics["nodegraph_node_critical_path_ms"]
	assert.True(t, ok)
}

func TestRecorder_DefaultMeter(t *testing.T) {
	rec, err := NewRecorder(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		rec.ObserveTick(context.Background(), host.TickReport{})
	})
}

// Recorder plugs straight into a runner.
func TestRecorder_AsObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	rec, err := NewRecorder(mp.Meter("test"))
	require.NoError(t, err)

	g := host.NewGraph(nil, nil)
	_, err = g.Insert(dataflow.NewNode(dataflow.KernelFunc(func(*dataflow.Node) {})))
	require.NoError(t, err)

	r, err := host.NewRunner(g, host.RunnerOptions{MaxTicks: 4})
	require.NoError(t, err)
	r.AddObserver(rec)
	require.NoError(t, r.Run(context.Background()))

	ticks := collect(t, reader)["nodegraph_ticks_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(4), ticks.DataPoints[0].Value)
}
