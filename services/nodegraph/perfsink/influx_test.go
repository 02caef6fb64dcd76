// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package perfsink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

// --- Mock InfluxDB WriteAPI ---

type MockWriteAPI struct {
	mu             sync.Mutex
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	points         []*write.Point
	calls          int
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.WritePointFunc != nil {
		if err := m.WritePointFunc(ctx, point...); err != nil {
			return err
		}
	}
	m.points = append(m.points, point...)
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error {
	return nil
}
func (m *MockWriteAPI) EnableBatching()                 {}
func (m *MockWriteAPI) Flush(ctx context.Context) error { return nil }

func sampleReport(seq uint64) host.TickReport {
	return host.TickReport{
		Seq:     seq,
		Started: time.Unix(1700000000, 0),
		Nodes: []host.NodeSample{
			{Handle: dataflow.Handle{Index: 0, Generation: 1}, TypeID: "core.source.constant", Ran: true, ExecMs: 0.5},
			{Handle: dataflow.Handle{Index: 1, Generation: 1}, TypeID: "core.math.add", Ran: false, CriticalPathMs: 1.5},
		},
	}
}

func TestNewInfluxSink_NilWriter(t *testing.T) {
	_, err := NewInfluxSink(nil, Options{})
	assert.ErrorIs(t, err, ErrNilWriter)
}

func TestInfluxSink_WritesEveryTickWithoutBatching(t *testing.T) {
	mock := &MockWriteAPI{}
	sink, err := NewInfluxSink(mock, Options{Graph: "demo"})
	require.NoError(t, err)

	sink.ObserveTick(context.Background(), sampleReport(1))
	require.Len(t, mock.points, 2)
	assert.Equal(t, 0, sink.Pending())

	p := mock.points[0]
	assert.Equal(t, DefaultMeasurement, p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"graph":     "demo",
		"node":      "0.1",
		"node_type": "core.source.constant",
	}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, true, fields["ran"])
	assert.Equal(t, 0.5, fields["exec_ms"])
	assert.Equal(t, int64(1), fields["tick"])
	assert.Equal(t, time.Unix(1700000000, 0), p.Time())

	written, dropped := sink.Stats()
	assert.Equal(t, uint64(2), written)
	assert.Equal(t, uint64(0), dropped)
}

func TestInfluxSink_Batches(t *testing.T) {
	mock := &MockWriteAPI{}
	sink, err := NewInfluxSink(mock, Options{BatchSize: 5, Measurement: "lat"})
	require.NoError(t, err)

	sink.ObserveTick(context.Background(), sampleReport(1))
	sink.ObserveTick(context.Background(), sampleReport(2))
	assert.Equal(t, 0, mock.calls, "below batch size nothing is written")
	assert.Equal(t, 4, sink.Pending())

	sink.ObserveTick(context.Background(), sampleReport(3))
	assert.Equal(t, 1, mock.calls)
	assert.Len(t, mock.points, 6)
	assert.Equal(t, "lat", mock.points[0].Name())

	sink.ObserveTick(context.Background(), sampleReport(4))
	require.NoError(t, sink.Flush(context.Background()))
	assert.Equal(t, 2, mock.calls)
	assert.Len(t, mock.points, 8)

	require.NoError(t, sink.Flush(context.Background()), "empty flush is a no-op")
	assert.Equal(t, 2, mock.calls)
}

func TestInfluxSink_WriteFailureDropsBatch(t *testing.T) {
	mock := &MockWriteAPI{
		WritePointFunc: func(context.Context, ...*write.Point) error {
			return errors.New("connection refused")
		},
	}
	sink, err := NewInfluxSink(mock, Options{})
	require.NoError(t, err)

	sink.ObserveTick(context.Background(), sampleReport(1))
	assert.Equal(t, 0, sink.Pending(), "failed points are not retried")

	written, dropped := sink.Stats()
	assert.Equal(t, uint64(0), written)
	assert.Equal(t, uint64(2), dropped)
}

func TestInfluxSink_WriteTimeout(t *testing.T) {
	mock := &MockWriteAPI{
		WritePointFunc: func(ctx context.Context, _ ...*write.Point) error {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
			return nil
		},
	}
	sink, err := NewInfluxSink(mock, Options{WriteTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	sink.ObserveTick(context.Background(), sampleReport(1))
	assert.Equal(t, 1, mock.calls)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{URL: "http://influxdb:8086"}.Enabled())
}

func TestOpen_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"influxdb","message":"ready","status":"pass","checks":[]}`))
	}))
	defer srv.Close()

	sink, closeFn, err := Open(context.Background(), Config{URL: srv.URL, Org: "o", Bucket: "b"}, "g", nil)
	require.NoError(t, err)
	require.NotNil(t, sink)
	closeFn()
}

func TestOpen_HealthCheckTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, _, err := Open(context.Background(), Config{
		URL: srv.URL, Org: "o", Bucket: "b", WriteTimeout: 50 * time.Millisecond,
	}, "g", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx health")
	assert.Less(t, time.Since(start), 5*time.Second)
}
