// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package perfsink stores per-node latency samples in InfluxDB.
//
// InfluxSink is a host.TickObserver. It turns every NodeSample of every
// tick into one point and writes them in batches, so latency curves can be
// charted next to the live stream.
package perfsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

// DefaultMeasurement is the measurement name used when none is configured.
const DefaultMeasurement = "nodegraph_node"

const defaultWriteTimeout = 5 * time.Second

// ErrNilWriter is returned when a sink is created without a write API.
var ErrNilWriter = errors.New("influx write api must not be nil")

// Config configures the InfluxDB connection.
type Config struct {
	URL    string `yaml:"url" json:"url" validate:"omitempty,url"`
	Token  string `yaml:"token" json:"-"`
	Org    string `yaml:"org" json:"org"`
	Bucket string `yaml:"bucket" json:"bucket"`

	// Measurement names the points. Defaults to DefaultMeasurement.
	Measurement string `yaml:"measurement" json:"measurement"`

	// BatchSize is how many points are buffered before a write.
	BatchSize int `yaml:"batch_size" json:"batch_size" validate:"gte=0"`

	// WriteTimeout bounds each blocking write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Enabled reports whether a URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Options configures an InfluxSink.
type Options struct {
	// Measurement names the points. Defaults to DefaultMeasurement.
	Measurement string

	// Graph tags every point so several graphs can share a bucket.
	Graph string

	// BatchSize is how many points are buffered before a write. Zero or
	// negative writes after every tick.
	BatchSize int

	// WriteTimeout bounds each blocking write. Defaults to 5s.
	WriteTimeout time.Duration

	// Logger for write failures. If nil, uses slog.Default().
	Logger *slog.Logger
}

// InfluxSink buffers tick samples and writes them through a blocking API.
//
// Description:
//
//	Points are flushed when the buffer reaches BatchSize and on Flush. A
//	failed write is logged and its points are dropped, so a dead database
//	never grows the buffer without bound.
//
// Thread Safety:
//
//	InfluxSink is safe for concurrent use.
type InfluxSink struct {
	writer  api.WriteAPIBlocking
	opts    Options
	logger  *slog.Logger
	mu      sync.Mutex
	pending []*write.Point
	written uint64
	dropped uint64
}

// NewInfluxSink creates a sink over writer.
func NewInfluxSink(writer api.WriteAPIBlocking, opts Options) (*InfluxSink, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	if opts.Measurement == "" {
		opts.Measurement = DefaultMeasurement
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InfluxSink{
		writer: writer,
		opts:   opts,
		logger: logger,
	}, nil
}

// Open connects to InfluxDB, checks its health and returns a sink and a
// close function for the client. The health check is bounded by
// cfg.WriteTimeout.
func Open(ctx context.Context, cfg Config, graph string, logger *slog.Logger) (*InfluxSink, func(), error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	health, err := client.Health(hctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, nil, fmt.Errorf("influx health: status %s", health.Status)
	}

	sink, err := NewInfluxSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), Options{
		Measurement:  cfg.Measurement,
		Graph:        graph,
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return sink, client.Close, nil
}

// ObserveTick implements host.TickObserver.
func (s *InfluxSink) ObserveTick(ctx context.Context, report host.TickReport) {
	points := make([]*write.Point, 0, len(report.Nodes))
	for _, n := range report.Nodes {
		tags := map[string]string{
			"node":      n.Handle.String(),
			"node_type": n.TypeID,
		}
		if s.opts.Graph != "" {
			tags["graph"] = s.opts.Graph
		}
		points = append(points, influxdb2.NewPoint(
			s.opts.Measurement,
			tags,
			map[string]interface{}{
				"ran":              n.Ran,
				"exec_ms":          float64(n.ExecMs),
				"critical_path_ms": float64(n.CriticalPathMs),
				"tick":             int64(report.Seq),
			},
			report.Started,
		))
	}

	s.mu.Lock()
	s.pending = append(s.pending, points...)
	full := len(s.pending) >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.logger.Warn("latency samples dropped", slog.String("error", err.Error()))
		}
	}
}

// Flush writes all buffered points.
func (s *InfluxSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()

	if err := s.writer.WritePoint(ctx, batch...); err != nil {
		s.mu.Lock()
		s.dropped += uint64(len(batch))
		s.mu.Unlock()
		return fmt.Errorf("write %d points: %w", len(batch), err)
	}

	s.mu.Lock()
	s.written += uint64(len(batch))
	s.mu.Unlock()
	return nil
}

// Stats returns the number of points written and dropped so far.
func (s *InfluxSink) Stats() (written, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped
}

// Pending returns the number of buffered points.
func (s *InfluxSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
