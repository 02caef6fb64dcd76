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
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrNilContext is returned when Run is called with a nil context.
var ErrNilContext = errors.New("context must not be nil")

// TickObserver receives every TickReport produced by a Runner.
//
// Description:
//
//	ObserveTick is called synchronously on the tick goroutine after the
//	graph lock is released. Slow observers slow the loop; buffer if needed.
type TickObserver interface {
	ObserveTick(ctx context.Context, report TickReport)
}

// TickObserverFunc adapts a function to TickObserver.
type TickObserverFunc func(ctx context.Context, report TickReport)

// ObserveTick calls f(ctx, report).
func (f TickObserverFunc) ObserveTick(ctx context.Context, report TickReport) {
	f(ctx, report)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// RateHz is the tick rate. Zero or negative runs unpaced.
	RateHz float64

	// MaxTicks stops Run after that many ticks. Zero runs until cancelled.
	MaxTicks uint64

	// Logger for runner events. If nil, uses slog.Default().
	Logger *slog.Logger

	// TracerProvider for tick spans. If nil, uses the global provider.
	TracerProvider trace.TracerProvider
}

// Runner drives a Graph at a fixed rate.
//
// Thread Safety:
//
//	SetRate and AddObserver are safe to call while Run is active. Run must
//	not be called concurrently with itself.
type Runner struct {
	graph    *Graph
	limiter  *rate.Limiter
	maxTicks uint64
	logger   *slog.Logger
	tracer   trace.Tracer

	mu        sync.RWMutex
	observers []TickObserver
	rateHz    float64
}

// NewRunner creates a runner for g.
//
// Outputs:
//
//	*Runner - The runner.
//	error - ErrNilGraph if g is nil.
func NewRunner(g *Graph, opts RunnerOptions) (*Runner, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Runner{
		graph:    g,
		limiter:  rate.NewLimiter(limitFor(opts.RateHz), 1),
		maxTicks: opts.MaxTicks,
		logger:   logger,
		tracer:   tp.Tracer("nodegraph.host"),
		rateHz:   opts.RateHz,
	}, nil
}

func limitFor(hz float64) rate.Limit {
	if hz <= 0 {
		return rate.Inf
	}
	return rate.Limit(hz)
}

// AddObserver registers o for every subsequent tick.
func (r *Runner) AddObserver(o TickObserver) {
	if o == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// SetRate changes the tick rate. It takes effect on the next wait.
func (r *Runner) SetRate(hz float64) {
	r.mu.Lock()
	r.rateHz = hz
	r.mu.Unlock()
	r.limiter.SetLimit(limitFor(hz))
	r.logger.Info("tick rate changed", slog.Float64("rate_hz", hz))
}

// Rate returns the configured tick rate in Hz.
func (r *Runner) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rateHz
}

// Run ticks the graph until ctx is done or MaxTicks is reached.
//
// Outputs:
//
//	error - Nil when MaxTicks was reached, ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	runID := uuid.NewString()[:12]
	start := time.Now()
	var count uint64

	r.logger.Info("graph run started",
		slog.String("run_id", runID),
		slog.Int("nodes", r.graph.Len()),
		slog.Float64("rate_hz", r.Rate()),
		slog.Uint64("max_ticks", r.maxTicks),
	)

	for {
		if r.maxTicks > 0 && count >= r.maxTicks {
			r.logger.Info("graph run finished",
				slog.String("run_id", runID),
				slog.Uint64("ticks", count),
				slog.Duration("elapsed", time.Since(start)),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("graph run stopped",
				slog.String("run_id", runID),
				slog.Uint64("ticks", count),
				slog.String("reason", ctx.Err().Error()),
			)
			return ctx.Err()
		default:
		}

		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			return err
		}

		r.step(ctx, runID)
		count++
	}
}

// Step runs a single traced tick outside the paced loop.
func (r *Runner) Step(ctx context.Context) TickReport {
	return r.step(ctx, "")
}

func (r *Runner) step(ctx context.Context, runID string) TickReport {
	ctx, span := r.tracer.Start(ctx, "nodegraph.Tick")
	defer span.End()

	report := r.graph.Tick()

	span.SetAttributes(
		attribute.Int64("nodegraph.tick", int64(report.Seq)),
		attribute.Int("nodegraph.node_count", len(report.Nodes)),
		attribute.Int("nodegraph.executed", report.Executed()),
		attribute.Int("nodegraph.delivered", report.Delivered),
		attribute.Float64("nodegraph.duration_ms", float64(report.Duration.Microseconds())/1000),
	)
	if runID != "" {
		span.SetAttributes(attribute.String("nodegraph.run_id", runID))
	}
	if report.Rejected > 0 {
		span.AddEvent("links_dropped", trace.WithAttributes(attribute.Int("count", report.Rejected)))
		span.SetStatus(codes.Error, "deliveries rejected")
	}

	r.mu.RLock()
	observers := make([]TickObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()

	for _, o := range observers {
		o.ObserveTick(ctx, report)
	}
	return report
}
