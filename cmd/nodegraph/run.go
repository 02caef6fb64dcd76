// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/nodegraph/pkg/logging"
	"github.com/AleutianAI/nodegraph/pkg/ux"
	"github.com/AleutianAI/nodegraph/services/nodegraph/api"
	"github.com/AleutianAI/nodegraph/services/nodegraph/config"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
	"github.com/AleutianAI/nodegraph/services/nodegraph/nodes"
	"github.com/AleutianAI/nodegraph/services/nodegraph/perfsink"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
	"github.com/AleutianAI/nodegraph/services/nodegraph/telemetry"
)

// runOptions carries flag values. The set* fields record which flags were
// given explicitly, so unset flags do not mask the config file.
type runOptions struct {
	configPath string
	ticks      uint64
	hz         float64
	addr       string

	setTicks bool
	setHz    bool
	setAddr  bool

	logOutput io.Writer
	jsonLogs  bool

	// listening, when set, receives the API's bound address.
	listening chan<- string
}

// runGraph is the body of "nodegraph run".
//
// Description:
//
//	Loads config, initialises telemetry, builds the graph and runs the
//	tick loop, the API server and the config watcher in one errgroup.
//	Reaching MaxTicks or cancelling ctx shuts all three down.
//
// Inputs:
//
//	ctx - Cancelled on interrupt.
//	opts - Flag values.
//	out - Receives the final summary.
//
// Outputs:
//
//	error - The first fatal error, or nil on a clean stop.
func runGraph(ctx context.Context, opts runOptions, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.setTicks {
		cfg.Tick.MaxTicks = opts.ticks
	}
	if opts.setHz {
		cfg.Tick.RateHz = opts.hz
	}
	if opts.setAddr {
		cfg.HTTP.Addr = opts.addr
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "nodegraph",
		JSON:    cfg.Log.JSON || opts.jsonLogs,
		Output:  opts.logOutput,
	})
	defer logger.Close()
	log := logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	reg := registry.New(log)
	if err := reg.Install(nodes.Module); err != nil {
		return err
	}
	g := host.NewGraph(reg, log)
	if cfg.Graph.Demo {
		if _, err := buildDemo(g); err != nil {
			return err
		}
	}

	runner, err := host.NewRunner(g, host.RunnerOptions{
		RateHz:   cfg.Tick.RateHz,
		MaxTicks: cfg.Tick.MaxTicks,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	recorder, err := telemetry.NewRecorder(nil)
	if err != nil {
		return fmt.Errorf("create metrics recorder: %w", err)
	}
	runner.AddObserver(recorder)

	p := ux.NewPrinter(out, true)

	if cfg.Influx.Enabled() {
		sink, closeInflux, err := perfsink.Open(ctx, cfg.Influx, cfg.Graph.Name, log)
		if err != nil {
			log.Warn("latency sink disabled", slog.String("error", err.Error()))
			p.Warning("latency sink disabled: " + err.Error())
		} else {
			runner.AddObserver(sink)
			defer closeInflux()
			defer func() {
				if err := sink.Flush(context.Background()); err != nil {
					log.Warn("final latency flush", slog.String("error", err.Error()))
				}
			}()
		}
	}

	hub := api.NewHub(api.HubOptions{Logger: log})
	runner.AddObserver(hub)

	var ln net.Listener
	if cfg.HTTP.Addr != "" {
		ln, err = net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
		}
		log.Info("api listening", slog.String("addr", ln.Addr().String()))
		if opts.listening != nil {
			opts.listening <- ln.Addr().String()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		defer cancel()
		err := runner.Run(egCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if ln != nil {
		handlers := api.NewHandlers(g, reg, api.Options{Rate: runner, Hub: hub, Logger: log})
		srv := &http.Server{
			Handler: api.NewRouter(handlers, api.RouterOptions{
				ServiceName: cfg.Telemetry.ServiceName,
				Metrics:     telemetry.MetricsHandler(),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			hub.Close()
			timeout := cfg.HTTP.ShutdownTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			sctx, scancel := context.WithTimeout(context.Background(), timeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, func(next config.Config) {
			applyReload(next, runner, logger, opts)
		}, config.WatcherOptions{Logger: log})
		if err != nil {
			log.Warn("config hot reload disabled", slog.String("error", err.Error()))
		} else {
			eg.Go(func() error { return watcher.Run(egCtx) })
		}
	}

	err = eg.Wait()

	if err != nil {
		p.Error(err.Error())
		return err
	}
	p.Success(fmt.Sprintf("stopped after %d ticks with %d nodes", g.Ticks(), g.Len()))
	return nil
}

// applyReload applies the live-reloadable settings. Flags given on the
// command line keep precedence over the file.
func applyReload(next config.Config, runner *host.Runner, logger *logging.Logger, opts runOptions) {
	if !opts.setHz && next.Tick.RateHz != runner.Rate() {
		runner.SetRate(next.Tick.RateHz)
	}
	if level, err := logging.ParseLevel(next.Log.Level); err == nil && level != logger.Level() {
		logger.SetLevel(level)
		logger.Info("log level changed", slog.String("level", level.String()))
	}
}
