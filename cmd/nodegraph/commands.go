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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/nodegraph/pkg/ux"
	"github.com/AleutianAI/nodegraph/services/nodegraph/nodes"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodegraph",
		Short: "Run and inspect typed dataflow node graphs",
		Long: `nodegraph hosts a graph of typed nodes, ticks it at a fixed rate
and serves its state over HTTP and a live websocket stream.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd(), newTypesCmd(), newVersionCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the configured graph and tick it until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			opts.setTicks = flags.Changed("ticks")
			opts.setHz = flags.Changed("hz")
			opts.setAddr = flags.Changed("addr")
			opts.logOutput = cmd.ErrOrStderr()
			opts.jsonLogs = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGraph(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file, reloaded on change")
	cmd.Flags().Uint64Var(&opts.ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().Float64Var(&opts.hz, "hz", 0, "tick rate in Hz (0 runs unpaced)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (empty disables the API)")
	return cmd
}

func newTypesCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the registered node types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.New(nil)
			if err := reg.Install(nodes.Module); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !plain {
				if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
					plain = true
				}
			}
			printTypes(ux.NewPrinter(out, plain), reg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "tab-separated output without styling")
	return cmd
}

func printTypes(p *ux.Printer, reg *registry.Registry) {
	descs := reg.List()
	rows := make([][]string, 0, len(descs))
	for _, id := range reg.IDs() {
		d := descs[id]
		rows = append(rows, []string{id, d.DisplayName, d.Category, d.Description})
	}
	if !p.Plain() {
		p.Title("Node types")
	}
	p.Table([]string{"ID", "Name", "Category", "Description"}, rows)
	if !p.Plain() {
		p.Muted(fmt.Sprintf("%d types registered", len(rows)))
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nodegraph %s\n", Version)
		},
	}
}
