// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command tsuzulint-core is a thin illustrative entrypoint over the
// linter façade — not the full CLI this core's surrounding project leaves
// out-of-scope. It has no subcommand grammar, no SARIF/JSON formatters, no
// config-schema validation; it exists only so the module is runnable
// end-to-end against a directory of files.
//
// Usage:
//
//	tsuzulint-core [options] <pattern>...
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/tsuzulint/pkg/ast"
	"github.com/kraklabs/tsuzulint/pkg/config"
	"github.com/kraklabs/tsuzulint/pkg/diag"
	"github.com/kraklabs/tsuzulint/pkg/linter"
	"github.com/kraklabs/tsuzulint/pkg/metrics"
	"github.com/kraklabs/tsuzulint/pkg/pipeline"
	"github.com/kraklabs/tsuzulint/pkg/resolver"
	"github.com/kraklabs/tsuzulint/pkg/walker"
	"github.com/kraklabs/tsuzulint/pkg/wasmhost"
)

func main() {
	var (
		configPath  = flag.StringP("config", "c", "", "Path to a YAML lint config")
		cacheRoot   = flag.String("plugin-cache", ".tsuzulint/plugins", "Resolved-plugin artifact cache root")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		metricsAddr = flag.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `tsuzulint-core — illustrative entrypoint over the lint core

Usage:
  tsuzulint-core [options] <pattern>...

Options:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	color.NoColor = *noColor || !isatty.IsTerminal(os.Stdout.Fd())

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	patterns := flag.Args()
	if len(patterns) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.LoadYAML(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	collector := metrics.New(nil)
	if *metricsAddr != "" {
		serveMetrics(logger, *metricsAddr, collector)
	}

	ctx := context.Background()
	l, err := linter.New(ctx, cfg, linter.Options{
		Resolver: resolver.New(*cacheRoot),
		ExecutorFactory: func(ctx context.Context) (wasmhost.Executor, error) {
			return wasmhost.NewNativeExecutor(ctx, wasmhost.Options{})
		},
		Parsers: pipeline.ExtensionParsers{Markdown: notImplementedParser{}, PlainText: notImplementedParser{}},
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	paths, err := walker.Discover(patterns, cfg.Include, cfg.Exclude)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("linting"),
		progressbar.OptionSetVisibility(isatty.IsTerminal(os.Stderr.Fd())),
	)

	results, failures, err := l.LintFiles(ctx, paths)
	_ = bar.Add(len(paths))
	_ = bar.Finish()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	exitCode := 0
	for _, result := range results {
		for _, d := range result.Diagnostics {
			printDiagnostic(result.Path, d)
			if d.Severity == diag.SeverityError {
				exitCode = 1
			}
		}
	}
	for _, f := range failures {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %s: %v\n", f.Path, f.Err)
		exitCode = 1
	}

	os.Exit(exitCode)
}

func serveMetrics(logger *slog.Logger, addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics.http.start", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "error", err)
		}
	}()
}

// notImplementedParser stands in for the external Markdown/plain-text
// parsers: this entrypoint only demonstrates façade wiring, it does not
// ship a parser implementation.
type notImplementedParser struct{}

func (notImplementedParser) Parse(source string) (*ast.Node, error) {
	return nil, fmt.Errorf("tsuzulint-core: no parser wired; this entrypoint only demonstrates façade wiring")
}

func printDiagnostic(path string, d diag.Diagnostic) {
	sev := color.New(color.FgYellow)
	switch d.Severity {
	case diag.SeverityError:
		sev = color.New(color.FgRed)
	case diag.SeverityInfo:
		sev = color.New(color.FgCyan)
	}
	fmt.Printf("%s:%d: ", path, d.Span.Start)
	sev.Printf("%s", d.Severity)
	fmt.Printf(" [%s] %s\n", d.RuleID, d.Message)
}
