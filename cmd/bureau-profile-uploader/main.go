// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Bureau-profile-uploader ships profiling recordings to a collector.
//
// Recordings named on the command line are uploaded once and the
// process exits. With --spool-dir, the uploader also watches a
// directory and uploads every *.jfr file that appears in it, removing
// the file once its upload finishes. Producers should write under a
// temporary name and rename into place so that only complete
// recordings are picked up.
//
// Configuration comes from --config or the BUREAU_PROFILER_CONFIG
// environment variable. SIGINT and SIGTERM stop the watcher and shut
// the uploader down, abandoning uploads that do not finish within the
// configured drain timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-profiler/lib/config"
	"github.com/bureau-foundation/bureau-profiler/lib/metrics"
	"github.com/bureau-foundation/bureau-profiler/lib/process"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/uploader"
	"github.com/bureau-foundation/bureau-profiler/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath    string
	kind          string
	sync          bool
	spoolDir      string
	period        time.Duration
	metricsListen string
	logFile       string
	logLevel      string
	showVersion   bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("bureau-profile-uploader", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the uploader config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.kind, "kind", string(recording.Continuous), "recording kind: continuous or oneshot")
	flagSet.BoolVar(&opts.sync, "sync", false, "upload command-line recordings one at a time on the main goroutine")
	flagSet.StringVar(&opts.spoolDir, "spool-dir", "", "watch this directory and upload *.jfr files renamed into it")
	flagSet.DurationVar(&opts.period, "period", time.Minute, "recording window length, used to derive each file's start time from its modification time")
	flagSet.StringVar(&opts.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	flagSet.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this rotating file instead of stderr")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		version.Print("bureau-profile-uploader")
		return nil
	}

	kind, err := parseKind(opts.kind)
	if err != nil {
		return err
	}
	files := flagSet.Args()
	if len(files) == 0 && opts.spoolDir == "" {
		return errors.New("nothing to upload: name recordings as arguments or set --spool-dir")
	}

	logger, closeLog, err := newLogger(opts.logFile, opts.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		return err
	}

	profileUploader, err := uploader.FromConfig(cfg, logger, collectors)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.metricsListen != "" {
		server, err := serveMetrics(opts.metricsListen, registry, logger)
		if err != nil {
			profileUploader.Shutdown(context.Background())
			return err
		}
		defer server.Close()
	}

	handles := make([]*uploader.Handle, 0, len(files))
	for _, path := range files {
		data, err := fileRecording(path, opts.period, false)
		if err != nil {
			logger.Error("skipping recording", "path", path, "error", err)
			continue
		}
		var uploadOptions []uploader.Option
		if opts.sync {
			uploadOptions = append(uploadOptions, uploader.WithSync())
		}
		handles = append(handles, profileUploader.Upload(ctx, kind, data, uploadOptions...))
	}

	failed := 0
	for _, handle := range handles {
		outcome, err := handle.Wait(ctx)
		if err != nil {
			break
		}
		if outcome.Status != uploader.Success {
			failed++
		}
	}

	if opts.spoolDir != "" && ctx.Err() == nil {
		spool := &spoolWatcher{
			dir:      opts.spoolDir,
			kind:     kind,
			period:   opts.period,
			uploader: profileUploader,
			logger:   logger,
		}
		logger.Info("watching spool directory", "dir", opts.spoolDir, "kind", kind)
		if err := spool.run(ctx); err != nil {
			logger.Error("spool watcher failed", "error", err)
			profileUploader.Shutdown(context.Background())
			return err
		}
	}

	logger.Info("shutting down")
	shutdownContext, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	profileUploader.Shutdown(shutdownContext)

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}

func parseKind(name string) (recording.Kind, error) {
	switch kind := recording.Kind(name); kind {
	case recording.Continuous, recording.OneShot:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown recording kind %q (want %s or %s)", name, recording.Continuous, recording.OneShot)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func serveMetrics(address string, registry *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", address, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(registry))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())
	return server, nil
}
