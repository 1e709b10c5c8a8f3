// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Bureau-profile-collector-mock accepts profile uploads for local and
// integration testing. It decodes every upload, logs a one-line
// summary, and answers with a configurable status so the uploader's
// error handling can be exercised without a real collector.
//
// It listens on TCP (--listen) or on a unix socket (--socket), the
// latter standing in for a local agent reached through its socket.
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

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-profiler/lib/collector"
	"github.com/bureau-foundation/bureau-profiler/lib/process"
	"github.com/bureau-foundation/bureau-profiler/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		listenAddress string
		socketPath    string
		status        int
		body          string
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("bureau-profile-collector-mock", pflag.ContinueOnError)
	flagSet.StringVar(&listenAddress, "listen", "127.0.0.1:8126", "TCP address to accept uploads on")
	flagSet.StringVar(&socketPath, "socket", "", "accept uploads on this unix socket instead of TCP")
	flagSet.IntVar(&status, "status", http.StatusOK, "HTTP status to answer every upload with")
	flagSet.StringVar(&body, "body", "", "response body sent with a non-2xx --status")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("bureau-profile-collector-mock")
		return nil
	}
	if status < 100 || status > 599 {
		return fmt.Errorf("--status %d is not an HTTP status code", status)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	listener, err := listen(listenAddress, socketPath)
	if err != nil {
		return err
	}

	sink := collector.New(logger)
	if status != http.StatusOK || body != "" {
		sink.SetStatus(status, body)
	}
	server := &http.Server{Handler: sink, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()
	logger.Info("collector mock running", "address", listener.Addr().String(), "status", status)

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}

	logger.Info("shutting down", "uploads", sink.Count())
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// listen opens the unix socket when socketPath is set, replacing a
// stale socket file, and the TCP address otherwise.
func listen(address, socketPath string) (net.Listener, error) {
	if socketPath == "" {
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", address, err)
		}
		return listener, nil
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	return listener, nil
}
