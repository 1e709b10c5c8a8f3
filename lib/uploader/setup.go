// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/config"
	"github.com/bureau-foundation/bureau-profiler/lib/metrics"
	"github.com/bureau-foundation/bureau-profiler/lib/process"
	"github.com/bureau-foundation/bureau-profiler/lib/tags"
	"github.com/bureau-foundation/bureau-profiler/lib/transport"
	"github.com/bureau-foundation/bureau-profiler/lib/version"
)

// FromConfig validates cfg and builds an Uploader with its own
// connection pool. The tag set gains the profiler version and process
// ID, and the container ID is resolved from the process's cgroups.
func FromConfig(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	codec, err := compression.Parse(cfg.Upload.Compression)
	if err != nil {
		return nil, err
	}

	target := cfg.FinalURL()
	var proxy *transport.Proxy
	if cfg.Transport.Proxy.Host != "" {
		proxy = &transport.Proxy{
			Host:     cfg.Transport.Proxy.Host,
			Port:     cfg.Transport.Proxy.Port,
			Username: cfg.Transport.Proxy.Username,
			Password: cfg.Transport.Proxy.Password,
		}
	}
	client, err := transport.New(transport.Config{
		URL:            target,
		Timeout:        cfg.Upload.Timeout,
		MaxConnections: cfg.Upload.MaxInFlight,
		IdleTimeout:    cfg.Upload.IdleTimeout,
		UnixSocket:     cfg.Transport.UnixSocket,
		NamedPipe:      cfg.Transport.NamedPipe,
		DiscoverSocket: !cfg.Agentless && cfg.URL == "",
		Proxy:          proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("building transport: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("profile uploader configured",
		"url", target,
		"channel", client.Channel(),
		"compression", codec,
		"agentless", cfg.Agentless,
		"max_in_flight", cfg.Upload.MaxInFlight,
		"max_queued", cfg.Upload.MaxQueued,
	)

	return New(Config{
		URL:       target,
		Client:    client,
		APIKey:    cfg.APIKey,
		Agentless: cfg.Agentless,
		Family:    cfg.Family,
		Tags: tags.New(cfg.MergedTags()).With(map[string]string{
			tags.ProfilerVersion: version.Short(),
			tags.ProcessID:       process.PID(),
		}),
		Compression:     codec,
		SummaryOn413:    cfg.Upload.SummaryOn413,
		MaxInFlight:     cfg.Upload.MaxInFlight,
		MaxQueued:       cfg.Upload.MaxQueued,
		ShutdownTimeout: cfg.Upload.ShutdownTimeout,
		ContainerID:     process.ContainerID(),
		Logger:          logger,
		Metrics:         m,
	})
}
