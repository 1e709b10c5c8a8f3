// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("TEST_PROFILER_KEY", "secret-key")
	path := writeConfig(t, "profiler.yaml", `
agentless: true
site: datadoghq.eu
api_key: ${TEST_PROFILER_KEY}
service: checkout
env: prod
tags:
  team: payments
  region: ${TEST_PROFILER_REGION:-eu-west-1}
upload:
  compression: zstd
  max_in_flight: 4
  max_queued: 8
  timeout: 10s
transport:
  proxy:
    host: proxy.internal
    port: 3128
    username: uploader
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want expanded value", cfg.APIKey)
	}
	if got, want := cfg.FinalURL(), "https://intake.profile.datadoghq.eu/api/v2/profile"; got != want {
		t.Errorf("FinalURL = %q, want %q", got, want)
	}
	if cfg.Upload.Timeout != 10*time.Second || cfg.Upload.MaxInFlight != 4 || cfg.Upload.MaxQueued != 8 {
		t.Errorf("upload = %+v", cfg.Upload)
	}
	// Unset fields keep their defaults.
	if cfg.Upload.ShutdownTimeout != 5*time.Second || cfg.Family != "java" {
		t.Errorf("defaults lost: shutdown_timeout=%v family=%q", cfg.Upload.ShutdownTimeout, cfg.Family)
	}

	want := map[string]string{"team": "payments", "region": "eu-west-1", "service": "checkout", "env": "prod"}
	if diff := cmp.Diff(want, cfg.MergedTags()); diff != "" {
		t.Errorf("MergedTags mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "profiler.jsonc", `{
  // local agent over a socket
  "transport": {"unix_socket": "/run/agent/apm.socket"},
  "upload": {"compression": "gzip",},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Transport.UnixSocket != "/run/agent/apm.socket" || cfg.Upload.Compression != "gzip" {
		t.Fatalf("parsed = %+v", cfg)
	}
	if got, want := cfg.FinalURL(), "http://localhost:8126/profiling/v1/input"; got != want {
		t.Errorf("FinalURL = %q, want %q", got, want)
	}
}

func TestLoadRequiresEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), EnvironmentVariable) {
		t.Fatalf("Load error = %v, want mention of %s", err, EnvironmentVariable)
	}

	t.Setenv(EnvironmentVariable, writeConfig(t, "profiler.yaml", "url: http://collector:9000/upload\n"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FinalURL() != "http://collector:9000/upload" {
		t.Errorf("FinalURL = %q", cfg.FinalURL())
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "bad.yaml", "upload: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:    "agentless without key",
			mutate:  func(c *Config) { c.Agentless = true },
			wantErr: []string{"api_key"},
		},
		{
			name:    "bad compression",
			mutate:  func(c *Config) { c.Upload.Compression = "brotli" },
			wantErr: []string{"upload.compression"},
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.URL = "ftp://collector/" },
			wantErr: []string{"scheme"},
		},
		{
			name: "multiple problems reported together",
			mutate: func(c *Config) {
				c.Upload.MaxInFlight = 0
				c.Upload.MaxQueued = -1
				c.Transport.Proxy.Host = "proxy"
			},
			wantErr: []string{"max_in_flight", "max_queued", "proxy.port"},
		},
		{
			name:    "proxy username without host",
			mutate:  func(c *Config) { c.Transport.Proxy.Username = "u" },
			wantErr: []string{"without transport.proxy.host"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			for _, fragment := range test.wantErr {
				if !strings.Contains(err.Error(), fragment) {
					t.Errorf("error %q does not mention %q", err, fragment)
				}
			}
		})
	}
}

func TestMergedTagsFieldsWin(t *testing.T) {
	cfg := Default()
	cfg.Tags = map[string]string{"service": "from-tags", "team": "core"}
	cfg.Service = "from-field"

	want := map[string]string{"service": "from-field", "team": "core"}
	if diff := cmp.Diff(want, cfg.MergedTags()); diff != "" {
		t.Errorf("MergedTags mismatch (-want +got):\n%s", diff)
	}
}
