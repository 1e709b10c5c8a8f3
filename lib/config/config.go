// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/bureau-profiler/lib/compression"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "BUREAU_PROFILER_CONFIG"

// Config is the uploader configuration.
type Config struct {
	// URL is the upload endpoint. When empty, FinalURL derives it from
	// Agentless, Site, and AgentURL.
	URL string `yaml:"url"`

	// AgentURL is the base URL of the local agent.
	// Default: http://localhost:8126
	AgentURL string `yaml:"agent_url"`

	// Site is the collector site used to build the agentless intake URL.
	// Default: datadoghq.com
	Site string `yaml:"site"`

	// APIKey authenticates agentless uploads. Never sent to a local agent.
	APIKey string `yaml:"api_key"`

	// Agentless sends uploads straight to the remote intake instead of
	// through the local agent.
	Agentless bool `yaml:"agentless"`

	// Service, Env, and Version are merged into the tag set as
	// "service", "env", and "version".
	Service string `yaml:"service"`
	Env     string `yaml:"env"`
	Version string `yaml:"version"`

	// Tags are additional tags attached to every upload.
	Tags map[string]string `yaml:"tags"`

	// Family identifies the recording format family to the collector.
	// Default: java
	Family string `yaml:"family"`

	// Upload configures the upload pipeline.
	Upload UploadConfig `yaml:"upload"`

	// Transport configures how the collector is reached.
	Transport TransportConfig `yaml:"transport"`
}

// UploadConfig configures the upload pipeline.
type UploadConfig struct {
	// Timeout bounds each request end to end. Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Compression names the codec: on, off, none, lz4, gzip, zstd.
	// Default: on
	Compression string `yaml:"compression"`

	// SummaryOn413 logs a structural summary of recordings the
	// collector rejects as too large.
	SummaryOn413 bool `yaml:"summary_on_413"`

	// MaxInFlight is the ceiling on concurrently executing uploads and
	// the size of the connection pool. Default: 10
	MaxInFlight int `yaml:"max_in_flight"`

	// MaxQueued is the ceiling on uploads waiting for an in-flight
	// slot; uploads beyond it are rejected. Default: 20
	MaxQueued int `yaml:"max_queued"`

	// ShutdownTimeout bounds how long shutdown waits for outstanding
	// uploads. Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// IdleTimeout is how long an idle pooled connection is kept.
	// Default: 1s
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// TransportConfig selects the physical channel to the collector.
type TransportConfig struct {
	// UnixSocket is the path of the agent's Unix domain socket.
	UnixSocket string `yaml:"unix_socket"`

	// NamedPipe is the agent's Windows named pipe (\\.\pipe\name).
	NamedPipe string `yaml:"named_pipe"`

	// Proxy routes uploads through an HTTP proxy.
	Proxy ProxyConfig `yaml:"proxy"`
}

// ProxyConfig configures an HTTP proxy.
type ProxyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the configuration used as the base before loading a file.
func Default() *Config {
	return &Config{
		AgentURL: "http://localhost:8126",
		Site:     "datadoghq.com",
		Family:   "java",
		Upload: UploadConfig{
			Timeout:         30 * time.Second,
			Compression:     "on",
			MaxInFlight:     10,
			MaxQueued:       20,
			ShutdownTimeout: 5 * time.Second,
			IdleTimeout:     time.Second,
		},
	}
}

// Load loads configuration from the file named by BUREAU_PROFILER_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of the uploader config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies defaults for unset
// fields, and expands variables. It does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return Parse(data)
}

// Parse parses YAML (or JSON) configuration content.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.URL = expandVars(c.URL)
	c.AgentURL = expandVars(c.AgentURL)
	c.Site = expandVars(c.Site)
	c.APIKey = expandVars(c.APIKey)
	c.Service = expandVars(c.Service)
	c.Env = expandVars(c.Env)
	c.Version = expandVars(c.Version)
	for key, value := range c.Tags {
		c.Tags[key] = expandVars(value)
	}
	c.Transport.UnixSocket = expandVars(c.Transport.UnixSocket)
	c.Transport.NamedPipe = expandVars(c.Transport.NamedPipe)
	c.Transport.Proxy.Host = expandVars(c.Transport.Proxy.Host)
	c.Transport.Proxy.Username = expandVars(c.Transport.Proxy.Username)
	c.Transport.Proxy.Password = expandVars(c.Transport.Proxy.Password)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// FinalURL returns the upload endpoint: the explicit URL if set, the
// agentless intake for Site when Agentless, otherwise the local agent's
// profiling endpoint.
func (c *Config) FinalURL() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Agentless {
		return "https://intake.profile." + c.Site + "/api/v2/profile"
	}
	return strings.TrimSuffix(c.AgentURL, "/") + "/profiling/v1/input"
}

// MergedTags returns Tags plus the service, env, and version tags.
// The dedicated fields win over same-named entries in Tags.
func (c *Config) MergedTags() map[string]string {
	merged := make(map[string]string, len(c.Tags)+3)
	for key, value := range c.Tags {
		merged[key] = value
	}
	for key, value := range map[string]string{"service": c.Service, "env": c.Env, "version": c.Version} {
		if value != "" {
			merged[key] = value
		}
	}
	return merged
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	target, err := url.Parse(c.FinalURL())
	if err != nil {
		errs = append(errs, fmt.Errorf("upload url: %w", err))
	} else if target.Scheme != "http" && target.Scheme != "https" {
		errs = append(errs, fmt.Errorf("upload url %q: scheme must be http or https", c.FinalURL()))
	}

	if c.Agentless && c.APIKey == "" {
		errs = append(errs, errors.New("agentless uploads require api_key"))
	}
	if c.Family == "" {
		errs = append(errs, errors.New("family is required"))
	}
	if _, err := compression.Parse(c.Upload.Compression); err != nil {
		errs = append(errs, fmt.Errorf("upload.compression: %w", err))
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, errors.New("upload.timeout must be positive"))
	}
	if c.Upload.MaxInFlight <= 0 {
		errs = append(errs, errors.New("upload.max_in_flight must be positive"))
	}
	if c.Upload.MaxQueued <= 0 {
		errs = append(errs, errors.New("upload.max_queued must be positive"))
	}
	if c.Upload.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("upload.shutdown_timeout must not be negative"))
	}
	if c.Upload.IdleTimeout < 0 {
		errs = append(errs, errors.New("upload.idle_timeout must not be negative"))
	}

	proxy := c.Transport.Proxy
	if proxy.Host != "" && (proxy.Port <= 0 || proxy.Port > 65535) {
		errs = append(errs, fmt.Errorf("transport.proxy.port %d out of range", proxy.Port))
	}
	if proxy.Host == "" && proxy.Username != "" {
		errs = append(errs, errors.New("transport.proxy.username set without transport.proxy.host"))
	}

	return errors.Join(errs...)
}
