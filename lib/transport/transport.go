// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DefaultAgentSocket is where the local agent listens when it exposes a
// Unix domain socket.
const DefaultAgentSocket = "/var/run/datadog/apm.socket"

// Config describes the client to build.
type Config struct {
	// URL is the upload endpoint. Its scheme selects plaintext or TLS;
	// its host is ignored when a socket or pipe is used.
	URL string

	// Timeout bounds each request end to end, and separately the dial
	// and the wait for response headers.
	Timeout time.Duration

	// MaxConnections caps the connection pool. It should equal the
	// uploader's in-flight ceiling.
	MaxConnections int

	// IdleTimeout is how long an idle pooled connection is kept.
	IdleTimeout time.Duration

	// UnixSocket is a Unix domain socket path to dial instead of TCP.
	UnixSocket string

	// NamedPipe is a Windows named pipe to dial instead of TCP. Ignored
	// when UnixSocket is set.
	NamedPipe string

	// DiscoverSocket enables falling back to DefaultAgentSocket (or
	// SocketPath, when set) if it exists and neither UnixSocket nor
	// NamedPipe is configured. Callers disable it for agentless uploads.
	DiscoverSocket bool

	// SocketPath overrides DefaultAgentSocket for discovery.
	SocketPath string

	// Proxy routes requests through an HTTP proxy. It applies on top of
	// the selected dialer: with a socket or pipe, the connection meant
	// for the proxy is made over that socket or pipe.
	Proxy *Proxy
}

// Proxy is an HTTP proxy, with optional basic credentials.
type Proxy struct {
	Host     string
	Port     int
	Username string
	Password string
}

// URL returns the proxy URL with credentials as userinfo. The HTTP
// client derives the Proxy-Authorization header from it, for both
// plain requests and CONNECT tunnels. A missing password is sent as
// empty.
func (proxy *Proxy) URL() *url.URL {
	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(proxy.Host, strconv.Itoa(proxy.Port)),
	}
	if proxy.Username != "" {
		proxyURL.User = url.UserPassword(proxy.Username, proxy.Password)
	}
	return proxyURL
}

// Client is the shared HTTP client plus the transport that owns its
// pool, kept so shutdown can evict pooled connections.
type Client struct {
	*http.Client
	transport *http.Transport
	channel   string
}

// Channel describes the physical channel in use ("tcp", "proxy",
// "unix:<path>", "pipe:<name>", with "+proxy" appended when a socket or
// pipe also carries proxied requests) for log records.
func (client *Client) Channel() string { return client.channel }

// EvictAll closes every idle pooled connection. Connections still
// carrying a request are closed by the transport once that request's
// context is cancelled.
func (client *Client) EvictAll() { client.transport.CloseIdleConnections() }

// New builds the client described by config.
func New(config Config) (*Client, error) {
	target, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing upload url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("upload url %q: unsupported scheme %q", config.URL, target.Scheme)
	}
	if config.MaxConnections <= 0 {
		return nil, errors.New("transport: MaxConnections must be positive")
	}

	dialer := &net.Dialer{Timeout: config.Timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       config.MaxConnections,
		MaxIdleConnsPerHost:   config.MaxConnections,
		MaxIdleConns:          config.MaxConnections,
		IdleConnTimeout:       config.IdleTimeout,
		ResponseHeaderTimeout: config.Timeout,
		TLSHandshakeTimeout:   config.Timeout,
		ForceAttemptHTTP2:     target.Scheme == "https",
	}
	channel := "tcp"

	socketPath := config.UnixSocket
	if socketPath == "" && config.NamedPipe == "" && config.DiscoverSocket {
		socketPath = discoverSocket(config.SocketPath)
	}

	switch {
	case socketPath != "":
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		}
		channel = "unix:" + socketPath
	case config.NamedPipe != "":
		pipeName := config.NamedPipe
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialNamedPipe(ctx, pipeName)
		}
		channel = "pipe:" + pipeName
	}

	if config.Proxy != nil && config.Proxy.Host != "" {
		transport.Proxy = http.ProxyURL(config.Proxy.URL())
		if channel == "tcp" {
			channel = "proxy"
		} else {
			channel += "+proxy"
		}
	}

	if target.Scheme == "http" {
		// Plaintext only: no TLS configuration and no h2 upgrade.
		transport.TLSClientConfig = nil
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &Client{
		Client:    &http.Client{Transport: transport, Timeout: config.Timeout},
		transport: transport,
		channel:   channel,
	}, nil
}

func discoverSocket(path string) string {
	if path == "" {
		path = DefaultAgentSocket
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		return ""
	}
	return path
}
