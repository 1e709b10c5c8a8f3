// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/tags"
	"github.com/bureau-foundation/bureau-profiler/lib/testutil"
	"github.com/bureau-foundation/bureau-profiler/lib/transport"
)

const testTimeout = 10 * time.Second

var (
	testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testEnd   = testStart.Add(time.Minute)
)

// trackedRecording counts Release and Stream calls.
type trackedRecording struct {
	*recording.Bytes
	releases testutil.Counter
	streams  testutil.Counter
}

func newTrackedRecording(payload []byte) *trackedRecording {
	return &trackedRecording{Bytes: recording.NewBytes(payload, testStart, testEnd)}
}

func (r *trackedRecording) Stream() (io.ReadCloser, error) {
	r.streams.Inc()
	return r.Bytes.Stream()
}

func (r *trackedRecording) Release() {
	r.releases.Inc()
	r.Bytes.Release()
}

// logBuffer is a bytes.Buffer safe for the concurrent writes of a
// logger shared by upload goroutines.
type logBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *logBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(data)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func (b *logBuffer) contains(t *testing.T, substrings ...string) {
	t.Helper()
	logged := b.String()
	for _, substring := range substrings {
		if !strings.Contains(logged, substring) {
			t.Errorf("log missing %q:\n%s", substring, logged)
		}
	}
}

func (b *logBuffer) lacks(t *testing.T, substrings ...string) {
	t.Helper()
	logged := b.String()
	for _, substring := range substrings {
		if strings.Contains(logged, substring) {
			t.Errorf("log unexpectedly contains %q:\n%s", substring, logged)
		}
	}
}

// newTestUploader builds an Uploader against url with a real
// connection pool and a debug-level logger captured in the returned
// buffer. configure may adjust the Config before New.
func newTestUploader(t *testing.T, url string, configure func(*Config)) (*Uploader, *logBuffer) {
	t.Helper()

	client, err := transport.New(transport.Config{
		URL:            url,
		Timeout:        testTimeout,
		MaxConnections: DefaultMaxInFlight,
		IdleTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}

	logs := &logBuffer{}
	config := Config{
		URL:         url,
		Client:      client,
		Tags:        tags.New(map[string]string{"service": "api", "env": "test"}),
		ContainerID: "0123456789abcdef",
		Logger:      slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	if configure != nil {
		configure(&config)
	}

	uploader, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { uploader.Shutdown(context.Background()) })
	return uploader, logs
}

// waitOutcome waits for handle to resolve.
func waitOutcome(t *testing.T, handle *Handle) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	outcome, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("upload did not resolve: %v", err)
	}
	return outcome
}

// waitFor polls condition until it holds.
func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

// requireOnce checks that the recording was released exactly once and
// the completion hook ran wantCompletions times.
func requireOnce(t *testing.T, data *trackedRecording, completions *testutil.Counter, wantCompletions int64) {
	t.Helper()
	if got := data.releases.Load(); got != 1 {
		t.Errorf("Release called %d times, want 1", got)
	}
	if got := completions.Load(); got != wantCompletions {
		t.Errorf("completion called %d times, want %d", got, wantCompletions)
	}
}

// blockingClient is an HTTPClient whose Do blocks until unblocked,
// ignoring request cancellation.
type blockingClient struct {
	entered   chan struct{}
	unblock   chan struct{}
	evictions atomic.Int32
}

func newBlockingClient() *blockingClient {
	return &blockingClient{entered: make(chan struct{}, 16), unblock: make(chan struct{})}
}

func (c *blockingClient) Do(request *http.Request) (*http.Response, error) {
	c.entered <- struct{}{}
	<-c.unblock
	request.Body.Close()
	return nil, io.ErrClosedPipe
}

func (c *blockingClient) EvictAll() { c.evictions.Add(1) }
