// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/bureau-profiler/lib/collector"
	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/metrics"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/testutil"
	"github.com/bureau-foundation/bureau-profiler/lib/version"
)

func TestNewValidation(t *testing.T) {
	client := newBlockingClient()
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{name: "missing url", config: Config{Client: client}, want: "URL is required"},
		{name: "missing client", config: Config{URL: "http://localhost"}, want: "Client is required"},
		{name: "negative ceiling", config: Config{URL: "http://localhost", Client: client, MaxQueued: -1}, want: "must not be negative"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.config)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("New error = %v, want containing %q", err, test.want)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	uploader, err := New(Config{URL: "http://localhost", Client: newBlockingClient()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	config := uploader.config
	if config.Family != DefaultFamily || config.MaxInFlight != DefaultMaxInFlight ||
		config.MaxQueued != DefaultMaxQueued || config.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("defaults not applied: %+v", config)
	}
	if config.Clock == nil || config.Logger == nil || config.Summarizer == nil {
		t.Errorf("collaborators not defaulted")
	}
}

// Scenario A: capacity available, collector answers 200.
func TestUploadSuccess(t *testing.T) {
	sink := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(sink)
	defer server.Close()

	uploader, logs := newTestUploader(t, server.URL, nil)
	payload := bytes.Repeat([]byte("FLR\x00 profile "), 1000)
	data := newTrackedRecording(payload)
	var completions testutil.Counter

	handle := uploader.Upload(context.Background(), recording.Continuous, data, WithCompletion(completions.Inc))
	outcome := waitOutcome(t, handle)

	if outcome.Status != Success || outcome.Code != http.StatusOK || outcome.Err != nil {
		t.Errorf("outcome = %+v, want Success 200", outcome)
	}
	requireOnce(t, data, &completions, 1)
	logs.contains(t, "profile upload done")

	uploads := sink.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("collector received %d uploads, want 1", len(uploads))
	}
	if !bytes.Equal(uploads[0].Recording, payload) {
		t.Errorf("recording corrupted in transit: %d bytes, want %d", len(uploads[0].Recording), len(payload))
	}
	if uploads[0].Compression != compression.None {
		t.Errorf("compression = %v, want none for a zero Config", uploads[0].Compression)
	}
	if got := uploader.Pending(); got != (Pending{}) {
		t.Errorf("Pending after completion = %+v, want zero", got)
	}
}

func TestUploadWithoutCompletion(t *testing.T) {
	server := httptest.NewServer(collector.New(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, nil)
	data := newTrackedRecording([]byte("payload"))
	outcome := waitOutcome(t, uploader.Upload(context.Background(), recording.OneShot, data))
	if outcome.Status != Success {
		t.Errorf("outcome = %+v, want Success", outcome)
	}
	if data.releases.Load() != 1 {
		t.Errorf("Release called %d times, want 1", data.releases.Load())
	}
}

func TestUploadCompressionKinds(t *testing.T) {
	payload := bytes.Repeat([]byte("jdk.ExecutionSample stack frame "), 4096)
	for _, kind := range []compression.Kind{compression.None, compression.LZ4, compression.Gzip, compression.Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			sink := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
			server := httptest.NewServer(sink)
			defer server.Close()

			uploader, _ := newTestUploader(t, server.URL, func(config *Config) { config.Compression = kind })
			outcome := waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording(payload)))
			if outcome.Status != Success {
				t.Fatalf("outcome = %+v, want Success", outcome)
			}

			upload := sink.Uploads()[0]
			if upload.Compression != kind {
				t.Errorf("collector saw %v, want %v", upload.Compression, kind)
			}
			if !bytes.Equal(upload.Recording, payload) {
				t.Errorf("round trip mismatch")
			}
			if kind != compression.None && upload.CompressedSize >= int64(len(payload)) {
				t.Errorf("compressed size %d not below %d", upload.CompressedSize, len(payload))
			}
		})
	}
}

func TestUploadWireFormat(t *testing.T) {
	sink := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(sink)
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, func(config *Config) { config.Compression = compression.LZ4 })
	waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording([]byte("payload"))))

	upload := sink.Uploads()[0]
	want := collector.Event{
		Attachments: []string{"main.jfr"},
		Tags:        "env:test,service:api",
		Start:       "2026-03-01T12:00:00Z",
		End:         "2026-03-01T12:01:00Z",
		Family:      "java",
		Version:     "4",
	}
	got := upload.Event
	if len(got.Attachments) != 1 || got.Attachments[0] != want.Attachments[0] ||
		got.Tags != want.Tags || got.Start != want.Start || got.End != want.End ||
		got.Family != want.Family || got.Version != want.Version {
		t.Errorf("event = %+v, want %+v", got, want)
	}
	if upload.EventContentType != "application/json" {
		t.Errorf("event content type = %q", upload.EventContentType)
	}
	if upload.RecordingFileName != "main.jfr" {
		t.Errorf("recording filename = %q", upload.RecordingFileName)
	}

	if len(upload.TransferEncoding) != 1 || upload.TransferEncoding[0] != "chunked" {
		t.Errorf("TransferEncoding = %v, want [chunked]", upload.TransferEncoding)
	}
	headers := map[string]string{
		HeaderMetaLang:      "java",
		HeaderOrigin:        "bureau-profiler",
		HeaderOriginVersion: version.Short(),
		HeaderContainerID:   "0123456789abcdef",
	}
	for name, value := range headers {
		if got := upload.Header.Get(name); got != value {
			t.Errorf("header %s = %q, want %q", name, got, value)
		}
	}
	if !strings.HasPrefix(upload.Header.Get("Content-Type"), "multipart/form-data; boundary=") {
		t.Errorf("Content-Type = %q", upload.Header.Get("Content-Type"))
	}
}

func TestUploadOmitsEmptyContainerID(t *testing.T) {
	sink := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(sink)
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, func(config *Config) { config.ContainerID = "" })
	waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording([]byte("x"))))

	if values := sink.Uploads()[0].Header.Values(HeaderContainerID); len(values) != 0 {
		t.Errorf("container header sent without a container ID")
	}
}

func TestAPIKeyGating(t *testing.T) {
	tests := []struct {
		name      string
		agentless bool
		apiKey    string
		want      bool
	}{
		{name: "local agent with key", agentless: false, apiKey: "secret", want: false},
		{name: "local agent without key", agentless: false, apiKey: "", want: false},
		{name: "agentless with key", agentless: true, apiKey: "secret", want: true},
		{name: "agentless without key", agentless: true, apiKey: "", want: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sink := collector.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
			server := httptest.NewServer(sink)
			defer server.Close()

			uploader, _ := newTestUploader(t, server.URL, func(config *Config) {
				config.Agentless = test.agentless
				config.APIKey = test.apiKey
			})
			waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording([]byte("x"))))

			values := sink.Uploads()[0].Header.Values(HeaderAPIKey)
			present := len(values) != 0
			if present != test.want {
				t.Fatalf("API key header present = %v, want %v", present, test.want)
			}
			if present && (len(values) != 1 || values[0] != test.apiKey) {
				t.Errorf("API key header = %v, want [%s]", values, test.apiKey)
			}
		})
	}
}

// Scenario D: the queue is at its ceiling, so the upload is rejected
// without a request, released, and never completed.
func TestAdmissionRejection(t *testing.T) {
	var requests testutil.Counter
	unblock := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()
		io.Copy(io.Discard, r.Body)
		<-unblock
	}))
	defer server.Close()
	defer close(unblock)

	uploader, logs := newTestUploader(t, server.URL, func(config *Config) {
		config.MaxInFlight = 1
		config.MaxQueued = 1
	})

	first := newTrackedRecording([]byte("first"))
	second := newTrackedRecording([]byte("second"))
	var completions testutil.Counter

	firstHandle := uploader.Upload(context.Background(), recording.Continuous, first, WithCompletion(completions.Inc))
	waitFor(t, "first upload in flight", func() bool { return requests.Load() == 1 })
	secondHandle := uploader.Upload(context.Background(), recording.Continuous, second, WithCompletion(completions.Inc))
	waitFor(t, "second upload queued", func() bool { return uploader.Pending().Queued == 1 })

	rejected := newTrackedRecording([]byte("rejected"))
	var rejectedCompletions testutil.Counter
	handle := uploader.Upload(context.Background(), recording.Continuous, rejected, WithCompletion(rejectedCompletions.Inc))

	outcome, resolved := handle.Outcome()
	if !resolved {
		t.Fatal("rejected upload handle not resolved on return")
	}
	if outcome.Status != RejectedByAdmission || !errors.Is(outcome.Err, ErrQueueFull) {
		t.Errorf("outcome = %+v, want RejectedByAdmission/ErrQueueFull", outcome)
	}
	// Rejection releases the recording but skips the completion hook.
	requireOnce(t, rejected, &rejectedCompletions, 0)
	if rejected.streams.Load() != 0 {
		t.Errorf("rejected recording was streamed")
	}
	logs.contains(t, "profile upload rejected")

	if got := uploader.Pending(); got.Queued != 1 || got.InFlight != 1 {
		t.Errorf("Pending = %+v, want 1 queued 1 in flight", got)
	}

	unblock <- struct{}{}
	unblock <- struct{}{}
	waitOutcome(t, firstHandle)
	waitOutcome(t, secondHandle)
	if requests.Load() != 2 {
		t.Errorf("server saw %d requests, want 2", requests.Load())
	}
	if completions.Load() != 2 || first.releases.Load() != 1 || second.releases.Load() != 1 {
		t.Errorf("admitted uploads: completions %d, releases %d/%d", completions.Load(), first.releases.Load(), second.releases.Load())
	}
}

func TestSyncUpload(t *testing.T) {
	server := httptest.NewServer(collector.New(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, nil)
	data := newTrackedRecording([]byte("sync"))
	var completions testutil.Counter

	handle := uploader.Upload(context.Background(), recording.OneShot, data, WithSync(), WithCompletion(completions.Inc))

	outcome, resolved := handle.Outcome()
	if !resolved {
		t.Fatal("sync upload returned before resolving")
	}
	if outcome.Status != Success {
		t.Errorf("outcome = %+v, want Success", outcome)
	}
	requireOnce(t, data, &completions, 1)
}

func TestSyncUploadBypassesQueue(t *testing.T) {
	var requests atomic.Int64
	unblock := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if requests.Add(1) == 1 {
			<-unblock
		}
	}))
	defer server.Close()
	defer close(unblock)

	uploader, _ := newTestUploader(t, server.URL, func(config *Config) { config.MaxInFlight = 1 })

	blocked := uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording([]byte("async")))
	waitFor(t, "async upload in flight", func() bool { return requests.Load() == 1 })

	// The only async slot is taken; a sync upload still runs.
	outcome := waitOutcome(t, uploader.Upload(context.Background(), recording.OneShot, newTrackedRecording([]byte("sync")), WithSync()))
	if outcome.Status != Success {
		t.Errorf("sync outcome = %+v, want Success", outcome)
	}

	unblock <- struct{}{}
	waitOutcome(t, blocked)
}

func TestSyncUploadCallerCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, nil)
	data := newTrackedRecording([]byte("sync"))
	var completions testutil.Counter

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var handle *Handle
	go func() {
		defer wg.Done()
		handle = uploader.Upload(ctx, recording.OneShot, data, WithSync(), WithCompletion(completions.Inc))
	}()
	waitFor(t, "sync upload in flight", func() bool { return uploader.Pending().InFlight == 1 })
	cancel()
	wg.Wait()

	outcome := waitOutcome(t, handle)
	if outcome.Status != TransportFailure || !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("outcome = %+v, want TransportFailure/context.Canceled", outcome)
	}
	requireOnce(t, data, &completions, 1)
}

func TestAsyncUploadOutlivesCallerContext(t *testing.T) {
	arrived := make(chan struct{})
	proceed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		close(arrived)
		<-proceed
	}))
	defer server.Close()

	uploader, _ := newTestUploader(t, server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	handle := uploader.Upload(ctx, recording.Continuous, newTrackedRecording([]byte("x")))
	testutil.RequireClosed(t, arrived, testTimeout, "request never reached the server")
	cancel()
	close(proceed)

	if outcome := waitOutcome(t, handle); outcome.Status != Success {
		t.Errorf("outcome = %+v, want Success despite caller cancellation", outcome)
	}
}

func TestCompletionPanicContained(t *testing.T) {
	server := httptest.NewServer(collector.New(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer server.Close()

	uploader, logs := newTestUploader(t, server.URL, nil)
	data := newTrackedRecording([]byte("x"))
	outcome := waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, data,
		WithCompletion(func() { panic("hook failure") })))

	if outcome.Status != Success {
		t.Errorf("outcome = %+v, want Success", outcome)
	}
	if data.releases.Load() != 1 {
		t.Errorf("Release called %d times, want 1", data.releases.Load())
	}
	logs.contains(t, "upload completion hook panicked")
}

// Every admitted upload is released once and completed once regardless
// of how the collector answers.
func TestExactlyOnceUnderLoad(t *testing.T) {
	var requests testutil.Counter
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		requests.Inc()
		switch requests.Load() % 3 {
		case 0:
			w.WriteHeader(http.StatusOK)
		case 1:
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		default:
			http.Error(w, "bad", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	const uploads = 60
	uploader, _ := newTestUploader(t, server.URL, func(config *Config) {
		config.MaxInFlight = 4
		config.MaxQueued = uploads
		config.Compression = compression.Gzip
	})

	recordings := make([]*trackedRecording, uploads)
	completions := make([]testutil.Counter, uploads)
	handles := make([]*Handle, uploads)
	for i := range recordings {
		recordings[i] = newTrackedRecording(bytes.Repeat([]byte{byte(i)}, 1024*(i+1)))
		handles[i] = uploader.Upload(context.Background(), recording.Continuous, recordings[i], WithCompletion(completions[i].Inc))
	}

	statuses := map[Status]int{}
	for i, handle := range handles {
		outcome := waitOutcome(t, handle)
		statuses[outcome.Status]++
		requireOnce(t, recordings[i], &completions[i], 1)
	}
	if statuses[Success]+statuses[ServerError] != uploads {
		t.Errorf("outcomes = %v, want only Success and ServerError", statuses)
	}
	if requests.Load() != uploads {
		t.Errorf("server saw %d requests, want %d", requests.Load(), uploads)
	}
}

func TestUploadMetrics(t *testing.T) {
	server := httptest.NewServer(collector.New(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	uploader, _ := newTestUploader(t, server.URL, func(config *Config) { config.Metrics = collectors })

	waitOutcome(t, uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording(make([]byte, 4096))))
	uploader.Shutdown(context.Background())
	uploader.Upload(context.Background(), recording.Continuous, newTrackedRecording([]byte("late")))

	expected := `
# HELP bureau_profile_upload_recording_bytes_total Uncompressed recording bytes sent per classified upload; resent bodies count once.
# TYPE bureau_profile_upload_recording_bytes_total counter
bureau_profile_upload_recording_bytes_total{kind="continuous"} 4096
# HELP bureau_profile_upload_rejected_total Uploads rejected by admission control or after shutdown.
# TYPE bureau_profile_upload_rejected_total counter
bureau_profile_upload_rejected_total 1
# HELP bureau_profile_upload_uploads_total Completed upload attempts by recording kind and outcome.
# TYPE bureau_profile_upload_uploads_total counter
bureau_profile_upload_uploads_total{kind="continuous",outcome="success"} 1
`
	if err := promtestutil.GatherAndCompare(registry, strings.NewReader(expected),
		"bureau_profile_upload_recording_bytes_total",
		"bureau_profile_upload_rejected_total",
		"bureau_profile_upload_uploads_total",
	); err != nil {
		t.Error(err)
	}
}
