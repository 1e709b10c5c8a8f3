// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-profiler/lib/clock"
	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/jfrsummary"
	"github.com/bureau-foundation/bureau-profiler/lib/metrics"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/tags"
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultFamily          = "java"
	DefaultMaxInFlight     = 10
	DefaultMaxQueued       = 20
	DefaultShutdownTimeout = 5 * time.Second
)

// HTTPClient is the shared connection pool uploads go through.
// *transport.Client implements it.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)

	// EvictAll closes every idle pooled connection.
	EvictAll()
}

// Summarizer logs a structural summary of a recording the collector
// rejected as too large. *jfrsummary.Summarizer implements it.
type Summarizer interface {
	Log(ctx context.Context, data recording.Data)
}

// Config configures an Uploader.
type Config struct {
	// URL is the collector endpoint. Required.
	URL string

	// Client sends requests. Required.
	Client HTTPClient

	// APIKey is sent only when Agentless is set.
	APIKey    string
	Agentless bool

	// Family names the runtime family of the recordings. Default:
	// DefaultFamily.
	Family string

	// Tags is serialized once into every event part.
	Tags tags.Set

	Compression compression.Kind

	// SummaryOn413 logs a summary of recordings rejected with 413.
	SummaryOn413 bool

	// Summarizer produces 413 summaries. Default: a
	// jfrsummary.Summarizer writing to Logger.
	Summarizer Summarizer

	// MaxInFlight is the ceiling on concurrently executing
	// asynchronous uploads. Default: DefaultMaxInFlight.
	MaxInFlight int

	// MaxQueued is the admission ceiling on uploads waiting for an
	// execution slot. Default: DefaultMaxQueued.
	MaxQueued int

	// ShutdownTimeout bounds how long Shutdown waits for tasks.
	// Default: DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// ContainerID is sent in the container header when non-empty.
	ContainerID string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Uploader ships recordings to a collector. Construct it once and
// share it; all methods are safe for concurrent use.
type Uploader struct {
	config     Config
	logger     *slog.Logger
	clock      clock.Clock
	io         *ioLogger
	dispatcher *dispatcher
	encoder    *encoder

	// lifetime is cancelled by Shutdown with cause ErrShutdown.
	lifetime context.Context
	cancel   context.CancelCauseFunc

	shutdownOnce sync.Once
}

// New validates config and returns a ready Uploader.
func New(config Config) (*Uploader, error) {
	if config.URL == "" {
		return nil, errors.New("uploader: URL is required")
	}
	if config.Client == nil {
		return nil, errors.New("uploader: Client is required")
	}
	if config.MaxInFlight < 0 || config.MaxQueued < 0 || config.ShutdownTimeout < 0 {
		return nil, errors.New("uploader: MaxInFlight, MaxQueued, and ShutdownTimeout must not be negative")
	}
	if config.Family == "" {
		config.Family = DefaultFamily
	}
	if config.MaxInFlight == 0 {
		config.MaxInFlight = DefaultMaxInFlight
	}
	if config.MaxQueued == 0 {
		config.MaxQueued = DefaultMaxQueued
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Summarizer == nil {
		config.Summarizer = &jfrsummary.Summarizer{Logger: config.Logger}
	}

	lifetime, cancel := context.WithCancelCause(context.Background())
	return &Uploader{
		config:     config,
		logger:     config.Logger,
		clock:      config.Clock,
		io:         newIOLogger(config.Logger, config.Clock),
		dispatcher: newDispatcher(config.MaxInFlight, config.Metrics),
		encoder:    newEncoder(config),
		lifetime:   lifetime,
		cancel:     cancel,
	}, nil
}

// Option adjusts a single Upload call.
type Option func(*uploadOptions)

type uploadOptions struct {
	sync       bool
	completion func()
}

// WithSync runs the upload on the calling goroutine. Upload returns
// once the outcome is classified, or earlier if ctx ends.
func WithSync() Option {
	return func(options *uploadOptions) { options.sync = true }
}

// WithCompletion registers a hook called exactly once after the
// recording is released, on every admitted path. It is not called for
// an upload rejected by admission. The hook may run on any goroutine
// and must not block.
func WithCompletion(hook func()) Option {
	return func(options *uploadOptions) { options.completion = hook }
}

// Upload takes ownership of data and sends it to the collector.
//
// Asynchronous uploads return immediately. They run under the
// uploader's lifetime, so cancelling ctx after Upload returns does not
// abort them; ctx contributes only its values. Synchronous uploads are
// bounded by both ctx and the uploader's lifetime.
func (u *Uploader) Upload(ctx context.Context, kind recording.Kind, data recording.Data, options ...Option) *Handle {
	var settings uploadOptions
	for _, option := range options {
		option(&settings)
	}

	if err := u.tryAdmit(); err != nil {
		return u.reject(kind, data, err)
	}
	if !u.dispatcher.begin() {
		return u.reject(kind, data, ErrShutdown)
	}

	handle := newHandle()
	if settings.sync {
		requestContext, stop := u.bindLifetime(ctx)
		defer stop()
		u.dispatcher.runSync(func() {
			u.execute(requestContext, kind, data, settings.completion, handle, nil)
		})
		return handle
	}

	requestContext, stop := u.bindLifetime(context.WithoutCancel(ctx))
	u.dispatcher.spawn(requestContext, func(acquireErr error) {
		defer stop()
		u.execute(requestContext, kind, data, settings.completion, handle, acquireErr)
	})
	return handle
}

// Pending returns the current queued and in-flight counts.
func (u *Uploader) Pending() Pending { return u.dispatcher.pending() }

// bindLifetime derives a context from parent that is also cancelled,
// with cause ErrShutdown, when the uploader shuts down.
func (u *Uploader) bindLifetime(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stopAfter := context.AfterFunc(u.lifetime, func() {
		cancel(context.Cause(u.lifetime))
	})
	return ctx, func() {
		stopAfter()
		cancel(context.Canceled)
	}
}

// execute performs one admitted upload: send, classify, release,
// complete, resolve. A non-nil acquireErr means the task was cancelled
// while queued and no request is sent.
func (u *Uploader) execute(ctx context.Context, kind recording.Kind, data recording.Data, completion func(), handle *Handle, acquireErr error) {
	started := u.clock.Now()

	var outcome Outcome
	if acquireErr != nil {
		outcome = u.classifyTransportError(ctx, acquireErr)
	} else {
		outcome = u.send(ctx, kind, data)
	}

	u.releaseRecording(data)
	if completion != nil {
		u.complete(completion)
	}
	u.config.Metrics.ObserveOutcome(kind.String(), outcome.Status.String(), u.clock.Now().Sub(started))
	handle.resolve(outcome)
}

// releaseRecording calls Release, containing a panic so that a faulty
// recording cannot take down the host process.
func (u *Uploader) releaseRecording(data recording.Data) {
	defer func() {
		if recovered := recover(); recovered != nil {
			u.logger.Error("recording release panicked", "panic", recovered)
		}
	}()
	data.Release()
}

func (u *Uploader) complete(completion func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			u.logger.Error("upload completion hook panicked", "panic", recovered)
		}
	}()
	completion()
}

// Shutdown stops admission, cancels queued and in-flight uploads, and
// waits up to ShutdownTimeout for their tasks to finish before closing
// pooled connections. Connections are closed even if tasks are still
// outstanding. If ctx ends during the wait, the interruption is logged
// and Shutdown proceeds to close connections.
//
// Shutdown is idempotent and never panics; later calls return
// immediately.
func (u *Uploader) Shutdown(ctx context.Context) {
	u.shutdownOnce.Do(func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				u.logger.Error("uploader shutdown panicked", "panic", recovered)
			}
		}()
		u.shutdown(ctx)
	})
}

func (u *Uploader) shutdown(ctx context.Context) {
	u.dispatcher.close()
	u.cancel(ErrShutdown)

	select {
	case <-u.dispatcher.drained():
		u.logger.Debug("uploader drained")
	case <-u.clock.After(u.config.ShutdownTimeout):
		pending := u.dispatcher.pending()
		u.logger.Warn("uploader drain timed out, closing connections",
			"timeout", u.config.ShutdownTimeout,
			"queued", pending.Queued,
			"in_flight", pending.InFlight,
		)
	case <-ctx.Done():
		u.logger.Warn("uploader drain interrupted, closing connections", "error", ctx.Err())
	}

	u.config.Client.EvictAll()
}
