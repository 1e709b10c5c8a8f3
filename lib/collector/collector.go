// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/netutil"
)

// Event mirrors the JSON metadata part of an upload.
type Event struct {
	Attachments []string `json:"attachments"`
	Tags        string   `json:"tags_profiler"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Family      string   `json:"family"`
	Version     string   `json:"version"`
}

// Upload is one decoded upload.
type Upload struct {
	Header           http.Header
	TransferEncoding []string
	Event            Event

	// EventContentType and RecordingFileName are taken from the part
	// headers.
	EventContentType  string
	RecordingFileName string

	Compression    compression.Kind
	CompressedSize int64
	Recording      []byte
}

// Collector records uploads in memory. The zero value is not usable;
// call New.
type Collector struct {
	logger *slog.Logger
	status atomic.Int32

	// body is written with forced non-2xx statuses.
	body atomic.Pointer[string]

	mu      sync.Mutex
	uploads []Upload
	failed  int
}

// New returns a Collector answering 200.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	collector := &Collector{logger: logger}
	collector.status.Store(http.StatusOK)
	return collector
}

// SetStatus forces the response code of later uploads. Uploads are
// still decoded and recorded. A non-2xx response carries body.
func (c *Collector) SetStatus(code int, body string) {
	c.status.Store(int32(code))
	c.body.Store(&body)
}

// Uploads returns a copy of the uploads received so far.
func (c *Collector) Uploads() []Upload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Upload(nil), c.uploads...)
}

// Count returns the number of uploads received, including ones that
// failed to decode.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.uploads) + c.failed
}

// ServeHTTP decodes an upload and answers with the configured status.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upload, err := Decode(r)
	if err != nil {
		c.mu.Lock()
		c.failed++
		c.mu.Unlock()
		if netutil.IsExpectedCloseError(err) {
			// The uploader abandoned the request mid-body.
			c.logger.Debug("upload ended early", "error", err)
		} else {
			c.logger.Warn("rejecting malformed upload", "error", err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.uploads = append(c.uploads, upload)
	c.mu.Unlock()
	c.logger.Info("upload received",
		"family", upload.Event.Family,
		"tags", upload.Event.Tags,
		"compression", upload.Compression,
		"compressed_bytes", upload.CompressedSize,
		"recording_bytes", len(upload.Recording),
	)

	code := int(c.status.Load())
	if code >= 200 && code < 300 {
		w.WriteHeader(code)
		return
	}
	body := ""
	if pointer := c.body.Load(); pointer != nil {
		body = *pointer
	}
	http.Error(w, body, code)
}

// Decode reads a multipart upload from r. Both the event and main
// parts are required.
func Decode(r *http.Request) (Upload, error) {
	upload := Upload{
		Header:           r.Header.Clone(),
		TransferEncoding: r.TransferEncoding,
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return Upload{}, fmt.Errorf("reading multipart body: %w", err)
	}

	var sawEvent, sawRecording bool
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Upload{}, fmt.Errorf("reading part: %w", err)
		}

		switch part.FormName() {
		case "event":
			upload.EventContentType = part.Header.Get("Content-Type")
			if err := json.NewDecoder(part).Decode(&upload.Event); err != nil {
				return Upload{}, fmt.Errorf("decoding event: %w", err)
			}
			sawEvent = true
		case "main":
			upload.RecordingFileName = part.FileName()
			if err := decodeRecording(part, &upload); err != nil {
				return Upload{}, err
			}
			sawRecording = true
		default:
			return Upload{}, fmt.Errorf("unexpected part %q", part.FormName())
		}
		part.Close()
	}

	var missing []string
	if !sawEvent {
		missing = append(missing, "event")
	}
	if !sawRecording {
		missing = append(missing, "main")
	}
	if len(missing) > 0 {
		return Upload{}, fmt.Errorf("missing parts: %s", strings.Join(missing, ", "))
	}
	return upload, nil
}

func decodeRecording(part io.Reader, upload *Upload) error {
	counted := &countingReader{reader: part}
	kind, source, err := compression.Sniff(counted)
	if err != nil {
		return fmt.Errorf("sniffing recording compression: %w", err)
	}
	decompressor, err := kind.NewReader(source)
	if err != nil {
		return fmt.Errorf("opening %s recording: %w", kind, err)
	}
	defer decompressor.Close()

	recording, err := io.ReadAll(decompressor)
	if err != nil {
		return fmt.Errorf("decompressing %s recording: %w", kind, err)
	}
	// Drain whatever follows the compressed stream so the size
	// covers the whole part.
	if _, err := io.Copy(io.Discard, counted); err != nil {
		return fmt.Errorf("reading recording part: %w", err)
	}

	upload.Compression = kind
	upload.CompressedSize = counted.count
	upload.Recording = recording
	return nil
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (counter *countingReader) Read(data []byte) (int, error) {
	n, err := counter.reader.Read(data)
	counter.count += int64(n)
	return n, err
}
