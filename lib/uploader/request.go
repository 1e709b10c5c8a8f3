// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/version"
)

// Wire names of the upload protocol.
const (
	EventPartName      = "event"
	EventFileName      = "event.json"
	RecordingPartName  = "main"
	RecordingFileName  = "main.jfr"
	EventFormatVersion = "4"

	HeaderAPIKey        = "DD-API-KEY"
	HeaderContainerID   = "Datadog-Container-ID"
	HeaderMetaLang      = "Datadog-Meta-Lang"
	HeaderOrigin        = "DD-EVP-ORIGIN"
	HeaderOriginVersion = "DD-EVP-ORIGIN-VERSION"

	// Origin identifies this library to the collector.
	Origin = version.Library
)

// Event is the JSON metadata part of an upload.
type Event struct {
	Attachments []string `json:"attachments"`
	Tags        string   `json:"tags_profiler"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Family      string   `json:"family"`
	Version     string   `json:"version"`
}

// encoder builds upload requests. Everything that does not depend on
// the recording is computed once.
type encoder struct {
	url         string
	family      string
	tags        string
	compression compression.Kind
	header      http.Header
}

func newEncoder(config Config) *encoder {
	header := http.Header{}
	header.Set(HeaderMetaLang, config.Family)
	header.Set(HeaderOrigin, Origin)
	header.Set(HeaderOriginVersion, version.Short())
	if config.Agentless && config.APIKey != "" {
		header.Set(HeaderAPIKey, config.APIKey)
	}
	if config.ContainerID != "" {
		header.Set(HeaderContainerID, config.ContainerID)
	}
	return &encoder{
		url:         config.URL,
		family:      config.Family,
		tags:        config.Tags.String(),
		compression: config.Compression,
		header:      header,
	}
}

// event renders the metadata part for data.
func (e *encoder) event(data recording.Data) ([]byte, error) {
	return json.Marshal(Event{
		Attachments: []string{RecordingFileName},
		Tags:        e.tags,
		Start:       formatTimestamp(data.Start()),
		End:         formatTimestamp(data.End()),
		Family:      e.family,
		Version:     EventFormatVersion,
	})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// newRequest builds a chunked POST whose body streams data. The
// returned body must be finished once the response has been handled,
// before data is released.
func (e *encoder) newRequest(ctx context.Context, data recording.Data) (*http.Request, *body, error) {
	event, err := e.event(data)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding event: %w", err)
	}

	boundary := multipart.NewWriter(nil).Boundary()
	source := &body{
		boundary:    boundary,
		event:       event,
		compression: e.compression,
		data:        data,
	}

	initial, err := source.open()
	if err != nil {
		return nil, nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, initial)
	if err != nil {
		source.finish()
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	request.Header = e.header.Clone()
	request.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	request.ContentLength = -1
	request.TransferEncoding = []string{"chunked"}
	request.GetBody = source.open
	return request, source, nil
}

func partHeader(name, filename, contentType string) textproto.MIMEHeader {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
	header.Set("Content-Type", contentType)
	return header
}
