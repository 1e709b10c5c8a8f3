// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies a streaming codec.
type Kind uint8

const (
	// None sends the recording as-is.
	None Kind = iota

	// LZ4 is the LZ4 frame format. It is the default: recordings are
	// produced continuously and lz4 keeps the CPU cost on the host
	// process lowest.
	LZ4

	// Gzip is RFC 1952 gzip at the default level.
	Gzip

	// Zstd is zstd at the default level.
	Zstd
)

// zstdWindowSize bounds the zstd encoder's history buffer.
const zstdWindowSize = 1 << 20

// String returns the configuration name of the codec.
func (kind Kind) String() string {
	switch kind {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

// Parse resolves a configured codec name. "on" and the empty string
// select the default codec; "off" is an alias for "none".
func Parse(name string) (Kind, error) {
	switch name {
	case "", "on":
		return LZ4, nil
	case "none", "off":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (valid: on, off, none, lz4, gzip, zstd)", name)
	}
}

// NewWriter returns a writer that compresses into destination. The
// caller must Close the returned writer to flush the final frame;
// closing it does not close destination. The returned writer accepts
// any interleaving of Write calls, including the ones io.Copy makes
// for a reader that implements WriterTo.
func (kind Kind) NewWriter(destination io.Writer) (io.WriteCloser, error) {
	switch kind {
	case None:
		return nopWriteCloser{destination}, nil

	case LZ4:
		writer := lz4.NewWriter(destination)
		if err := writer.Apply(
			lz4.BlockSizeOption(lz4.Block64Kb),
			lz4.ConcurrencyOption(1),
		); err != nil {
			return nil, fmt.Errorf("configuring lz4 writer: %w", err)
		}
		return lz4WriteCloser{writer}, nil

	case Gzip:
		writer, err := gzip.NewWriterLevel(destination, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		return writer, nil

	case Zstd:
		writer, err := zstd.NewWriter(destination,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
			zstd.WithWindowSize(zstdWindowSize),
		)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return writer, nil

	default:
		return nil, fmt.Errorf("unsupported compression: %v", kind)
	}
}

// NewReader returns a reader that decompresses source according to
// kind. Closing the returned reader does not close source.
func (kind Kind) NewReader(source io.Reader) (io.ReadCloser, error) {
	switch kind {
	case None:
		return io.NopCloser(source), nil

	case LZ4:
		return io.NopCloser(lz4.NewReader(source)), nil

	case Gzip:
		reader, err := gzip.NewReader(source)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return reader, nil

	case Zstd:
		decoder, err := zstd.NewReader(source, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return decoder.IOReadCloser(), nil

	default:
		return nil, fmt.Errorf("unsupported compression: %v", kind)
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Sniff identifies the codec of a compressed stream by its magic
// number. It returns the detected kind and a reader that replays the
// peeked bytes. Streams with no recognized magic are reported as None.
func Sniff(source io.Reader) (Kind, io.Reader, error) {
	buffered := bufio.NewReader(source)
	head, err := buffered.Peek(len(zstdMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return None, buffered, fmt.Errorf("peeking stream header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd, buffered, nil
	case bytes.HasPrefix(head, lz4Magic):
		return LZ4, buffered, nil
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip, buffered, nil
	default:
		return None, buffered, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// lz4WriteCloser exposes only Write and Close. The lz4 writer's
// ReadFrom is valid only before the first Write, and io.Copy from a
// multi-part reader mixes the two.
type lz4WriteCloser struct {
	writer *lz4.Writer
}

func (w lz4WriteCloser) Write(data []byte) (int, error) { return w.writer.Write(data) }

func (w lz4WriteCloser) Close() error { return w.writer.Close() }
