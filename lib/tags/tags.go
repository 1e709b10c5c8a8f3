// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tags holds the process-lifetime tag set attached to every
// profile upload.
package tags

import (
	"sort"
	"strings"
)

// Well-known tag keys injected by the uploader.
const (
	ProfilerVersion = "profiler_version"
	ProcessID       = "process_id"
)

// Set is an immutable mapping of tag keys to values. The wire form is
// computed once, at construction, and returned verbatim by String.
type Set struct {
	values     map[string]string
	serialized string
}

// New builds a Set from values. Entries with an empty value are
// dropped. The map is copied; later changes to it are not observed.
func New(values map[string]string) Set {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		if key == "" || value == "" {
			continue
		}
		copied[key] = value
	}
	return Set{values: copied, serialized: serialize(copied)}
}

// With returns a new Set containing the receiver's entries plus extra.
// Entries in extra replace existing keys.
func (set Set) With(extra map[string]string) Set {
	merged := make(map[string]string, len(set.values)+len(extra))
	for key, value := range set.values {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return New(merged)
}

// Get returns the value for key.
func (set Set) Get(key string) (string, bool) {
	value, ok := set.values[key]
	return value, ok
}

// Len returns the number of tags.
func (set Set) Len() int { return len(set.values) }

// String returns the comma-joined "key:value" form, keys sorted.
func (set Set) String() string { return set.serialized }

func serialize(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for index, key := range keys {
		if index > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteByte(':')
		builder.WriteString(values[key])
	}
	return builder.String()
}
