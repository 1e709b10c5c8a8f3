// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the profile uploader configuration.
//
// Configuration is loaded from a single file specified by:
//   - the BUREAU_PROFILER_CONFIG environment variable, or
//   - the --config flag passed to the binary
//
// There are no fallbacks or automatic discovery. The file is YAML; a
// file ending in .json or .jsonc is accepted too, with comments and
// trailing commas stripped before parsing.
//
// String values may reference environment variables as ${VAR} or
// ${VAR:-default}. This is how secrets such as the API key are kept out
// of the file itself:
//
//	api_key: ${PROFILER_API_KEY}
package config
