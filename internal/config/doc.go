// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config resolves the process-wide configuration from environment
// variables using the APP_ prefix (dots become underscores), logging the
// source of every resolved value. Loading is a one-shot operation at
// startup; there is no hot-reload.
package config
