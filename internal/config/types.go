// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the gateway's JSON configuration file
// and hands out immutable snapshots to the rest of the system.
package config

// RuntimeSpec describes one llama.cpp-family worker binary.
//
// # Fields
//
//   - Name: the key this runtime is registered under in llama-runtimes.
//   - Command: absolute path (or PATH-resolvable name) of the worker binary.
//   - SupportsTools: whether this runtime's worker dialect accepts `tools` /
//     `tool_choice`. Defaults to true; the gateway strips both fields from
//     requests routed to a runtime with this set to false.
type RuntimeSpec struct {
	Name          string `json:"name" validate:"required"`
	Command       string `json:"command" validate:"required"`
	SupportsTools bool   `json:"supports_tools"`
}

// ModelSpec describes one configured model entry.
//
// Parameters maps a flag name (snake_case, as written in config) to a scalar
// or boolean value; see internal/worker for how this becomes argv.
type ModelSpec struct {
	Name       string         `json:"name" validate:"required"`
	ModelPath  string         `json:"model_path" validate:"required"`
	RuntimeRef string         `json:"llama_cpp_runtime" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// ModelID, when set, overrides the externally published id for this
	// model (otherwise derived by MetadataProvider from file metadata or
	// basename).
	ModelID string `json:"model_id,omitempty"`

	// HasTools is a per-model capability hint parsed from config; nil means
	// "unknown". The listing endpoints do not read it.
	HasTools *bool `json:"has_tools,omitempty"`
}

// ProxyConfig toggles and configures one gateway listener.
type ProxyConfig struct {
	Enabled bool    `json:"enabled"`
	APIKey  *string `json:"api_key,omitempty"`
}

// LoggingConfig holds the prompt-logging toggle. It is copied onto
// Snapshot.PromptLoggingEnabled; nothing in this module reads that field,
// and there is no prompt-log callback.
type LoggingConfig struct {
	PromptLoggingEnabled bool `json:"prompt_logging_enabled"`
}
