// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultRuntimeName is used when a document omits default_runtime.
const DefaultRuntimeName = "llama-server"

// DefaultConcurrencyCap is used when a document omits concurrentRunners.
const DefaultConcurrencyCap = 1

var validate = validator.New()

// rawModel mirrors one entry of the "models" map on disk.
type rawModel struct {
	ModelPath  string         `json:"model_path" validate:"required"`
	Runtime    string         `json:"llama_cpp_runtime" validate:"required"`
	ModelID    string         `json:"model_id,omitempty"`
	HasTools   *bool          `json:"has_tools,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// rawRuntime accepts either the legacy bare command string or the full
// object form; UnmarshalJSON tries the string form first and falls back
// to decoding the object form.
type rawRuntime struct {
	Runtime       string `json:"runtime"`
	SupportsTools *bool  `json:"supports_tools"`
	isLegacyForm  bool
}

func (r *rawRuntime) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		r.Runtime = asString
		r.isLegacyForm = true
		return nil
	}

	type alias rawRuntime
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("llama-runtimes entry is neither a string nor an object: %w", err)
	}
	*r = rawRuntime(a)
	return nil
}

// Document is the JSON shape of the on-disk configuration file, as
// specified in spec.md §6.
type Document struct {
	Models             map[string]rawModel   `json:"models"`
	LlamaRuntimes      map[string]rawRuntime  `json:"llama-runtimes"`
	DefaultRuntime     string                 `json:"default_runtime"`
	ConcurrentRunners  int                    `json:"concurrentRunners"`
	Proxies            map[string]ProxyConfig `json:"proxies"`
	Logging            LoggingConfig          `json:"logging"`
}

// Parse decodes and normalizes a Document into a Snapshot: legacy runtime
// string entries are promoted to {command, supports_tools: true}, defaults
// are applied, and validator-tagged fields are checked. Per-model
// cross-references (does RuntimeRef resolve? does ModelPath exist?) are
// deliberately NOT checked here; spec.md §4.2 assigns that check to the
// Supervisor, at Ensure-time, so it can be surfaced as a per-request
// ConfigurationError rather than rejecting the whole document.
func Parse(raw []byte) (*Snapshot, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", err)
	}
	return fromDocument(&doc)
}

func fromDocument(doc *Document) (*Snapshot, error) {
	snap := &Snapshot{
		Models:         make(map[string]ModelSpec, len(doc.Models)),
		Runtimes:       make(map[string]RuntimeSpec, len(doc.LlamaRuntimes)),
		DefaultRuntime: doc.DefaultRuntime,
		ConcurrencyCap: doc.ConcurrentRunners,
	}
	if snap.DefaultRuntime == "" {
		snap.DefaultRuntime = DefaultRuntimeName
	}
	if snap.ConcurrencyCap == 0 {
		snap.ConcurrencyCap = DefaultConcurrencyCap
	}
	if snap.ConcurrencyCap < 0 {
		return nil, fmt.Errorf("config: concurrentRunners must be positive, got %d", snap.ConcurrencyCap)
	}

	for name, r := range doc.LlamaRuntimes {
		supportsTools := true
		if r.SupportsTools != nil {
			supportsTools = *r.SupportsTools
		}
		rt := RuntimeSpec{
			Name:          name,
			Command:       r.Runtime,
			SupportsTools: supportsTools,
		}
		if err := validate.Struct(rt); err != nil {
			return nil, fmt.Errorf("config: runtime %q: %w", name, err)
		}
		snap.Runtimes[name] = rt
	}

	for name, m := range doc.Models {
		spec := ModelSpec{
			Name:       name,
			ModelPath:  m.ModelPath,
			RuntimeRef: m.Runtime,
			Parameters: m.Parameters,
			ModelID:    m.ModelID,
			HasTools:   m.HasTools,
		}
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("config: model %q: %w", name, err)
		}
		snap.Models[name] = spec
	}

	snap.OllamaEnabled = true
	snap.LMStudioEnabled = true
	if p, ok := doc.Proxies["ollama"]; ok {
		snap.OllamaEnabled = p.Enabled
	}
	if p, ok := doc.Proxies["lmstudio"]; ok {
		snap.LMStudioEnabled = p.Enabled
		if p.APIKey != nil && *p.APIKey != "" {
			snap.LMStudioAPIKey = *p.APIKey
		}
	}
	snap.PromptLoggingEnabled = doc.Logging.PromptLoggingEnabled

	return snap, nil
}
