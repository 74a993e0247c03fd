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

// Snapshot is an immutable view of the loaded configuration. A new Snapshot
// is built on every load/reload; nothing about an existing Snapshot ever
// mutates, so callers holding one are never surprised by a concurrent
// reload (spec.md §3, Ownership).
type Snapshot struct {
	Models         map[string]ModelSpec
	Runtimes       map[string]RuntimeSpec
	DefaultRuntime string
	ConcurrencyCap int

	OllamaEnabled   bool
	LMStudioEnabled bool
	LMStudioAPIKey  string

	PromptLoggingEnabled bool
}

// Model looks up a model by its internal name.
func (s *Snapshot) Model(name string) (ModelSpec, bool) {
	m, ok := s.Models[name]
	return m, ok
}

// Runtime looks up a runtime by name, falling back to DefaultRuntime when
// name is empty. Parsed configs always name one (llama_cpp_runtime is a
// required field), so the fallback only applies to specs built in code.
func (s *Snapshot) Runtime(name string) (RuntimeSpec, bool) {
	if name == "" {
		name = s.DefaultRuntime
	}
	r, ok := s.Runtimes[name]
	return r, ok
}

// modelSpecChanged reports whether the named model's ModelSpec differs
// between s and other (including being present in only one of them), for
// deciding whether a running Worker must be restarted after a reload
// (spec.md §6).
func (s *Snapshot) modelSpecChanged(name string, other *Snapshot) bool {
	a, aok := s.Models[name]
	b, bok := other.Models[name]
	if aok != bok {
		return true
	}
	if !aok {
		return false
	}
	if a.ModelPath != b.ModelPath || a.RuntimeRef != b.RuntimeRef {
		return true
	}
	if len(a.Parameters) != len(b.Parameters) {
		return true
	}
	for k, v := range a.Parameters {
		if bv, ok := b.Parameters[k]; !ok || bv != v {
			return true
		}
	}
	return false
}
