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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	raw := []byte(`{
		"models": {
			"m1": {"model_path": "/models/m1.gguf", "llama_cpp_runtime": "default"}
		},
		"llama-runtimes": {
			"default": "/usr/local/bin/llama-server"
		}
	}`)

	snap, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeName, snap.DefaultRuntime)
	assert.Equal(t, DefaultConcurrencyCap, snap.ConcurrencyCap)
	assert.True(t, snap.OllamaEnabled)
	assert.True(t, snap.LMStudioEnabled)

	rt, ok := snap.Runtime("default")
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/llama-server", rt.Command)
	assert.True(t, rt.SupportsTools, "legacy string form promotes to supports_tools=true")
}

func TestParse_ObjectRuntimeForm(t *testing.T) {
	raw := []byte(`{
		"models": {},
		"llama-runtimes": {
			"noTools": {"runtime": "/bin/ik-llama-server", "supports_tools": false}
		}
	}`)
	snap, err := Parse(raw)
	require.NoError(t, err)
	rt, ok := snap.Runtime("noTools")
	require.True(t, ok)
	assert.False(t, rt.SupportsTools)
	assert.Equal(t, "/bin/ik-llama-server", rt.Command)
}

func TestParse_ProxiesAndConcurrency(t *testing.T) {
	raw := []byte(`{
		"models": {},
		"llama-runtimes": {},
		"concurrentRunners": 3,
		"proxies": {
			"ollama": {"enabled": false},
			"lmstudio": {"enabled": true, "api_key": "secret"}
		},
		"logging": {"prompt_logging_enabled": true}
	}`)
	snap, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.ConcurrencyCap)
	assert.False(t, snap.OllamaEnabled)
	assert.True(t, snap.LMStudioEnabled)
	assert.Equal(t, "secret", snap.LMStudioAPIKey)
	assert.True(t, snap.PromptLoggingEnabled)
}

func TestParse_RejectsMissingRuntimeCommand(t *testing.T) {
	raw := []byte(`{
		"models": {},
		"llama-runtimes": {"bad": {"supports_tools": true}}
	}`)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParse_RejectsNonPositiveConcurrency(t *testing.T) {
	raw := []byte(`{"models": {}, "llama-runtimes": {}, "concurrentRunners": -1}`)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)
}

func TestSnapshot_ModelSpecChanged(t *testing.T) {
	a, err := Parse([]byte(`{
		"models": {"m1": {"model_path": "/a.gguf", "llama_cpp_runtime": "r", "parameters": {"ctx_size": 4096}}},
		"llama-runtimes": {"r": "/bin/llama-server"}
	}`))
	require.NoError(t, err)

	b, err := Parse([]byte(`{
		"models": {"m1": {"model_path": "/a.gguf", "llama_cpp_runtime": "r", "parameters": {"ctx_size": 8192}}},
		"llama-runtimes": {"r": "/bin/llama-server"}
	}`))
	require.NoError(t, err)

	assert.True(t, a.modelSpecChanged("m1", b))

	c, err := Parse([]byte(`{
		"models": {"m1": {"model_path": "/a.gguf", "llama_cpp_runtime": "r", "parameters": {"ctx_size": 4096}}},
		"llama-runtimes": {"r": "/bin/llama-server"}
	}`))
	require.NoError(t, err)
	assert.False(t, a.modelSpecChanged("m1", c))
}
