// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"encoding/json"
	"testing"

	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_IsStableAndSixteenHexChars(t *testing.T) {
	spec := config.ModelSpec{Name: "alpha", ModelPath: "/models/alpha.gguf", RuntimeRef: "llama-cpp"}

	a, err := Fingerprint(spec)
	require.NoError(t, err)
	b, err := Fingerprint(spec)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFingerprint_DiffersAcrossModels(t *testing.T) {
	a, err := Fingerprint(config.ModelSpec{Name: "alpha", ModelPath: "/a", RuntimeRef: "r"})
	require.NoError(t, err)
	b, err := Fingerprint(config.ModelSpec{Name: "beta", ModelPath: "/b", RuntimeRef: "r"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestInjectSystemFingerprint_AddsWhenMissing(t *testing.T) {
	raw := []byte(`{"id":"chatcmpl-1","model":"llama-3"}`)
	out, err := InjectSystemFingerprint(raw, "abcd1234abcd1234")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "abcd1234abcd1234", decoded["system_fingerprint"])
	assert.Equal(t, "chatcmpl-1", decoded["id"])
}

func TestInjectSystemFingerprint_LeavesExistingValueAlone(t *testing.T) {
	raw := []byte(`{"id":"chatcmpl-1","system_fingerprint":"already-set"}`)
	out, err := InjectSystemFingerprint(raw, "zzzzzzzzzzzzzzzz")
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}
