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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestView_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"models": {}, "llama-runtimes": {}}`)

	v, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrencyCap, v.Current().ConcurrencyCap)
}

func TestView_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"models": {}, "llama-runtimes": {}, "concurrentRunners": 1}`)

	v, err := Load(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Watch(ctx))

	writeConfig(t, path, `{"models": {}, "llama-runtimes": {}, "concurrentRunners": 4}`)

	require.Eventually(t, func() bool {
		return v.Current().ConcurrencyCap == 4
	}, 2*time.Second, 20*time.Millisecond)
}

func TestView_WatchKeepsPreviousSnapshotOnBadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"models": {}, "llama-runtimes": {}, "concurrentRunners": 2}`)

	v, err := Load(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Watch(ctx))

	writeConfig(t, path, `not json at all`)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 2, v.Current().ConcurrencyCap)
}

func TestView_OnModelsChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{
		"models": {"m1": {"model_path": "/a.gguf", "llama_cpp_runtime": "r"}},
		"llama-runtimes": {"r": "/bin/llama-server"}
	}`)

	v, err := Load(path, nil)
	require.NoError(t, err)

	changedCh := make(chan []ChangedModel, 1)
	v.OnModelsChanged(func(c []ChangedModel) { changedCh <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Watch(ctx))

	writeConfig(t, path, `{
		"models": {"m1": {"model_path": "/b.gguf", "llama_cpp_runtime": "r"}},
		"llama-runtimes": {"r": "/bin/llama-server"}
	}`)

	select {
	case changed := <-changedCh:
		require.Len(t, changed, 1)
		assert.Equal(t, "m1", changed[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}
