// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeRuntime writes a small shell script that emits the pattern-A
// startup line on a fixed, caller-chosen port and then sleeps, mimicking
// llama-server's behavior closely enough for the Supervisor's scheduling
// logic, which never talks to the port itself.
func writeFakeRuntime(t *testing.T, dir string, port int) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("fake-runtime-%d.sh", port))
	body := fmt.Sprintf("#!/bin/sh\necho \"main: server is listening on http://127.0.0.1:%d\"\ntrap 'exit 0' TERM\nsleep 30 &\nwait\n", port)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func writeConfig(t *testing.T, dir string, models map[string]int, cap int) string {
	t.Helper()
	modelPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("fake"), 0644))

	runtimesJSON := ""
	modelsJSON := ""
	i := 0
	for name, port := range models {
		script := writeFakeRuntime(t, dir, port)
		if i > 0 {
			runtimesJSON += ","
			modelsJSON += ","
		}
		runtimesJSON += fmt.Sprintf(`"%s-runtime": %q`, name, script)
		modelsJSON += fmt.Sprintf(`"%s": {"model_path": %q, "llama_cpp_runtime": "%s-runtime"}`, name, modelPath, name)
		i++
	}

	doc := fmt.Sprintf(`{
		"models": {%s},
		"llama-runtimes": {%s},
		"concurrentRunners": %d
	}`, modelsJSON, runtimesJSON, cap)

	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))
	return cfgPath
}

func newTestSupervisor(t *testing.T, models map[string]int, cap int) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, models, cap)
	view, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	return New(view, nil, nil)
}

func TestEnsure_StartsAndReturnsPort(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18712}, 2)
	port, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 18712, port)
	assert.True(t, s.IsRunning("m1"))

	p, ok := s.PortOf("m1")
	assert.True(t, ok)
	assert.Equal(t, 18712, p)
}

func TestEnsure_ReusesReadyWorker(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18713}, 2)
	port1, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	port2, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, port1, port2)
}

func TestEnsure_UnknownModelIsConfigurationError(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18714}, 2)
	_, err := s.Ensure("does-not-exist", 5*time.Second)
	require.Error(t, err)
	apiErr, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.KindConfiguration, apiErr.Kind)
}

func TestEnsure_ConcurrentCallsCoalesceOntoOneWorker(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18715}, 2)

	const n = 5
	var wg sync.WaitGroup
	ports := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ports[i], errs[i] = s.Ensure("m1", 5*time.Second)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 18715, ports[i])
	}
}

func TestMakeRoom_CapacityExceededAboveOne(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18720, "m2": 18721}, 2)
	_, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	_, err = s.Ensure("m2", 5*time.Second)
	require.NoError(t, err)

	s.mu.Lock()
	w := s.workers["m1"]
	s.mu.Unlock()
	require.NotNil(t, w)

	err = s.makeRoom(2, "m3")
	require.Error(t, err)
	apiErr, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.KindCapacity, apiErr.Kind)
}

func TestEnsure_SerialReuseAtCapOne(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18718, "m2": 18719}, 1)

	port1, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 18718, port1)

	port2, err := s.Ensure("m2", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 18719, port2)

	assert.False(t, s.IsRunning("m1"))
	assert.True(t, s.IsRunning("m2"))
}

func TestStopAll_WaitsForEveryWorkerToExit(t *testing.T) {
	s := newTestSupervisor(t, map[string]int{"m1": 18722, "m2": 18723}, 2)
	_, err := s.Ensure("m1", 5*time.Second)
	require.NoError(t, err)
	_, err = s.Ensure("m2", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, s.StopAll())
	assert.False(t, s.IsRunning("m1"))
	assert.False(t, s.IsRunning("m2"))
}

func TestStopAll_CancelsOutstandingStartupRequest(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("fake"), 0644))

	// A runtime that never prints a startup line and never exits on its
	// own, so the StartupRequest stays outstanding until StopAll cancels
	// it or the caller's deadline elapses.
	script := filepath.Join(dir, "hang.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ntrap 'exit 0' TERM\nsleep 30 &\nwait\n"), 0755))

	doc := fmt.Sprintf(`{
		"models": {"m1": {"model_path": %q, "llama_cpp_runtime": "r1"}},
		"llama-runtimes": {"r1": %q},
		"concurrentRunners": 1
	}`, modelPath, script)
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))

	view, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	s := New(view, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Ensure("m1", 10*time.Second)
		errCh <- err
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.StopAll())

	select {
	case err := <-errCh:
		require.Error(t, err)
		apiErr, ok := apierrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apierrors.KindStartupFailed, apiErr.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("Ensure did not return after StopAll")
	}
}

func TestEnsure_WorkerCrashBeforeReadyIsStartupFailed(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(modelPath, []byte("fake"), 0644))
	script := filepath.Join(dir, "crash.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"fatal: out of memory\"\nexit 1\n"), 0755))

	doc := fmt.Sprintf(`{
		"models": {"m1": {"model_path": %q, "llama_cpp_runtime": "r1"}},
		"llama-runtimes": {"r1": %q},
		"concurrentRunners": 1
	}`, modelPath, script)
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))

	view, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	s := New(view, nil, nil)

	_, err = s.Ensure("m1", 5*time.Second)
	require.Error(t, err)
	apiErr, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.KindStartupFailed, apiErr.Kind)
	assert.NotEmpty(t, apiErr.Ring)
	assert.False(t, s.IsRunning("m1"))
}

func TestEnsure_MissingModelPathIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	script := writeFakeRuntime(t, dir, 18799)
	doc := fmt.Sprintf(`{
		"models": {"m1": {"model_path": "/does/not/exist.gguf", "llama_cpp_runtime": "r1"}},
		"llama-runtimes": {"r1": %q},
		"concurrentRunners": 1
	}`, script)
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))

	view, err := config.Load(cfgPath, nil)
	require.NoError(t, err)
	s := New(view, nil, nil)

	_, err = s.Ensure("m1", 5*time.Second)
	require.Error(t, err)
	apiErr, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.KindConfiguration, apiErr.Kind)
}
