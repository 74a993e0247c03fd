// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/google/uuid"
)

var (
	patternAMarker = "main: server is listening on"
	patternARegex  = regexp.MustCompile(`http://127\.0\.0\.1:(\d+)`)

	patternBMarker = "HTTP server listening"
	patternBRegex  = regexp.MustCompile(`port="(\d+)"`)
)

const (
	softTermTimeout = 15 * time.Second
	hardKillTimeout = 5 * time.Second
	// softExitWindow is the "any exit under 10s after Stop()" grace period
	// from spec.md §4.1's termination protocol.
	softExitWindow = 10 * time.Second
)

// Worker wraps one child worker process: command assembly, stdout
// scanning, startup port detection, and graceful termination. It owns no
// knowledge of other workers or of concurrency caps — that is the
// Supervisor's job.
type Worker struct {
	ID        string
	ModelName string
	spec      config.ModelSpec
	runtime   config.RuntimeSpec
	logger    *slog.Logger

	cmd  *exec.Cmd
	ring *outputRing

	mu            sync.Mutex
	state         State
	port          int // -1 means absent
	stopRequested bool
	stopAt        time.Time
	exitCode      int

	readyOnce sync.Once
	readyCh   chan struct{}
	exitCh    chan struct{}
}

// New constructs a Worker for the given model, ready to Start. It does not
// spawn anything yet.
func New(spec config.ModelSpec, runtime config.RuntimeSpec, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Worker{
		ID:        id,
		ModelName: spec.Name,
		spec:      spec,
		runtime:   runtime,
		logger:    logger.With("model", spec.Name, "worker_id", id),
		ring:      newOutputRing(),
		state:     Starting,
		port:      -1,
		readyCh:   make(chan struct{}),
		exitCh:    make(chan struct{}),
	}
}

// Start spawns the worker subprocess and begins scanning its combined
// stdout/stderr for a startup line. It returns two signal channels: ready
// closes exactly once, the moment a port has been parsed; exit closes once
// the process has terminated and all of its output has been drained into
// the ring. Start itself only fails with a SpawnError if the binary cannot
// be executed at all.
func (w *Worker) Start() (ready <-chan struct{}, exit <-chan struct{}, err error) {
	args := BuildArgs(w.spec, w.runtime)
	cmd := exec.Command(w.runtime.Command, args...)

	pr, pw, perr := os.Pipe()
	if perr != nil {
		return nil, nil, apierrors.Spawn(w.runtime.Command, perr)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	w.logger.Info("starting worker", "command", w.runtime.Command, "args", args)
	if startErr := cmd.Start(); startErr != nil {
		pr.Close()
		pw.Close()
		return nil, nil, apierrors.Spawn(w.runtime.Command, startErr)
	}
	// The child inherited pw; our copy must close so pr sees EOF once the
	// child's own copy closes too (i.e. when the child process exits).
	pw.Close()
	w.cmd = cmd

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		w.readLoop(pr)
	}()
	go func() {
		waitErr := cmd.Wait()
		<-readDone
		w.finalizeExit(waitErr)
	}()

	return w.readyCh, w.exitCh, nil
}

func (w *Worker) readLoop(r *os.File) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		w.ring.push(line)
		w.scanForPort(line)
	}
}

func (w *Worker) scanForPort(line string) {
	var match []string
	switch {
	case strings.Contains(line, patternAMarker):
		match = patternARegex.FindStringSubmatch(line)
	case strings.Contains(line, patternBMarker):
		match = patternBRegex.FindStringSubmatch(line)
	default:
		return
	}
	if match == nil {
		return
	}
	port, err := strconv.Atoi(match[1])
	if err != nil {
		return
	}
	w.readyOnce.Do(func() {
		w.mu.Lock()
		w.port = port
		w.state = Ready
		w.mu.Unlock()
		w.logger.Info("worker ready", "port", port)
		close(w.readyCh)
	})
}

func (w *Worker) finalizeExit(waitErr error) {
	w.mu.Lock()
	elapsed := time.Duration(0)
	stopRequested := w.stopRequested
	if stopRequested {
		elapsed = time.Since(w.stopAt)
	}
	soft := isSoftExit(waitErr, stopRequested, elapsed)
	if soft {
		w.state = Stopped
	} else {
		w.state = Errored
	}
	if w.cmd.ProcessState != nil {
		w.exitCode = w.cmd.ProcessState.ExitCode()
	}
	exitCode := w.exitCode
	w.mu.Unlock()

	w.logger.Info("worker exited", "exit_code", exitCode, "soft", soft)
	close(w.exitCh)
}

func isSoftExit(waitErr error, stopRequested bool, elapsed time.Duration) bool {
	if waitErr == nil {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			if status.Signal() == syscall.SIGTERM || status.Signal() == syscall.SIGKILL {
				return true
			}
		}
	}
	return stopRequested && elapsed < softExitWindow
}

// Port returns the detected port and true, or (0, false) if the worker has
// not yet reached Ready.
func (w *Worker) Port() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port < 0 {
		return 0, false
	}
	return w.port, true
}

// OutputSnapshot returns up to the last N lines of combined stdout/stderr.
func (w *Worker) OutputSnapshot() []string {
	return w.ring.Snapshot()
}

// State returns the Worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsAlive reports whether the underlying process has not yet terminated.
func (w *Worker) IsAlive() bool {
	select {
	case <-w.exitCh:
		return false
	default:
		return true
	}
}

// Stop requests termination: SIGTERM, wait up to 15s, then SIGKILL, wait up
// to 5s. It is idempotent — a second call while the first is still waiting,
// or after the process has already exited, is a no-op beyond re-observing
// the same exit channel. Stop blocks until the process has actually exited
// (or the hard-kill timeout has elapsed).
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopRequested {
		w.mu.Unlock()
		<-w.exitCh
		return
	}
	w.stopRequested = true
	w.stopAt = time.Now()
	w.state = Stopping
	proc := w.cmd.Process
	w.mu.Unlock()

	if proc == nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)

	select {
	case <-w.exitCh:
		return
	case <-time.After(softTermTimeout):
	}

	_ = proc.Signal(syscall.SIGKILL)
	select {
	case <-w.exitCh:
	case <-time.After(hardKillTimeout):
	}
}

// ExitCode returns the process's exit code, valid only after exit has
// closed.
func (w *Worker) ExitCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitCode
}

// ExitSignal returns the channel that closes once the process has
// terminated and stdout has been fully drained.
func (w *Worker) ExitSignal() <-chan struct{} {
	return w.exitCh
}

// ReadySignal returns the channel that closes once a startup port has been
// parsed from the worker's output.
func (w *Worker) ReadySignal() <-chan struct{} {
	return w.readyCh
}
