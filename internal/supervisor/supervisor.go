// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor owns the set of live Workers, enforces the
// concurrency cap, serializes start/stop transitions, and exposes
// Ensure/IsRunning/PortOf/StopAll (spec.md §4.2).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/AleutianAI/llama-gateway/internal/metrics"
	"github.com/AleutianAI/llama-gateway/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("llama-gateway.supervisor")

// defaultEnsureDeadline is the default argument to Ensure (spec.md §4.2).
const defaultEnsureDeadline = 240 * time.Second

// perWorkerStopTimeout bounds how long the serialized stop-before-start
// path at concurrency_cap==1 will wait for a previous Worker to exit
// (spec.md §5, "Suspension/blocking points").
const perWorkerStopTimeout = 30 * time.Second

// Supervisor is the sole owner of the live Worker set. Gateway handlers
// never construct or hold a Worker directly; they call Ensure and use the
// returned port.
type Supervisor struct {
	mu      sync.Mutex
	workers map[string]*worker.Worker

	group singleflight.Group

	cfg    *config.View
	logger *slog.Logger
	metrics *metrics.Metrics

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New constructs a Supervisor bound to the given ConfigView. The
// Supervisor reads the View's current Snapshot on every Ensure call, so
// configuration reloads take effect for the next startup without
// restarting the Supervisor itself. m may be nil, in which case worker
// lifecycle events are not recorded.
func New(cfg *config.View, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		workers:    make(map[string]*worker.Worker),
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Ensure returns the port of a Ready Worker for model_name, starting one
// if necessary. Concurrent callers for the same model coalesce onto one
// StartupRequest and observe the same outcome (spec.md §4.2, rule 1; §5
// ordering guarantees). deadline <= 0 uses the default of 240s.
func (s *Supervisor) Ensure(modelName string, deadline time.Duration) (int, error) {
	if deadline <= 0 {
		deadline = defaultEnsureDeadline
	}

	if port, ok := s.readyPort(modelName); ok {
		return port, nil
	}

	v, err, _ := s.group.Do(modelName, func() (any, error) {
		return s.ensureFlight(modelName, deadline)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Supervisor) readyPort(modelName string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[modelName]
	if !ok || w.State() != worker.Ready {
		return 0, false
	}
	return w.Port()
}

// ensureFlight runs exactly once per outstanding StartupRequest for a
// given model name; singleflight fans its result out to every joined
// caller.
func (s *Supervisor) ensureFlight(modelName string, deadline time.Duration) (result any, err error) {
	_, span := tracer.Start(context.Background(), "Supervisor.Ensure")
	span.SetAttributes(attribute.String("llama_gateway.model", modelName))
	defer span.End()

	start := time.Now()
	outcome := "ready"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if s.metrics != nil {
			s.metrics.RecordEnsure(modelName, outcome, time.Since(start).Seconds())
		}
	}()

	// Re-check: another flight may have completed between the fast-path
	// miss above and this goroutine actually running (spec.md §4.2 rule 2).
	if port, ok := s.readyPort(modelName); ok {
		return port, nil
	}

	snap := s.cfg.Current()
	spec, ok := snap.Model(modelName)
	if !ok {
		outcome = "configuration_error"
		return nil, apierrors.Configuration("unknown model %q", modelName)
	}
	runtime, ok := snap.Runtime(spec.RuntimeRef)
	if !ok || strings.TrimSpace(runtime.Command) == "" {
		outcome = "configuration_error"
		return nil, apierrors.Configuration("model %q: runtime %q has no command", modelName, spec.RuntimeRef)
	}
	if _, statErr := os.Stat(spec.ModelPath); statErr != nil {
		outcome = "configuration_error"
		return nil, apierrors.Configuration("model %q: model_path %q does not exist", modelName, spec.ModelPath)
	}

	if err := s.makeRoom(snap.ConcurrencyCap, modelName); err != nil {
		outcome = "capacity_exceeded"
		return nil, err
	}

	w := worker.New(spec, runtime, s.logger)
	s.mu.Lock()
	s.workers[modelName] = w
	s.mu.Unlock()

	ready, exit, startErr := w.Start()
	if startErr != nil {
		s.removeIfCurrent(modelName, w)
		outcome = "spawn_failed"
		return nil, apierrors.StartupFailed(modelName, startErr, nil)
	}
	go s.monitorExit(modelName, w)

	select {
	case <-ready:
		port, _ := w.Port()
		if s.metrics != nil {
			s.metrics.SetWorkerRunning(modelName, true)
		}
		return port, nil
	case <-exit:
		outcome = "exited_before_ready"
		return nil, apierrors.StartupFailed(modelName,
			fmt.Errorf("exited before ready (exit code %d)", w.ExitCode()), w.OutputSnapshot())
	case <-time.After(deadline):
		outcome = "timeout"
		return nil, apierrors.StartupFailed(modelName,
			fmt.Errorf("timed out waiting for ready after %s", deadline), w.OutputSnapshot())
	case <-s.shutdownCh:
		outcome = "shutdown"
		return nil, apierrors.Shutdown(modelName)
	}
}

// makeRoom enforces the concurrency cap (spec.md §4.2 rule 3). At cap==1
// it stops every live Worker and waits for their exit before returning;
// above 1 it fails fast with CapacityExceeded.
func (s *Supervisor) makeRoom(cap int, modelName string) error {
	s.mu.Lock()
	live := s.liveWorkersLocked()
	if len(live) < cap {
		s.mu.Unlock()
		return nil
	}
	if cap != 1 {
		s.mu.Unlock()
		return apierrors.CapacityExceeded(modelName)
	}
	s.mu.Unlock()

	return stopAndWait(live, perWorkerStopTimeout)
}

// liveWorkersLocked returns every Worker in {Starting, Ready}. Caller must
// hold s.mu.
func (s *Supervisor) liveWorkersLocked() []*worker.Worker {
	var live []*worker.Worker
	for _, w := range s.workers {
		switch w.State() {
		case worker.Starting, worker.Ready:
			live = append(live, w)
		}
	}
	return live
}

// stopAndWait issues Stop concurrently to every Worker and waits for all
// of them, bounded by timeout per Worker (spec.md §4.2: "StopAll()
// proceeds in phases: ask every Worker to stop, then await their exits
// concurrently").
func stopAndWait(workers []*worker.Worker, timeout time.Duration) error {
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				w.Stop()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-time.After(timeout):
				return apierrors.StartupFailed(w.ModelName,
					fmt.Errorf("stop timed out after %s", timeout), w.OutputSnapshot())
			}
		})
	}
	return g.Wait()
}

// monitorExit removes a Worker from the live set the moment it exits,
// releasing its capacity slot (spec.md §4.2: "State transitions
// {Stopped|Errored} delete the Worker from the set").
func (s *Supervisor) monitorExit(modelName string, w *worker.Worker) {
	<-w.ExitSignal()
	s.removeIfCurrent(modelName, w)
}

func (s *Supervisor) removeIfCurrent(modelName string, w *worker.Worker) {
	s.mu.Lock()
	removed := false
	if cur, ok := s.workers[modelName]; ok && cur == w {
		delete(s.workers, modelName)
		removed = true
	}
	s.mu.Unlock()
	if removed && s.metrics != nil {
		s.metrics.SetWorkerRunning(modelName, false)
	}
}

// IsRunning reports whether model_name currently has a Ready Worker.
func (s *Supervisor) IsRunning(modelName string) bool {
	_, ok := s.readyPort(modelName)
	return ok
}

// PortOf returns the port of a Ready Worker for model_name, or (0, false).
func (s *Supervisor) PortOf(modelName string) (int, bool) {
	return s.readyPort(modelName)
}

// StopAll cancels every outstanding StartupRequest with a shutdown error,
// then stops every live Worker and waits for all of them to exit.
func (s *Supervisor) StopAll() error {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })

	s.mu.Lock()
	all := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		all = append(all, w)
	}
	s.mu.Unlock()

	err := stopAndWait(all, perWorkerStopTimeout)

	s.mu.Lock()
	for name, w := range s.workers {
		if !w.IsAlive() {
			delete(s.workers, name)
		}
	}
	s.mu.Unlock()

	return err
}

// StopModel stops a single named model's Worker if one is running, and
// waits for its exit. Used to react to a ConfigView reload that changed
// the model's spec (spec.md §6: "the affected Worker is stopped and will
// be restarted on next Ensure").
func (s *Supervisor) StopModel(modelName string) {
	s.mu.Lock()
	w, ok := s.workers[modelName]
	s.mu.Unlock()
	if !ok {
		return
	}
	w.Stop()
}

// OnConfigReload is suitable for config.View.OnModelsChanged: it stops the
// Worker for every changed model so the next Ensure call picks up the new
// ModelSpec.
func (s *Supervisor) OnConfigReload(changed []config.ChangedModel) {
	for _, c := range changed {
		s.logger.Info("model spec changed on reload, stopping worker", "model", c.Name)
		s.StopModel(c.Name)
	}
}
