// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apierrors defines the gateway's error taxonomy (spec.md §7) and
// the HTTP status/body mapping shared by both listeners.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the taxonomy's error classes.
type Kind string

const (
	KindConfiguration   Kind = "configuration_error"
	KindCapacity        Kind = "runner_startup_error"
	KindStartupFailed   Kind = "runner_startup_error"
	KindUpstream        Kind = "runner_communication_error"
	KindUpstreamTimeout Kind = "request_timeout_error"
	KindInvalidRequest  Kind = "invalid_request_error"
	KindAuth            Kind = "authentication_error"
	KindInternal        Kind = "internal_error"
)

// Error is the gateway's uniform error type. Every error returned across a
// package boundary inside this module should end up as one of these by the
// time it reaches the Gateway.
type Error struct {
	Kind    Kind
	Message string
	Status  int

	// Ring carries worker output-ring diagnostics for StartupFailed errors
	// (spec.md §8, scenario 4).
	Ring []string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

// Configuration reports a missing runtime, missing model path, or invalid
// concurrency value, surfaced before any process is spawned.
func Configuration(format string, args ...any) *Error {
	return newErr(KindConfiguration, http.StatusInternalServerError, format, args...)
}

// CapacityExceeded reports that the concurrency cap is saturated and serial
// reuse (cap==1) does not apply.
func CapacityExceeded(model string) *Error {
	return newErr(KindCapacity, http.StatusServiceUnavailable,
		"concurrency cap reached, cannot start worker for model %q", model)
}

// StartupFailed reports that a worker exited before becoming ready, or that
// the ready wait timed out. ring is the worker's diagnostic output buffer.
func StartupFailed(model string, cause error, ring []string) *Error {
	e := newErr(KindStartupFailed, http.StatusServiceUnavailable,
		"worker for model %q failed to start: %v", model, cause)
	e.cause = cause
	e.Ring = ring
	return e
}

// Shutdown reports that an outstanding StartupRequest was cancelled by
// Supervisor.StopAll while still pending.
func Shutdown(model string) *Error {
	return newErr(KindStartupFailed, http.StatusServiceUnavailable,
		"worker for model %q: supervisor is shutting down", model)
}

// Spawn reports that the worker binary could not be executed.
func Spawn(command string, cause error) *Error {
	e := newErr(KindStartupFailed, http.StatusServiceUnavailable,
		"failed to spawn worker binary %q: %v", command, cause)
	e.cause = cause
	return e
}

// Upstream reports a network/IO error talking to a worker.
func Upstream(cause error) *Error {
	e := newErr(KindUpstream, http.StatusServiceUnavailable, "upstream request failed: %v", cause)
	e.cause = cause
	return e
}

// UpstreamTimeout reports a read timeout talking to a worker.
func UpstreamTimeout(cause error) *Error {
	e := newErr(KindUpstreamTimeout, http.StatusGatewayTimeout, "upstream request timed out: %v", cause)
	e.cause = cause
	return e
}

// InvalidRequest reports a malformed client request (bad/missing JSON,
// missing model field, unknown model id).
func InvalidRequest(format string, args ...any) *Error {
	return newErr(KindInvalidRequest, http.StatusBadRequest, format, args...)
}

// Auth reports a missing or incorrect bearer token.
func Auth(format string, args ...any) *Error {
	return newErr(KindAuth, http.StatusUnauthorized, format, args...)
}

// Internal wraps an unexpected failure, meant to be logged with full
// context by the caller before being returned to the client.
func Internal(cause error) *Error {
	e := newErr(KindInternal, http.StatusInternalServerError, "internal error: %v", cause)
	e.cause = cause
	return e
}

// As extracts an *Error from err, following the standard errors.As contract.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
