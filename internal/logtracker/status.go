// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logtracker is a pure parser over a worker's stdout lines,
// turning llama.cpp's progress chatter into a StatusSnapshot for the
// UI/observability path (spec.md §4.5). It holds no state between calls
// and has no side effects: given the same ordered lines it always
// returns the same snapshot.
package logtracker

// Status is the recognized phase of a worker's current (or most recent)
// request.
type Status int

const (
	Idle Status = iota
	Starting
	ProcessingPrompt
	Generating
	Completed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case ProcessingPrompt:
		return "Processing prompt"
	case Generating:
		return "Generating response"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Snapshot is the latest status derived from a sequence of stdout lines.
// Fields not meaningful for the current Status are left at their zero
// value (nil for pointers).
type Snapshot struct {
	Status Status

	// Progress is a percentage in [0, 100], set only during ProcessingPrompt.
	Progress *float64

	// ProcessingSpeed and GenerationSpeed are tokens/second, set only
	// once a Completed snapshot has been emitted.
	ProcessingSpeed *float64
	GenerationSpeed *float64

	PromptTokens    *int
	GeneratedTokens *int
	TotalTokens     *int
}
