// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logtracker

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	newPromptRegex = regexp.MustCompile(`n_prompt_tokens = (\d+)`)
	progressRegex  = regexp.MustCompile(`n_tokens = (\d+), progress = ([\d.]+)`)
	promptDoneRegex = regexp.MustCompile(`n_tokens = (\d+)`)

	// promptEvalRegex and evalRegex are deliberately separate (spec.md
	// §4.5, the "separated-facts" variant): llama.cpp prints the prompt
	// and generation timing facts on two distinct lines, not one
	// combined line. A single "prompt eval time ... eval time ..."
	// pattern over-matches and was not used here. apply's switch routes
	// a "prompt eval time" line to onPromptEvalTiming before onEvalTiming
	// ever sees it, so evalRegex never needs to exclude that prefix.
	promptEvalRegex = regexp.MustCompile(`prompt eval time\s*=\s*([\d.]+) ms / (\d+) tokens`)
	evalRegex       = regexp.MustCompile(`eval time\s*=\s*([\d.]+) ms / (\d+) tokens`)
)

type timingFact struct {
	ms     float64
	tokens int
}

// state is the parser's working accumulator while folding over an
// ordered line slice; it is never exposed outside Parse.
type state struct {
	status          Status
	progress        *float64
	promptTokens    *int
	generatedTokens *int

	bufferedPromptEval *timingFact
	bufferedEval       *timingFact

	processingSpeed *float64
	generationSpeed *float64
	totalTokens     *int
}

// Parse folds over lines in order and returns the resulting Snapshot. It
// is the package's only entry point.
func Parse(lines []string) Snapshot {
	s := &state{status: Idle}
	for _, line := range lines {
		s.apply(line)
	}
	return s.snapshot()
}

func (s *state) apply(line string) {
	switch {
	case strings.Contains(line, "new prompt"):
		s.onNewPrompt(line)
	case strings.Contains(line, "prompt processing progress"):
		s.onProgress(line)
	case strings.Contains(line, "prompt done"):
		s.onPromptDone(line)
	case strings.Contains(line, "prompt eval time"):
		s.onPromptEvalTiming(line)
	case strings.Contains(line, "eval time"):
		s.onEvalTiming(line)
	case strings.Contains(line, "all slots are idle"):
		s.onIdle()
	case strings.Contains(line, "processing task"):
		s.onProcessingTask()
	}
}

func (s *state) resetTiming() {
	s.bufferedPromptEval = nil
	s.bufferedEval = nil
	s.processingSpeed = nil
	s.generationSpeed = nil
	s.totalTokens = nil
}

func (s *state) onNewPrompt(line string) {
	m := newPromptRegex.FindStringSubmatch(line)
	s.resetTiming()
	s.progress = nil
	s.generatedTokens = nil
	s.status = Starting
	if m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			s.promptTokens = &n
		}
	}
}

func (s *state) onProgress(line string) {
	m := progressRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}
	n, errN := strconv.Atoi(m[1])
	pct, errP := strconv.ParseFloat(m[2], 64)
	if errN != nil || errP != nil {
		return
	}
	s.status = ProcessingPrompt
	pct *= 100
	s.progress = &pct
	s.promptTokens = &n
}

func (s *state) onPromptDone(line string) {
	m := promptDoneRegex.FindStringSubmatch(line)
	s.status = Generating
	s.progress = nil
	if m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			s.promptTokens = &n
		}
	}
}

func (s *state) onPromptEvalTiming(line string) {
	m := promptEvalRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}
	ms, errMs := strconv.ParseFloat(m[1], 64)
	tokens, errTok := strconv.Atoi(m[2])
	if errMs != nil || errTok != nil {
		return
	}
	s.bufferedPromptEval = &timingFact{ms: ms, tokens: tokens}
	s.tryCompleteFromTiming()
}

func (s *state) onEvalTiming(line string) {
	m := evalRegex.FindStringSubmatch(line)
	if m == nil {
		return
	}
	ms, errMs := strconv.ParseFloat(m[1], 64)
	tokens, errTok := strconv.Atoi(m[2])
	if errMs != nil || errTok != nil {
		return
	}
	s.bufferedEval = &timingFact{ms: ms, tokens: tokens}
	s.tryCompleteFromTiming()
}

// tryCompleteFromTiming emits Completed the moment both timing facts
// have been seen for the current task (spec.md §4.5: "buffered; once
// both present, emit Completed with proc and gen speeds").
func (s *state) tryCompleteFromTiming() {
	if s.bufferedPromptEval == nil || s.bufferedEval == nil {
		return
	}
	s.status = Completed

	proc := speedTokensPerSecond(s.bufferedPromptEval.tokens, s.bufferedPromptEval.ms)
	gen := speedTokensPerSecond(s.bufferedEval.tokens, s.bufferedEval.ms)
	s.processingSpeed = &proc
	s.generationSpeed = &gen

	promptTok := s.bufferedPromptEval.tokens
	genTok := s.bufferedEval.tokens
	total := promptTok + genTok
	s.promptTokens = &promptTok
	s.generatedTokens = &genTok
	s.totalTokens = &total
}

func speedTokensPerSecond(tokens int, ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return float64(tokens) * 1000 / ms
}

func (s *state) onIdle() {
	s.status = Idle
	s.resetTiming()
	s.progress = nil
	s.promptTokens = nil
	s.generatedTokens = nil
}

// onProcessingTask handles the transition back to Starting for a new
// task arriving after the previous one finished or the worker went
// idle (spec.md §4.5: "processing task while current is Completed or
// Idle -> Starting"), and clears timing buffers so the next Completed
// reflects only the newer task (the "per-task reset" rule).
func (s *state) onProcessingTask() {
	if s.status != Completed && s.status != Idle {
		return
	}
	s.status = Starting
	s.resetTiming()
	s.progress = nil
	s.promptTokens = nil
	s.generatedTokens = nil
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		Status:          s.status,
		Progress:        s.progress,
		ProcessingSpeed: s.processingSpeed,
		GenerationSpeed: s.generationSpeed,
		PromptTokens:    s.promptTokens,
		GeneratedTokens: s.generatedTokens,
		TotalTokens:     s.totalTokens,
	}
}
