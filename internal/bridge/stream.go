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
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// streamPhase is the deferred-done state machine's phase (spec.md
// §9: "Empty -> Buffered(chunk) -> Buffered(next, emit previous with
// done:false) -> Finalized(emit buffered with done:true + timings)").
type streamPhase int

const (
	phaseEmpty streamPhase = iota
	phaseBuffered
	phaseFinalized
)

// ChatBridge holds the per-stream state needed to translate one worker
// /v1/chat/completions SSE stream into Ollama /api/chat NDJSON, applying
// the deferred-done rule: a translated chunk is held until the next
// arrives (so it can be emitted as done:false) or the stream ends (so it
// can be flushed ahead of the synthesized done:true object).
//
// A ChatBridge is not safe for concurrent use; one is created per
// in-flight stream.
type ChatBridge struct {
	model string
	start time.Time
	phase streamPhase

	held *OllamaChatChunk

	haveContent    bool
	firstContentAt time.Time
	lastContentAt  time.Time
	evalCount      int
}

// NewChatBridge starts a new deferred-done translation. The bridge takes
// its start time at construction, and total_duration is measured from
// that moment.
func NewChatBridge(model string) *ChatBridge {
	return &ChatBridge{model: model, start: time.Now()}
}

func chatDelta(chunk openai.ChatCompletionStreamResponse) (content, finishReason string) {
	if len(chunk.Choices) == 0 {
		return "", ""
	}
	c := chunk.Choices[0]
	return c.Delta.Content, string(c.FinishReason)
}

func (b *ChatBridge) noteContent(content string, at time.Time) {
	if content == "" {
		return
	}
	if !b.haveContent {
		b.firstContentAt = at
		b.haveContent = true
	}
	b.lastContentAt = at
	b.evalCount++
}

// Feed consumes one parsed OpenAI chat stream chunk and returns zero or
// more ready-to-write Ollama chunks. Calls after the bridge has finalized
// are ignored.
func (b *ChatBridge) Feed(chunk openai.ChatCompletionStreamResponse) []OllamaChatChunk {
	if b.phase == phaseFinalized {
		return nil
	}
	content, finishReason := chatDelta(chunk)
	if finishReason != "" {
		return b.finalize(content, finishReason)
	}

	now := time.Now()
	b.noteContent(content, now)

	var out []OllamaChatChunk
	if b.phase == phaseBuffered {
		out = append(out, *b.held)
	}
	b.held = &OllamaChatChunk{
		Model:     b.model,
		CreatedAt: nowRFC3339Nano(),
		Message:   OllamaMessage{Role: "assistant", Content: content},
		Done:      false,
	}
	b.phase = phaseBuffered
	return out
}

// Finalize flushes any held chunk and emits the terminal done:true object
// using "stop" as the done reason. It is the caller's responsibility to
// call this once the upstream stream ends without having already seen an
// explicit finish_reason chunk; calling it more than once, or after Feed
// already finalized the bridge, is a no-op.
func (b *ChatBridge) Finalize() []OllamaChatChunk {
	if b.phase == phaseFinalized {
		return nil
	}
	return b.finalize("", "stop")
}

func (b *ChatBridge) finalize(trailingContent, reason string) []OllamaChatChunk {
	var out []OllamaChatChunk
	if b.phase == phaseBuffered {
		out = append(out, *b.held)
		b.held = nil
	}
	if trailingContent != "" {
		now := time.Now()
		b.noteContent(trailingContent, now)
		out = append(out, OllamaChatChunk{
			Model:     b.model,
			CreatedAt: nowRFC3339Nano(),
			Message:   OllamaMessage{Role: "assistant", Content: trailingContent},
			Done:      false,
		})
	}

	var evalDuration time.Duration
	if b.haveContent {
		evalDuration = b.lastContentAt.Sub(b.firstContentAt)
	}
	total := time.Since(b.start)

	out = append(out, OllamaChatChunk{
		Model:              b.model,
		CreatedAt:          nowRFC3339Nano(),
		Message:            OllamaMessage{Role: "assistant", Content: ""},
		Done:               true,
		DoneReason:         reason,
		TotalDuration:      total.Nanoseconds(),
		EvalCount:          b.evalCount,
		EvalDuration:       evalDuration.Nanoseconds(),
	})
	b.phase = phaseFinalized
	return out
}

// GenerateBridge is ChatBridge's counterpart for /api/generate <->
// /v1/completions: same deferred-done rule, a bare response string
// instead of a chat message.
type GenerateBridge struct {
	model string
	start time.Time
	phase streamPhase

	held *OllamaGenerateChunk

	haveContent    bool
	firstContentAt time.Time
	lastContentAt  time.Time
	evalCount      int
}

// NewGenerateBridge starts a new deferred-done translation for
// /api/generate (see NewChatBridge).
func NewGenerateBridge(model string) *GenerateBridge {
	return &GenerateBridge{model: model, start: time.Now()}
}

func completionDelta(chunk openai.CompletionResponse) (text, finishReason string) {
	if len(chunk.Choices) == 0 {
		return "", ""
	}
	c := chunk.Choices[0]
	return c.Text, c.FinishReason
}

func (b *GenerateBridge) noteContent(content string, at time.Time) {
	if content == "" {
		return
	}
	if !b.haveContent {
		b.firstContentAt = at
		b.haveContent = true
	}
	b.lastContentAt = at
	b.evalCount++
}

// Feed consumes one parsed OpenAI completion stream chunk and returns
// zero or more ready-to-write Ollama chunks.
func (b *GenerateBridge) Feed(chunk openai.CompletionResponse) []OllamaGenerateChunk {
	if b.phase == phaseFinalized {
		return nil
	}
	text, finishReason := completionDelta(chunk)
	if finishReason != "" {
		return b.finalize(text, finishReason)
	}

	now := time.Now()
	b.noteContent(text, now)

	var out []OllamaGenerateChunk
	if b.phase == phaseBuffered {
		out = append(out, *b.held)
	}
	b.held = &OllamaGenerateChunk{
		Model:     b.model,
		CreatedAt: nowRFC3339Nano(),
		Response:  text,
		Done:      false,
	}
	b.phase = phaseBuffered
	return out
}

// Finalize flushes any held chunk and emits the terminal done:true
// object (see ChatBridge.Finalize).
func (b *GenerateBridge) Finalize() []OllamaGenerateChunk {
	if b.phase == phaseFinalized {
		return nil
	}
	return b.finalize("", "stop")
}

func (b *GenerateBridge) finalize(trailingText, reason string) []OllamaGenerateChunk {
	var out []OllamaGenerateChunk
	if b.phase == phaseBuffered {
		out = append(out, *b.held)
		b.held = nil
	}
	if trailingText != "" {
		now := time.Now()
		b.noteContent(trailingText, now)
		out = append(out, OllamaGenerateChunk{
			Model:     b.model,
			CreatedAt: nowRFC3339Nano(),
			Response:  trailingText,
			Done:      false,
		})
	}

	var evalDuration time.Duration
	if b.haveContent {
		evalDuration = b.lastContentAt.Sub(b.firstContentAt)
	}
	total := time.Since(b.start)

	out = append(out, OllamaGenerateChunk{
		Model:         b.model,
		CreatedAt:     nowRFC3339Nano(),
		Response:      "",
		Done:          true,
		DoneReason:    reason,
		TotalDuration: total.Nanoseconds(),
		EvalCount:     b.evalCount,
		EvalDuration:  evalDuration.Nanoseconds(),
	})
	b.phase = phaseFinalized
	return out
}
