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
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatReassembler implements the non-stream/stream combination of
// spec.md §4.3.1: the client asked for a non-streaming response but the
// worker streamed one anyway, so the gateway must consume the whole SSE
// stream and hand back one complete JSON object. It concatenates
// delta.content across every chunk and carries the last non-empty
// finish_reason through, which is an identity transform once the stream
// ends (the client sees exactly what it would have seen from a
// non-streaming worker).
type ChatReassembler struct {
	id, object, model string
	created           int64
	role              string
	content           strings.Builder
	finishReason      string
	usage             openai.Usage
}

// NewChatReassembler starts a new reassembly.
func NewChatReassembler() *ChatReassembler {
	return &ChatReassembler{role: "assistant"}
}

// Feed folds one stream chunk into the accumulator.
func (r *ChatReassembler) Feed(chunk openai.ChatCompletionStreamResponse) {
	if r.id == "" {
		r.id = chunk.ID
		r.object = "chat.completion"
		r.model = chunk.Model
		r.created = chunk.Created
	}
	if chunk.Usage != nil {
		r.usage = *chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return
	}
	c := chunk.Choices[0]
	if c.Delta.Role != "" {
		r.role = c.Delta.Role
	}
	r.content.WriteString(c.Delta.Content)
	if c.FinishReason != "" {
		r.finishReason = string(c.FinishReason)
	}
}

// Result returns the single complete response object once the stream has
// ended.
func (r *ChatReassembler) Result() openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      r.id,
		Object:  r.object,
		Created: r.created,
		Model:   r.model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: r.role, Content: r.content.String()},
			FinishReason: openai.FinishReason(r.finishReason),
		}},
		Usage: r.usage,
	}
}

// CompletionReassembler is ChatReassembler's counterpart for
// /v1/completions streams.
type CompletionReassembler struct {
	id, object, model string
	created           int64
	text              strings.Builder
	finishReason      string
	usage             openai.Usage
}

// NewCompletionReassembler starts a new reassembly.
func NewCompletionReassembler() *CompletionReassembler {
	return &CompletionReassembler{}
}

// Feed folds one stream chunk into the accumulator.
func (r *CompletionReassembler) Feed(chunk openai.CompletionResponse) {
	if r.id == "" {
		r.id = chunk.ID
		r.object = "text_completion"
		r.model = chunk.Model
		r.created = chunk.Created
	}
	r.usage = chunk.Usage
	if len(chunk.Choices) == 0 {
		return
	}
	c := chunk.Choices[0]
	r.text.WriteString(c.Text)
	if c.FinishReason != "" {
		r.finishReason = c.FinishReason
	}
}

// Result returns the single complete response object once the stream has
// ended.
func (r *CompletionReassembler) Result() openai.CompletionResponse {
	return openai.CompletionResponse{
		ID:      r.id,
		Object:  r.object,
		Created: r.created,
		Model:   r.model,
		Choices: []openai.CompletionChoice{{
			Index:        0,
			Text:         r.text.String(),
			FinishReason: r.finishReason,
		}},
		Usage: r.usage,
	}
}
