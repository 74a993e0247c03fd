// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge is the FormatBridge: pure translation between the client
// dialect (Ollama) and the worker dialect (OpenAI), both request and
// response, streaming and non-streaming, including timing synthesis
// (spec.md §4.3.2). Nothing in this package performs I/O; it operates on
// already-decoded request bodies and already-parsed stream events, which
// keeps it fully unit-testable without a running worker.
package bridge

// OllamaMessage is one chat turn in the Ollama dialect. Ollama's message
// shape is a strict subset of OpenAI's (no name/tool_call_id), so the
// translation is a straight field copy in both directions.
type OllamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaGenerateRequest is the body of POST /api/generate.
type OllamaGenerateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Stream    *bool          `json:"stream,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// WantsStream reports the client's streaming preference; Ollama defaults
// to true when the field is omitted, unlike OpenAI's false default.
func (r OllamaGenerateRequest) WantsStream() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// OllamaChatRequest is the body of POST /api/chat.
type OllamaChatRequest struct {
	Model   string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Stream  *bool           `json:"stream,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
	Tools   []any           `json:"tools,omitempty"`
}

// WantsStream reports the client's streaming preference (see
// OllamaGenerateRequest.WantsStream).
func (r OllamaChatRequest) WantsStream() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// OllamaEmbeddingsRequest is the body of POST /api/embeddings.
type OllamaEmbeddingsRequest struct {
	Model  string         `json:"model"`
	Prompt string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

// OllamaGenerateChunk is one newline-delimited JSON object streamed back
// from a translated /api/generate call, or the single object returned for
// a non-streaming call.
type OllamaGenerateChunk struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`

	DoneReason         string `json:"done_reason,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

// OllamaChatChunk is one newline-delimited JSON object streamed back from
// a translated /api/chat call, or the single object returned for a
// non-streaming call.
type OllamaChatChunk struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   OllamaMessage `json:"message"`
	Done      bool          `json:"done"`

	DoneReason         string `json:"done_reason,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

// OllamaEmbeddingResponse is the body returned for a translated
// /api/embeddings call.
type OllamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// openAIEmbeddingsRequest is the request sent on to the worker for a
// translated /v1/embeddings call. It is kept local rather than built on
// go-openai's EmbeddingRequest because that type's Model field is a
// closed string-enum (openai.EmbeddingModel) meant for OpenAI's own
// hosted model names; a llama.cpp-family worker's model name does not fit
// that enum, and constructing the request by hand is one field wide.
type openAIEmbeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}
