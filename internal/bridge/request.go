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
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// optionFloat and optionInt pull a sampling parameter out of an Ollama
// "options" map, tolerating both JSON-decoded float64 and already-typed
// values (the map may have been built by hand in a test).
func optionFloat(opts map[string]any, key string) (float32, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	}
	return 0, false
}

func optionInt(opts map[string]any, key string) (int, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// applyChatSamplingOptions copies the sampling options Ollama and OpenAI
// share onto an OpenAI chat request: temperature, top_p, stop, and
// num_predict as max_tokens (only when positive). Every other option
// (e.g. seed, mirostat) is dropped; FormatBridge only bridges
// the shared subset, matching spec.md §4.3.2's "options (sampling
// parameters) as documented for each dialect".
func applyChatSamplingOptions(req *openai.ChatCompletionRequest, opts map[string]any) {
	if t, ok := optionFloat(opts, "temperature"); ok {
		req.Temperature = t
	}
	if p, ok := optionFloat(opts, "top_p"); ok {
		req.TopP = p
	}
	if n, ok := optionInt(opts, "num_predict"); ok && n > 0 {
		req.MaxTokens = n
	}
	if stop, ok := opts["stop"]; ok {
		req.Stop = toStringSlice(stop)
	}
}

func applyCompletionSamplingOptions(req *openai.CompletionRequest, opts map[string]any) {
	if t, ok := optionFloat(opts, "temperature"); ok {
		req.Temperature = t
	}
	if p, ok := optionFloat(opts, "top_p"); ok {
		req.TopP = p
	}
	if n, ok := optionInt(opts, "num_predict"); ok && n > 0 {
		req.MaxTokens = n
	}
	if stop, ok := opts["stop"]; ok {
		req.Stop = toStringSlice(stop)
	}
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case string:
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// ChatRequestToOpenAI translates a POST /api/chat body into the
// ChatCompletionRequest sent on to the worker's /v1/chat/completions.
func ChatRequestToOpenAI(r OllamaChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	req := openai.ChatCompletionRequest{
		Model:    r.Model,
		Messages: messages,
		Stream:   r.WantsStream(),
	}
	applyChatSamplingOptions(&req, r.Options)
	return req
}

// GenerateRequestToOpenAI translates a POST /api/generate body into the
// CompletionRequest sent on to the worker's /v1/completions.
func GenerateRequestToOpenAI(r OllamaGenerateRequest) openai.CompletionRequest {
	req := openai.CompletionRequest{
		Model:  r.Model,
		Prompt: r.Prompt,
		Stream: r.WantsStream(),
	}
	applyCompletionSamplingOptions(&req, r.Options)
	return req
}

// EmbeddingsRequestToOpenAI translates a POST /api/embeddings body into
// the JSON sent on to the worker's /v1/embeddings. It returns an already
// marshaled body because the request struct is package-private (see
// openAIEmbeddingsRequest).
func EmbeddingsRequestToOpenAI(r OllamaEmbeddingsRequest) ([]byte, error) {
	return json.Marshal(openAIEmbeddingsRequest{Model: r.Model, Input: r.Prompt})
}

// StripTools removes the tools/tool_choice fields from an already-decoded
// chat request body, in place, for runtimes with supports_tools=false
// (spec.md §4.3.1 scenario 6). It operates on the raw map rather than a
// typed request so it works identically for both dialects' JSON bodies.
func StripTools(body map[string]any) {
	delete(body, "tools")
	delete(body, "tool_choice")
}
