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
	"bytes"
	"encoding/json"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func nowRFC3339Nano() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ChatResponseToOllama translates a complete (non-streaming)
// ChatCompletionResponse into the single done:true object /api/chat
// returns (spec.md §4.3.2, "Response (non-streaming)").
func ChatResponseToOllama(model string, resp openai.ChatCompletionResponse) OllamaChatChunk {
	var msg OllamaMessage
	var reason string
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		msg = OllamaMessage{Role: c.Message.Role, Content: c.Message.Content}
		reason = string(c.FinishReason)
	}
	return OllamaChatChunk{
		Model:              model,
		CreatedAt:          nowRFC3339Nano(),
		Message:            msg,
		Done:               true,
		DoneReason:         reason,
		PromptEvalCount:    resp.Usage.PromptTokens,
		EvalCount:          resp.Usage.CompletionTokens,
	}
}

// GenerateResponseToOllama translates a complete (non-streaming)
// CompletionResponse into the single done:true object /api/generate
// returns.
func GenerateResponseToOllama(model string, resp openai.CompletionResponse) OllamaGenerateChunk {
	var text, reason string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Text
		reason = resp.Choices[0].FinishReason
	}
	return OllamaGenerateChunk{
		Model:           model,
		CreatedAt:       nowRFC3339Nano(),
		Response:        text,
		Done:            true,
		DoneReason:      reason,
		PromptEvalCount: resp.Usage.PromptTokens,
		EvalCount:       resp.Usage.CompletionTokens,
	}
}

// EmbeddingsResponseToOllama translates OpenAI's
// {data:[{embedding:[...]}], ...} shape into Ollama's
// {embedding:[...]} shape, taking the first (and for a single-prompt
// request, only) embedding returned.
func EmbeddingsResponseToOllama(resp openai.EmbeddingResponse) OllamaEmbeddingResponse {
	if len(resp.Data) == 0 {
		return OllamaEmbeddingResponse{}
	}
	return OllamaEmbeddingResponse{Embedding: resp.Data[0].Embedding}
}

// NormalizeOpenAIEmbeddingsResponse tolerates workers that answer
// /v1/embeddings with a bare JSON array of embedding objects instead of
// the full {data:[...], object:"list"} envelope, wrapping it when needed
// (spec.md §4.3.2: "the OpenAI gateway additionally tolerates workers
// that return an array of embedding objects and synthesizes the wrapping
// object with object:'list'"). Callers should run every /v1/embeddings
// response through this before decoding it as openai.EmbeddingResponse.
func NormalizeOpenAIEmbeddingsResponse(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	wrapped := struct {
		Object string            `json:"object"`
		Data   []json.RawMessage `json:"data"`
	}{Object: "list", Data: items}
	return json.Marshal(wrapped)
}
