// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/bridge"
	openai "github.com/sashabaranov/go-openai"

	"github.com/gin-gonic/gin"
)

// handleOllamaChat serves POST /api/chat, bridging to the worker's
// /v1/chat/completions (spec.md §4.3.2).
func (g *Gateway) handleOllamaChat(c *gin.Context) {
	snap := g.cfg.Current()
	prep, err := g.prepare(c, snap, resolveOllamaModel)
	if err != nil {
		writeError(c, err)
		return
	}

	var ollamaReq bridge.OllamaChatRequest
	if err := decodeInto(prep.body, &ollamaReq); err != nil {
		writeError(c, err)
		return
	}
	ollamaReq.Model = prep.modelName
	clientWantsStream := ollamaReq.WantsStream()

	openaiReq := bridge.ChatRequestToOpenAI(ollamaReq)
	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		writeError(c, err)
		return
	}

	accept := "application/json"
	if clientWantsStream {
		accept = "text/event-stream"
	}
	req, err := newUpstreamRequest(c.Request.Context(), http.MethodPost, upstreamURL(prep.port, "/v1/chat/completions"), reqBody, accept, c.Request.Header)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := doUpstream(g.client, req)
	if err != nil {
		writeError(c, err)
		return
	}
	defer drainAndClose(resp.Body)

	workerStreamed := isEventStream(resp)

	switch {
	case clientWantsStream && workerStreamed:
		g.streamOllamaChat(c, resp.Body, prep.modelName)
	case clientWantsStream && !workerStreamed:
		g.wrapOllamaChatAsSingleChunk(c, resp.Body, prep.modelName)
	case !clientWantsStream && workerStreamed:
		g.reassembleOllamaChat(c, resp.Body, prep.modelName)
	default:
		g.passthroughOllamaChat(c, resp.Body, prep.modelName)
	}
}

func (g *Gateway) streamOllamaChat(c *gin.Context, body io.Reader, model string) {
	nw, err := newNDJSONWriter(c.Writer)
	if err != nil {
		g.logger.Error("ndjson writer unavailable", "error", err)
		return
	}

	b := bridge.NewChatBridge(model)
	emit := func(chunks []bridge.OllamaChatChunk) error {
		for _, ch := range chunks {
			line, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			if err := nw.writeLine(line); err != nil {
				return err
			}
		}
		return nil
	}

	scanErr := scanSSEEvents(body, func(data []byte) error {
		if string(data) == "[DONE]" {
			return nil
		}
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil
		}
		return emit(b.Feed(chunk))
	})
	if scanErr != nil {
		g.logger.Warn("upstream stream ended with error", "error", scanErr)
		nw.writeLine(streamErrorPayload(scanErr))
		return
	}
	emit(b.Finalize())
}

func (g *Gateway) wrapOllamaChatAsSingleChunk(c *gin.Context, body io.Reader, model string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(c, err)
		return
	}
	chunk := bridge.ChatResponseToOllama(model, resp)
	line, err := json.Marshal(chunk)
	if err != nil {
		writeError(c, err)
		return
	}
	nw, err := newNDJSONWriter(c.Writer)
	if err != nil {
		g.logger.Error("ndjson writer unavailable", "error", err)
		return
	}
	nw.writeLine(line)
}

func (g *Gateway) reassembleOllamaChat(c *gin.Context, body io.Reader, model string) {
	r := bridge.NewChatReassembler()
	err := scanSSEEvents(body, func(data []byte) error {
		if string(data) == "[DONE]" {
			return nil
		}
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil
		}
		r.Feed(chunk)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	chunk := bridge.ChatResponseToOllama(model, r.Result())
	c.JSON(http.StatusOK, chunk)
}

func (g *Gateway) passthroughOllamaChat(c *gin.Context, body io.Reader, model string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bridge.ChatResponseToOllama(model, resp))
}

// handleOllamaGenerate serves POST /api/generate, bridging to the
// worker's /v1/completions.
func (g *Gateway) handleOllamaGenerate(c *gin.Context) {
	snap := g.cfg.Current()
	prep, err := g.prepare(c, snap, resolveOllamaModel)
	if err != nil {
		writeError(c, err)
		return
	}

	var ollamaReq bridge.OllamaGenerateRequest
	if err := decodeInto(prep.body, &ollamaReq); err != nil {
		writeError(c, err)
		return
	}
	ollamaReq.Model = prep.modelName
	clientWantsStream := ollamaReq.WantsStream()

	openaiReq := bridge.GenerateRequestToOpenAI(ollamaReq)
	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		writeError(c, err)
		return
	}

	accept := "application/json"
	if clientWantsStream {
		accept = "text/event-stream"
	}
	req, err := newUpstreamRequest(c.Request.Context(), http.MethodPost, upstreamURL(prep.port, "/v1/completions"), reqBody, accept, c.Request.Header)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := doUpstream(g.client, req)
	if err != nil {
		writeError(c, err)
		return
	}
	defer drainAndClose(resp.Body)

	workerStreamed := isEventStream(resp)

	switch {
	case clientWantsStream && workerStreamed:
		g.streamOllamaGenerate(c, resp.Body, prep.modelName)
	case clientWantsStream && !workerStreamed:
		g.wrapOllamaGenerateAsSingleChunk(c, resp.Body, prep.modelName)
	case !clientWantsStream && workerStreamed:
		g.reassembleOllamaGenerate(c, resp.Body, prep.modelName)
	default:
		g.passthroughOllamaGenerate(c, resp.Body, prep.modelName)
	}
}

func (g *Gateway) streamOllamaGenerate(c *gin.Context, body io.Reader, model string) {
	nw, err := newNDJSONWriter(c.Writer)
	if err != nil {
		g.logger.Error("ndjson writer unavailable", "error", err)
		return
	}

	b := bridge.NewGenerateBridge(model)
	emit := func(chunks []bridge.OllamaGenerateChunk) error {
		for _, ch := range chunks {
			line, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			if err := nw.writeLine(line); err != nil {
				return err
			}
		}
		return nil
	}

	scanErr := scanSSEEvents(body, func(data []byte) error {
		if string(data) == "[DONE]" {
			return nil
		}
		var chunk openai.CompletionResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil
		}
		return emit(b.Feed(chunk))
	})
	if scanErr != nil {
		g.logger.Warn("upstream stream ended with error", "error", scanErr)
		nw.writeLine(streamErrorPayload(scanErr))
		return
	}
	emit(b.Finalize())
}

func (g *Gateway) wrapOllamaGenerateAsSingleChunk(c *gin.Context, body io.Reader, model string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	var resp openai.CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(c, err)
		return
	}
	chunk := bridge.GenerateResponseToOllama(model, resp)
	line, err := json.Marshal(chunk)
	if err != nil {
		writeError(c, err)
		return
	}
	nw, err := newNDJSONWriter(c.Writer)
	if err != nil {
		g.logger.Error("ndjson writer unavailable", "error", err)
		return
	}
	nw.writeLine(line)
}

func (g *Gateway) reassembleOllamaGenerate(c *gin.Context, body io.Reader, model string) {
	r := bridge.NewCompletionReassembler()
	err := scanSSEEvents(body, func(data []byte) error {
		if string(data) == "[DONE]" {
			return nil
		}
		var chunk openai.CompletionResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil
		}
		r.Feed(chunk)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	chunk := bridge.GenerateResponseToOllama(model, r.Result())
	c.JSON(http.StatusOK, chunk)
}

func (g *Gateway) passthroughOllamaGenerate(c *gin.Context, body io.Reader, model string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	var resp openai.CompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bridge.GenerateResponseToOllama(model, resp))
}

// handleOllamaEmbeddings serves POST /api/embeddings, bridging to the
// worker's /v1/embeddings.
func (g *Gateway) handleOllamaEmbeddings(c *gin.Context) {
	snap := g.cfg.Current()
	prep, err := g.prepare(c, snap, resolveOllamaModel)
	if err != nil {
		writeError(c, err)
		return
	}

	var ollamaReq bridge.OllamaEmbeddingsRequest
	if err := decodeInto(prep.body, &ollamaReq); err != nil {
		writeError(c, err)
		return
	}
	ollamaReq.Model = prep.modelName

	reqBody, err := bridge.EmbeddingsRequestToOpenAI(ollamaReq)
	if err != nil {
		writeError(c, err)
		return
	}

	req, err := newUpstreamRequest(c.Request.Context(), http.MethodPost, upstreamURL(prep.port, "/v1/embeddings"), reqBody, "application/json", c.Request.Header)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := doUpstream(g.client, req)
	if err != nil {
		writeError(c, err)
		return
	}
	defer drainAndClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	normalized, normErr := bridge.NormalizeOpenAIEmbeddingsResponse(raw)
	if normErr != nil {
		normalized = raw
	}
	var openaiResp openai.EmbeddingResponse
	if err := json.Unmarshal(normalized, &openaiResp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bridge.EmbeddingsResponseToOllama(openaiResp))
}

// handleOllamaTags serves GET /api/tags, Ollama's model-listing endpoint.
func (g *Gateway) handleOllamaTags(c *gin.Context) {
	snap := g.cfg.Current()
	records := g.meta.ListAll(snap, g.sup.IsRunning)

	models := make([]gin.H, 0, len(records))
	for _, r := range records {
		models = append(models, gin.H{
			"name":        r.ID,
			"model":       r.ID,
			"size":        r.Size,
			"modified_at": time.Now().UTC().Format(time.RFC3339),
			"details": gin.H{
				"format":             "gguf",
				"family":             r.Arch,
				"parameter_size":     "",
				"quantization_level": r.Quantization,
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// handleOllamaShow serves POST /api/show, returning details for one
// named model without starting it.
func (g *Gateway) handleOllamaShow(c *gin.Context) {
	var body struct {
		Model string `json:"model"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, notFoundModel(""))
		return
	}
	name := body.Model
	if name == "" {
		name = body.Name
	}

	snap := g.cfg.Current()
	spec, ok := snap.Model(name)
	if !ok {
		writeError(c, notFoundModel(name))
		return
	}
	rec, err := g.meta.Describe(spec, g.sup.IsRunning(name))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"modelfile": "",
		"details": gin.H{
			"format":             "gguf",
			"family":             rec.Arch,
			"parameter_size":     "",
			"quantization_level": rec.Quantization,
		},
		"model_info": gin.H{
			"general.architecture":    rec.Arch,
			"general.parameter_count": 0,
			"context_length":          rec.MaxContextLength,
		},
	})
}
