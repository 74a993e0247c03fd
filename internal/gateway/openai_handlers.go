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

	"github.com/AleutianAI/llama-gateway/internal/bridge"
	openai "github.com/sashabaranov/go-openai"

	"github.com/gin-gonic/gin"
)

// handleOpenAIChat serves POST /v1/chat/completions and its /api/v0
// mirror. The client and the worker speak the same dialect, so the only
// transformation beyond §4.3.1's streaming matrix is system_fingerprint
// injection.
func (g *Gateway) handleOpenAIChat(c *gin.Context) {
	g.proxyOpenAIDialect(c, "/v1/chat/completions", chatLane)
}

// handleOpenAICompletions serves POST /v1/completions and its /api/v0 mirror.
func (g *Gateway) handleOpenAICompletions(c *gin.Context) {
	g.proxyOpenAIDialect(c, "/v1/completions", completionLane)
}

// lane distinguishes the chat and completions wire shapes where the
// non-stream/stream reassembly cell needs a type-specific reassembler.
type lane int

const (
	chatLane lane = iota
	completionLane
)

func (g *Gateway) proxyOpenAIDialect(c *gin.Context, workerPath string, ln lane) {
	snap := g.cfg.Current()
	prep, err := g.prepare(c, snap, g.resolveOpenAIModel)
	if err != nil {
		writeError(c, err)
		return
	}

	reqBody, err := json.Marshal(prep.body)
	if err != nil {
		writeError(c, err)
		return
	}
	clientWantsStream, _ := prep.body["stream"].(bool)

	fp, fpErr := bridge.Fingerprint(prep.spec)
	if fpErr != nil {
		g.logger.Warn("system_fingerprint computation failed", "model", prep.modelName, "error", fpErr)
	}

	accept := "application/json"
	if clientWantsStream {
		accept = "text/event-stream"
	}
	req, err := newUpstreamRequest(c.Request.Context(), http.MethodPost, upstreamURL(prep.port, workerPath), reqBody, accept, c.Request.Header)
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
		g.forwardOpenAISSE(c, resp.Body, fp)
	case clientWantsStream && !workerStreamed:
		g.wrapAsOpenAISSE(c, resp.Body, fp)
	case !clientWantsStream && workerStreamed:
		g.reassembleOpenAIStream(c, resp.Body, fp, ln)
	default:
		g.passthroughOpenAIJSON(c, resp.Body, fp)
	}
}

func (g *Gateway) forwardOpenAISSE(c *gin.Context, body io.Reader, fp string) {
	setSSEHeaders(c.Writer)
	sw, err := newSSEWriter(c.Writer)
	if err != nil {
		g.logger.Error("sse writer unavailable", "error", err)
		return
	}
	err = scanSSEEvents(body, func(data []byte) error {
		if string(data) == "[DONE]" {
			return sw.writeDone()
		}
		injected, injectErr := bridge.InjectSystemFingerprint(data, fp)
		if injectErr != nil {
			injected = data
		}
		return sw.writeData(injected)
	})
	if err != nil {
		g.logger.Warn("upstream stream ended with error", "error", err)
		sw.writeData(streamErrorPayload(err))
	}
}

func (g *Gateway) wrapAsOpenAISSE(c *gin.Context, body io.Reader, fp string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	injected, injectErr := bridge.InjectSystemFingerprint(raw, fp)
	if injectErr != nil {
		injected = raw
	}
	setSSEHeaders(c.Writer)
	sw, err := newSSEWriter(c.Writer)
	if err != nil {
		g.logger.Error("sse writer unavailable", "error", err)
		return
	}
	sw.writeData(injected)
	sw.writeDone()
}

func (g *Gateway) reassembleOpenAIStream(c *gin.Context, body io.Reader, fp string, ln lane) {
	var result []byte

	if ln == chatLane {
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
		out, marshalErr := json.Marshal(r.Result())
		if marshalErr != nil {
			writeError(c, marshalErr)
			return
		}
		result = out
	} else {
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
		out, marshalErr := json.Marshal(r.Result())
		if marshalErr != nil {
			writeError(c, marshalErr)
			return
		}
		result = out
	}

	injected, injectErr := bridge.InjectSystemFingerprint(result, fp)
	if injectErr != nil {
		injected = result
	}
	c.Data(http.StatusOK, "application/json", injected)
}

func (g *Gateway) passthroughOpenAIJSON(c *gin.Context, body io.Reader, fp string) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(c, err)
		return
	}
	injected, injectErr := bridge.InjectSystemFingerprint(raw, fp)
	if injectErr != nil {
		injected = raw
	}
	c.Data(http.StatusOK, "application/json", injected)
}

// handleOpenAIEmbeddings serves POST /v1/embeddings and its /api/v0
// mirror. Embeddings are never streamed; the only transformation is the
// bare-array compatibility shim some llama.cpp-family workers need.
func (g *Gateway) handleOpenAIEmbeddings(c *gin.Context) {
	snap := g.cfg.Current()
	prep, err := g.prepare(c, snap, g.resolveOpenAIModel)
	if err != nil {
		writeError(c, err)
		return
	}

	reqBody, err := json.Marshal(prep.body)
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
	normalized, err := bridge.NormalizeOpenAIEmbeddingsResponse(raw)
	if err != nil {
		normalized = raw
	}
	c.Data(http.StatusOK, "application/json", normalized)
}

// handleListModelsOpenAI serves GET /v1/models in the minimal OpenAI
// list shape.
func (g *Gateway) handleListModelsOpenAI(c *gin.Context) {
	snap := g.cfg.Current()
	records := g.meta.ListAll(snap, g.sup.IsRunning)

	data := make([]gin.H, 0, len(records))
	for _, r := range records {
		data = append(data, gin.H{
			"id":       r.ID,
			"object":   "model",
			"owned_by": r.Publisher,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// handleListModelsLMStudio serves GET /api/v0/models, returning the full
// LM Studio-style descriptor for every configured model.
func (g *Gateway) handleListModelsLMStudio(c *gin.Context) {
	snap := g.cfg.Current()
	records := g.meta.ListAll(snap, g.sup.IsRunning)
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": records})
}

// handleGetModelLMStudio serves GET /api/v0/models/{id}.
func (g *Gateway) handleGetModelLMStudio(c *gin.Context) {
	id := c.Param("id")
	snap := g.cfg.Current()
	for _, r := range g.meta.ListAll(snap, g.sup.IsRunning) {
		if r.ID == id {
			c.JSON(http.StatusOK, r)
			return
		}
	}
	writeError(c, notFoundModel(id))
}
