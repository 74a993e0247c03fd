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

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/AleutianAI/llama-gateway/internal/bridge"
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/gin-gonic/gin"
)

// preparedRequest is the common state every model-bearing handler needs
// once the request has been parsed, its model resolved, tools stripped
// if unsupported, and a worker ensured running for it (spec.md §4.3,
// steps 1-4).
type preparedRequest struct {
	modelName string
	spec      config.ModelSpec
	runtime   config.RuntimeSpec
	port      int
	body      map[string]any
}

// resolver maps a client-supplied "model" field to an internal model
// name; the two gateways differ in how they do this (see
// resolveOpenAIModel / resolveOllamaModel).
type resolver func(snap *config.Snapshot, requested string) (string, error)

func (g *Gateway) prepare(c *gin.Context, snap *config.Snapshot, resolve resolver) (*preparedRequest, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apierrors.InvalidRequest("request body is not valid JSON: %v", err)
	}

	modelField, _ := body["model"].(string)
	name, err := resolve(snap, modelField)
	if err != nil {
		return nil, err
	}

	spec, ok := snap.Model(name)
	if !ok {
		return nil, apierrors.InvalidRequest("unknown model %q", name)
	}
	runtime, ok := snap.Runtime(spec.RuntimeRef)
	if !ok {
		return nil, apierrors.Configuration("runtime %q referenced by model %q is not configured", spec.RuntimeRef, name)
	}

	if !runtime.SupportsTools {
		bridge.StripTools(body)
	}

	port, err := g.sup.Ensure(name, ensureDeadline)
	if err != nil {
		return nil, err
	}

	return &preparedRequest{modelName: name, spec: spec, runtime: runtime, port: port, body: body}, nil
}

// decodeInto re-marshals the already-parsed (and possibly tool-stripped)
// body and unmarshals it into dst, used by the Ollama handlers to get a
// typed OllamaXRequest without re-reading the original request body.
func decodeInto(body map[string]any, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apierrors.Internal(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierrors.InvalidRequest("request body does not match expected shape: %v", err)
	}
	return nil
}
