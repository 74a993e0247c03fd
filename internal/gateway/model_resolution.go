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
	"fmt"
	"net/http"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/AleutianAI/llama-gateway/internal/metadata"
)

// notFoundModel reports that no configured model matches the requested
// external id, used by the listing-detail endpoint where "unknown
// model" is a 404 rather than a 400 (the id came straight out of a
// listing response, so it is well-formed, just absent).
func notFoundModel(id string) *apierrors.Error {
	return &apierrors.Error{
		Kind:    apierrors.KindInvalidRequest,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("no model found with id %q", id),
	}
}

// resolveOpenAIModelWithMeta turns the "model" field of an OpenAI-dialect
// request into an internal model name. The OpenAI gateway publishes the
// external id MetadataProvider derives (basename, GGUF metadata, or an
// explicit model_id override), never the internal config name directly,
// so a client round-tripping GET /v1/models output must be resolved back
// through that mapping (spec.md §4.3.1 step 2).
func resolveOpenAIModelWithMeta(snap *config.Snapshot, meta *metadata.Provider, requested string) (string, error) {
	if requested == "" {
		return "", apierrors.InvalidRequest("missing required field \"model\"")
	}
	if name, ok := meta.ResolveExternalID(snap, requested); ok {
		return name, nil
	}
	if _, ok := snap.Model(requested); ok {
		return requested, nil
	}
	return "", apierrors.InvalidRequest("unknown model %q", requested)
}

// resolveOpenAIModel is resolveOpenAIModelWithMeta bound to the
// Gateway's MetadataProvider, matching the resolver shape prepare needs.
func (g *Gateway) resolveOpenAIModel(snap *config.Snapshot, requested string) (string, error) {
	return resolveOpenAIModelWithMeta(snap, g.meta, requested)
}

// resolveOllamaModel turns the "model" field of an Ollama-dialect request
// into an internal model name. Ollama clients always address models by
// their configured name directly, so no external-id indirection applies.
func resolveOllamaModel(snap *config.Snapshot, requested string) (string, error) {
	if requested == "" {
		return "", apierrors.InvalidRequest("missing required field \"model\"")
	}
	if _, ok := snap.Model(requested); ok {
		return requested, nil
	}
	return "", apierrors.InvalidRequest("unknown model %q", requested)
}
