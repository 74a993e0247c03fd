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

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/gin-gonic/gin"
)

// writeError maps err to a status code and JSON body per the error
// taxonomy (spec.md §7) and aborts the gin context.
func writeError(c *gin.Context, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		apiErr = apierrors.Internal(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"message": apiErr.Message,
			"type":    string(apiErr.Kind),
		},
	})
}

// streamErrorPayload renders err as the single JSON object written when
// a worker fails after the response has already switched to SSE/NDJSON
// framing, where a fresh status line is no longer possible.
func streamErrorPayload(err error) []byte {
	apiErr, ok := apierrors.As(err)
	if !ok {
		apiErr = apierrors.Internal(err)
	}
	payload, marshalErr := json.Marshal(gin.H{
		"error": gin.H{
			"message": apiErr.Message,
			"type":    string(apiErr.Kind),
		},
	})
	if marshalErr != nil {
		return []byte(`{"error":{"message":"internal error","type":"internal_error"}}`)
	}
	return payload
}
