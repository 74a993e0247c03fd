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
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"github.com/gin-gonic/gin"
)

// extractBearerToken pulls the token out of an "Authorization: Bearer
// <token>" header, case-insensitive on the scheme, tolerant of extra
// whitespace. An empty return means no usable token was present.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// recordRequestMetrics builds middleware that times each request and
// reports it to the Gateway's Metrics under the given dialect, keyed by
// route pattern and status code. A nil Metrics instance makes this a
// no-op, so construction without one still serves requests fine.
func (g *Gateway) recordRequestMetrics(dialect string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		g.metrics.RecordRequest(dialect, route, status, time.Since(start).Seconds())
	}
}

// requireBearerToken builds auth middleware that only rejects requests
// when apiKey is non-empty; an unconfigured key means the listener runs
// without auth, same as the LM Studio proxy it fronts when no api_key is
// set in config (spec.md §5.3).
func requireBearerToken(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		token := extractBearerToken(c)
		if token == "" || token != apiKey {
			writeError(c, apierrors.Auth("missing or invalid bearer token"))
			return
		}
		c.Next()
	}
}
