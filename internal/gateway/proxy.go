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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/llama-gateway/internal/apierrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("llama-gateway.gateway")

// upstreamTimeout bounds how long the gateway waits on a worker before
// giving up. It covers the full request, including however long the
// worker takes to stream its last token; large models under heavy
// prompts can legitimately take minutes to finish.
const upstreamTimeout = 600 * time.Second

func newUpstreamClient() *http.Client {
	return &http.Client{Timeout: upstreamTimeout}
}

// upstreamURL builds the worker URL for the given ensured port and path.
func upstreamURL(port int, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
}

// newUpstreamRequest builds the request the gateway sends to a worker,
// carrying the translated body and the inbound client headers minus Host
// and Content-Length, both of which net/http recomputes for the
// re-encoded body.
func newUpstreamRequest(ctx context.Context, method, url string, body []byte, accept string, inbound http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	for name, values := range inbound {
		if strings.EqualFold(name, "Host") || strings.EqualFold(name, "Content-Length") {
			continue
		}
		req.Header[name] = append([]string(nil), values...)
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req, nil
}

// doUpstream executes req and classifies transport failures per the
// error taxonomy: a context deadline or a client timeout becomes
// UpstreamTimeout, anything else (including a cancelled context) becomes
// Upstream.
func doUpstream(client *http.Client, req *http.Request) (*http.Response, error) {
	ctx, span := tracer.Start(req.Context(), "Gateway.Upstream")
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Path),
	)
	defer span.End()
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			err = apierrors.UpstreamTimeout(err)
		} else {
			err = apierrors.Upstream(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// isEventStream reports whether an upstream response is itself an SSE
// stream, the signal the gateway uses to pick a cell in the streaming
// combination matrix (spec.md §4.3.1).
func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
