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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/AleutianAI/llama-gateway/internal/config"
)

// Fingerprint computes the OpenAI-path system_fingerprint for a model
// (spec.md §4.3.1): an MD5 digest of the ModelSpec serialized as stable
// JSON (sorted keys), truncated to 16 hex characters. Round-tripping the
// struct through map[string]any before the final marshal is what makes
// the key order stable: encoding/json always emits a map's keys sorted,
// whereas a struct is emitted in field-declaration order regardless of
// field name.
func Fingerprint(spec config.ModelSpec) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	stable, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(stable)
	return hex.EncodeToString(sum[:])[:16], nil
}

// InjectSystemFingerprint adds "system_fingerprint": fp to a JSON object
// that lacks it (a non-streaming response body, or a single SSE event's
// data payload). Objects that already carry a non-empty
// system_fingerprint are returned unchanged, matching spec.md §4.3.1's
// "lacks it" qualifier.
func InjectSystemFingerprint(raw []byte, fp string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if existing, ok := obj["system_fingerprint"]; ok {
		var s string
		if err := json.Unmarshal(existing, &s); err == nil && s != "" {
			return raw, nil
		}
	}
	encodedFP, err := json.Marshal(fp)
	if err != nil {
		return nil, err
	}
	obj["system_fingerprint"] = encodedFP
	return json.Marshal(obj)
}
