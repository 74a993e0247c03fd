// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metadata derives LM Studio/Ollama-style listing descriptors
// from GGUF file metadata, backed by a size-keyed disk cache (spec.md
// §4.4).
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/llama-gateway/internal/config"
)

// Record is the external descriptor for one configured model, as handed
// back by the listing endpoints. State is never cached on disk; it is
// overlaid fresh on every call from a running-status predicate.
type Record struct {
	ID                string `json:"id" yaml:"id"`
	Object            string `json:"object" yaml:"object"`
	Type              string `json:"type" yaml:"type"`
	Publisher         string `json:"publisher" yaml:"publisher"`
	Arch              string `json:"arch" yaml:"arch"`
	CompatibilityType string `json:"compatibility_type" yaml:"compatibility_type"`
	Quantization      string `json:"quantization" yaml:"quantization"`
	MaxContextLength  int    `json:"max_context_length" yaml:"max_context_length"`
	Size              int64  `json:"size" yaml:"size"`
	State             string `json:"state" yaml:"state"`
}

const defaultMaxContextLength = 4096

// deriveRecord builds a Record from a model's raw GGUF fields. It never
// fails outright: every derivation falls back to a documented default so
// that a model with unusual or missing metadata still gets a listing
// entry (the same tolerance the original LM Studio format builder
// applies field by field).
func deriveRecord(spec config.ModelSpec, modelPath string, raw map[string]any) Record {
	rec := Record{
		Object:            "model",
		CompatibilityType: "gguf",
		MaxContextLength:  defaultMaxContextLength,
	}

	rec.ID = modelID(spec, modelPath, raw)
	rec.Type = modelType(modelPath, raw)
	rec.Publisher = publisherOf(raw)
	rec.Arch = stringField(raw, "general.architecture", "unknown")
	rec.Quantization = quantizationOf(raw, modelPath)
	rec.MaxContextLength = contextLengthOf(raw, rec.Arch)
	return rec
}

func modelID(spec config.ModelSpec, modelPath string, raw map[string]any) string {
	if spec.ModelID != "" {
		return spec.ModelID
	}
	if name := stringField(raw, "general.name", ""); name != "" {
		return name
	}
	return filepath.Base(modelPath)
}

func modelType(modelPath string, raw map[string]any) string {
	switch strings.ToLower(stringField(raw, "ggml.model.type", "")) {
	case "embedding", "embeddings":
		return "embeddings"
	case "vlm":
		return "vlm"
	}
	base := strings.ToLower(filepath.Base(modelPath))
	if strings.Contains(base, "embedding") || strings.Contains(base, "embed") {
		return "embeddings"
	}
	return "llm"
}

func publisherOf(raw map[string]any) string {
	if v := stringField(raw, "general.quantized_by", ""); v != "" {
		return v
	}
	if v := stringField(raw, "general.url", ""); v != "" {
		return v
	}
	return "local"
}

func quantizationOf(raw map[string]any, modelPath string) string {
	if ft, ok := intField(raw, "general.file_type"); ok {
		if name, ok := quantizationName(ft); ok {
			return name
		}
		return fmt.Sprintf("Type_%d", ft)
	}
	base := strings.ToLower(filepath.Base(modelPath))
	if strings.Contains(base, "q4_k_m") {
		return "Q4_K_M"
	}
	if v := stringField(raw, "quantization.method", ""); v != "" {
		return v
	}
	if v, ok := intField(raw, "quantization_version"); ok {
		return fmt.Sprintf("Q%d", v)
	}
	return "Unknown"
}

func contextLengthOf(raw map[string]any, arch string) int {
	if arch == "" || arch == "unknown" {
		return defaultMaxContextLength
	}
	if n, ok := intField(raw, arch+".context_length"); ok {
		return n
	}
	return defaultMaxContextLength
}

// stringField extracts a scalar field as a string, converting any numeric
// scalar via its default formatting; it never panics on an unexpected
// concrete type.
func stringField(raw map[string]any, key, fallback string) string {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return fallback
		}
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// intField extracts a scalar field as an int, tolerating any of the GGUF
// integer widths or a numeric string.
func intField(raw map[string]any, key string) (int, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case uint8:
		return int(t), true
	case int8:
		return int(t), true
	case uint16:
		return int(t), true
	case int16:
		return int(t), true
	case uint32:
		return int(t), true
	case int32:
		return int(t), true
	case uint64:
		return int(t), true
	case int64:
		return int(t), true
	case float32:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// fileSize stats a path for its byte size, used both as a cache key
// component and as the Record's reported size.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
