// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AleutianAI/llama-gateway/internal/config"
	"gopkg.in/yaml.v3"
)

// Provider is the gateway's pure, read-only metadata service. It derives
// a Record for each configured model, backed by a disk cache keyed on
// (sanitized model name, file size). Writes to the cache are serialized
// through a single mutex; this is coarser than the "serialized per
// model" wording in spec.md §5 but satisfies it, since a global
// serialization point is a valid (if conservative) instance of per-model
// serialization, and Provider calls are never on the hot request path
// for anything but listing/show endpoints.
type Provider struct {
	cacheDir string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewProvider constructs a Provider backed by cacheDir, creating it if
// necessary.
func NewProvider(cacheDir string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("metadata: creating cache dir %s: %w", cacheDir, err)
	}
	return &Provider{cacheDir: cacheDir, logger: logger}, nil
}

// sanitizeName mirrors the original extractor's filename sanitization:
// keep alphanumerics, spaces, dots, and dashes; replace everything else
// with underscore, then collapse spaces to underscore.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.ReplaceAll(b.String(), " ", "_")
}

func (p *Provider) cachePath(name string, size int64) string {
	return filepath.Join(p.cacheDir, fmt.Sprintf("%s_%d.json", sanitizeName(name), size))
}

// Describe returns the Record for one configured model, deriving and
// caching it on a cache miss. running overlays the "state" field; it is
// never persisted to disk (spec.md §4.4: "On a running model, the
// provider overlays state=loaded on the cached record each call").
func (p *Provider) Describe(spec config.ModelSpec, running bool) (Record, error) {
	size, err := fileSize(spec.ModelPath)
	if err != nil {
		return Record{}, fmt.Errorf("metadata: stat %s: %w", spec.ModelPath, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.loadCached(spec.Name, size)
	if !ok {
		raw, err := readRawMetadata(spec.ModelPath)
		if err != nil {
			p.logger.Warn("metadata extraction failed, using defaults", "model", spec.Name, "error", err)
			raw = map[string]any{}
		}
		rec = deriveRecord(spec, spec.ModelPath, raw)
		rec.Size = size
		p.saveCached(spec.Name, size, rec)
	}

	// The configured model_id always takes precedence over whatever is
	// cached, even across config reloads that change only model_id.
	if spec.ModelID != "" && rec.ID != spec.ModelID {
		rec.ID = spec.ModelID
		p.saveCached(spec.Name, size, rec)
	}

	rec.Size = size
	if running {
		rec.State = "loaded"
	} else {
		rec.State = "not-loaded"
	}
	return rec, nil
}

func (p *Provider) loadCached(name string, size int64) (Record, bool) {
	data, err := os.ReadFile(p.cachePath(name, size))
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		p.logger.Warn("metadata cache file corrupt, re-deriving", "model", name, "error", err)
		return Record{}, false
	}
	return rec, true
}

func (p *Provider) saveCached(name string, size int64, rec Record) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		p.logger.Warn("metadata: marshaling cache entry failed", "model", name, "error", err)
		return
	}
	if err := os.WriteFile(p.cachePath(name, size), data, 0644); err != nil {
		p.logger.Warn("metadata: writing cache entry failed", "model", name, "error", err)
	}
}

// IsRunning is the shape of predicate the caller (Gateway) supplies for
// the "state" field; kept as a named type purely for readability at call
// sites (spec.md §4.2's Supervisor.IsRunning satisfies it directly).
type IsRunning func(modelName string) bool

// ListAll describes every model in the Snapshot, skipping (and logging)
// any whose model_path cannot be stat'd rather than failing the whole
// listing call.
func (p *Provider) ListAll(snap *config.Snapshot, running IsRunning) []Record {
	records := make([]Record, 0, len(snap.Models))
	for _, spec := range snap.Models {
		rec, err := p.Describe(spec, running(spec.Name))
		if err != nil {
			p.logger.Warn("skipping model in listing", "model", spec.Name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// DumpYAML renders ListAll's output as human-diffable YAML, for the
// CLI's dump command. It goes through ListAll, so it reads and fills the
// disk cache exactly as ListAll does.
func (p *Provider) DumpYAML(snap *config.Snapshot, running IsRunning) ([]byte, error) {
	records := p.ListAll(snap, running)
	out, err := yaml.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshaling dump: %w", err)
	}
	return out, nil
}

// ResolveExternalID maps a published external id (as handed out by
// ListAll) back to the internal model name, used by the OpenAI gateway
// to recover the internal name a client sent back in a chat/completions
// request (spec.md §4.3, step 2).
func (p *Provider) ResolveExternalID(snap *config.Snapshot, externalID string) (string, bool) {
	for name, spec := range snap.Models {
		rec, err := p.Describe(spec, false)
		if err != nil {
			continue
		}
		if rec.ID == externalID {
			return name, true
		}
	}
	return "", false
}
