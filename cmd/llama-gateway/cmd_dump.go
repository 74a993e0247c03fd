// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/llama-gateway/internal/config"
	"github.com/AleutianAI/llama-gateway/internal/metadata"
	"github.com/spf13/cobra"
)

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}
	defer cfg.Close()

	cacheDir, err := metadataCacheDir()
	if err != nil {
		return fmt.Errorf("resolving metadata cache dir: %w", err)
	}
	meta, err := metadata.NewProvider(cacheDir, nil)
	if err != nil {
		return fmt.Errorf("constructing metadata provider: %w", err)
	}

	snap := cfg.Current()
	if dumpModel != "" {
		spec, ok := snap.Model(dumpModel)
		if !ok {
			return fmt.Errorf("unknown model %q", dumpModel)
		}
		snap = &config.Snapshot{Models: map[string]config.ModelSpec{dumpModel: spec}}
	}

	out, err := meta.DumpYAML(snap, func(string) bool { return false })
	if err != nil {
		return fmt.Errorf("dumping metadata: %w", err)
	}

	fmt.Print(string(out))
	return nil
}
