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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	headless   bool
	dumpModel  string

	rootCmd = &cobra.Command{
		Use:   "llama-gateway",
		Short: "An HTTP gateway and process supervisor for llama.cpp-family model workers",
		Long: `llama-gateway fronts one or more llama.cpp-family model workers
behind OpenAI- and Ollama-compatible HTTP listeners, starting and
stopping workers on demand under a configured concurrency cap.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP listeners and worker supervisor",
		RunE:  runServe,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Dump the metadata cache for every configured model as YAML",
		RunE:  runDump,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Path to the gateway's model/runtime configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Minimum log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&headless, "headless", false, "Run without a GUI; the value is only recorded in the startup log (tracing output is unaffected)")

	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVar(&dumpModel, "model", "", "Dump only the named model (default: every configured model)")
}
