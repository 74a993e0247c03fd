// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker wraps a single llama.cpp-family worker subprocess: command
// assembly, stdout scanning for the startup port, and graceful termination.
package worker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/llama-gateway/internal/config"
)

// BuildArgs deterministically assembles the argv for a worker process from
// a ModelSpec and its resolved RuntimeSpec (spec.md §4.1, "Command
// assembly"). Given the same inputs it always produces the same argv,
// including the iteration order of extra parameters (sorted by key), so the
// result is directly testable.
func BuildArgs(spec config.ModelSpec, runtime config.RuntimeSpec) []string {
	port := "0"
	if p, ok := spec.Parameters["port"]; ok {
		port = fmt.Sprint(p)
	}

	args := []string{
		"--model", spec.ModelPath,
		"--alias", spec.Name,
		"--host", "127.0.0.1",
		"--port", port,
	}

	keys := make([]string, 0, len(spec.Parameters))
	for k := range spec.Parameters {
		if k == "port" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		flag := "--" + strings.ReplaceAll(k, "_", "-")
		v := spec.Parameters[k]
		switch val := v.(type) {
		case bool:
			if val {
				args = append(args, flag)
			}
		default:
			args = append(args, flag, stringifyParam(v))
		}
	}

	return args
}

// stringifyParam renders a JSON-decoded scalar parameter value as a CLI
// argument. JSON numbers decode as float64; integral values are rendered
// without a trailing ".0" so e.g. --ctx-size 4096 rather than --ctx-size
// 4096.000000.
func stringifyParam(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
