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

import "strings"

// fileTypeNames mirrors llama.cpp's ggml_ftype / gguf-py's LlamaFileType
// enum: the integer stored at the GGUF key "general.file_type" names one
// of these. Most members carry a "MOSTLY_" prefix because the file is a
// mix of that quantization plus a handful of full-precision tensors; the
// prefix is stripped by quantizationName below (spec.md §4.4).
var fileTypeNames = map[int]string{
	0:  "ALL_F32",
	1:  "MOSTLY_F16",
	2:  "MOSTLY_Q4_0",
	3:  "MOSTLY_Q4_1",
	7:  "MOSTLY_Q8_0",
	8:  "MOSTLY_Q5_0",
	9:  "MOSTLY_Q5_1",
	10: "MOSTLY_Q2_K",
	11: "MOSTLY_Q3_K_S",
	12: "MOSTLY_Q3_K_M",
	13: "MOSTLY_Q3_K_L",
	14: "MOSTLY_Q4_K_S",
	15: "MOSTLY_Q4_K_M",
	16: "MOSTLY_Q5_K_S",
	17: "MOSTLY_Q5_K_M",
	18: "MOSTLY_Q6_K",
	19: "MOSTLY_IQ2_XXS",
	20: "MOSTLY_IQ2_XS",
	21: "MOSTLY_Q2_K_S",
	22: "MOSTLY_IQ3_XS",
	23: "MOSTLY_IQ3_XXS",
	24: "MOSTLY_IQ1_S",
	25: "MOSTLY_IQ4_NL",
	26: "MOSTLY_IQ3_S",
	27: "MOSTLY_IQ3_M",
	28: "MOSTLY_IQ2_S",
	29: "MOSTLY_IQ2_M",
	30: "MOSTLY_IQ4_XS",
	31: "MOSTLY_IQ1_M",
	32: "MOSTLY_BF16",
	34: "MOSTLY_TQ1_0",
	35: "MOSTLY_TQ2_0",
}

// quantizationName decodes a "general.file_type" integer into its enum
// name with the "MOSTLY_" prefix stripped, or reports ok=false for an
// integer with no known member (the caller then reports "Type_<n>").
func quantizationName(fileType int) (string, bool) {
	name, ok := fileTypeNames[fileType]
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(name, "MOSTLY_"), true
}
