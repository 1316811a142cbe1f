// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quality

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// testPathFragments mark a changed file as test code when any fragment
// appears in its path.
var testPathFragments = []string{
	"_test.go", "_test.py", ".test.", ".spec.",
	"/test/", "/tests/", "/testdata/", "/__tests__/",
}

// DiffStats are line and file counts derived from a unified diff.
type DiffStats struct {
	Additions    int
	Deletions    int
	ChangedFiles int
	HasTests     bool
}

// ParseDiffStats derives diff statistics from a raw unified diff.
//
// Webhook payloads that carry a patch instead of precomputed counters
// go through here before scoring. A malformed patch is an error; the
// caller falls back to the payload's own counters.
func ParseDiffStats(patch string) (DiffStats, error) {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return DiffStats{}, fmt.Errorf("failed to parse unified diff: %w", err)
	}

	var stats DiffStats
	stats.ChangedFiles = len(fileDiffs)
	for _, fd := range fileDiffs {
		st := fd.Stat()
		stats.Additions += int(st.Added + st.Changed)
		stats.Deletions += int(st.Deleted + st.Changed)
		if isTestPath(fd.NewName) || isTestPath(fd.OrigName) {
			stats.HasTests = true
		}
	}
	return stats, nil
}

func isTestPath(name string) bool {
	// go-diff keeps the a/ and b/ prefixes on file names.
	name = strings.TrimPrefix(strings.TrimPrefix(name, "a/"), "b/")
	lower := strings.ToLower(name)
	for _, frag := range testPathFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
