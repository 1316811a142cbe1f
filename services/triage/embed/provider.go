// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed wraps the external embedding provider.
//
// Provider failures never propagate as errors: the contract normalizes
// every failure mode to an unavailable Result, and the pipeline reacts
// by degrading the run. Retry and timeout policy belongs to whatever
// wraps the provider call, not to this package.
package embed

import "context"

// Result is the outcome of one embedding call. An empty vector means
// the provider was unavailable; there is no other failure signal.
type Result struct {
	Vector []float32
}

// Unavailable reports whether the provider failed to produce a vector.
func (r Result) Unavailable() bool {
	return len(r.Vector) == 0
}

// Provider computes vector embeddings for text.
type Provider interface {
	// Embed converts text into an embedding vector. Implementations
	// must swallow provider errors and return an unavailable Result
	// instead.
	Embed(ctx context.Context, text string) Result
}

// UnavailableProvider always reports the provider as unavailable. Used
// when no embedding backend is configured, forcing degraded triage.
type UnavailableProvider struct{}

func (UnavailableProvider) Embed(context.Context, string) Result {
	return Result{}
}

var _ Provider = UnavailableProvider{}
