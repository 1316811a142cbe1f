// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/time/rate"
)

const (
	// maxEmbedChars bounds the text sent to the provider. Longer input
	// is cropped to its first chunk rather than rejected.
	maxEmbedChars = 8000

	// defaultEmbedRPS smooths request bursts toward the provider.
	defaultEmbedRPS = 5
)

// OpenAIProvider computes embeddings via the OpenAI API.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client and limiter are both
// concurrency-safe.
type OpenAIProvider struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	limiter  *rate.Limiter
	splitter textsplitter.TextSplitter
}

// NewOpenAIProvider creates a provider with the given API key. An
// empty model selects text-embedding-3-small.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	return NewOpenAIProviderWithConfig(config, model)
}

// NewOpenAIProviderWithConfig creates a provider from a full client
// configuration. Tests use this to point at a local server.
func NewOpenAIProviderWithConfig(config openai.ClientConfig, model string) *OpenAIProvider {
	embeddingModel := openai.SmallEmbedding3
	if model != "" {
		embeddingModel = openai.EmbeddingModel(model)
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(config),
		model:   embeddingModel,
		limiter: rate.NewLimiter(rate.Limit(defaultEmbedRPS), defaultEmbedRPS),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxEmbedChars),
			textsplitter.WithChunkOverlap(0),
		),
	}
}

// Embed converts text into an embedding vector.
//
// Every failure mode (empty input, rate-limit wait aborted, API error,
// empty response) collapses to an unavailable Result with a log-level
// signal. Callers never see a provider error.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}
	text = p.crop(text)

	if err := p.limiter.Wait(ctx); err != nil {
		slog.Warn("embedding call abandoned while rate-limited", "error", err)
		return Result{}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		slog.Warn("embedding provider unavailable", "error", err)
		return Result{}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		slog.Warn("embedding provider returned no vectors")
		return Result{}
	}

	return Result{Vector: resp.Data[0].Embedding}
}

// crop bounds oversized input to its first chunk. Splitting respects
// paragraph boundaries where possible; a splitter failure falls back
// to a hard cut.
func (p *OpenAIProvider) crop(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	chunks, err := p.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		slog.Warn("text splitter failed, hard-cropping embed input", "error", err)
		return text[:maxEmbedChars]
	}
	return chunks[0]
}

var _ Provider = (*OpenAIProvider)(nil)
