// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates a triage run for one inbound event.
//
// # Description
//
// A run moves an event through policy gates (trusted tenants, bot
// authors, hourly and daily budgets), embeds the item text, searches the
// collection's active embeddings for near-duplicates, scores change
// proposals, persists the analysis, and pushes labels and a marker
// comment back to the collaboration platform.
//
// Embedding failure never fails a run. The vector write and duplicate
// search are skipped, a degraded analysis is written, and the marker
// comment flags the item for manual attention. Storage failures do
// fail the run so the transport can surface a retryable error.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the injected stores.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianTriage/services/triage/analysisstore"
	"github.com/AleutianAI/AleutianTriage/services/triage/collab"
	"github.com/AleutianAI/AleutianTriage/services/triage/config"
	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
	"github.com/AleutianAI/AleutianTriage/services/triage/dedup"
	"github.com/AleutianAI/AleutianTriage/services/triage/embed"
	"github.com/AleutianAI/AleutianTriage/services/triage/observability"
	"github.com/AleutianAI/AleutianTriage/services/triage/quality"
	"github.com/AleutianAI/AleutianTriage/services/triage/ratelimit"
	"github.com/AleutianAI/AleutianTriage/services/triage/vectorstore"
)

var tracer = otel.Tracer("aleutian.triage.pipeline")

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeAnalyzed       Outcome = "analyzed"
	OutcomeDegraded       Outcome = "degraded"
	OutcomeSkippedTrusted Outcome = "skipped_trusted"
	OutcomeSkippedBot     Outcome = "skipped_bot"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeDeactivated    Outcome = "deactivated"
	OutcomeReactivated    Outcome = "reactivated"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Outcome Outcome

	// Analysis is set for analyzed and degraded outcomes.
	Analysis *datatypes.AnalysisRecord

	// LimitedTier names the rejecting budget tier for a rate_limited
	// outcome ("hourly" or "daily").
	LimitedTier string
}

// Deps are the collaborators a Pipeline needs.
type Deps struct {
	Vectors  vectorstore.Store
	Analyses *analysisstore.Store
	Limiter  *ratelimit.Limiter
	Embedder embed.Provider
	Labels   collab.LabelApplier
	Comments collab.CommentApplier

	// Policy returns the active policy; called once per run so a
	// hot-reload cannot change rules mid-run.
	Policy func() *config.Policy

	Logger *slog.Logger
}

// Pipeline runs triage for inbound work-item events.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline. Logger falls back to slog.Default().
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Process runs one event through the pipeline.
//
// Inputs:
//
//   - ctx: Request context.
//   - event: Decoded and signature-verified webhook event.
//
// Outputs:
//
//	Result - Outcome classification plus the written analysis, if any.
//	error - Non-nil on validation failure or storage failure. Embedding
//	        and collaboration-platform failures are absorbed.
func (p *Pipeline) Process(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	if err := event.Validate(); err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "triage.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("triage.item", event.Key().String()),
		attribute.String("triage.action", string(event.Action)),
		attribute.String("triage.tenant", event.Tenant),
	)

	start := p.now()
	result, err := p.dispatch(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordRun(string(event.Kind), "error", p.now().Sub(start).Seconds())
		return Result{}, err
	}

	span.SetAttributes(attribute.String("triage.outcome", string(result.Outcome)))
	observability.RecordRun(string(event.Kind), string(result.Outcome), p.now().Sub(start).Seconds())
	return result, nil
}

func (p *Pipeline) dispatch(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	switch event.Action {
	case datatypes.ActionClosed:
		return p.deactivate(ctx, event)
	case datatypes.ActionReopened:
		return p.reactivate(ctx, event)
	default:
		return p.analyze(ctx, event)
	}
}

// deactivate handles a closed item. Flipping an already-inactive or
// unknown item is a no-op, so webhook redeliveries are harmless.
func (p *Pipeline) deactivate(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	flipped, err := p.deps.Vectors.Deactivate(ctx, event.Key())
	if err != nil {
		return Result{}, fmt.Errorf("deactivate %s: %w", event.Key(), err)
	}
	p.deps.Logger.Info("Item deactivated",
		"item", event.Key().String(),
		"flipped", flipped)
	return Result{Outcome: OutcomeDeactivated}, nil
}

func (p *Pipeline) reactivate(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	flipped, err := p.deps.Vectors.Reactivate(ctx, event.Key())
	if err != nil {
		return Result{}, fmt.Errorf("reactivate %s: %w", event.Key(), err)
	}
	p.deps.Logger.Info("Item reactivated",
		"item", event.Key().String(),
		"flipped", flipped)
	return Result{Outcome: OutcomeReactivated}, nil
}

func (p *Pipeline) analyze(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	policy := p.deps.Policy()
	key := event.Key()

	if policy.IsTrusted(event.Tenant) {
		p.deps.Logger.Debug("Trusted tenant, skipping triage", "tenant", event.Tenant)
		return Result{Outcome: OutcomeSkippedTrusted}, nil
	}
	if policy.IsBot(event.Author) {
		p.deps.Logger.Debug("Bot author, skipping triage",
			"item", key.String(),
			"author", event.Author)
		return Result{Outcome: OutcomeSkippedBot}, nil
	}

	admitted, err := p.deps.Limiter.CheckCollectionBudget(ctx, event.Collection, policy.HourlyBudget)
	if err != nil {
		return Result{}, fmt.Errorf("hourly budget for %s: %w", event.Collection, err)
	}
	if !admitted {
		observability.RecordRateLimited("hourly")
		p.deps.Logger.Info("Hourly budget exhausted, item skipped",
			"collection", event.Collection,
			"item", key.String())
		return Result{Outcome: OutcomeRateLimited, LimitedTier: "hourly"}, nil
	}

	daily, err := p.deps.Limiter.CheckTenantBudget(ctx, event.Tenant, policy.TenantBudget(event.Tenant))
	if err != nil {
		return Result{}, fmt.Errorf("daily budget for %s: %w", event.Tenant, err)
	}
	if !daily.Allowed {
		observability.RecordRateLimited("daily")
		p.deps.Logger.Info("Daily tenant budget exhausted, item skipped",
			"tenant", event.Tenant,
			"used", daily.Used,
			"item", key.String())
		return Result{Outcome: OutcomeRateLimited, LimitedTier: "daily"}, nil
	}

	embedStart := p.now()
	vec := p.deps.Embedder.Embed(ctx, embeddingText(event))
	observability.RecordEmbedding(!vec.Unavailable(), p.now().Sub(embedStart).Seconds())

	// Degraded mode skips the vector write and dedup entirely. A record
	// without a vector would only pollute the candidate set.
	if vec.Unavailable() {
		return p.finishDegraded(ctx, event)
	}

	record := datatypes.EmbeddingRecord{
		Key:        key,
		Title:      event.Title,
		Body:       event.Body,
		Supplement: event.Supplement,
		Vector:     vec.Vector,
	}
	if err := p.deps.Vectors.Upsert(ctx, record); err != nil {
		return Result{}, fmt.Errorf("upsert embedding %s: %w", key, err)
	}
	return p.finishAnalyzed(ctx, event, record, policy)
}

// finishDegraded records the run without dedup or scoring. The daily
// budget is left untouched so the tenant is not charged for a run the
// provider failed.
func (p *Pipeline) finishDegraded(ctx context.Context, event *datatypes.TriageEvent) (Result, error) {
	analysis := datatypes.AnalysisRecord{
		Key:      event.Key(),
		Degraded: true,
	}
	if err := p.deps.Analyses.Upsert(ctx, analysis); err != nil {
		return Result{}, fmt.Errorf("upsert degraded analysis %s: %w", event.Key(), err)
	}
	p.applyComment(ctx, analysis, event.Key())

	p.deps.Logger.Warn("Embedding unavailable, degraded triage recorded",
		"item", event.Key().String())
	return Result{Outcome: OutcomeDegraded, Analysis: &analysis}, nil
}

func (p *Pipeline) finishAnalyzed(ctx context.Context, event *datatypes.TriageEvent,
	record datatypes.EmbeddingRecord, policy *config.Policy) (Result, error) {

	key := event.Key()

	candidates, err := p.deps.Vectors.ListActive(ctx, event.Collection, 0)
	if err != nil {
		return Result{}, fmt.Errorf("list candidates for %s: %w", event.Collection, err)
	}
	duplicates := dedup.FindDuplicates(record, candidates, policy.DedupThreshold)
	observability.RecordDuplicates(len(duplicates))

	analysis := datatypes.AnalysisRecord{
		Key:        key,
		Duplicates: duplicates,
	}

	if event.Kind.Scored() {
		res := quality.Score(scoringSignals(event, p.deps.Logger), qualityThresholds(policy, event.Tenant))
		score := res.Score
		analysis.Score = &score
		analysis.Recommendation = res.Recommendation
		analysis.Reasoning = strings.Join(res.Reasons, " ")
		observability.RecordQualityScore(res.Score)
	}

	best, err := p.bestCandidate(ctx, analysis)
	if err != nil {
		return Result{}, err
	}

	if err := p.deps.Analyses.Upsert(ctx, analysis); err != nil {
		return Result{}, fmt.Errorf("upsert analysis %s: %w", key, err)
	}

	if len(duplicates) > 0 && policy.DuplicateLabel != "" {
		if err := p.deps.Labels.AddLabels(ctx, key, []string{policy.DuplicateLabel}); err != nil {
			p.deps.Logger.Warn("Label application failed",
				"item", key.String(),
				"error", err)
		}
	}
	p.applyComment(ctx, analysis, best)

	if err := p.deps.Limiter.IncrementTenantBudget(ctx, event.Tenant); err != nil {
		return Result{}, fmt.Errorf("increment daily budget for %s: %w", event.Tenant, err)
	}

	p.deps.Logger.Info("Item analyzed",
		"item", key.String(),
		"duplicates", len(duplicates),
		"recommendation", string(analysis.Recommendation))
	return Result{Outcome: OutcomeAnalyzed, Analysis: &analysis}, nil
}

// bestCandidate picks the item a reviewer should keep among the current
// item and its same-kind duplicates: the one with the highest recorded
// quality score. Cross-kind duplicates never compete; a report and a
// change proposal are not interchangeable. Only a strictly higher score
// displaces the incumbent, so ties favor the current item first and
// then earlier (more similar) matches.
func (p *Pipeline) bestCandidate(ctx context.Context, analysis datatypes.AnalysisRecord) (datatypes.ItemKey, error) {
	best := analysis.Key
	bestScore := 0.0
	if analysis.Score != nil {
		bestScore = *analysis.Score
	}

	for _, d := range analysis.Duplicates {
		if d.Kind != analysis.Key.Kind {
			continue
		}
		dupKey := datatypes.ItemKey{Collection: analysis.Key.Collection, Kind: d.Kind, ID: d.ID}
		score, err := p.deps.Analyses.Score(ctx, dupKey)
		if err != nil {
			return datatypes.ItemKey{}, fmt.Errorf("score lookup %s: %w", dupKey, err)
		}
		if score > bestScore {
			best = dupKey
			bestScore = score
		}
	}
	return best, nil
}

// applyComment upserts the marker comment. Collaboration failures are
// logged, not propagated; the analysis is already durable.
func (p *Pipeline) applyComment(ctx context.Context, analysis datatypes.AnalysisRecord, best datatypes.ItemKey) {
	body := collab.RenderCommentBody(analysis, best)
	if err := collab.UpsertMarkerComment(ctx, p.deps.Comments, analysis.Key, body); err != nil {
		p.deps.Logger.Warn("Marker comment upsert failed",
			"item", analysis.Key.String(),
			"error", err)
	}
}

func embeddingText(event *datatypes.TriageEvent) string {
	parts := []string{event.Title, event.Body}
	if event.Supplement != "" {
		parts = append(parts, event.Supplement)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// scoringSignals fills diff counters from the raw patch when the
// payload carried no precomputed stats.
func scoringSignals(event *datatypes.TriageEvent, logger *slog.Logger) datatypes.QualitySignals {
	signals := event.Signals
	hasCounters := signals.Additions != 0 || signals.Deletions != 0 || signals.ChangedFiles != 0
	if event.Patch == "" || hasCounters {
		return signals
	}

	stats, err := quality.ParseDiffStats(event.Patch)
	if err != nil {
		logger.Warn("Patch parse failed, scoring with payload counters",
			"item", event.Key().String(),
			"error", err)
		return signals
	}
	signals.Additions = stats.Additions
	signals.Deletions = stats.Deletions
	signals.ChangedFiles = stats.ChangedFiles
	signals.HasTests = signals.HasTests || stats.HasTests
	return signals
}

func qualityThresholds(policy *config.Policy, tenant string) quality.Thresholds {
	th := policy.TenantThresholdsFor(tenant)
	return quality.Thresholds{Approve: th.Approve, Reject: th.Reject}
}
