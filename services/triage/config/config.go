// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the triage service configuration.
//
// Service wiring (listen address, storage paths, upstream URLs, credentials)
// comes from the environment. Triage policy (budgets, thresholds, trusted
// senders, bot patterns) comes from a YAML file that can be hot-reloaded
// while the service runs.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SERVICE CONFIGURATION (environment)
// =============================================================================

// Service holds process-level configuration read from the environment.
type Service struct {
	// ListenAddr is the HTTP bind address. Default: ":8091".
	ListenAddr string

	// DataDir is the badger database directory. Default: "/data/triage".
	DataDir string

	// WeaviateURL selects the weaviate vector backend when set.
	// When empty the embedded badger backend is used.
	WeaviateURL string

	// OpenAIAPIKey authenticates the embedding provider. When empty the
	// service runs in degraded mode and every item is flagged for
	// manual attention.
	OpenAIAPIKey string

	// CollabBaseURL is the collaboration platform REST endpoint.
	CollabBaseURL string

	// CollabToken is the bearer token for the collaboration platform.
	CollabToken string

	// WebhookSecret signs inbound webhook payloads. Required.
	WebhookSecret string

	// PolicyPath locates the YAML policy file. Default: "triage-policy.yaml".
	PolicyPath string

	// OTLPEndpoint is the trace collector address. Tracing is disabled
	// when empty.
	OTLPEndpoint string

	// ShutdownTimeout bounds graceful HTTP shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// FromEnv builds a Service config from environment variables, applying
// defaults for everything except the webhook secret.
//
// Outputs:
//
//	*Service - Populated configuration.
//	error - Non-nil when a required variable is missing.
func FromEnv() (*Service, error) {
	s := &Service{
		ListenAddr:      getEnv("TRIAGE_LISTEN_ADDR", ":8091"),
		DataDir:         getEnv("TRIAGE_DATA_DIR", "/data/triage"),
		WeaviateURL:     os.Getenv("WEAVIATE_SERVICE_URL"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		CollabBaseURL:   os.Getenv("COLLAB_API_URL"),
		CollabToken:     os.Getenv("COLLAB_API_TOKEN"),
		WebhookSecret:   os.Getenv("TRIAGE_WEBHOOK_SECRET"),
		PolicyPath:      getEnv("TRIAGE_POLICY_PATH", "triage-policy.yaml"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownTimeout: 10 * time.Second,
	}
	if s.WebhookSecret == "" {
		return nil, fmt.Errorf("TRIAGE_WEBHOOK_SECRET is not set")
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// =============================================================================
// TRIAGE POLICY (YAML, hot-reloadable)
// =============================================================================

// Thresholds maps a quality score onto a recommendation.
type Thresholds struct {
	// Approve is the minimum score for an approve recommendation.
	Approve float64 `yaml:"approve" validate:"gt=0,lte=1"`

	// Reject is the score below which the item is rejected.
	Reject float64 `yaml:"reject" validate:"gte=0,lt=1"`
}

// Policy holds the hot-reloadable triage policy.
type Policy struct {
	// DedupThreshold is the minimum cosine similarity for a duplicate.
	// Default: 0.86.
	DedupThreshold float64 `yaml:"dedup_threshold" validate:"gte=0,lte=1"`

	// HourlyBudget is the per-collection analysis budget per hour.
	// Default: 60.
	HourlyBudget int `yaml:"hourly_budget" validate:"gt=0"`

	// DailyTenantBudget is the default per-tenant daily budget.
	// Default: 500.
	DailyTenantBudget int `yaml:"daily_tenant_budget" validate:"gt=0"`

	// TenantBudgets overrides DailyTenantBudget per tenant.
	TenantBudgets map[string]int `yaml:"tenant_budgets" validate:"omitempty,dive,gt=0"`

	// Thresholds is the default recommendation mapping.
	Thresholds Thresholds `yaml:"thresholds"`

	// TenantThresholds overrides Thresholds per tenant.
	TenantThresholds map[string]Thresholds `yaml:"tenant_thresholds"`

	// TrustedTenants bypass triage entirely.
	TrustedTenants []string `yaml:"trusted_tenants"`

	// BotPatterns are regular expressions matched against the author
	// identifier. Matching items are skipped.
	BotPatterns []string `yaml:"bot_patterns"`

	// DuplicateLabel is applied when duplicates are found.
	// Default: "possible-duplicate".
	DuplicateLabel string `yaml:"duplicate_label"`

	// compiled bot patterns, built by finish()
	botRegexps []*regexp.Regexp
	trusted    map[string]bool
}

// DefaultPolicy returns a Policy with production defaults.
func DefaultPolicy() *Policy {
	p := &Policy{
		DedupThreshold:    0.86,
		HourlyBudget:      60,
		DailyTenantBudget: 500,
		Thresholds:        Thresholds{Approve: 0.75, Reject: 0.45},
		BotPatterns:       []string{`(?i)\[bot\]$`, `(?i)^dependabot`},
		DuplicateLabel:    "possible-duplicate",
	}
	if err := p.finish(); err != nil {
		panic(err) // defaults are static and known-good
	}
	return p
}

// LoadPolicy reads and validates a policy file. Fields absent from the
// file keep their defaults.
//
// Inputs:
//
//   - path: Path to the YAML policy file.
//
// Outputs:
//
//	*Policy - Validated policy.
//	error - Non-nil on read, parse, validation, or pattern errors.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := validator.New().Struct(p); err != nil {
		return nil, fmt.Errorf("validate policy %s: %w", path, err)
	}
	if p.Thresholds.Reject >= p.Thresholds.Approve {
		return nil, fmt.Errorf("validate policy %s: reject threshold %.2f must be below approve threshold %.2f",
			path, p.Thresholds.Reject, p.Thresholds.Approve)
	}
	for tenant, th := range p.TenantThresholds {
		if th.Reject >= th.Approve {
			return nil, fmt.Errorf("validate policy %s: tenant %s reject threshold %.2f must be below approve threshold %.2f",
				path, tenant, th.Reject, th.Approve)
		}
	}
	if err := p.finish(); err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", path, err)
	}
	return p, nil
}

func (p *Policy) finish() error {
	p.botRegexps = p.botRegexps[:0]
	for _, pat := range p.BotPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("bot pattern %q: %w", pat, err)
		}
		p.botRegexps = append(p.botRegexps, re)
	}
	p.trusted = make(map[string]bool, len(p.TrustedTenants))
	for _, tenant := range p.TrustedTenants {
		p.trusted[tenant] = true
	}
	return nil
}

// IsTrusted reports whether a tenant bypasses triage.
func (p *Policy) IsTrusted(tenant string) bool {
	return p.trusted[tenant]
}

// IsBot reports whether the author identifier matches a bot pattern.
func (p *Policy) IsBot(author string) bool {
	for _, re := range p.botRegexps {
		if re.MatchString(author) {
			return true
		}
	}
	return false
}

// TenantBudget returns the daily budget for a tenant, falling back to
// the default when no override exists.
func (p *Policy) TenantBudget(tenant string) int {
	if b, ok := p.TenantBudgets[tenant]; ok {
		return b
	}
	return p.DailyTenantBudget
}

// TenantThresholdsFor returns the recommendation thresholds for a
// tenant, falling back to the default when no override exists.
func (p *Policy) TenantThresholdsFor(tenant string) Thresholds {
	if th, ok := p.TenantThresholds[tenant]; ok {
		return th
	}
	return p.Thresholds
}
