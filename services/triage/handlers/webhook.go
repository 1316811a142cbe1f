// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the triage service HTTP handlers.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
	"github.com/AleutianAI/AleutianTriage/services/triage/pipeline"
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleWebhook runs one inbound work-item event through the triage
// pipeline.
//
// Responses:
//
//   - 200: run completed (analyzed, degraded, skipped, or a lifecycle
//     flip); the body carries the outcome and any analysis.
//   - 400: malformed or invalid event payload.
//   - 429: a budget tier rejected the event; Retry-After is set.
//   - 500: storage failure; the sender should redeliver.
func HandleWebhook(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event datatypes.TriageEvent
		if err := c.BindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := event.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := p.Process(c.Request.Context(), &event)
		if err != nil {
			slog.Error("Triage run failed",
				"item", event.Key().String(),
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "triage failed"})
			return
		}

		if result.Outcome == pipeline.OutcomeRateLimited {
			c.Header("Retry-After", "3600")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"outcome": string(result.Outcome),
				"tier":    result.LimitedTier,
			})
			return
		}

		resp := gin.H{"outcome": string(result.Outcome)}
		if result.Analysis != nil {
			resp["analysis"] = result.Analysis
		}
		c.JSON(http.StatusOK, resp)
	}
}
