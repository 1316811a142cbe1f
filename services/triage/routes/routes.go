// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianTriage/services/triage/handlers"
	"github.com/AleutianAI/AleutianTriage/services/triage/middleware"
	"github.com/AleutianAI/AleutianTriage/services/triage/pipeline"
)

// SetupRoutes registers the triage service endpoints. Webhook delivery
// is the only mutating surface and sits behind signature verification.
func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, webhookSecret string) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/webhook", middleware.VerifySignature(webhookSecret), handlers.HandleWebhook(p))
	}
}
