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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTriage/services/triage/analysisstore"
	"github.com/AleutianAI/AleutianTriage/services/triage/collab"
	"github.com/AleutianAI/AleutianTriage/services/triage/config"
	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
	"github.com/AleutianAI/AleutianTriage/services/triage/embed"
	"github.com/AleutianAI/AleutianTriage/services/triage/pipeline"
	"github.com/AleutianAI/AleutianTriage/services/triage/ratelimit"
	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
	"github.com/AleutianAI/AleutianTriage/services/triage/vectorstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopEmbedder struct{}

func (nopEmbedder) Embed(context.Context, string) embed.Result {
	return embed.Result{Vector: []float32{1}}
}

type nopCollab struct{}

func (nopCollab) AddLabels(context.Context, datatypes.ItemKey, []string) error { return nil }
func (nopCollab) FindMarkerComment(context.Context, datatypes.ItemKey) (*collab.Comment, error) {
	return nil, nil
}
func (nopCollab) CreateComment(context.Context, datatypes.ItemKey, string) error { return nil }
func (nopCollab) UpdateComment(context.Context, datatypes.ItemKey, int64, string) error {
	return nil
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy := config.DefaultPolicy()
	p := pipeline.New(pipeline.Deps{
		Vectors:  vectorstore.NewBadgerStore(db),
		Analyses: analysisstore.New(db),
		Limiter:  ratelimit.New(db),
		Embedder: nopEmbedder{},
		Labels:   nopCollab{},
		Comments: nopCollab{},
		Policy:   func() *config.Policy { return policy },
	})

	router := gin.New()
	SetupRoutes(router, p, "test-secret")
	return router
}

func TestSetupRoutes_Health(t *testing.T) {
	router := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_Metrics(t *testing.T) {
	router := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSetupRoutes_WebhookRequiresSignature(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhook", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
