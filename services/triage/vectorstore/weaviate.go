// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// embeddingClass is the Weaviate class holding triage embeddings.
const embeddingClass = "TriageEmbedding"

// WeaviateStore keeps embedding records in a Weaviate instance.
//
// Object IDs are derived deterministically from the item key, so a
// batch write with the same key is a true upsert. The active flag and
// text fields live as object properties; the vector is stored
// natively, with no JSON round-trip.
type WeaviateStore struct {
	client *weaviate.Client
	now    func() time.Time
}

// NewWeaviateStore creates a store over an existing client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client, now: time.Now}
}

// WithClock overrides the time source used for UpdatedAt stamps.
func (s *WeaviateStore) WithClock(now func() time.Time) *WeaviateStore {
	s.now = now
	return s
}

// EnsureSchema creates the TriageEmbedding class if it does not exist.
// Vectorizer is disabled; the triage engine always supplies vectors.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(embeddingClass).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check %s class: %w", embeddingClass, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      embeddingClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "collection", DataType: []string{"text"}},
			{Name: "kind", DataType: []string{"text"}},
			{Name: "item_id", DataType: []string{"int"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "body", DataType: []string{"text"}},
			{Name: "supplement", DataType: []string{"text"}},
			{Name: "active", DataType: []string{"boolean"}},
			{Name: "updated_at", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create %s class: %w", embeddingClass, err)
	}
	slog.Info("Created Weaviate class", "class", embeddingClass)
	return nil
}

// objectID derives a stable UUID from the item key.
func objectID(key datatypes.ItemKey) strfmt.UUID {
	hash := sha256.Sum256([]byte(key.String()))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}

// Upsert writes the record as Active via a batch write, which replaces
// any existing object with the same deterministic ID.
func (s *WeaviateStore) Upsert(ctx context.Context, record datatypes.EmbeddingRecord) error {
	obj := &models.Object{
		Class:  embeddingClass,
		ID:     objectID(record.Key),
		Vector: record.Vector,
		Properties: map[string]interface{}{
			"collection": record.Key.Collection,
			"kind":       string(record.Key.Kind),
			"item_id":    record.Key.ID,
			"title":      record.Title,
			"body":       record.Body,
			"supplement": record.Supplement,
			"active":     true,
			"updated_at": s.now().UTC().UnixMilli(),
		},
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", record.Key, err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("upsert embedding %s: %s", record.Key, item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Get fetches one record by its deterministic object ID.
func (s *WeaviateStore) Get(ctx context.Context, key datatypes.ItemKey) (datatypes.EmbeddingRecord, bool, error) {
	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(embeddingClass).
		WithID(string(objectID(key))).
		WithVector().
		Do(ctx)
	if err != nil {
		// The client surfaces 404 as an error; treat it as Absent.
		return datatypes.EmbeddingRecord{}, false, nil
	}
	if len(objects) == 0 {
		return datatypes.EmbeddingRecord{}, false, nil
	}
	return recordFromObject(objects[0]), true, nil
}

// Deactivate soft-deletes an Active record by merging active=false.
func (s *WeaviateStore) Deactivate(ctx context.Context, key datatypes.ItemKey) (bool, error) {
	return s.setActive(ctx, key, false)
}

// Reactivate restores an Inactive record by merging active=true.
func (s *WeaviateStore) Reactivate(ctx context.Context, key datatypes.ItemKey) (bool, error) {
	return s.setActive(ctx, key, true)
}

func (s *WeaviateStore) setActive(ctx context.Context, key datatypes.ItemKey, active bool) (bool, error) {
	record, found, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found || record.Active == active {
		return false, nil
	}

	properties := map[string]interface{}{"active": active}
	if active {
		properties["updated_at"] = s.now().UTC().UnixMilli()
	}

	err = s.client.Data().Updater().
		WithClassName(embeddingClass).
		WithID(string(objectID(key))).
		WithProperties(properties).
		WithMerge().
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("set active=%v for %s: %w", active, key, err)
	}
	return true, nil
}

// ListActive queries the collection's Active records sorted by
// updated_at descending.
func (s *WeaviateStore) ListActive(ctx context.Context, collection string, limit int) ([]datatypes.EmbeddingRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	collectionFilter := filters.Where().
		WithPath([]string{"collection"}).
		WithOperator(filters.Equal).
		WithValueString(collection)
	activeFilter := filters.Where().
		WithPath([]string{"active"}).
		WithOperator(filters.Equal).
		WithValueBoolean(true)
	combined := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{collectionFilter, activeFilter})

	sortBy := graphql.Sort{Path: []string{"updated_at"}, Order: graphql.Desc}

	fields := []graphql.Field{
		{Name: "collection"},
		{Name: "kind"},
		{Name: "item_id"},
		{Name: "title"},
		{Name: "body"},
		{Name: "supplement"},
		{Name: "active"},
		{Name: "updated_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(embeddingClass).
		WithFields(fields...).
		WithWhere(combined).
		WithSort(sortBy).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active embeddings for %s: %w", collection, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("list active embeddings for %s: %s", collection, result.Errors[0].Message)
	}

	return parseListResponse(result.Data)
}

// parseListResponse unwraps the GraphQL Get payload into records.
func parseListResponse(data map[string]models.JSONObject) ([]datatypes.EmbeddingRecord, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rows, ok := get[embeddingClass].([]interface{})
	if !ok {
		return nil, nil
	}

	records := make([]datatypes.EmbeddingRecord, 0, len(rows))
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		record := datatypes.EmbeddingRecord{
			Key: datatypes.ItemKey{
				Collection: asString(props["collection"]),
				Kind:       datatypes.Kind(asString(props["kind"])),
				ID:         int(asFloat(props["item_id"])),
			},
			Title:      asString(props["title"]),
			Body:       asString(props["body"]),
			Supplement: asString(props["supplement"]),
			Active:     props["active"] == true,
			UpdatedAt:  time.UnixMilli(int64(asFloat(props["updated_at"]))).UTC(),
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if raw, ok := additional["vector"].([]interface{}); ok {
				vector := make([]float32, 0, len(raw))
				for _, v := range raw {
					vector = append(vector, float32(asFloat(v)))
				}
				record.Vector = vector
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func recordFromObject(obj *models.Object) datatypes.EmbeddingRecord {
	props, _ := obj.Properties.(map[string]interface{})
	record := datatypes.EmbeddingRecord{
		Key: datatypes.ItemKey{
			Collection: asString(props["collection"]),
			Kind:       datatypes.Kind(asString(props["kind"])),
			ID:         int(asFloat(props["item_id"])),
		},
		Title:      asString(props["title"]),
		Body:       asString(props["body"]),
		Supplement: asString(props["supplement"]),
		Active:     props["active"] == true,
		UpdatedAt:  time.UnixMilli(int64(asFloat(props["updated_at"]))).UTC(),
	}
	if obj.Vector != nil {
		record.Vector = []float32(obj.Vector)
	}
	return record
}

var _ Store = (*WeaviateStore)(nil)
