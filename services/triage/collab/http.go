// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// DefaultRequestTimeout bounds collaborator API calls.
const DefaultRequestTimeout = 30 * time.Second

// HTTPClient talks to the collaboration platform's REST API.
//
// # Description
//
// Implements both LabelApplier and CommentApplier against the
// platform's item endpoints:
//
//	POST  {base}/collections/{collection}/items/{id}/labels
//	GET   {base}/collections/{collection}/items/{id}/comments
//	POST  {base}/collections/{collection}/items/{id}/comments
//	PATCH {base}/collections/{collection}/comments/{commentID}
//
// # Thread Safety
//
// HTTPClient is safe for concurrent use.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the platform API at baseURL.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
}

// AddLabels adds labels to an item. The platform treats re-adding an
// existing label as a no-op, so the call is idempotent.
func (c *HTTPClient) AddLabels(ctx context.Context, key datatypes.ItemKey, names []string) error {
	if len(names) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s/items/%d/labels", c.baseURL, key.Collection, key.ID)
	payload := map[string][]string{"labels": names}
	return c.do(ctx, http.MethodPost, url, payload, nil)
}

// FindMarkerComment scans the item's comments for the marker.
func (c *HTTPClient) FindMarkerComment(ctx context.Context, key datatypes.ItemKey) (*Comment, error) {
	url := fmt.Sprintf("%s/collections/%s/items/%d/comments", c.baseURL, key.Collection, key.ID)

	var comments []Comment
	if err := c.do(ctx, http.MethodGet, url, nil, &comments); err != nil {
		return nil, err
	}
	for i := range comments {
		if strings.Contains(comments[i].Body, CommentMarker) {
			return &comments[i], nil
		}
	}
	return nil, nil
}

// CreateComment posts a new comment on the item.
func (c *HTTPClient) CreateComment(ctx context.Context, key datatypes.ItemKey, body string) error {
	url := fmt.Sprintf("%s/collections/%s/items/%d/comments", c.baseURL, key.Collection, key.ID)
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, url, payload, nil)
}

// UpdateComment replaces an existing comment's body.
func (c *HTTPClient) UpdateComment(ctx context.Context, key datatypes.ItemKey, commentID int64, body string) error {
	url := fmt.Sprintf("%s/collections/%s/comments/%d", c.baseURL, key.Collection, commentID)
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPatch, url, payload, nil)
}

// do executes one JSON request/response round trip.
func (c *HTTPClient) do(ctx context.Context, method, url string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned status %d: %s", method, url, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}

var (
	_ LabelApplier   = (*HTTPClient)(nil)
	_ CommentApplier = (*HTTPClient)(nil)
)
