// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the triage service.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body.
const SignatureHeader = "X-Triage-Signature-256"

// maxBodyBytes bounds webhook payloads. Collaboration platforms send
// small event envelopes; anything larger is hostile or misconfigured.
const maxBodyBytes = 1 << 20

// VerifySignature authenticates webhook payloads with an HMAC-SHA256
// over the raw body, keyed by the shared webhook secret.
//
// # Description
//
// The signature header must contain "sha256=<hex digest>". The body is
// read once here and restored on the request so handlers can bind it
// normally. Comparison is constant-time.
//
// # Inputs
//
//   - secret: Shared webhook secret. Must not be empty.
//
// # Outputs
//
//   - gin.HandlerFunc: Aborts with 401 on a missing or bad signature,
//     413 on an oversized body.
func VerifySignature(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader(SignatureHeader)
		sig, ok := strings.CutPrefix(header, "sha256=")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing signature",
			})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "unreadable body",
			})
			return
		}
		if len(body) > maxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "payload too large",
			})
			return
		}

		mac := hmac.New(sha256.New, key)
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(sig)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "signature mismatch",
			})
			return
		}

		// Restore the body for downstream binding.
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
