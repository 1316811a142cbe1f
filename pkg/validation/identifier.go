// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation validates externally supplied identifiers before
// they reach storage keys or platform URLs.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxIdentifierLen = 200

// ValidateCollection validates a collection identifier of the form
// "owner/name". Collection names are embedded in storage keys and in
// collaboration-platform URL paths, so the character set is restricted
// to letters, digits, and the separators ._- with exactly one slash.
//
// Example:
//
//	if err := validation.ValidateCollection(event.Collection); err != nil {
//	    return fmt.Errorf("invalid collection: %w", err)
//	}
func ValidateCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	if utf8.RuneCountInString(collection) > maxIdentifierLen {
		return fmt.Errorf("collection exceeds %d characters", maxIdentifierLen)
	}

	owner, name, found := strings.Cut(collection, "/")
	if !found {
		return fmt.Errorf("collection %q must be of the form owner/name", collection)
	}
	if err := validateSegment(owner); err != nil {
		return fmt.Errorf("collection owner: %w", err)
	}
	if err := validateSegment(name); err != nil {
		return fmt.Errorf("collection name: %w", err)
	}
	return nil
}

// ValidateTenant validates a tenant identifier. Tenants scope the
// daily budget counters, so the same keyspace restrictions apply.
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}
	if utf8.RuneCountInString(tenant) > maxIdentifierLen {
		return fmt.Errorf("tenant exceeds %d characters", maxIdentifierLen)
	}
	if err := validateSegment(tenant); err != nil {
		return fmt.Errorf("tenant: %w", err)
	}
	return nil
}

// validateSegment allows letters, digits, and the separators ._-
// within a single path segment. A segment may not start or end with a
// separator.
func validateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("segment cannot be empty")
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("segment %q contains invalid character %q", segment, r)
		}
	}
	if strings.HasPrefix(segment, ".") || strings.HasSuffix(segment, ".") {
		return fmt.Errorf("segment %q may not start or end with a dot", segment)
	}
	return nil
}
