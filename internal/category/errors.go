// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package category

import (
	"context"
	"errors"

	"knowtree/internal/tree"
)

// Errors returned by Service. Callers match them with errors.Is; the
// wrapped message carries the offending id or name.
var (
	ErrNotFound                  = tree.ErrNotFound
	ErrParentNotFound            = errors.New("parent category not found")
	ErrDuplicateName             = errors.New("category name already exists")
	ErrDepthExceeded             = errors.New("category depth exceeded")
	ErrCycleDetected             = errors.New("category cycle detected")
	ErrDeleteBlocked             = errors.New("category cannot be deleted")
	ErrContentCounterUnavailable = errors.New("content counter unavailable")
	ErrInvalidInput              = errors.New("invalid category input")
)

// Code returns the stable machine-readable code of err, as exposed in API
// responses and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrNotFound):
		return "CATEGORY_NOT_FOUND"
	case errors.Is(err, ErrParentNotFound):
		return "PARENT_CATEGORY_NOT_FOUND"
	case errors.Is(err, ErrDuplicateName):
		return "CATEGORY_NAME_EXISTS"
	case errors.Is(err, ErrDepthExceeded):
		return "CATEGORY_DEPTH_EXCEEDED"
	case errors.Is(err, ErrCycleDetected):
		return "CATEGORY_CYCLE_DETECTED"
	case errors.Is(err, ErrDeleteBlocked):
		return "CATEGORY_CANNOT_DELETE"
	case errors.Is(err, ErrContentCounterUnavailable):
		return "CONTENT_COUNTER_UNAVAILABLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsRejection reports whether err is a logical conflict with the current
// tree rather than an infrastructure fault.
func IsRejection(err error) bool {
	switch Code(err) {
	case "CATEGORY_NOT_FOUND", "PARENT_CATEGORY_NOT_FOUND", "CATEGORY_NAME_EXISTS",
		"CATEGORY_DEPTH_EXCEEDED", "CATEGORY_CYCLE_DETECTED", "CATEGORY_CANNOT_DELETE",
		"INVALID_INPUT":
		return true
	}
	return false
}
