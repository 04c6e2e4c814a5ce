// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("backend: unauthorized")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %d %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// StatusOf extracts the HTTP status from err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// retryable reports whether a failed call may succeed on retry.
func retryable(err error) bool {
	status := StatusOf(err)
	if status == 0 {
		return true
	}
	return status >= 500 || status == http.StatusTooManyRequests
}
