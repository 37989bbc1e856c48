// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import "errors"

var (
	// ErrNoActiveSession is returned when an operation needs an active
	// session and none is selected.
	ErrNoActiveSession = errors.New("no active session")

	// ErrNoBaseline is returned by Deny when the session has no recorded
	// baseline revision to revert to.
	ErrNoBaseline = errors.New("no baseline recorded; cannot revert code safely")

	// ErrTestsFailed is returned by Approve when the test command failed.
	ErrTestsFailed = errors.New("tests failed; approve blocked")

	// ErrInvalidInput is returned for empty or malformed user input.
	ErrInvalidInput = errors.New("invalid input")
)
