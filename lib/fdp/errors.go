// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"errors"
)

// Errors returned by the placement core.  They are always wrapped
// with context; test for them with errors.Is.
var (
	// ErrFeatureDisabled is returned by every query and placed write
	// while the feature flag is off.
	ErrFeatureDisabled = errors.New("flexible data placement is disabled")

	// ErrInvalidArgument is returned for malformed requests,
	// including report buffers too short for a report that must be
	// returned whole.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOpcode is returned for operation codes that are not
	// recognized at all.
	ErrInvalidOpcode = errors.New("invalid operation code")

	// ErrResourceExhausted is returned when a reclaim unit cannot
	// take a write: it never got a line, it has run out of lines, or
	// the write would exceed its capacity.  Running out of lines is
	// sticky.
	ErrResourceExhausted = errors.New("reclaim unit resources exhausted")

	// ErrInvariantViolation indicates a bug in the placement core.
	ErrInvariantViolation = errors.New("placement invariant violated")
)
