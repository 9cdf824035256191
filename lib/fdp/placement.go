// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
)

// RUHFor returns the reclaim unit handle that placement handle ph
// routes to.
func (c *Config) RUHFor(ph uint16) (uint16, error) {
	if ph >= MaxPlacementHandles {
		return 0, fmt.Errorf("fdp: placement handle %d out of range [0,%d): %w",
			ph, MaxPlacementHandles, ErrInvalidArgument)
	}
	return c.phTable[ph], nil
}

// Lookup resolves a placement handle to the reclaim unit behind it.
func (c *Config) Lookup(ph uint16) (*ReclaimUnit, error) {
	ruhid, err := c.RUHFor(ph)
	if err != nil {
		return nil, err
	}
	ru := c.ReclaimUnit(ruhid)
	if ru == nil {
		return nil, fmt.Errorf("fdp: placement handle %d maps to missing ruh %d: %w",
			ph, ruhid, ErrInvariantViolation)
	}
	return ru, nil
}

// Write routes a host write of nbytes through placement handle ph.
// See ReclaimUnit.Write for the acceptance rules.
func (c *Config) Write(ctx context.Context, ph uint16, nbytes uint64) (WriteResult, error) {
	ctx = dlog.WithField(ctx, "fdp.ph", ph)
	if !c.enabled {
		return WriteResult{}, fmt.Errorf("fdp: write: %w", ErrFeatureDisabled)
	}
	ru, err := c.Lookup(ph)
	if err != nil {
		return WriteResult{}, err
	}
	ctx = dlog.WithField(ctx, "fdp.ruid", ru.RUID)
	res, err := ru.Write(ctx, c.params, nbytes)
	if err != nil {
		dlog.Debugf(ctx, "rejected: %v", err)
		return res, err
	}
	c.totals.HostBytes += nbytes
	c.totals.MediaBytes += nbytes
	c.totals.RUSwitches += uint64(res.LineSwitches)
	return res, nil
}

// Read records a host read against placement handle ph.  Reads are
// only counted; nothing is placed.
func (c *Config) Read(ph uint16) error {
	if !c.enabled {
		return fmt.Errorf("fdp: read: %w", ErrFeatureDisabled)
	}
	ru, err := c.Lookup(ph)
	if err != nil {
		return err
	}
	ru.HostReadCmds++
	return nil
}
