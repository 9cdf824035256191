// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fdp implements Flexible Data Placement on top of an
// emulated SSD: reclaim groups and units, the placement-handle table
// that routes host writes to units, and the log pages that report on
// them.
//
// A Config is not safe for concurrent use; the device serializes
// commands before they reach it.
package fdp

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

// LinePool is the device-wide supply of free lines.  *ssd.LineMgmt
// implements it.
type LinePool interface {
	FreeLineCount() int
	GetFreeLine() (*ssd.Line, bool)
	PutFreeLine(*ssd.Line) error
}

var _ LinePool = (*ssd.LineMgmt)(nil)

// CapabilityNotifier is told whenever the feature flag flips, so that
// whatever advertises device capabilities can follow.
type CapabilityNotifier interface {
	SetPlacementCapability(ctx context.Context, enabled bool)
}

// Options tune a Config.  The zero value gives the stock device.
type Options struct {
	// NRUH is the number of reclaim unit handles; 0 means
	// DefaultRUHs.
	NRUH uint16
	// Attributes is advertised in the configuration log; 0 means
	// DefaultAttributes.
	Attributes Attributes
	// Notifier, if set, is told about every enable and disable.
	Notifier CapabilityNotifier
}

// Config is the placement state of one device.
type Config struct {
	params   ssd.Params
	pool     LinePool
	notifier CapabilityNotifier

	enabled     bool
	distributed bool
	attrs       Attributes
	nruh        uint16

	rgs     []ReclaimGroup
	phTable [MaxPlacementHandles]uint16
	totals  Totals
}

// NewConfig sets up the placement state of a device with geometry p
// and free lines drawn from pool.  The feature starts disabled and no
// lines are taken until the first Enable.
func NewConfig(ctx context.Context, p ssd.Params, pool LinePool, opts Options) (*Config, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts.NRUH == 0 {
		opts.NRUH = DefaultRUHs
	}
	if opts.NRUH > MaxPlacementHandles {
		return nil, fmt.Errorf("fdp: %d reclaim unit handles requested, at most %d are supported: %w",
			opts.NRUH, MaxPlacementHandles, ErrInvalidArgument)
	}
	if opts.Attributes == 0 {
		opts.Attributes = DefaultAttributes
	}
	c := &Config{
		params:   p,
		pool:     pool,
		notifier: opts.Notifier,
		attrs:    opts.Attributes,
		nruh:     opts.NRUH,
	}

	ruCap := p.TotalBytes() / uint64(c.nruh)
	rg := ReclaimGroup{
		RGID: 0,
		SLBs: p.TotalPages(),
		RUs:  make([]ReclaimUnit, c.nruh),
	}
	for i := range rg.RUs {
		rg.RUs[i] = ReclaimUnit{
			RUID:     uint16(i),
			RGID:     rg.RGID,
			RUHID:    uint16(i),
			State:    RUHUnused,
			Capacity: ruCap,
		}
	}
	c.rgs = []ReclaimGroup{rg}

	// Handles are mapped 1:1 onto units; the rest of the table
	// points at unit 0.
	for ph := range c.phTable {
		if ph < int(c.nruh) {
			c.phTable[ph] = uint16(ph)
		}
	}

	dlog.Infof(ctx, "fdp: %d reclaim group(s), %d handles of %v each",
		len(c.rgs), c.nruh, textui.IEC(ruCap, "B"))
	return c, nil
}

func (c *Config) Enabled() bool          { return c.enabled }
func (c *Config) Params() ssd.Params     { return c.params }
func (c *Config) Attributes() Attributes { return c.attrs }
func (c *Config) NRUH() uint16           { return c.nruh }
func (c *Config) NRG() uint32            { return uint32(len(c.rgs)) }
func (c *Config) Totals() Totals         { return c.totals }

// ReclaimGroup returns group rgid, or nil.
func (c *Config) ReclaimGroup(rgid uint32) *ReclaimGroup {
	if int(rgid) >= len(c.rgs) {
		return nil
	}
	return &c.rgs[rgid]
}

// ReclaimUnit returns unit ruid of the first reclaim group, or nil.
func (c *Config) ReclaimUnit(ruid uint16) *ReclaimUnit {
	if int(ruid) >= len(c.rgs[0].RUs) {
		return nil
	}
	return &c.rgs[0].RUs[ruid]
}

// Enable turns the feature on.  The first enable, and the first one
// after a Reclaim, splits the device's free lines across the reclaim
// units.  Enabling while already enabled changes nothing.
func (c *Config) Enable(ctx context.Context) error {
	ctx = dlog.WithField(ctx, "fdp.op", "enable")
	if c.enabled {
		dlog.Infof(ctx, "already enabled, keeping the current placement")
		return nil
	}
	c.enabled = true
	if !c.distributed {
		dist, err := c.distribute(ctx)
		if err != nil {
			c.enabled = false
			return err
		}
		c.distributed = true
		dlog.Infof(ctx, "%v", dist)
	}
	dlog.Infof(ctx, "enabled")
	c.notify(ctx)
	return nil
}

// Disable turns the feature off.  Units keep their lines and
// counters; a later Enable picks up where they left off.
func (c *Config) Disable(ctx context.Context) error {
	ctx = dlog.WithField(ctx, "fdp.op", "disable")
	if !c.enabled {
		dlog.Infof(ctx, "already disabled")
		return nil
	}
	c.enabled = false
	dlog.Infof(ctx, "disabled")
	c.notify(ctx)
	return nil
}

// Reclaim returns every line held by every reclaim unit to the pool
// and resets the units, so that the next Enable distributes afresh.
// Data on those lines is discarded.  It is only allowed while the
// feature is disabled, and returns the number of lines given back.
func (c *Config) Reclaim(ctx context.Context) (int, error) {
	ctx = dlog.WithField(ctx, "fdp.op", "reclaim")
	if c.enabled {
		return 0, fmt.Errorf("fdp: reclaim while enabled: %w", ErrInvalidArgument)
	}
	var n int
	for rgi := range c.rgs {
		rg := &c.rgs[rgi]
		for rui := range rg.RUs {
			for _, line := range rg.RUs[rui].release() {
				if err := c.pool.PutFreeLine(line); err != nil {
					return n, fmt.Errorf("fdp: reclaim ru %d: %w: %v", rui, ErrInvariantViolation, err)
				}
				n++
			}
		}
	}
	c.distributed = false
	c.totals = Totals{}
	dlog.Infof(ctx, "returned %d lines, %d now free", n, c.pool.FreeLineCount())
	return n, nil
}

func (c *Config) notify(ctx context.Context) {
	if c.notifier != nil {
		c.notifier.SetPlacementCapability(ctx, c.enabled)
	}
}
