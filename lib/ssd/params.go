// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ssd models the parts of the emulated flash device that the
// placement core consumes: the geometry, the pool of erase-sized
// lines, and write pointers that walk a line page by page.
package ssd

import (
	"fmt"
	"time"

	"github.com/datawire/dlib/derror"
)

// NAND latencies used when delay emulation is switched on.
const (
	NANDReadLatency  = 40 * time.Microsecond
	NANDProgLatency  = 200 * time.Microsecond
	NANDEraseLatency = 2 * time.Millisecond
)

// Params is the device geometry plus the timing knobs that the
// emulator's flip command toggles.
type Params struct {
	SectorSize     uint32 // bytes per sector
	SectorsPerPage uint32
	PagesPerBlock  uint32
	BlocksPerPlane uint32
	PlanesPerLUN   uint32
	LUNsPerChannel uint32
	Channels       uint32

	PageReadLatency    time.Duration
	PageWriteLatency   time.Duration
	BlockEraseLatency  time.Duration
	ChannelXferLatency time.Duration
	EnableGCDelay      bool
}

// DefaultParams returns the geometry of the stock blackbox-SSD
// device: 8 channels × 8 LUNs × 256 blocks × 256 pages of 4KiB,
// 16GiB in total.
func DefaultParams() Params {
	return Params{
		SectorSize:     512,
		SectorsPerPage: 8,
		PagesPerBlock:  256,
		BlocksPerPlane: 256,
		PlanesPerLUN:   1,
		LUNsPerChannel: 8,
		Channels:       8,

		PageReadLatency:   NANDReadLatency,
		PageWriteLatency:  NANDProgLatency,
		BlockEraseLatency: NANDEraseLatency,
		EnableGCDelay:     true,
	}
}

// Validate reports every field that would make the geometry
// unusable.
func (p Params) Validate() error {
	var errs derror.MultiError
	for _, field := range []struct {
		name string
		val  uint32
	}{
		{"SectorSize", p.SectorSize},
		{"SectorsPerPage", p.SectorsPerPage},
		{"PagesPerBlock", p.PagesPerBlock},
		{"BlocksPerPlane", p.BlocksPerPlane},
		{"PlanesPerLUN", p.PlanesPerLUN},
		{"LUNsPerChannel", p.LUNsPerChannel},
		{"Channels", p.Channels},
	} {
		if field.val == 0 {
			errs = append(errs, fmt.Errorf("ssd geometry: %s must be non-zero", field.name))
		}
	}
	for _, field := range []struct {
		name string
		val  time.Duration
	}{
		{"PageReadLatency", p.PageReadLatency},
		{"PageWriteLatency", p.PageWriteLatency},
		{"BlockEraseLatency", p.BlockEraseLatency},
		{"ChannelXferLatency", p.ChannelXferLatency},
	} {
		if field.val < 0 {
			errs = append(errs, fmt.Errorf("ssd timing: %s must not be negative: %v", field.name, field.val))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p Params) PageSize() uint64     { return uint64(p.SectorSize) * uint64(p.SectorsPerPage) }
func (p Params) BlockSize() uint64    { return uint64(p.PagesPerBlock) * p.PageSize() }
func (p Params) BlocksPerLUN() uint64 { return uint64(p.BlocksPerPlane) * uint64(p.PlanesPerLUN) }
func (p Params) TotalLUNs() uint64    { return uint64(p.LUNsPerChannel) * uint64(p.Channels) }
func (p Params) TotalBlocks() uint64  { return p.BlocksPerLUN() * p.TotalLUNs() }
func (p Params) TotalPages() uint64   { return p.TotalBlocks() * uint64(p.PagesPerBlock) }
func (p Params) TotalBytes() uint64   { return p.TotalPages() * p.PageSize() }

// A line is one block from every LUN, so there are as many lines as
// there are blocks in a LUN.

func (p Params) BlocksPerLine() uint64 { return p.TotalLUNs() }
func (p Params) PagesPerLine() uint64  { return p.BlocksPerLine() * uint64(p.PagesPerBlock) }
func (p Params) LineSize() uint64      { return p.PagesPerLine() * p.PageSize() }
func (p Params) TotalLines() uint64    { return p.BlocksPerLUN() }

// PagesFor returns how many pages a write of nbytes occupies.
func (p Params) PagesFor(nbytes uint64) uint64 {
	pgsz := p.PageSize()
	return (nbytes + pgsz - 1) / pgsz
}
