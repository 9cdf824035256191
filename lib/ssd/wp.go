// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ssd

import (
	"fmt"
)

// PPA is a physical page address.
type PPA struct {
	Ch  uint32
	LUN uint32
	Pl  uint32
	Blk uint32
	Pg  uint32
}

func (ppa PPA) String() string {
	return fmt.Sprintf("ch%d/lun%d/pl%d/blk%d/pg%d", ppa.Ch, ppa.LUN, ppa.Pl, ppa.Blk, ppa.Pg)
}

// WritePointer is the append position within a line.  Pages are laid
// out channel-first, then LUN, then page within the block, so that
// consecutive pages land on different channels.
type WritePointer struct {
	Line *Line

	Ch  uint32
	LUN uint32
	Pl  uint32
	Blk uint32
	Pg  uint32
}

// Reset points the write pointer at the first page of line.
func (wp *WritePointer) Reset(line *Line) {
	*wp = WritePointer{
		Line: line,
		Blk:  uint32(line.ID),
	}
}

// Clear detaches the write pointer from its line.
func (wp *WritePointer) Clear() {
	*wp = WritePointer{}
}

// PPA returns the page the next write goes to.
func (wp WritePointer) PPA() PPA {
	return PPA{
		Ch:  wp.Ch,
		LUN: wp.LUN,
		Pl:  wp.Pl,
		Blk: wp.Blk,
		Pg:  wp.Pg,
	}
}

// PagesLeft returns how many pages can still be written to the
// current line.
func (wp WritePointer) PagesLeft(p Params) uint64 {
	if wp.Line == nil {
		return 0
	}
	used := uint64(wp.Pg)*p.TotalLUNs() + uint64(wp.LUN)*uint64(p.Channels) + uint64(wp.Ch)
	return p.PagesPerLine() - used
}

// Advance moves past one page, returning true if that page was the
// last one in the line.  A full line leaves the pointer at page 0 of
// the same block; the caller is expected to Reset it onto a new line.
func (wp *WritePointer) Advance(p Params) (lineFull bool) {
	wp.Ch++
	if wp.Ch < p.Channels {
		return false
	}
	wp.Ch = 0
	wp.LUN++
	if wp.LUN < p.LUNsPerChannel {
		return false
	}
	wp.LUN = 0
	wp.Pg++
	if wp.Pg < p.PagesPerBlock {
		return false
	}
	wp.Pg = 0
	return true
}
