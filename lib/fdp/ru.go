// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/containers"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
)

// ReclaimUnit is a host-addressable slice of the device's capacity,
// backed by a private queue of lines.  It is identified by its RUID
// and exposed through the reclaim unit handle of the same number.
type ReclaimUnit struct {
	RUID  uint16
	RGID  uint16
	RUHID uint16
	State RUHState

	// Capacity is the unit's share of the device, fixed at attach
	// time.
	Capacity          uint64
	BytesWritten      uint64
	MediaBytesWritten uint64
	HostWriteCmds     uint64
	HostReadCmds      uint64
	LineSwitches      uint64

	wp        ssd.WritePointer
	freeLines containers.LinkedList[*ssd.Line]
	fullLines []*ssd.Line
	// exhausted is set when the active line fills with nothing left
	// in the queue.  It is cleared only by a reclaim.
	exhausted bool
}

// WriteResult describes a successful placed write.
type WriteResult struct {
	RUID uint16
	// PPAs are the pages the write landed on, in order.
	PPAs []ssd.PPA
	// LineSwitches is how many times the write pointer moved onto a
	// fresh line while taking this write.
	LineSwitches int
}

// Remaining returns how many bytes the unit can still take before
// reaching its capacity.  If more has been written than the capacity
// allows it returns 0.
func (ru *ReclaimUnit) Remaining() uint64 {
	if ru.BytesWritten >= ru.Capacity {
		return 0
	}
	return ru.Capacity - ru.BytesWritten
}

// overrun reports whether the unit's accounting has gone past its
// capacity, which no sequence of accepted writes should be able to
// cause.
func (ru *ReclaimUnit) overrun() bool {
	return ru.BytesWritten > ru.Capacity
}

// FreeLineCount is the number of lines queued behind the active one.
func (ru *ReclaimUnit) FreeLineCount() int { return ru.freeLines.Len() }

// FullLineCount is the number of lines the unit has filled.
func (ru *ReclaimUnit) FullLineCount() int { return len(ru.fullLines) }

// LineCount is the number of lines the unit can still write to, the
// active one included.
func (ru *ReclaimUnit) LineCount() int {
	n := ru.freeLines.Len()
	if ru.wp.Line != nil {
		n++
	}
	return n
}

// ActiveLine returns the line the write pointer is on, or nil.
func (ru *ReclaimUnit) ActiveLine() *ssd.Line { return ru.wp.Line }

// WritePointer returns a copy of the unit's write pointer.
func (ru *ReclaimUnit) WritePointer() ssd.WritePointer { return ru.wp }

// Exhausted reports whether the unit has run out of lines.
func (ru *ReclaimUnit) Exhausted() bool { return ru.exhausted }

func (ru *ReclaimUnit) String() string {
	return fmt.Sprintf("ru %d (rg %d, %v, %d lines)", ru.RUID, ru.RGID, ru.State, ru.LineCount())
}

func (ru *ReclaimUnit) assign(line *ssd.Line) {
	line.RUOwner = containers.OptionalValue(ru.RUID)
	ru.freeLines.Store(line)
}

// activate moves the first queued line under the write pointer.
func (ru *ReclaimUnit) activate() bool {
	line, ok := ru.freeLines.PopOldest()
	if !ok {
		return false
	}
	ru.wp.Reset(line)
	ru.State = RUHHostSpecified
	return true
}

// release detaches every line from the unit and resets it to the
// unused state.  Capacity is kept.
func (ru *ReclaimUnit) release() []*ssd.Line {
	lines := ru.fullLines
	if ru.wp.Line != nil {
		lines = append(lines, ru.wp.Line)
	}
	for {
		line, ok := ru.freeLines.PopOldest()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	*ru = ReclaimUnit{
		RUID:     ru.RUID,
		RGID:     ru.RGID,
		RUHID:    ru.RUHID,
		Capacity: ru.Capacity,
	}
	return lines
}

// Write places nbytes on the unit.  The write is either accepted
// whole or rejected with nothing changed; a write that cannot fit in
// the remaining capacity or the remaining lines is rejected with
// ErrResourceExhausted.
func (ru *ReclaimUnit) Write(ctx context.Context, p ssd.Params, nbytes uint64) (WriteResult, error) {
	if nbytes == 0 {
		return WriteResult{}, fmt.Errorf("ru %d: zero-length write: %w", ru.RUID, ErrInvalidArgument)
	}
	if ru.State != RUHHostSpecified || ru.wp.Line == nil {
		return WriteResult{}, fmt.Errorf("ru %d: no active line: %w", ru.RUID, ErrResourceExhausted)
	}
	if nbytes > ru.Remaining() {
		return WriteResult{}, fmt.Errorf("ru %d: write of %d bytes exceeds the %d remaining: %w",
			ru.RUID, nbytes, ru.Remaining(), ErrResourceExhausted)
	}
	pages := p.PagesFor(nbytes)
	avail := ru.wp.PagesLeft(p) + uint64(ru.freeLines.Len())*p.PagesPerLine()
	if pages > avail {
		return WriteResult{}, fmt.Errorf("ru %d: write needs %d pages but only %d are left: %w",
			ru.RUID, pages, avail, ErrResourceExhausted)
	}

	res := WriteResult{
		RUID: ru.RUID,
		PPAs: make([]ssd.PPA, 0, pages),
	}
	for i := uint64(0); i < pages; i++ {
		res.PPAs = append(res.PPAs, ru.wp.PPA())
		if ru.wp.Advance(p) {
			if ru.nextLine(ctx) {
				res.LineSwitches++
			}
		}
	}
	ru.BytesWritten += nbytes
	ru.MediaBytesWritten += nbytes
	ru.HostWriteCmds++
	ru.LineSwitches += uint64(res.LineSwitches)
	return res, nil
}

func (ru *ReclaimUnit) nextLine(ctx context.Context) bool {
	full := ru.wp.Line
	ru.fullLines = append(ru.fullLines, full)
	line, ok := ru.freeLines.PopOldest()
	if !ok {
		dlog.Warnf(ctx, "ru %d: %v is full and no lines are left", ru.RUID, full)
		ru.wp.Clear()
		ru.exhausted = true
		return false
	}
	dlog.Debugf(ctx, "ru %d: %v is full, moving to %v", ru.RUID, full, line)
	ru.wp.Reset(line)
	return true
}
