// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ssd

import (
	"fmt"

	"github.com/eapache/queue"

	"github.com/sincerejisoo/FEMU-FDP/lib/containers"
)

type LineID uint32

// Line is an erase-sized unit of capacity: block LineID of every LUN.
type Line struct {
	ID LineID
	// RUOwner is the reclaim unit the line was handed to, if any.
	RUOwner containers.Optional[uint16]

	free bool
}

func (l *Line) String() string {
	return fmt.Sprintf("line %d (owner %v)", l.ID, l.RUOwner)
}

// LineMgmt is the device-wide pool of lines.  Free lines are handed
// out in FIFO order.
type LineMgmt struct {
	lines []Line
	free  *queue.Queue // of *Line
}

// NewLineMgmt creates a pool of n lines, all of them free.
func NewLineMgmt(n int) *LineMgmt {
	lm := &LineMgmt{
		lines: make([]Line, n),
		free:  queue.New(),
	}
	for i := range lm.lines {
		lm.lines[i] = Line{
			ID:   LineID(i),
			free: true,
		}
		lm.free.Add(&lm.lines[i])
	}
	return lm
}

func (lm *LineMgmt) TotalLines() int    { return len(lm.lines) }
func (lm *LineMgmt) FreeLineCount() int { return lm.free.Length() }

// Line returns the line with the given ID, or nil if there is none.
func (lm *LineMgmt) Line(id LineID) *Line {
	if int(id) >= len(lm.lines) {
		return nil
	}
	return &lm.lines[id]
}

// GetFreeLine takes the oldest free line out of the pool.
func (lm *LineMgmt) GetFreeLine() (*Line, bool) {
	if lm.free.Length() == 0 {
		return nil, false
	}
	line := lm.free.Remove().(*Line) //nolint:forcetypeassert // Only *Line is ever added.
	line.free = false
	return line, true
}

// PutFreeLine returns a line to the pool, clearing its owner.
func (lm *LineMgmt) PutFreeLine(line *Line) error {
	if lm.Line(line.ID) != line {
		return fmt.Errorf("ssd: %v does not belong to this device", line)
	}
	if line.free {
		return fmt.Errorf("ssd: %v is already free", line)
	}
	line.RUOwner = containers.Optional[uint16]{}
	line.free = true
	lm.free.Add(line)
	return nil
}
