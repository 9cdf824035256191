// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ssd

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

// SSD is an attached emulated device.
type SSD struct {
	Name   string
	Params Params
	LM     *LineMgmt

	// WP is the device-global write pointer used by writes that do
	// not carry a placement handle.
	WP WritePointer
}

// New attaches a device.  Like the stock emulator, it opens the
// device-global write pointer on the first free line before anything
// else can draw from the pool.
func New(ctx context.Context, name string, params Params) (*SSD, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ssd := &SSD{
		Name:   name,
		Params: params,
		LM:     NewLineMgmt(int(params.TotalLines())),
	}
	line, ok := ssd.LM.GetFreeLine()
	if !ok {
		return nil, errors.New("ssd: no free line for the global write pointer")
	}
	ssd.WP.Reset(line)
	dlog.Infof(ctx, "attached %q: %v in %v lines of %v, %v free",
		name,
		textui.IEC(params.TotalBytes(), "B"),
		textui.Humanized(params.TotalLines()),
		textui.IEC(params.LineSize(), "B"),
		textui.Humanized(ssd.LM.FreeLineCount()))
	return ssd, nil
}

func (ssd *SSD) String() string {
	return fmt.Sprintf("ssd %q", ssd.Name)
}

// ErrNoSpace is returned when the device-global write pointer cannot
// take a write because the pool has no lines left.
var ErrNoSpace = errors.New("ssd: no free lines")

// Write places nbytes through the device-global write pointer,
// drawing fresh lines from the pool as lines fill.  The write is
// rejected whole if the pool cannot cover it.
func (ssd *SSD) Write(ctx context.Context, nbytes uint64) ([]PPA, error) {
	if ssd.WP.Line == nil {
		line, ok := ssd.LM.GetFreeLine()
		if !ok {
			return nil, ErrNoSpace
		}
		ssd.WP.Reset(line)
	}
	p := ssd.Params
	pages := p.PagesFor(nbytes)
	avail := ssd.WP.PagesLeft(p) + uint64(ssd.LM.FreeLineCount())*p.PagesPerLine()
	if pages > avail {
		return nil, fmt.Errorf("%v: write needs %d pages, %d left: %w", ssd, pages, avail, ErrNoSpace)
	}
	ppas := make([]PPA, 0, pages)
	for i := uint64(0); i < pages; i++ {
		ppas = append(ppas, ssd.WP.PPA())
		if !ssd.WP.Advance(p) {
			continue
		}
		line, ok := ssd.LM.GetFreeLine()
		if !ok {
			dlog.Warnf(ctx, "%v: global write pointer filled %v, pool is empty", ssd, ssd.WP.Line)
			ssd.WP.Clear()
			continue
		}
		ssd.WP.Reset(line)
	}
	return ppas, nil
}
