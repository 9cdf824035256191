// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"
)

// Distribution is the outcome of splitting the free pool across
// reclaim units.
type Distribution struct {
	FreeBefore int
	FreeAfter  int
	// Lines is how many lines each unit was given, indexed by RUID.
	Lines []int
}

func (d Distribution) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "distributed %d free lines:", d.FreeBefore)
	for ruid, n := range d.Lines {
		fmt.Fprintf(&out, " ru%d=%d", ruid, n)
	}
	fmt.Fprintf(&out, ", %d left over", d.FreeAfter)
	return out.String()
}

// Assigned is the total number of lines handed out.
func (d Distribution) Assigned() int {
	var sum int
	for _, n := range d.Lines {
		sum += n
	}
	return sum
}

// distribute hands every free line to a reclaim unit of the first
// group: each unit gets the same share, and the first F%N units one
// more.  Each unit then activates its first line.  A unit that comes
// up empty is left unused and logged; that is not an error.
func (c *Config) distribute(ctx context.Context) (Distribution, error) {
	ctx = dlog.WithField(ctx, "fdp.op", "distribute")
	if !c.enabled {
		return Distribution{}, fmt.Errorf("fdp: distribute: %w", ErrFeatureDisabled)
	}
	rg := &c.rgs[0]
	nru := len(rg.RUs)
	total := c.pool.FreeLineCount()
	base, rem := total/nru, total%nru

	dist := Distribution{
		FreeBefore: total,
		Lines:      make([]int, nru),
	}
	for rui := range rg.RUs {
		ru := &rg.RUs[rui]
		want := base
		if rui < rem {
			want++
		}
		for i := 0; i < want; i++ {
			line, ok := c.pool.GetFreeLine()
			if !ok {
				dlog.Errorf(ctx, "pool ran dry after %d of %d lines for ru %d", i, want, ru.RUID)
				break
			}
			ru.assign(line)
			dist.Lines[rui]++
		}
		if ru.LineCount() != dist.Lines[rui] {
			return dist, fmt.Errorf("fdp: distribute: ru %d holds %d lines but was given %d: %w",
				ru.RUID, ru.LineCount(), dist.Lines[rui], ErrInvariantViolation)
		}
		if !ru.activate() {
			dlog.Errorf(ctx, "ru %d got no lines, leaving it unused", ru.RUID)
			continue
		}
		dlog.Debugf(ctx, "ru %d: active %v, %d queued", ru.RUID, ru.ActiveLine(), ru.FreeLineCount())
	}
	dist.FreeAfter = c.pool.FreeLineCount()
	if assigned := dist.Assigned(); assigned > total || assigned != total-dist.FreeAfter {
		return dist, fmt.Errorf("fdp: distribute: assigned %d lines from a pool of %d, %d left: %w",
			assigned, total, dist.FreeAfter, ErrInvariantViolation)
	}
	return dist, nil
}
