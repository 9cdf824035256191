// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp_test

import (
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
)

const pageSize = 4096

// testParams is 17 lines of 2 LUNs × 2 pages, so 4 pages (16KiB)
// per line and 272KiB in total; with 4 handles each unit gets 68KiB.
func testParams() ssd.Params {
	return ssd.Params{
		SectorSize:     512,
		SectorsPerPage: 8,
		PagesPerBlock:  2,
		BlocksPerPlane: 17,
		PlanesPerLUN:   1,
		LUNsPerChannel: 1,
		Channels:       2,
	}
}

type notifyRecorder struct {
	calls []bool
}

func (r *notifyRecorder) SetPlacementCapability(_ context.Context, enabled bool) {
	r.calls = append(r.calls, enabled)
}

func newTestConfig(t *testing.T, nlines int, opts fdp.Options) (context.Context, *fdp.Config, *ssd.LineMgmt) {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	pool := ssd.NewLineMgmt(nlines)
	cfg, err := fdp.NewConfig(ctx, testParams(), pool, opts)
	require.NoError(t, err)
	return ctx, cfg, pool
}

func lineCounts(cfg *fdp.Config) (held, queued []int) {
	for ruid := uint16(0); ruid < cfg.NRUH(); ruid++ {
		ru := cfg.ReclaimUnit(ruid)
		held = append(held, ru.LineCount())
		queued = append(queued, ru.FreeLineCount())
	}
	return held, queued
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	_, cfg, pool := newTestConfig(t, 17, fdp.Options{})
	assert.False(t, cfg.Enabled())
	assert.Equal(t, uint16(fdp.DefaultRUHs), cfg.NRUH())
	assert.Equal(t, uint32(1), cfg.NRG())
	assert.Equal(t, fdp.DefaultAttributes, cfg.Attributes())
	assert.Equal(t, 17, pool.FreeLineCount())
	for ruid := uint16(0); ruid < cfg.NRUH(); ruid++ {
		ru := cfg.ReclaimUnit(ruid)
		assert.Equal(t, fdp.RUHUnused, ru.State)
		assert.Equal(t, uint64(68*1024), ru.Capacity)
		assert.Equal(t, ruid, ru.RUHID)
		assert.Zero(t, ru.LineCount())
	}
	assert.Nil(t, cfg.ReclaimUnit(4))

	_, err := fdp.NewConfig(dlog.NewTestContext(t, false), testParams(), pool, fdp.Options{NRUH: fdp.MaxPlacementHandles + 1})
	assert.ErrorIs(t, err, fdp.ErrInvalidArgument)

	_, err = fdp.NewConfig(dlog.NewTestContext(t, false), ssd.Params{}, pool, fdp.Options{})
	assert.Error(t, err)
}

func TestEnableDistributes(t *testing.T) {
	t.Parallel()
	var rec notifyRecorder
	ctx, cfg, pool := newTestConfig(t, 17, fdp.Options{Notifier: &rec})
	require.NoError(t, cfg.Enable(ctx))
	assert.True(t, cfg.Enabled())
	assert.Equal(t, []bool{true}, rec.calls)

	held, queued := lineCounts(cfg)
	assert.Equal(t, []int{5, 4, 4, 4}, held)
	assert.Equal(t, []int{4, 3, 3, 3}, queued)
	assert.Zero(t, pool.FreeLineCount())

	for ruid, first := range []ssd.LineID{0, 5, 9, 13} {
		ru := cfg.ReclaimUnit(uint16(ruid))
		assert.Equal(t, fdp.RUHHostSpecified, ru.State)
		require.NotNil(t, ru.ActiveLine())
		assert.Equal(t, first, ru.ActiveLine().ID)
		assert.Equal(t, uint32(first), ru.WritePointer().Blk)
	}
	for id := ssd.LineID(0); id < 17; id++ {
		line := pool.Line(id)
		require.True(t, line.RUOwner.OK, "line %d", id)
	}
	assert.Equal(t, uint16(0), pool.Line(4).RUOwner.Val)
	assert.Equal(t, uint16(1), pool.Line(5).RUOwner.Val)
	assert.Equal(t, uint16(3), pool.Line(16).RUOwner.Val)
}

func TestEnableWithFewLines(t *testing.T) {
	t.Parallel()
	ctx, cfg, pool := newTestConfig(t, 2, fdp.Options{})
	require.NoError(t, cfg.Enable(ctx))
	held, _ := lineCounts(cfg)
	assert.Equal(t, []int{1, 1, 0, 0}, held)
	assert.Zero(t, pool.FreeLineCount())
	assert.Equal(t, fdp.RUHUnused, cfg.ReclaimUnit(2).State)

	_, err := cfg.Write(ctx, 2, pageSize)
	assert.ErrorIs(t, err, fdp.ErrResourceExhausted)
	_, err = cfg.Write(ctx, 1, pageSize)
	assert.NoError(t, err)
}

func TestEnableIsIdempotent(t *testing.T) {
	t.Parallel()
	var rec notifyRecorder
	ctx, cfg, _ := newTestConfig(t, 17, fdp.Options{Notifier: &rec})
	require.NoError(t, cfg.Enable(ctx))
	_, err := cfg.Write(ctx, 0, pageSize)
	require.NoError(t, err)

	require.NoError(t, cfg.Enable(ctx))
	held, _ := lineCounts(cfg)
	assert.Equal(t, []int{5, 4, 4, 4}, held)
	assert.Equal(t, uint64(pageSize), cfg.ReclaimUnit(0).BytesWritten)
	assert.Equal(t, []bool{true}, rec.calls)
}

func TestDisable(t *testing.T) {
	t.Parallel()
	var rec notifyRecorder
	ctx, cfg, _ := newTestConfig(t, 17, fdp.Options{Notifier: &rec})
	require.NoError(t, cfg.Disable(ctx))
	assert.Empty(t, rec.calls)

	require.NoError(t, cfg.Enable(ctx))
	_, err := cfg.Write(ctx, 0, pageSize)
	require.NoError(t, err)
	require.NoError(t, cfg.Disable(ctx))
	assert.False(t, cfg.Enabled())
	assert.Equal(t, []bool{true, false}, rec.calls)

	_, err = cfg.Write(ctx, 0, pageSize)
	assert.ErrorIs(t, err, fdp.ErrFeatureDisabled)
	assert.ErrorIs(t, cfg.Read(0), fdp.ErrFeatureDisabled)

	// Units keep their lines across a disable.
	held, _ := lineCounts(cfg)
	assert.Equal(t, []int{5, 4, 4, 4}, held)

	require.NoError(t, cfg.Enable(ctx))
	res, err := cfg.Write(ctx, 0, pageSize)
	require.NoError(t, err)
	assert.Equal(t, ssd.PPA{Ch: 1, Blk: 0}, res.PPAs[0])
	assert.Equal(t, uint64(2*pageSize), cfg.ReclaimUnit(0).BytesWritten)
}

func TestReclaim(t *testing.T) {
	t.Parallel()
	ctx, cfg, pool := newTestConfig(t, 17, fdp.Options{})
	require.NoError(t, cfg.Enable(ctx))
	_, err := cfg.Write(ctx, 1, 5*pageSize)
	require.NoError(t, err)

	_, err = cfg.Reclaim(ctx)
	assert.ErrorIs(t, err, fdp.ErrInvalidArgument)

	require.NoError(t, cfg.Disable(ctx))
	n, err := cfg.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.Equal(t, 17, pool.FreeLineCount())
	assert.Equal(t, fdp.Totals{}, cfg.Totals())
	for ruid := uint16(0); ruid < cfg.NRUH(); ruid++ {
		ru := cfg.ReclaimUnit(ruid)
		assert.Equal(t, fdp.RUHUnused, ru.State)
		assert.Zero(t, ru.BytesWritten)
		assert.Zero(t, ru.LineCount())
		assert.Equal(t, uint64(68*1024), ru.Capacity)
	}
	assert.False(t, pool.Line(6).RUOwner.OK)

	require.NoError(t, cfg.Enable(ctx))
	held, _ := lineCounts(cfg)
	assert.Equal(t, []int{5, 4, 4, 4}, held)
}

func TestWritePlacement(t *testing.T) {
	t.Parallel()
	ctx, cfg, _ := newTestConfig(t, 17, fdp.Options{})
	require.NoError(t, cfg.Enable(ctx))

	res, err := cfg.Write(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), res.RUID)
	assert.Equal(t, []ssd.PPA{{Ch: 0, LUN: 0, Blk: 0, Pg: 0}}, res.PPAs)
	assert.Zero(t, res.LineSwitches)

	// Three more pages fill line 0; the fourth lands on line 1.
	res, err = cfg.Write(ctx, 0, 4*pageSize)
	require.NoError(t, err)
	assert.Equal(t, []ssd.PPA{
		{Ch: 1, Blk: 0, Pg: 0},
		{Ch: 0, Blk: 0, Pg: 1},
		{Ch: 1, Blk: 0, Pg: 1},
		{Ch: 0, Blk: 1, Pg: 0},
	}, res.PPAs)
	assert.Equal(t, 1, res.LineSwitches)

	ru := cfg.ReclaimUnit(0)
	assert.Equal(t, uint64(4*pageSize+3), ru.BytesWritten)
	assert.Equal(t, ru.BytesWritten, ru.MediaBytesWritten)
	assert.Equal(t, uint64(2), ru.HostWriteCmds)
	assert.Equal(t, uint64(1), ru.LineSwitches)
	assert.Equal(t, 3, ru.FreeLineCount())
	assert.Equal(t, 1, ru.FullLineCount())
	assert.Equal(t, fdp.Totals{
		HostBytes:  4*pageSize + 3,
		MediaBytes: 4*pageSize + 3,
		RUSwitches: 1,
	}, cfg.Totals())

	// Unmapped handles fall back to unit 0.
	ruhid, err := cfg.RUHFor(50)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), ruhid)
	res, err = cfg.Write(ctx, 50, pageSize)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), res.RUID)

	res, err = cfg.Write(ctx, 3, pageSize)
	require.NoError(t, err)
	assert.Equal(t, []ssd.PPA{{Blk: 13}}, res.PPAs)

	require.NoError(t, cfg.Read(3))
	assert.Equal(t, uint64(1), cfg.ReclaimUnit(3).HostReadCmds)
}

func TestWriteRejects(t *testing.T) {
	t.Parallel()
	ctx, cfg, _ := newTestConfig(t, 17, fdp.Options{})
	require.NoError(t, cfg.Enable(ctx))

	_, err := cfg.Write(ctx, 0, 0)
	assert.ErrorIs(t, err, fdp.ErrInvalidArgument)
	_, err = cfg.Write(ctx, fdp.MaxPlacementHandles, pageSize)
	assert.ErrorIs(t, err, fdp.ErrInvalidArgument)
	_, err = cfg.Lookup(fdp.MaxPlacementHandles)
	assert.ErrorIs(t, err, fdp.ErrInvalidArgument)

	// Unit 0 holds 5 lines (80KiB) but may only take 68KiB.
	ru := cfg.ReclaimUnit(0)
	_, err = cfg.Write(ctx, 0, ru.Capacity+1)
	assert.ErrorIs(t, err, fdp.ErrResourceExhausted)
	assert.Zero(t, ru.BytesWritten)
	assert.Zero(t, ru.HostWriteCmds)
	assert.Equal(t, ssd.PPA{}, ru.WritePointer().PPA())

	_, err = cfg.Write(ctx, 0, ru.Capacity)
	require.NoError(t, err)
	assert.Zero(t, ru.Remaining())
	_, err = cfg.Write(ctx, 0, 1)
	assert.ErrorIs(t, err, fdp.ErrResourceExhausted)
	assert.Equal(t, uint64(1), ru.HostWriteCmds)
}

func TestWriteRunsOutOfLines(t *testing.T) {
	t.Parallel()
	ctx, cfg, _ := newTestConfig(t, 17, fdp.Options{})
	require.NoError(t, cfg.Enable(ctx))

	// Unit 1 holds 4 lines (64KiB), less than its 68KiB capacity.
	ru := cfg.ReclaimUnit(1)
	_, err := cfg.Write(ctx, 1, 65*1024)
	assert.ErrorIs(t, err, fdp.ErrResourceExhausted)
	assert.Zero(t, ru.BytesWritten)

	res, err := cfg.Write(ctx, 1, 64*1024)
	require.NoError(t, err)
	assert.Len(t, res.PPAs, 16)
	assert.Equal(t, 3, res.LineSwitches)
	assert.True(t, ru.Exhausted())
	assert.Equal(t, 4, ru.FullLineCount())
	assert.Zero(t, ru.LineCount())
	assert.Nil(t, ru.ActiveLine())
	assert.Equal(t, fdp.RUHHostSpecified, ru.State)
	assert.Equal(t, uint64(4*1024), ru.Remaining())

	_, err = cfg.Write(ctx, 1, 1)
	assert.ErrorIs(t, err, fdp.ErrResourceExhausted)
	assert.Equal(t, uint64(64*1024), ru.BytesWritten)

	// Other units are unaffected.
	_, err = cfg.Write(ctx, 2, pageSize)
	assert.NoError(t, err)
}

func TestStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "host-specified", fdp.RUHHostSpecified.String())
	assert.Equal(t, "RUHState(9)", fdp.RUHState(9).String())
	assert.Equal(t, "0x1(RUH_INITIALLY_SPECIFIED)", fdp.DefaultAttributes.String())
	assert.Equal(t, "0x81(RUH_INITIALLY_SPECIFIED|VALID)", (fdp.AttrValid | fdp.AttrRUHInitiallySpecified).String())
	assert.Equal(t, "distributed 9 free lines: ru0=3 ru1=3 ru2=3, 0 left over",
		fdp.Distribution{FreeBefore: 9, Lines: []int{3, 3, 3}}.String())
}
