// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvme_test

import (
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
)

// 18 lines of 2 LUNs × 2 pages; the global write pointer keeps line 0
// so placement gets 17.
func testParams() ssd.Params {
	p := ssd.DefaultParams()
	p.PagesPerBlock = 2
	p.BlocksPerPlane = 18
	p.LUNsPerChannel = 1
	p.Channels = 2
	return p
}

func newTestController(t *testing.T, opts nvme.Options) (context.Context, *nvme.Controller, *nvme.HostMemory) {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	dev, err := ssd.New(ctx, "vssd0", testParams())
	require.NoError(t, err)
	mem := nvme.NewHostMemory()
	ctrl, err := nvme.NewController(ctx, dev, mem, opts)
	require.NoError(t, err)
	return ctx, ctrl, mem
}

func flip(ctx context.Context, t *testing.T, ctrl *nvme.Controller, f nvme.FlipCmd) {
	t.Helper()
	cpl := ctrl.AdminCmd(ctx, nvme.FlipCmdFor(f))
	require.Equal(t, nvme.StatusSuccess, cpl.Status, "flip %v", f)
}

const dnr = nvme.StatusDNR

func TestAttachDisabled(t *testing.T) {
	t.Parallel()
	ctx, ctrl, mem := newTestController(t, nvme.Options{})
	buf := mem.Alloc(4096)

	id := ctrl.Identify()
	assert.Equal(t, nvme.ModelNumber, id.Model)
	assert.Equal(t, nvme.SerialNumber, id.Serial)
	assert.Equal(t, nvme.DefaultONCS, id.ONCS)
	assert.Equal(t, nvme.DefaultOACS, id.OACS)
	assert.False(t, id.ONCS.Has(nvme.ONCSFDP))

	cpl := ctrl.AdminCmd(ctx, nvme.GetFeaturesCmd(nvme.FeatFDPMode))
	assert.Equal(t, nvme.Completion{Status: nvme.StatusSuccess, Result: 0}, cpl)

	for _, lid := range []nvme.LogID{nvme.LogFDPConfigs, nvme.LogFDPStats, nvme.LogFDPEvents} {
		cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(lid, 4096, buf))
		assert.Equal(t, nvme.StatusInvalidLogID|dnr, cpl.Status, "%v", lid)
	}
	assert.Empty(t, mem.Transferred(buf))

	cpl = ctrl.IOCmd(ctx, nvme.RUHStatusCmd(4096, buf))
	assert.Equal(t, nvme.StatusFDPDisabled|dnr, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.Cmd{Opcode: nvme.CmdIOMgmtSend})
	assert.Equal(t, nvme.StatusFDPDisabled|dnr, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.PlacedWriteCmd(0, 8, 0))
	assert.Equal(t, nvme.StatusFDPDisabled|dnr, cpl.Status)

	cpl = ctrl.IOCmd(ctx, nvme.WriteCmd(0, 8))
	assert.Equal(t, nvme.StatusSuccess, cpl.Status)
	assert.Equal(t, uint64(2), ctrl.TotalIOs())
}

func TestAttachEnabled(t *testing.T) {
	t.Parallel()
	_, ctrl, _ := newTestController(t, nvme.Options{EnableFDP: true})
	assert.True(t, ctrl.FDP().Enabled())
	id := ctrl.Identify()
	assert.True(t, id.ONCS.Has(nvme.ONCSFDP))
	assert.True(t, id.OACS.Has(nvme.OACSDirectives))
}

func TestFlipFDP(t *testing.T) {
	t.Parallel()
	ctx, ctrl, _ := newTestController(t, nvme.Options{})

	flip(ctx, t, ctrl, nvme.FlipEnableFDP)
	id := ctrl.Identify()
	assert.Equal(t, nvme.DefaultONCS|nvme.ONCSFDP, id.ONCS)
	assert.Equal(t, nvme.DefaultOACS|nvme.OACSDirectives, id.OACS)
	assert.Equal(t, uint32(1), ctrl.AdminCmd(ctx, nvme.GetFeaturesCmd(nvme.FeatFDPMode)).Result)
	assert.Equal(t, uint32(0), ctrl.AdminCmd(ctx, nvme.GetFeaturesCmd(nvme.FeatFDPEvents)).Result)

	var held []int
	for ruid := uint16(0); ruid < ctrl.FDP().NRUH(); ruid++ {
		held = append(held, ctrl.FDP().ReclaimUnit(ruid).LineCount())
	}
	assert.Equal(t, []int{5, 4, 4, 4}, held)
	assert.Zero(t, ctrl.Device().LM.FreeLineCount())

	flip(ctx, t, ctrl, nvme.FlipDisableFDP)
	id = ctrl.Identify()
	assert.Equal(t, nvme.DefaultONCS, id.ONCS)
	assert.Equal(t, nvme.DefaultOACS, id.OACS)
	assert.Equal(t, uint32(0), ctrl.AdminCmd(ctx, nvme.GetFeaturesCmd(nvme.FeatFDPMode)).Result)

	flip(ctx, t, ctrl, nvme.FlipEnableFDP)
	assert.True(t, ctrl.Identify().ONCS.Has(nvme.ONCSFDP))
	assert.Equal(t, 5, ctrl.FDP().ReclaimUnit(0).LineCount())
}

func TestPlacedWrite(t *testing.T) {
	t.Parallel()
	ctx, ctrl, mem := newTestController(t, nvme.Options{EnableFDP: true})

	cpl := ctrl.IOCmd(ctx, nvme.PlacedWriteCmd(0, 8, 2))
	require.Equal(t, nvme.StatusSuccess, cpl.Status)
	assert.Equal(t, uint64(4096), ctrl.FDP().ReclaimUnit(2).BytesWritten)

	cpl = ctrl.IOCmd(ctx, nvme.ReadCmd(0, 8))
	assert.Equal(t, nvme.StatusSuccess, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.PlacedReadCmd(0, 8, 2))
	assert.Equal(t, nvme.StatusSuccess, cpl.Status)
	assert.Equal(t, uint64(1), ctrl.FDP().ReclaimUnit(2).HostReadCmds)

	// 32MiB is far past a unit's capacity.
	cpl = ctrl.IOCmd(ctx, nvme.PlacedWriteCmd(0, 0x10000, 2))
	assert.Equal(t, nvme.StatusCapacityExceeded|dnr, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.PlacedWriteCmd(0, 8, fdp.MaxPlacementHandles+72))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)

	buf := mem.Alloc(fdp.StatsLogSize())
	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPStats, uint32(fdp.StatsLogSize()), buf))
	require.Equal(t, nvme.StatusSuccess, cpl.Status)
	stats, err := fdp.DecodeStatsLog(mem.Transferred(buf))
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), stats.HostBytesWritten[2])
	assert.Equal(t, uint64(1), stats.HostWriteCmds[2])
	assert.Equal(t, uint64(1), stats.HostReadCmds[2])
}

func TestRUHStatusCmd(t *testing.T) {
	t.Parallel()
	ctx, ctrl, mem := newTestController(t, nvme.Options{EnableFDP: true})
	buf := mem.Alloc(4096)
	size := uint32(ctrl.FDP().RUHStatusSize())

	cpl := ctrl.IOCmd(ctx, nvme.RUHStatusCmd(size-4, buf))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)
	assert.Empty(t, mem.Transferred(buf))

	bad := nvme.RUHStatusCmd(size, buf)
	bad.CDW10 = 2
	cpl = ctrl.IOCmd(ctx, bad)
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)

	cpl = ctrl.IOCmd(ctx, nvme.RUHStatusCmd(size, buf))
	require.Equal(t, nvme.StatusSuccess, cpl.Status)
	status, err := fdp.DecodeRUHStatus(mem.Transferred(buf))
	require.NoError(t, err)
	require.Len(t, status.Descrs, 4)
	assert.Equal(t, ctrl.FDP().ReclaimUnit(3).Capacity, status.Descrs[3].RUAMW)

	cpl = ctrl.IOCmd(ctx, nvme.Cmd{Opcode: nvme.CmdIOMgmtSend})
	assert.Equal(t, nvme.StatusInvalidOpcode|dnr, cpl.Status)
}

func TestGetLog(t *testing.T) {
	t.Parallel()
	ctx, ctrl, mem := newTestController(t, nvme.Options{EnableFDP: true})
	buf := mem.Alloc(4096)

	cpl := ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPConfigs, 4096, buf))
	require.Equal(t, nvme.StatusSuccess, cpl.Status)
	log, err := fdp.DecodeConfigLog(mem.Transferred(buf))
	require.NoError(t, err)
	assert.Equal(t, uint16(4), log.Descr.NRUH)
	assert.Equal(t, ctrl.Device().Params.BlockSize(), log.Descr.RUNS)

	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPEvents, 60, buf))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)
	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPEvents, 4096, buf))
	assert.Equal(t, nvme.StatusSuccess, cpl.Status)
	assert.Len(t, mem.Transferred(buf), 64)

	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogID(0x05), 4096, buf))
	assert.Equal(t, nvme.StatusInvalidLogID|dnr, cpl.Status)

	// Nothing is allocated at this address.
	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPStats, 640, 0xdead000))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)

	// A buffer too small for the transfer.
	small := mem.Alloc(16)
	cpl = ctrl.AdminCmd(ctx, nvme.GetLogPageCmd(nvme.LogFDPStats, 640, small))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)
}

func TestGlobalWriteExhaustion(t *testing.T) {
	t.Parallel()
	ctx, ctrl, _ := newTestController(t, nvme.Options{EnableFDP: true})

	// Line 0 holds 4 pages of 8 sectors.
	cpl := ctrl.IOCmd(ctx, nvme.WriteCmd(0, 32))
	require.Equal(t, nvme.StatusSuccess, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.WriteCmd(32, 1))
	assert.Equal(t, nvme.StatusCapacityExceeded|dnr, cpl.Status)
}

func TestFlipMisc(t *testing.T) {
	t.Parallel()
	ctx, ctrl, _ := newTestController(t, nvme.Options{})
	dev := ctrl.Device()

	flip(ctx, t, ctrl, nvme.FlipDisableDelayEmu)
	assert.Zero(t, dev.Params.PageReadLatency)
	assert.Zero(t, dev.Params.PageWriteLatency)
	assert.Zero(t, dev.Params.BlockEraseLatency)
	flip(ctx, t, ctrl, nvme.FlipEnableDelayEmu)
	assert.Equal(t, ssd.NANDReadLatency, dev.Params.PageReadLatency)
	assert.Equal(t, ssd.NANDProgLatency, dev.Params.PageWriteLatency)
	assert.Equal(t, ssd.NANDEraseLatency, dev.Params.BlockEraseLatency)

	flip(ctx, t, ctrl, nvme.FlipDisableGCDelay)
	assert.False(t, dev.Params.EnableGCDelay)
	flip(ctx, t, ctrl, nvme.FlipEnableGCDelay)
	assert.True(t, dev.Params.EnableGCDelay)

	flip(ctx, t, ctrl, nvme.FlipEnableLog)
	ctrl.IOCmd(ctx, nvme.WriteCmd(0, 1))
	assert.Equal(t, uint64(1), ctrl.TotalIOs())
	flip(ctx, t, ctrl, nvme.FlipResetAcct)
	assert.Zero(t, ctrl.TotalIOs())
	flip(ctx, t, ctrl, nvme.FlipDisableLog)

	flip(ctx, t, ctrl, nvme.FlipCmd(42))

	cpl := ctrl.AdminCmd(ctx, nvme.Cmd{Opcode: 0x7f})
	assert.Equal(t, nvme.StatusInvalidOpcode|dnr, cpl.Status)
	cpl = ctrl.IOCmd(ctx, nvme.Cmd{Opcode: 0x7f})
	assert.Equal(t, nvme.StatusInvalidOpcode|dnr, cpl.Status)
	cpl = ctrl.AdminCmd(ctx, nvme.GetFeaturesCmd(nvme.FeatureID(0x01)))
	assert.Equal(t, nvme.StatusInvalidField|dnr, cpl.Status)
}
