// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/jsonutil"
	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
)

type reportKind struct {
	cmd    func(nbytes uint32, prp uint64) nvme.Cmd
	admin  bool
	decode func([]byte) (any, error)
}

var reportKinds = map[string]reportKind{
	"status": {
		cmd:    nvme.RUHStatusCmd,
		decode: func(dat []byte) (any, error) { return fdp.DecodeRUHStatus(dat) },
	},
	"config": {
		cmd: func(n uint32, prp uint64) nvme.Cmd {
			return nvme.GetLogPageCmd(nvme.LogFDPConfigs, n, prp)
		},
		admin:  true,
		decode: func(dat []byte) (any, error) { return fdp.DecodeConfigLog(dat) },
	},
	"stats": {
		cmd: func(n uint32, prp uint64) nvme.Cmd {
			return nvme.GetLogPageCmd(nvme.LogFDPStats, n, prp)
		},
		admin:  true,
		decode: func(dat []byte) (any, error) { return fdp.DecodeStatsLog(dat) },
	},
	"events": {
		cmd: func(n uint32, prp uint64) nvme.Cmd {
			return nvme.GetLogPageCmd(nvme.LogFDPEvents, n, prp)
		},
		admin:  true,
		decode: func(dat []byte) (any, error) { return fdp.DecodeEventsLog(dat) },
	},
}

func reportKindNames() []string {
	names := maps.Keys(reportKinds)
	slices.Sort(names)
	return names
}

// defaultReportLen is big enough for every report at the default
// handle count.
const defaultReportLen = 4096

type reportResult struct {
	Kind   string
	Status string
	// Report is the decoded report, if the transfer was complete
	// enough to decode.
	Report any               `json:",omitempty"`
	Raw    jsonutil.HexBytes `json:",omitempty"`
}

// fetchReport issues the command for report kind with a host buffer
// of nbytes and collects what the controller transferred.
func fetchReport(ctx context.Context, dev *device, kind string, nbytes uint32) (reportResult, error) {
	rk, ok := reportKinds[kind]
	if !ok {
		return reportResult{}, fmt.Errorf("unknown report kind %q (want one of %s)",
			kind, strings.Join(reportKindNames(), ", "))
	}
	if nbytes == 0 || nbytes%4 != 0 {
		return reportResult{}, fmt.Errorf("report length must be a non-zero multiple of 4, got %d", nbytes)
	}
	buf := dev.Mem.Alloc(int(nbytes))
	defer dev.Mem.Free(buf)

	cmd := rk.cmd(nbytes, buf)
	var cpl nvme.Completion
	if rk.admin {
		cpl = dev.Ctrl.AdminCmd(ctx, cmd)
	} else {
		cpl = dev.Ctrl.IOCmd(ctx, cmd)
	}
	ret := reportResult{
		Kind:   kind,
		Status: cpl.Status.String(),
	}
	if !cpl.Status.OK() {
		return ret, nil
	}
	ret.Raw = append(jsonutil.HexBytes(nil), dev.Mem.Transferred(buf)...)
	if report, err := rk.decode(ret.Raw); err == nil {
		ret.Report = report
	}
	return ret, nil
}

// parseWriteSpec parses a PH:BYTES pair.
func parseWriteSpec(str string) (ph uint16, nbytes uint64, err error) {
	phStr, bytesStr, ok := strings.Cut(str, ":")
	if !ok {
		return 0, 0, fmt.Errorf("write %q: expected PH:BYTES", str)
	}
	_ph, err := strconv.ParseUint(phStr, 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("write %q: placement handle: %w", str, err)
	}
	nbytes, err = strconv.ParseUint(bytesStr, 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("write %q: byte count: %w", str, err)
	}
	return uint16(_ph), nbytes, nil
}

// writeCmd builds the write for nbytes, which must be whole sectors.
func writeCmd(dev *device, ph *uint16, slba uint64, nbytes uint64) (nvme.Cmd, error) {
	secsz := uint64(dev.Ctrl.Device().Params.SectorSize)
	if nbytes == 0 || nbytes%secsz != 0 {
		return nvme.Cmd{}, fmt.Errorf("write of %d bytes is not a whole number of %d-byte sectors", nbytes, secsz)
	}
	nlb := nbytes / secsz
	if nlb > 0x10000 {
		return nvme.Cmd{}, fmt.Errorf("write of %d sectors exceeds the 65536-sector command limit", nlb)
	}
	if ph == nil {
		return nvme.WriteCmd(slba, uint32(nlb)), nil
	}
	return nvme.PlacedWriteCmd(slba, uint32(nlb), *ph), nil
}
