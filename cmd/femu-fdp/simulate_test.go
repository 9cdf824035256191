// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
)

func testDevice(t *testing.T) *device {
	t.Helper()
	params := ssd.DefaultParams()
	params.PagesPerBlock = 2
	params.BlocksPerPlane = 18
	params.LUNsPerChannel = 1
	params.Channels = 2
	g := geometryFlags{nruh: fdp.DefaultRUHs}
	dev, err := g.attach(dlog.NewTestContext(t, false), params)
	require.NoError(t, err)
	return dev
}

func TestParseWriteSpec(t *testing.T) {
	t.Parallel()
	ph, n, err := parseWriteSpec("3:0x1000")
	require.NoError(t, err)
	assert.Equal(t, uint16(3), ph)
	assert.Equal(t, uint64(4096), n)

	for _, bad := range []string{"3", "x:1", "1:y", "70000:1"} {
		_, _, err := parseWriteSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestSimulate(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	dev := testDevice(t)
	sim := &simulator{dev: dev}
	ph := uint16(1)

	steps := []Step{
		{Op: "write", PH: &ph, Bytes: 4096},
		{Op: "enable"},
		{Op: "write", PH: &ph, Bytes: 4096, Count: 20},
		{Op: "read", PH: &ph, Bytes: 4096},
		{Op: "report", Kind: "stats", Len: 640},
		{Op: "disable"},
		{Op: "reclaim"},
	}
	var results []StepResult
	for _, step := range steps {
		res, err := sim.run(ctx, step)
		require.NoError(t, err, step.Op)
		results = append(results, res)
	}

	assert.Equal(t, "fdp disabled (dnr)", results[0].Status)
	assert.Equal(t, "success", results[1].Status)
	// Unit 1 holds 4 lines of 4 pages.
	assert.Equal(t, "capacity exceeded (dnr)", results[2].Status)
	assert.Equal(t, 16, results[2].Done)
	assert.Equal(t, "success", results[3].Status)

	require.NotNil(t, results[4].Report)
	stats, ok := results[4].Report.Report.(fdp.StatsLog)
	require.True(t, ok)
	assert.Equal(t, uint64(16*4096), stats.HostBytesWritten[1])
	assert.Equal(t, uint64(1), stats.HostReadCmds[1])
	assert.Len(t, results[4].Report.Raw, 640)

	assert.Equal(t, 17, results[6].Lines)
	assert.Equal(t, 17, dev.Ctrl.Device().LM.FreeLineCount())

	_, err := sim.run(ctx, Step{Op: "bogus"})
	assert.Error(t, err)
	_, err = sim.run(ctx, Step{Op: "write", Bytes: 100})
	assert.Error(t, err)
	_, err = sim.run(ctx, Step{Op: "report", Kind: "bogus"})
	assert.Error(t, err)
}

func TestFetchReportShort(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	dev := testDevice(t)
	require.NoError(t, prepare(ctx, dev, []string{"0:8192"}))

	// A short stats transfer is returned raw, without a decode.
	res, err := fetchReport(ctx, dev, "stats", 16)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Len(t, res.Raw, 16)
	assert.Nil(t, res.Report)

	res, err = fetchReport(ctx, dev, "config", 16)
	require.NoError(t, err)
	assert.Equal(t, "invalid field (dnr)", res.Status)
	assert.Empty(t, res.Raw)

	_, err = fetchReport(ctx, dev, "config", 3)
	assert.Error(t, err)
}

func TestReadScenario(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	filename := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"steps": [
		{"op": "enable"},
		{"op": "write", "ph": 2, "bytes": 4096, "count": 3}
	]}`), 0o600))

	scenario, err := readJSONFile[Scenario](ctx, filename)
	require.NoError(t, err)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, "enable", scenario.Steps[0].Op)
	assert.Nil(t, scenario.Steps[0].PH)
	require.NotNil(t, scenario.Steps[1].PH)
	assert.Equal(t, uint16(2), *scenario.Steps[1].PH)
	assert.Equal(t, 3, scenario.Steps[1].Count)

	var out strings.Builder
	require.NoError(t, writeJSONFile(&out, scenario.Steps[0], prettyJSON))
	assert.JSONEq(t, `{"op": "enable"}`, out.String())
	assert.True(t, strings.HasSuffix(out.String(), "}\n"))
}
