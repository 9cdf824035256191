// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

type geometryFlags struct {
	file      string
	params    ssd.Params
	nruh      uint16
	enableFDP bool
}

type geometryField struct {
	flag  string
	usage string
	get   func(*ssd.Params) *uint32
}

var geometryFields = []geometryField{
	{"sector-size", "bytes per sector (the logical block size)", func(p *ssd.Params) *uint32 { return &p.SectorSize }},
	{"sectors-per-page", "sectors per flash page", func(p *ssd.Params) *uint32 { return &p.SectorsPerPage }},
	{"pages-per-block", "pages per erase block", func(p *ssd.Params) *uint32 { return &p.PagesPerBlock }},
	{"blocks-per-plane", "blocks per plane", func(p *ssd.Params) *uint32 { return &p.BlocksPerPlane }},
	{"planes-per-lun", "planes per LUN", func(p *ssd.Params) *uint32 { return &p.PlanesPerLUN }},
	{"luns-per-channel", "LUNs per channel", func(p *ssd.Params) *uint32 { return &p.LUNsPerChannel }},
	{"channels", "number of channels", func(p *ssd.Params) *uint32 { return &p.Channels }},
}

func (g *geometryFlags) register(flags *pflag.FlagSet) {
	g.params = ssd.DefaultParams()
	flags.StringVar(&g.file, "geometry", "", "load the device geometry from JSON file `geometry.json`; other geometry flags override it")
	for _, field := range geometryFields {
		flags.Uint32Var(field.get(&g.params), field.flag, *field.get(&g.params), field.usage)
	}
	flags.Uint16Var(&g.nruh, "handles", fdp.DefaultRUHs, "number of reclaim unit handles")
	flags.BoolVar(&g.enableFDP, "enable-fdp", false, "enable flexible data placement at attach time")
}

// resolve returns the geometry: defaults, then the geometry file,
// then any geometry flags given explicitly.
func (g *geometryFlags) resolve(ctx context.Context, flags *pflag.FlagSet) (ssd.Params, error) {
	params := ssd.DefaultParams()
	if g.file != "" {
		var err error
		params, err = readJSONFile[ssd.Params](ctx, g.file)
		if err != nil {
			return ssd.Params{}, fmt.Errorf("--geometry=%q: %w", g.file, err)
		}
	}
	for _, field := range geometryFields {
		if flags.Changed(field.flag) {
			*field.get(&params) = *field.get(&g.params)
		}
	}
	if err := params.Validate(); err != nil {
		return ssd.Params{}, err
	}
	return params, nil
}

func (g *geometryFlags) attach(ctx context.Context, params ssd.Params) (*device, error) {
	dev, err := ssd.New(ctx, "vssd0", params)
	if err != nil {
		return nil, err
	}
	mem := nvme.NewHostMemory()
	ctrl, err := nvme.NewController(ctx, dev, mem, nvme.Options{
		FDP:       fdp.Options{NRUH: g.nruh},
		EnableFDP: g.enableFDP,
	})
	if err != nil {
		return nil, err
	}
	return &device{Ctrl: ctrl, Mem: mem}, nil
}

func init() {
	subcommands = append(subcommands, subcommand{
		Command: cobra.Command{
			Use:   "geometry",
			Short: "Print the device geometry and what it derives to",
			Long: "" +
				"The geometry is printed as JSON on stdout, and can be " +
				"loaded back with the --geometry flag.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RawParams: true,
		RunE: func(_ *device, params ssd.Params, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dlog.Infof(ctx, "page size    : %v", textui.IEC(params.PageSize(), "B"))
			dlog.Infof(ctx, "block size   : %v", textui.IEC(params.BlockSize(), "B"))
			dlog.Infof(ctx, "line size    : %v (%v blocks)", textui.IEC(params.LineSize(), "B"), textui.Humanized(params.BlocksPerLine()))
			dlog.Infof(ctx, "lines        : %v", textui.Humanized(params.TotalLines()))
			dlog.Infof(ctx, "pages        : %v", textui.Humanized(params.TotalPages()))
			dlog.Infof(ctx, "capacity     : %v", textui.IEC(params.TotalBytes(), "B"))
			return writeJSONFile(os.Stdout, params, prettyJSON)
		},
	})
}
