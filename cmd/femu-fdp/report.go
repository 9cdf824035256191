// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

// prepare turns placement on and applies each PH:BYTES write.
func prepare(ctx context.Context, dev *device, writes []string) error {
	if cpl := dev.Ctrl.AdminCmd(ctx, nvme.FlipCmdFor(nvme.FlipEnableFDP)); !cpl.Status.OK() {
		return fmt.Errorf("enable: %v", cpl.Status)
	}
	var slba uint64
	for _, spec := range writes {
		ph, nbytes, err := parseWriteSpec(spec)
		if err != nil {
			return err
		}
		cmd, err := writeCmd(dev, &ph, slba, nbytes)
		if err != nil {
			return err
		}
		if cpl := dev.Ctrl.IOCmd(ctx, cmd); !cpl.Status.OK() {
			return fmt.Errorf("write %q: %v", spec, cpl.Status)
		}
		slba += uint64(cmd.NLB())
		dlog.Infof(ctx, "wrote %v through placement handle %d", textui.IEC(nbytes, "B"), ph)
	}
	return nil
}

func init() {
	var writes []string
	var reportLen uint32
	sub := subcommand{
		Command: cobra.Command{
			Use:   "report {" + strings.Join(reportKindNames(), "|") + "}",
			Short: "Enable placement, apply writes, and print one report",
			Long: "" +
				"The report is printed as JSON on stdout: the completion " +
				"status, the decoded report, and the raw bytes in hex.",
			Args:      cliutil.WrapPositionalArgs(cobra.ExactValidArgs(1)),
			ValidArgs: reportKindNames(),
		},
		RunE: func(dev *device, _ ssd.Params, cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := prepare(ctx, dev, writes); err != nil {
				return err
			}
			report, err := fetchReport(ctx, dev, args[0], reportLen)
			if err != nil {
				return err
			}
			return writeJSONFile(os.Stdout, report, prettyJSON)
		},
	}
	sub.Command.Flags().StringArrayVar(&writes, "write", nil, "write `PH:BYTES` through a placement handle before reporting (repeatable)")
	sub.Command.Flags().Uint32Var(&reportLen, "len", defaultReportLen, "host buffer size in bytes")
	subcommands = append(subcommands, sub)
}

func init() {
	var writes []string
	sub := subcommand{
		Command: cobra.Command{
			Use:   "dump",
			Short: "Enable placement, apply writes, and spew every report",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(dev *device, _ ssd.Params, cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := prepare(ctx, dev, writes); err != nil {
				return err
			}

			spew := spew.NewDefaultConfig()
			spew.DisablePointerAddresses = true

			textui.Fprintf(os.Stdout, "identify = ")
			spew.Dump(dev.Ctrl.Identify())
			for _, kind := range reportKindNames() {
				report, err := fetchReport(ctx, dev, kind, defaultReportLen)
				if err != nil {
					return err
				}
				textui.Fprintf(os.Stdout, "%s (%s) = ", kind, report.Status)
				spew.Dump(report.Report)
				_, _ = os.Stdout.WriteString("\n")
			}
			for ruid := uint16(0); ruid < dev.Ctrl.FDP().NRUH(); ruid++ {
				textui.Fprintf(os.Stdout, "ru[%d] = ", ruid)
				spew.Dump(dev.Ctrl.FDP().ReclaimUnit(ruid))
			}
			return nil
		},
	}
	sub.Command.Flags().StringArrayVar(&writes, "write", nil, "write `PH:BYTES` through a placement handle before dumping (repeatable)")
	subcommands = append(subcommands, sub)
}
