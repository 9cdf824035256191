// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command femu-fdp drives an in-process emulated black-box SSD with
// flexible data placement, for inspecting placement and log pages
// without booting a guest.
package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

// device is what every subcommand runs against.
type device struct {
	Ctrl *nvme.Controller
	Mem  *nvme.HostMemory
}

type subcommand struct {
	cobra.Command
	// RawParams subcommands get no device, only the geometry.
	RawParams bool
	RunE      func(*device, ssd.Params, *cobra.Command, []string) error
}

var subcommands []subcommand

func main() {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	var geomFlags geometryFlags

	argparser := &cobra.Command{
		Use:   "femu-fdp {[flags]|SUBCOMMAND}",
		Short: "Exercise flexible data placement on an emulated SSD",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	geomFlags.register(argparser.PersistentFlags())
	if err := argparser.MarkPersistentFlagFilename("geometry"); err != nil {
		panic(err)
	}

	for _, child := range subcommands {
		cmd := child.Command
		runE, rawParams := child.RunE, child.RawParams
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
			ctx = dlog.WithLogger(ctx, logger)
			dlog.SetFallbackLogger(logger.WithField("femu-fdp.THIS_IS_A_BUG", true))

			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) error {
				params, err := geomFlags.resolve(ctx, cmd.Flags())
				if err != nil {
					return err
				}
				cmd.SetContext(ctx)
				if rawParams {
					return runE(nil, params, cmd, args)
				}
				dev, err := geomFlags.attach(ctx, params)
				if err != nil {
					return err
				}
				return runE(dev, params, cmd, args)
			})
			return grp.Wait()
		}
		argparser.AddCommand(&cmd)
	}

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
