// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp/fdpmetrics"
	"github.com/sincerejisoo/FEMU-FDP/lib/nvme"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

// Step is one entry of a scenario file.
type Step struct {
	// Op is one of enable, disable, reclaim, write, read or report.
	Op string `json:"op"`

	// PH is the placement handle for write and read; a write
	// without one goes through the device-global write pointer.
	PH    *uint16 `json:"ph,omitempty"`
	Bytes uint64  `json:"bytes,omitempty"`
	// Count repeats a write or read; 0 means once.
	Count int `json:"count,omitempty"`

	// Kind and Len select the report.
	Kind string `json:"kind,omitempty"`
	Len  uint32 `json:"len,omitempty"`
}

type Scenario struct {
	Steps []Step `json:"steps"`
}

type StepResult struct {
	Step   int
	Op     string
	Status string
	// Done is how many of a repeated write or read completed.
	Done   int           `json:",omitempty"`
	Lines  int           `json:",omitempty"`
	Report *reportResult `json:",omitempty"`
}

type simulator struct {
	dev  *device
	slba uint64
}

func (sim *simulator) run(ctx context.Context, step Step) (StepResult, error) {
	ctrl := sim.dev.Ctrl
	res := StepResult{Op: step.Op}
	switch step.Op {
	case "enable", "disable":
		flip := nvme.FlipEnableFDP
		if step.Op == "disable" {
			flip = nvme.FlipDisableFDP
		}
		res.Status = ctrl.AdminCmd(ctx, nvme.FlipCmdFor(flip)).Status.String()
	case "reclaim":
		n, err := ctrl.FDP().Reclaim(ctx)
		res.Status = nvme.StatusSuccess.String()
		if err != nil {
			res.Status = err.Error()
		}
		res.Lines = n
	case "write", "read":
		count := step.Count
		if count == 0 {
			count = 1
		}
		cmd, err := writeCmd(sim.dev, step.PH, sim.slba, step.Bytes)
		if err != nil {
			return res, err
		}
		if step.Op == "read" {
			cmd.Opcode = nvme.CmdRead
		}
		status := nvme.StatusSuccess
		for res.Done < count {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			status = ctrl.IOCmd(ctx, cmd).Status
			if !status.OK() {
				break
			}
			res.Done++
			if step.Op == "write" {
				sim.slba += uint64(cmd.NLB())
				cmd.CDW10, cmd.CDW11 = uint32(sim.slba), uint32(sim.slba>>32)
			}
		}
		res.Status = status.String()
	case "report":
		n := step.Len
		if n == 0 {
			n = defaultReportLen
		}
		report, err := fetchReport(ctx, sim.dev, step.Kind, n)
		if err != nil {
			return res, err
		}
		res.Status = report.Status
		res.Report = &report
	default:
		return res, fmt.Errorf("unknown op %q", step.Op)
	}
	return res, nil
}

func init() {
	var metricsFile string
	sub := subcommand{
		Command: cobra.Command{
			Use:   "simulate SCENARIO.json",
			Short: "Run a scenario of commands against the device",
			Long: "" +
				"SCENARIO.json holds a list of steps, for example:\n" +
				"\n" +
				"\t{\"steps\": [\n" +
				"\t\t{\"op\": \"enable\"},\n" +
				"\t\t{\"op\": \"write\", \"ph\": 1, \"bytes\": 4096, \"count\": 16},\n" +
				"\t\t{\"op\": \"report\", \"kind\": \"stats\", \"len\": 640}\n" +
				"\t]}\n" +
				"\n" +
				"The result of each step is printed as JSON on stdout.",
			Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(dev *device, _ ssd.Params, cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scenario, err := readJSONFile[Scenario](ctx, args[0])
			if err != nil {
				return err
			}

			sim := &simulator{dev: dev}
			progress := textui.NewProgress[textui.Portion[int]](ctx, dlog.LogLevelInfo, textui.Tunable(1*time.Second))
			results := make([]StepResult, 0, len(scenario.Steps))
			for i, step := range scenario.Steps {
				stepCtx := dlog.WithField(ctx, "femu-fdp.simulate.step", fmt.Sprintf("%d-%s", i, step.Op))
				res, err := sim.run(stepCtx, step)
				if err != nil {
					progress.Done()
					return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
				}
				res.Step = i
				dlog.Debugf(stepCtx, "%s", res.Status)
				results = append(results, res)
				progress.Set(textui.Portion[int]{N: i + 1, D: len(scenario.Steps)})
			}
			progress.Done()

			if metricsFile != "" {
				reg := prometheus.NewRegistry()
				if _, err := fdpmetrics.Register(reg, dev.Ctrl.FDP()); err != nil {
					return err
				}
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					return err
				}
				dlog.Infof(ctx, "wrote metrics to %q", metricsFile)
			}
			return writeJSONFile(os.Stdout, results, prettyJSON)
		},
	}
	sub.Command.Flags().StringVar(&metricsFile, "metrics-textfile", "", "write placement metrics in Prometheus text format to `file.prom`")
	if err := sub.Command.MarkFlagFilename("metrics-textfile"); err != nil {
		panic(err)
	}
	subcommands = append(subcommands, sub)
}
