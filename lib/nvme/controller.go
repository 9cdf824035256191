// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nvme is the command surface of the emulated black-box
// device: it decodes admin and I/O commands, drives the placement core
// and transfers log pages to host memory.
package nvme

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
	"github.com/sincerejisoo/FEMU-FDP/lib/ssd"
)

const (
	ModelNumber  = "FEMU BlackBox-SSD Controller"
	SerialNumber = "vSSD"
)

// Base capabilities advertised with placement off.
const (
	DefaultONCS = ONCSDatasetMgmt | ONCSWriteZeroes
	DefaultOACS = OACSFormatNVM
)

type Options struct {
	FDP fdp.Options
	// EnableFDP turns placement on at attach time.
	EnableFDP bool
}

// Identity is the part of the identify-controller data that the
// emulator maintains.
type Identity struct {
	Model  string
	Serial string
	ONCS   ONCS
	OACS   OACS
}

// Controller owns one device and its placement state.  Commands are
// serialized.
type Controller struct {
	mu  sync.Mutex
	dev *ssd.SSD
	fdp *fdp.Config
	dma DMA

	oncs      ONCS
	oacs      OACS
	fdpMode   uint32
	fdpEvents uint32
	printLog  bool
	totalIOs  uint64
}

var _ fdp.CapabilityNotifier = (*Controller)(nil)

// NewController attaches a controller to dev, giving placement the
// lines that dev has not already claimed.
func NewController(ctx context.Context, dev *ssd.SSD, dma DMA, opts Options) (*Controller, error) {
	ctx = dlog.WithField(ctx, "nvme.dev", dev.Name)
	c := &Controller{
		dev:  dev,
		dma:  dma,
		oncs: DefaultONCS,
		oacs: DefaultOACS,
	}
	fdpOpts := opts.FDP
	fdpOpts.Notifier = c
	cfg, err := fdp.NewConfig(ctx, dev.Params, dev.LM, fdpOpts)
	if err != nil {
		return nil, err
	}
	c.fdp = cfg
	if opts.EnableFDP {
		if err := cfg.Enable(ctx); err != nil {
			return nil, err
		}
	} else {
		dlog.Infof(ctx, "fdp initialized but disabled")
	}
	return c, nil
}

// FDP returns the placement state.  It must not be used concurrently
// with commands.
func (c *Controller) FDP() *fdp.Config { return c.fdp }
func (c *Controller) Device() *ssd.SSD { return c.dev }

func (c *Controller) Identify() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Identity{
		Model:  ModelNumber,
		Serial: SerialNumber,
		ONCS:   c.oncs,
		OACS:   c.oacs,
	}
}

// TotalIOs is the number of read and write commands since attach or
// the last accounting reset.
func (c *Controller) TotalIOs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalIOs
}

// SetPlacementCapability implements fdp.CapabilityNotifier.  It is
// called from inside Enable and Disable, with c.mu held by whichever
// command caused them.
func (c *Controller) SetPlacementCapability(ctx context.Context, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
		c.oncs |= ONCSFDP
		c.oacs |= OACSDirectives
		c.fdpMode = 1
	} else {
		c.oncs &^= ONCSFDP
		c.oacs &^= OACSDirectives
		c.fdpMode = 0
	}
	c.fdpEvents = 0
	dlog.Infof(ctx, "fdp %s: ONCS=%v OACS=%v", state, c.oncs, c.oacs)
}

func (c *Controller) debugf(ctx context.Context, format string, args ...any) {
	if c.printLog {
		dlog.Debugf(ctx, format, args...)
	}
}

var errDMA = errors.New("dma transfer failed")

// statusFor maps an error from the placement core to a completion
// status.  disabled is the status to use for fdp.ErrFeatureDisabled,
// which differs between I/O commands and log pages.
func statusFor(err error, disabled Status) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, fdp.ErrFeatureDisabled):
		return disabled | StatusDNR
	case errors.Is(err, fdp.ErrInvalidArgument), errors.Is(err, errDMA):
		return StatusInvalidField | StatusDNR
	case errors.Is(err, fdp.ErrInvalidOpcode):
		return StatusInvalidOpcode | StatusDNR
	case errors.Is(err, fdp.ErrResourceExhausted), errors.Is(err, ssd.ErrNoSpace):
		return StatusCapacityExceeded | StatusDNR
	default:
		return StatusInternalError | StatusDNR
	}
}

func (c *Controller) transfer(dat []byte, cmd Cmd) error {
	if err := c.dma.ReadPRP(dat, cmd.PRP1, cmd.PRP2); err != nil {
		return fmt.Errorf("%w: %v", errDMA, err)
	}
	return nil
}

// AdminCmd executes an admin command.
func (c *Controller) AdminCmd(ctx context.Context, cmd Cmd) Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx = dlog.WithField(ctx, "nvme.dev", c.dev.Name)
	ctx = dlog.WithField(ctx, "nvme.opcode", fmt.Sprintf("0x%02x", cmd.Opcode))
	c.debugf(ctx, "admin %v", cmd)

	switch cmd.Opcode {
	case AdminFEMUFlip:
		return Completion{Status: c.flip(ctx, FlipCmd(cmd.CDW10))}
	case AdminGetLogPage:
		return Completion{Status: c.getLog(ctx, cmd)}
	case AdminGetFeatures:
		return c.getFeatures(ctx, cmd)
	default:
		return Completion{Status: StatusInvalidOpcode | StatusDNR}
	}
}

func (c *Controller) flip(ctx context.Context, flip FlipCmd) Status {
	ctx = dlog.WithField(ctx, "fdp.op", flip.String())
	p := &c.dev.Params
	switch flip {
	case FlipEnableGCDelay:
		p.EnableGCDelay = true
	case FlipDisableGCDelay:
		p.EnableGCDelay = false
	case FlipEnableDelayEmu:
		p.PageReadLatency = ssd.NANDReadLatency
		p.PageWriteLatency = ssd.NANDProgLatency
		p.BlockEraseLatency = ssd.NANDEraseLatency
		p.ChannelXferLatency = 0
	case FlipDisableDelayEmu:
		p.PageReadLatency = 0
		p.PageWriteLatency = 0
		p.BlockEraseLatency = 0
		p.ChannelXferLatency = 0
	case FlipResetAcct:
		c.totalIOs = 0
	case FlipEnableLog:
		c.printLog = true
	case FlipDisableLog:
		c.printLog = false
	case FlipEnableFDP:
		if err := c.fdp.Enable(ctx); err != nil {
			dlog.Errorf(ctx, "%v", err)
			return statusFor(err, StatusFDPDisabled)
		}
		return StatusSuccess
	case FlipDisableFDP:
		if err := c.fdp.Disable(ctx); err != nil {
			dlog.Errorf(ctx, "%v", err)
			return statusFor(err, StatusFDPDisabled)
		}
		return StatusSuccess
	default:
		dlog.Warnf(ctx, "flip command not implemented")
		return StatusSuccess
	}
	dlog.Infof(ctx, "done")
	return StatusSuccess
}

func (c *Controller) getLog(ctx context.Context, cmd Cmd) Status {
	lid, n := cmd.LogID(), cmd.LogLen()
	ctx = dlog.WithField(ctx, "nvme.lid", lid.String())
	c.debugf(ctx, "get log: %d bytes", n)

	var dat []byte
	var err error
	switch lid {
	case LogFDPConfigs:
		dat, err = c.fdp.ConfigLog(ctx, n)
	case LogFDPStats:
		dat, err = c.fdp.StatsLog(ctx, n)
	case LogFDPEvents:
		dat, err = c.fdp.EventsLog(ctx, n)
	default:
		return StatusInvalidLogID | StatusDNR
	}
	if err == nil {
		err = c.transfer(dat, cmd)
	}
	if err != nil {
		c.debugf(ctx, "%v", err)
	}
	return statusFor(err, StatusInvalidLogID)
}

func (c *Controller) getFeatures(ctx context.Context, cmd Cmd) Completion {
	switch fid := cmd.FID(); fid {
	case FeatFDPMode:
		return Completion{Status: StatusSuccess, Result: c.fdpMode}
	case FeatFDPEvents:
		return Completion{Status: StatusSuccess, Result: c.fdpEvents}
	default:
		c.debugf(ctx, "get features: unsupported fid 0x%02x", uint8(fid))
		return Completion{Status: StatusInvalidField | StatusDNR}
	}
}

// IOCmd executes an I/O command.
func (c *Controller) IOCmd(ctx context.Context, cmd Cmd) Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx = dlog.WithField(ctx, "nvme.dev", c.dev.Name)
	ctx = dlog.WithField(ctx, "nvme.opcode", fmt.Sprintf("0x%02x", cmd.Opcode))
	c.debugf(ctx, "io %v", cmd)

	switch cmd.Opcode {
	case CmdWrite:
		c.totalIOs++
		return Completion{Status: statusFor(c.write(ctx, cmd), StatusFDPDisabled)}
	case CmdRead:
		c.totalIOs++
		var err error
		if cmd.DType() == DirectiveDataPlacement {
			err = c.fdp.Read(cmd.DSpec())
		}
		return Completion{Status: statusFor(err, StatusFDPDisabled)}
	case CmdIOMgmtRecv:
		return Completion{Status: statusFor(c.ioMgmtRecv(ctx, cmd), StatusFDPDisabled)}
	case CmdIOMgmtSend:
		err := fmt.Errorf("io management send: %w", fdp.ErrInvalidOpcode)
		if !c.fdp.Enabled() {
			err = fmt.Errorf("io management send: %w", fdp.ErrFeatureDisabled)
		}
		return Completion{Status: statusFor(err, StatusFDPDisabled)}
	default:
		return Completion{Status: StatusInvalidOpcode | StatusDNR}
	}
}

func (c *Controller) write(ctx context.Context, cmd Cmd) error {
	nbytes := uint64(cmd.NLB()) * uint64(c.dev.Params.SectorSize)
	if cmd.DType() != DirectiveDataPlacement {
		_, err := c.dev.Write(ctx, nbytes)
		return err
	}
	res, err := c.fdp.Write(ctx, cmd.DSpec(), nbytes)
	if err != nil {
		return err
	}
	c.debugf(ctx, "ph %d -> ru %d: %d pages, first %v", cmd.DSpec(), res.RUID, len(res.PPAs), res.PPAs[0])
	return nil
}

func (c *Controller) ioMgmtRecv(ctx context.Context, cmd Cmd) error {
	if !c.fdp.Enabled() {
		return fmt.Errorf("io management receive: %w", fdp.ErrFeatureDisabled)
	}
	if mo := cmd.MO(); mo != IOMgmtRUHStatus {
		return fmt.Errorf("io management receive: operation %#x: %w", mo, fdp.ErrInvalidArgument)
	}
	dat, err := c.fdp.RUHStatus(ctx, cmd.IOMgmtLen())
	if err != nil {
		return err
	}
	return c.transfer(dat, cmd)
}
