// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/binstruct"
)

// Reclaim unit handle status, returned by the I/O management receive
// command.

type RUHStatusHeader struct {
	Reserved      [14]uint8 `bin:"off=0x0, siz=0xe"`
	NRUHSD        uint16    `bin:"off=0xe, siz=0x2"` // number of descriptors that follow
	binstruct.End `bin:"off=0x10"`
}

type RUHStatusDescr struct {
	PID           uint16    `bin:"off=0x0,  siz=0x2"` // placement identifier
	RUHID         uint16    `bin:"off=0x2,  siz=0x2"`
	EARUTR        uint32    `bin:"off=0x4,  siz=0x4"` // estimated active RU time remaining; not modeled
	RUAMW         uint64    `bin:"off=0x8,  siz=0x8"` // bytes the unit can still take
	Reserved      [16]uint8 `bin:"off=0x10, siz=0x10"`
	binstruct.End `bin:"off=0x20"`
}

type RUHStatus struct {
	Header RUHStatusHeader
	Descrs []RUHStatusDescr
}

// Configuration log page.

type ConfigLogHeader struct {
	NumConfigs    uint16   `bin:"off=0x0, siz=0x2"`
	Version       uint8    `bin:"off=0x2, siz=0x1"`
	Reserved0     uint8    `bin:"off=0x3, siz=0x1"`
	Size          uint32   `bin:"off=0x4, siz=0x4"` // of the whole page
	Reserved1     [8]uint8 `bin:"off=0x8, siz=0x8"`
	binstruct.End `bin:"off=0x10"`
}

type ConfigDescr struct {
	Size          uint16     `bin:"off=0x0,  siz=0x2"` // of this descriptor, handle list included
	FDPA          Attributes `bin:"off=0x2,  siz=0x1"`
	VSS           uint8      `bin:"off=0x3,  siz=0x1"`
	NRG           uint32     `bin:"off=0x4,  siz=0x4"`
	NRUH          uint16     `bin:"off=0x8,  siz=0x2"`
	MaxPIDs       uint16     `bin:"off=0xa,  siz=0x2"`
	NNSS          uint32     `bin:"off=0xc,  siz=0x4"`
	RUNS          uint64     `bin:"off=0x10, siz=0x8"` // reclaim unit nominal size
	ERUTL         uint32     `bin:"off=0x18, siz=0x4"`
	Reserved      [36]uint8  `bin:"off=0x1c, siz=0x24"`
	binstruct.End `bin:"off=0x40"`
}

type RUHDescr struct {
	RUHID         uint16   `bin:"off=0x0, siz=0x2"`
	Reserved      [2]uint8 `bin:"off=0x2, siz=0x2"`
	binstruct.End `bin:"off=0x4"`
}

type ConfigLog struct {
	Header ConfigLogHeader
	Descr  ConfigDescr
	RUHs   []RUHDescr
}

// StatsLog is the statistics log page.  Each table is indexed by
// RUH; handles past StatsMaxRUHs are not reported.
type StatsLog struct {
	HostBytesWritten  [StatsMaxRUHs]uint64 `bin:"off=0x0,   siz=0x80"`
	MediaBytesWritten [StatsMaxRUHs]uint64 `bin:"off=0x80,  siz=0x80"`
	HostWriteCmds     [StatsMaxRUHs]uint64 `bin:"off=0x100, siz=0x80"`
	HostReadCmds      [StatsMaxRUHs]uint64 `bin:"off=0x180, siz=0x80"`
	MediaWearIndex    [StatsMaxRUHs]uint64 `bin:"off=0x200, siz=0x80"`
	binstruct.End     `bin:"off=0x280"`
}

// EventsLog is the events log page.  No events are recorded, so only
// the header is ever sent.
type EventsLog struct {
	NumEvents     uint32    `bin:"off=0x0, siz=0x4"`
	Reserved      [60]uint8 `bin:"off=0x4, siz=0x3c"`
	binstruct.End `bin:"off=0x40"`
}

var (
	ruhStatusHeaderSize = binstruct.StaticSize(RUHStatusHeader{})
	ruhStatusDescrSize  = binstruct.StaticSize(RUHStatusDescr{})
	configLogHeaderSize = binstruct.StaticSize(ConfigLogHeader{})
	configDescrSize     = binstruct.StaticSize(ConfigDescr{})
	ruhDescrSize        = binstruct.StaticSize(RUHDescr{})
	statsLogSize        = binstruct.StaticSize(StatsLog{})
	eventsLogSize       = binstruct.StaticSize(EventsLog{})
)

// RUHStatusSize is the exact size of the status report.
func (c *Config) RUHStatusSize() int {
	return ruhStatusHeaderSize + int(c.nruh)*ruhStatusDescrSize
}

// ConfigLogSize is the exact size of the configuration log.
func (c *Config) ConfigLogSize() int {
	return configLogHeaderSize + configDescrSize + int(c.nruh)*ruhDescrSize
}

func StatsLogSize() int  { return statsLogSize }
func EventsLogSize() int { return eventsLogSize }

type reportBuilder struct {
	name string
	buf  []byte
	off  int
	err  error
}

func newReportBuilder(name string, size int) *reportBuilder {
	return &reportBuilder{
		name: name,
		buf:  make([]byte, size),
	}
}

func (b *reportBuilder) put(obj any) {
	if b.err != nil {
		return
	}
	n, err := binstruct.MarshalInto(b.buf[b.off:], obj)
	b.off += n
	if err != nil {
		b.err = fmt.Errorf("fdp: %s: %w: %v", b.name, ErrInvariantViolation, err)
	}
}

func (b *reportBuilder) finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.off != len(b.buf) {
		return nil, fmt.Errorf("fdp: %s: encoded %d of %d bytes: %w", b.name, b.off, len(b.buf), ErrInvariantViolation)
	}
	return b.buf, nil
}

func (c *Config) checkOverrun(ctx context.Context, ru *ReclaimUnit) {
	if ru.overrun() {
		dlog.Errorf(ctx, "ru %d: %d bytes written exceeds capacity %d: %v",
			ru.RUID, ru.BytesWritten, ru.Capacity, ErrInvariantViolation)
	}
}

// RUHStatus encodes the status of every reclaim unit handle.  The
// whole report must fit in bufLen bytes; it is never truncated.
func (c *Config) RUHStatus(ctx context.Context, bufLen uint32) ([]byte, error) {
	if !c.enabled {
		return nil, fmt.Errorf("fdp: ruh status: %w", ErrFeatureDisabled)
	}
	size := c.RUHStatusSize()
	if int(bufLen) < size {
		return nil, fmt.Errorf("fdp: ruh status: buffer of %d bytes, need %d: %w", bufLen, size, ErrInvalidArgument)
	}
	b := newReportBuilder("ruh status", size)
	b.put(RUHStatusHeader{NRUHSD: c.nruh})
	for ph := uint16(0); ph < c.nruh; ph++ {
		ru, err := c.Lookup(ph)
		if err != nil {
			return nil, err
		}
		c.checkOverrun(ctx, ru)
		b.put(RUHStatusDescr{
			PID:    ph,
			RUHID:  ru.RUHID,
			EARUTR: 0,
			RUAMW:  ru.Remaining(),
		})
	}
	return b.finish()
}

// ConfigLog encodes the configuration log.  Like the status report,
// it is all or nothing.
func (c *Config) ConfigLog(ctx context.Context, bufLen uint32) ([]byte, error) {
	if !c.enabled {
		return nil, fmt.Errorf("fdp: config log: %w", ErrFeatureDisabled)
	}
	size := c.ConfigLogSize()
	if int(bufLen) < size {
		return nil, fmt.Errorf("fdp: config log: buffer of %d bytes, need %d: %w", bufLen, size, ErrInvalidArgument)
	}
	b := newReportBuilder("config log", size)
	b.put(ConfigLogHeader{
		NumConfigs: 1,
		Version:    ConfigLogVersion,
		Size:       uint32(size),
	})
	b.put(ConfigDescr{
		Size:    uint16(configDescrSize + int(c.nruh)*ruhDescrSize),
		FDPA:    c.attrs,
		NRG:     c.NRG(),
		NRUH:    c.nruh,
		MaxPIDs: MaxPlacementHandles,
		RUNS:    c.params.BlockSize(),
	})
	for ruhid := uint16(0); ruhid < c.nruh; ruhid++ {
		b.put(RUHDescr{RUHID: ruhid})
	}
	dlog.Debugf(ctx, "config log: %d bytes", size)
	return b.finish()
}

// StatsLog encodes the statistics log, truncated to bufLen.  A
// zero-length buffer gets a zero-length report.
func (c *Config) StatsLog(ctx context.Context, bufLen uint32) ([]byte, error) {
	if !c.enabled {
		return nil, fmt.Errorf("fdp: stats log: %w", ErrFeatureDisabled)
	}
	var stats StatsLog
	for ruhid := uint16(0); ruhid < c.nruh && ruhid < StatsMaxRUHs; ruhid++ {
		ru := c.ReclaimUnit(ruhid)
		c.checkOverrun(ctx, ru)
		stats.HostBytesWritten[ruhid] = ru.BytesWritten
		stats.MediaBytesWritten[ruhid] = ru.MediaBytesWritten
		stats.HostWriteCmds[ruhid] = ru.HostWriteCmds
		stats.HostReadCmds[ruhid] = ru.HostReadCmds
	}
	b := newReportBuilder("stats log", statsLogSize)
	b.put(stats)
	dat, err := b.finish()
	if err != nil {
		return nil, err
	}
	if int(bufLen) < len(dat) {
		dat = dat[:bufLen]
	}
	return dat, nil
}

// EventsLog encodes the events log header.  bufLen must have room
// for it; anything past the header is left alone.
func (c *Config) EventsLog(ctx context.Context, bufLen uint32) ([]byte, error) {
	if !c.enabled {
		return nil, fmt.Errorf("fdp: events log: %w", ErrFeatureDisabled)
	}
	if int(bufLen) < eventsLogSize {
		return nil, fmt.Errorf("fdp: events log: buffer of %d bytes, need %d: %w", bufLen, eventsLogSize, ErrInvalidArgument)
	}
	b := newReportBuilder("events log", eventsLogSize)
	b.put(EventsLog{NumEvents: 0})
	return b.finish()
}

var errTrailingData = errors.New("trailing data")

// DecodeRUHStatus parses a status report.
func DecodeRUHStatus(dat []byte) (RUHStatus, error) {
	var ret RUHStatus
	n, err := binstruct.Unmarshal(dat, &ret.Header)
	if err != nil {
		return ret, fmt.Errorf("ruh status: %w", err)
	}
	ret.Descrs = make([]RUHStatusDescr, ret.Header.NRUHSD)
	for i := range ret.Descrs {
		_n, err := binstruct.Unmarshal(dat[n:], &ret.Descrs[i])
		n += _n
		if err != nil {
			return ret, fmt.Errorf("ruh status: descriptor %d: %w", i, err)
		}
	}
	if n != len(dat) {
		return ret, fmt.Errorf("ruh status: %d bytes: %w", len(dat)-n, errTrailingData)
	}
	return ret, nil
}

// DecodeConfigLog parses a configuration log with a single
// configuration.
func DecodeConfigLog(dat []byte) (ConfigLog, error) {
	var ret ConfigLog
	n, err := binstruct.Unmarshal(dat, &ret.Header)
	if err != nil {
		return ret, fmt.Errorf("config log: %w", err)
	}
	if int(ret.Header.Size) != len(dat) {
		return ret, fmt.Errorf("config log: header says %d bytes, have %d", ret.Header.Size, len(dat))
	}
	if ret.Header.NumConfigs != 1 {
		return ret, fmt.Errorf("config log: %d configurations, only 1 is supported", ret.Header.NumConfigs)
	}
	_n, err := binstruct.Unmarshal(dat[n:], &ret.Descr)
	n += _n
	if err != nil {
		return ret, fmt.Errorf("config log: %w", err)
	}
	ret.RUHs = make([]RUHDescr, ret.Descr.NRUH)
	for i := range ret.RUHs {
		_n, err := binstruct.Unmarshal(dat[n:], &ret.RUHs[i])
		n += _n
		if err != nil {
			return ret, fmt.Errorf("config log: ruh descriptor %d: %w", i, err)
		}
	}
	if n != len(dat) {
		return ret, fmt.Errorf("config log: %d bytes: %w", len(dat)-n, errTrailingData)
	}
	return ret, nil
}

// DecodeStatsLog parses a complete statistics log.
func DecodeStatsLog(dat []byte) (StatsLog, error) {
	var ret StatsLog
	if len(dat) != statsLogSize {
		return ret, fmt.Errorf("stats log: have %d bytes, need %d", len(dat), statsLogSize)
	}
	if _, err := binstruct.Unmarshal(dat, &ret); err != nil {
		return ret, fmt.Errorf("stats log: %w", err)
	}
	return ret, nil
}

// DecodeEventsLog parses an events log header.
func DecodeEventsLog(dat []byte) (EventsLog, error) {
	var ret EventsLog
	if _, err := binstruct.Unmarshal(dat, &ret); err != nil {
		return ret, fmt.Errorf("events log: %w", err)
	}
	return ret, nil
}
