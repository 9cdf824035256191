// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fdp

import (
	"fmt"

	"github.com/sincerejisoo/FEMU-FDP/lib/fmtutil"
)

const (
	// DefaultRUHs is the number of reclaim unit handles a device
	// gets unless told otherwise.
	DefaultRUHs = 4

	// MaxPlacementHandles is the size of the placement-handle table,
	// and so the ceiling on the handle count.
	MaxPlacementHandles = 128

	// StatsMaxRUHs is how many handles the statistics log has room
	// for, independent of how many are configured.
	StatsMaxRUHs = 16

	// ConfigLogVersion is the format version of the configuration
	// log.  Growing the handle count changes the log's size, not its
	// version.
	ConfigLogVersion = 1
)

// RUHState is the externally visible state of a reclaim unit handle.
type RUHState uint8

const (
	// RUHUnused is the initial state: no active line, nothing
	// written.
	RUHUnused RUHState = iota
	// RUHHostSpecified means the unit has an active write pointer
	// and accepts host writes.
	RUHHostSpecified
)

func (s RUHState) String() string {
	switch s {
	case RUHUnused:
		return "unused"
	case RUHHostSpecified:
		return "host-specified"
	default:
		return fmt.Sprintf("RUHState(%d)", uint8(s))
	}
}

// Attributes is the FDP attributes byte of a configuration
// descriptor.
type Attributes uint8

const (
	AttrRUHInitiallySpecified = Attributes(1 << iota)
	AttrRG1
	AttrRG2
	_
	AttrVolatileWriteCache
	_
	_
	AttrValid
)

// DefaultAttributes is what a freshly attached device advertises.
const DefaultAttributes = AttrRUHInitiallySpecified

var attributeNames = []string{
	"RUH_INITIALLY_SPECIFIED",
	"RG1",
	"RG2",
	"",
	"VOLATILE_WRITE_CACHE",
	"",
	"",
	"VALID",
}

func (a Attributes) Has(req Attributes) bool { return a&req == req }
func (a Attributes) String() string {
	return fmtutil.BitfieldString(a, attributeNames, fmtutil.HexLower)
}

// Totals are the device-wide write counters.
type Totals struct {
	// HostBytes and MediaBytes are identical: write amplification
	// is not modeled.
	HostBytes  uint64
	MediaBytes uint64
	// RUSwitches counts how often any reclaim unit's write pointer
	// moved onto a new line.
	RUSwitches uint64
}

// ReclaimGroup owns reclaim units that share capacity accounting.
type ReclaimGroup struct {
	RGID uint16
	// SLBs is the number of logical blocks the group spans.
	SLBs uint64
	RUs  []ReclaimUnit
}
