// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvme

import (
	"fmt"

	"github.com/sincerejisoo/FEMU-FDP/lib/fmtutil"
)

// I/O command opcodes.
const (
	CmdWrite      = uint8(0x01)
	CmdRead       = uint8(0x02)
	CmdIOMgmtRecv = uint8(0x12)
	CmdIOMgmtSend = uint8(0x1d)
)

// Admin command opcodes.
const (
	AdminGetLogPage  = uint8(0x02)
	AdminGetFeatures = uint8(0x0a)
	AdminFEMUFlip    = uint8(0xef)
)

type LogID uint8

const (
	LogFDPConfigs = LogID(0x20)
	LogFDPStats   = LogID(0x21)
	LogFDPEvents  = LogID(0x22)
)

func (lid LogID) String() string {
	switch lid {
	case LogFDPConfigs:
		return "fdp-configs"
	case LogFDPStats:
		return "fdp-stats"
	case LogFDPEvents:
		return "fdp-events"
	default:
		return fmt.Sprintf("LogID(0x%02x)", uint8(lid))
	}
}

type FeatureID uint8

const (
	FeatFDPMode   = FeatureID(0x1d)
	FeatFDPEvents = FeatureID(0x1e)
)

// IOMgmtRUHStatus is the I/O management receive operation that returns
// reclaim unit handle status.
const IOMgmtRUHStatus = uint8(0x01)

// DirectiveDataPlacement is the DTYPE of a write that carries a
// placement handle in DSPEC.
const DirectiveDataPlacement = uint8(0x2)

// FlipCmd is the CDW10 of a FEMU flip admin command.
type FlipCmd uint32

const (
	FlipEnableGCDelay FlipCmd = iota + 1
	FlipDisableGCDelay
	FlipEnableDelayEmu
	FlipDisableDelayEmu
	FlipResetAcct
	FlipEnableLog
	FlipDisableLog
	FlipEnableFDP
	FlipDisableFDP
)

var flipNames = map[FlipCmd]string{
	FlipEnableGCDelay:   "enable-gc-delay",
	FlipDisableGCDelay:  "disable-gc-delay",
	FlipEnableDelayEmu:  "enable-delay-emu",
	FlipDisableDelayEmu: "disable-delay-emu",
	FlipResetAcct:       "reset-acct",
	FlipEnableLog:       "enable-log",
	FlipDisableLog:      "disable-log",
	FlipEnableFDP:       "enable-fdp",
	FlipDisableFDP:      "disable-fdp",
}

func (f FlipCmd) String() string {
	if name, ok := flipNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FlipCmd(%d)", uint32(f))
}

// Status is a completion status: the status code (with its code type
// in bits 8-10) plus the do-not-retry bit.
type Status uint16

const (
	StatusSuccess          = Status(0x0000)
	StatusInvalidOpcode    = Status(0x0001)
	StatusInvalidField     = Status(0x0002)
	StatusInternalError    = Status(0x0006)
	StatusFDPDisabled      = Status(0x0029)
	StatusCapacityExceeded = Status(0x0081)
	StatusInvalidLogID     = Status(0x0109)

	StatusDNR = Status(0x4000)
)

var statusNames = map[Status]string{
	StatusSuccess:          "success",
	StatusInvalidOpcode:    "invalid opcode",
	StatusInvalidField:     "invalid field",
	StatusInternalError:    "internal error",
	StatusFDPDisabled:      "fdp disabled",
	StatusCapacityExceeded: "capacity exceeded",
	StatusInvalidLogID:     "invalid log id",
}

func (s Status) Code() Status { return s &^ StatusDNR }
func (s Status) DNR() bool    { return s&StatusDNR != 0 }
func (s Status) OK() bool     { return s.Code() == StatusSuccess }

func (s Status) String() string {
	name, ok := statusNames[s.Code()]
	if !ok {
		name = fmt.Sprintf("status 0x%04x", uint16(s.Code()))
	}
	if s.DNR() {
		name += " (dnr)"
	}
	return name
}

// ONCS is the optional NVM command support field of the controller
// identity.
type ONCS uint16

const (
	ONCSCompare = ONCS(1 << iota)
	ONCSWriteUncorrectable
	ONCSDatasetMgmt
	ONCSWriteZeroes
	ONCSSaveSelect
	ONCSReservations
	ONCSTimestamp
	ONCSVerify
	ONCSCopy
	_
	ONCSFDP
)

var oncsNames = []string{
	"COMPARE",
	"WRITE_UNCORRECTABLE",
	"DSM",
	"WRITE_ZEROES",
	"SAVE_SELECT",
	"RESERVATIONS",
	"TIMESTAMP",
	"VERIFY",
	"COPY",
	"",
	"FDP",
}

func (f ONCS) Has(req ONCS) bool { return f&req == req }
func (f ONCS) String() string    { return fmtutil.BitfieldString(f, oncsNames, fmtutil.HexLower) }

// OACS is the optional admin command support field of the controller
// identity.
type OACS uint16

const (
	OACSSecurity = OACS(1 << iota)
	OACSFormatNVM
	OACSFirmware
	OACSNSMgmt
	OACSSelfTest
	OACSDirectives
	OACSNVMeMI
	OACSVirtMgmt
	OACSDoorbellBuffer
	OACSGetLBAStatus
)

var oacsNames = []string{
	"SECURITY",
	"FORMAT_NVM",
	"FIRMWARE",
	"NS_MGMT",
	"SELF_TEST",
	"DIRECTIVES",
	"NVME_MI",
	"VIRT_MGMT",
	"DOORBELL_BUFFER",
	"GET_LBA_STATUS",
}

func (f OACS) Has(req OACS) bool { return f&req == req }
func (f OACS) String() string    { return fmtutil.BitfieldString(f, oacsNames, fmtutil.HexLower) }
