// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvme

import (
	"fmt"
	"math"
)

// Cmd is a submission queue entry, reduced to the fields the
// controller looks at.
type Cmd struct {
	Opcode uint8
	NSID   uint32
	PRP1   uint64
	PRP2   uint64

	CDW10 uint32
	CDW11 uint32
	CDW12 uint32
	CDW13 uint32
	CDW14 uint32
	CDW15 uint32
}

func (cmd Cmd) String() string {
	return fmt.Sprintf("opcode=0x%02x cdw10=%#x cdw11=%#x cdw12=%#x cdw13=%#x prp1=%#x",
		cmd.Opcode, cmd.CDW10, cmd.CDW11, cmd.CDW12, cmd.CDW13, cmd.PRP1)
}

// Read and write fields.

func (cmd Cmd) SLBA() uint64 { return uint64(cmd.CDW11)<<32 | uint64(cmd.CDW10) }

// NLB is the number of logical blocks; the wire field is 0-based.
func (cmd Cmd) NLB() uint32 { return cmd.CDW12&0xffff + 1 }

func (cmd Cmd) DType() uint8  { return uint8(cmd.CDW12>>20) & 0xf }
func (cmd Cmd) DSpec() uint16 { return uint16(cmd.CDW13 >> 16) }

// Get log page fields.

func (cmd Cmd) LogID() LogID { return LogID(cmd.CDW10 & 0xff) }

// LogLen is the transfer length in bytes, from the 0-based dword
// count split across CDW10 and CDW11.
func (cmd Cmd) LogLen() uint32 {
	numdl := uint64(cmd.CDW10 >> 16)
	numdu := uint64(cmd.CDW11 & 0xffff)
	return dwordsToBytes(numdu<<16 | numdl)
}

// I/O management fields.

func (cmd Cmd) MO() uint8 { return uint8(cmd.CDW10 & 0xff) }

// IOMgmtLen is the transfer length in bytes, from the 0-based dword
// count in CDW11.
func (cmd Cmd) IOMgmtLen() uint32 { return dwordsToBytes(uint64(cmd.CDW11)) }

// Get features fields.

func (cmd Cmd) FID() FeatureID { return FeatureID(cmd.CDW10 & 0xff) }

func dwordsToBytes(numd uint64) uint32 {
	n := (numd + 1) << 2
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// Builders for the commands the controller understands.

// WriteCmd writes nlb blocks at slba with no placement directive.
func WriteCmd(slba uint64, nlb uint32) Cmd {
	return Cmd{
		Opcode: CmdWrite,
		NSID:   1,
		CDW10:  uint32(slba),
		CDW11:  uint32(slba >> 32),
		CDW12:  (nlb - 1) & 0xffff,
	}
}

// PlacedWriteCmd is WriteCmd with a data placement directive naming
// placement handle ph.
func PlacedWriteCmd(slba uint64, nlb uint32, ph uint16) Cmd {
	cmd := WriteCmd(slba, nlb)
	cmd.CDW12 |= uint32(DirectiveDataPlacement) << 20
	cmd.CDW13 = uint32(ph) << 16
	return cmd
}

// ReadCmd reads nlb blocks at slba.
func ReadCmd(slba uint64, nlb uint32) Cmd {
	cmd := WriteCmd(slba, nlb)
	cmd.Opcode = CmdRead
	return cmd
}

// PlacedReadCmd is ReadCmd carrying placement handle ph, so that the
// read is counted against the handle's reclaim unit.
func PlacedReadCmd(slba uint64, nlb uint32, ph uint16) Cmd {
	cmd := PlacedWriteCmd(slba, nlb, ph)
	cmd.Opcode = CmdRead
	return cmd
}

// GetLogPageCmd asks for nbytes of log lid, which must be a non-zero
// multiple of 4.
func GetLogPageCmd(lid LogID, nbytes uint32, prp1 uint64) Cmd {
	numd := nbytes/4 - 1
	return Cmd{
		Opcode: AdminGetLogPage,
		PRP1:   prp1,
		CDW10:  uint32(lid) | (numd&0xffff)<<16,
		CDW11:  numd >> 16,
	}
}

// RUHStatusCmd asks for the reclaim unit handle status in a buffer of
// nbytes, which must be a non-zero multiple of 4.
func RUHStatusCmd(nbytes uint32, prp1 uint64) Cmd {
	return Cmd{
		Opcode: CmdIOMgmtRecv,
		NSID:   1,
		PRP1:   prp1,
		CDW10:  uint32(IOMgmtRUHStatus),
		CDW11:  nbytes/4 - 1,
	}
}

func GetFeaturesCmd(fid FeatureID) Cmd {
	return Cmd{
		Opcode: AdminGetFeatures,
		CDW10:  uint32(fid),
	}
}

func FlipCmdFor(flip FlipCmd) Cmd {
	return Cmd{
		Opcode: AdminFEMUFlip,
		CDW10:  uint32(flip),
	}
}

// Completion is what the controller posts for a command.
type Completion struct {
	Status Status
	// Result is completion dword 0.
	Result uint32
}
