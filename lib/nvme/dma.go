// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package nvme

import (
	"fmt"
	"sync"
)

// DMA moves data between the controller and host memory.
type DMA interface {
	// ReadPRP copies buf into the host memory described by prp1 and
	// prp2, as for the data phase of a read.
	ReadPRP(buf []byte, prp1, prp2 uint64) error
}

// HostMemory is an in-process DMA target.  Each allocation is a
// single contiguous buffer addressed by its PRP1; PRP2 is ignored.
type HostMemory struct {
	mu   sync.Mutex
	next uint64
	bufs map[uint64]*hostBuffer
}

type hostBuffer struct {
	dat []byte
	n   int
}

var _ DMA = (*HostMemory)(nil)

const hostPageSize = 4096

func NewHostMemory() *HostMemory {
	return &HostMemory{
		next: hostPageSize,
		bufs: make(map[uint64]*hostBuffer),
	}
}

// Alloc reserves size bytes and returns their address.
func (m *HostMemory) Alloc(size int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.next
	pages := (uint64(size) + hostPageSize - 1) / hostPageSize
	if pages == 0 {
		pages = 1
	}
	m.next += pages * hostPageSize
	m.bufs[addr] = &hostBuffer{dat: make([]byte, size)}
	return addr
}

// Free releases an allocation.
func (m *HostMemory) Free(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bufs, addr)
}

// Transferred returns the bytes most recently transferred to addr.
func (m *HostMemory) Transferred(addr uint64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.bufs[addr]
	if !ok {
		return nil
	}
	return buf.dat[:buf.n]
}

// ReadPRP implements DMA.
func (m *HostMemory) ReadPRP(dat []byte, prp1, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.bufs[prp1]
	if !ok {
		return fmt.Errorf("host memory: no buffer at %#x", prp1)
	}
	if len(dat) > len(buf.dat) {
		return fmt.Errorf("host memory: %d-byte transfer into %d-byte buffer at %#x", len(dat), len(buf.dat), prp1)
	}
	buf.n = copy(buf.dat, dat)
	return nil
}
