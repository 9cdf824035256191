// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package containers implements the small generic containers the
// emulator is built from.
package containers

import (
	"git.lukeshu.com/go/typedsync"
)

// SyncPool is a typedsync.Pool that can construct new values on
// demand.
type SyncPool[T any] struct {
	New func() T

	inner typedsync.Pool[T]
}

func (p *SyncPool[T]) Get() (val T, ok bool) {
	if val, ok := p.inner.Get(); ok {
		return val, true
	}
	if p.New != nil {
		return p.New(), true
	}
	var zero T
	return zero, false
}

func (p *SyncPool[T]) Put(val T) {
	p.inner.Put(val)
}
