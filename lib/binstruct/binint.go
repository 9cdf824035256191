// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"reflect"

	"github.com/sincerejisoo/FEMU-FDP/lib/binstruct/binint"
)

type (
	U8    = binint.U8
	U16le = binint.U16le
	U32le = binint.U32le
	U64le = binint.U64le
)

// NVMe is little-endian throughout, so bare Go integer kinds are
// treated as their little-endian counterparts.
var intKind2Type = map[reflect.Kind]reflect.Type{
	reflect.Uint8:  reflect.TypeOf(U8(0)),
	reflect.Uint16: reflect.TypeOf(U16le(0)),
	reflect.Uint32: reflect.TypeOf(U32le(0)),
	reflect.Uint64: reflect.TypeOf(U64le(0)),
}
