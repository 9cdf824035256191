// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"encoding"
	"fmt"
	"reflect"
)

type Marshaler = encoding.BinaryMarshaler

func Marshal(obj any) ([]byte, error) {
	if mar, ok := obj.(Marshaler); ok {
		dat, err := mar.MarshalBinary()
		if err != nil {
			err = &MarshalError{
				Type:   reflect.TypeOf(obj),
				Method: "MarshalBinary",
				Err:    err,
			}
		}
		return dat, err
	}
	return MarshalWithoutInterface(obj)
}

func MarshalWithoutInterface(obj any) ([]byte, error) {
	val := reflect.ValueOf(obj)
	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		typ := intKind2Type[val.Kind()]
		return Marshal(val.Convert(typ).Interface())
	case reflect.Ptr:
		return Marshal(val.Elem().Interface())
	case reflect.Array:
		var ret []byte
		for i := 0; i < val.Len(); i++ {
			bs, err := Marshal(val.Index(i).Interface())
			ret = append(ret, bs...)
			if err != nil {
				return ret, err
			}
		}
		return ret, nil
	case reflect.Struct:
		return getStructHandler(val.Type()).Marshal(val)
	default:
		panic(&InvalidTypeError{
			Type: val.Type(),
			Err: fmt.Errorf("does not implement binstruct.Marshaler and kind=%v is not a supported statically-sized kind",
				val.Kind()),
		})
	}
}

// MarshalInto encodes a statically-sized obj into the start of dst,
// returning the number of bytes written.  If dst is too short, a
// *ShortBufferError is returned and dst is left untouched.
func MarshalInto(dst []byte, obj any) (int, error) {
	size := StaticSize(obj)
	if len(dst) < size {
		return 0, &ShortBufferError{
			Type: reflect.TypeOf(obj),
			Need: size,
			Have: len(dst),
		}
	}
	dat, err := Marshal(obj)
	if err != nil {
		return 0, err
	}
	if len(dat) != size {
		return 0, &MarshalError{
			Type: reflect.TypeOf(obj),
			Err:  fmt.Errorf("encoded %v bytes but StaticSize is %v", len(dat), size),
		}
	}
	return copy(dst, dat), nil
}
