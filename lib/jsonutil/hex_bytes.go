// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package jsonutil

import (
	"bytes"
	"io"

	"git.lukeshu.com/go/lowmemjson"
)

// HexBytes is a byte string that is written to JSON as a hex string
// rather than base64.
type HexBytes []byte

var (
	_ lowmemjson.Encodable = HexBytes(nil)
	_ lowmemjson.Decodable = (*HexBytes)(nil)
)

func (h HexBytes) EncodeJSON(w io.Writer) error {
	return EncodeHexString(w, h)
}

func (h *HexBytes) DecodeJSON(r io.RuneScanner) error {
	var buf bytes.Buffer
	if err := DecodeHexString(r, &buf); err != nil {
		return err
	}
	*h = buf.Bytes()
	return nil
}
