// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"

	"github.com/sincerejisoo/FEMU-FDP/lib/textui"
)

type runeScanner struct {
	ctx            context.Context //nolint:containedctx // For detecting shutdown from methods
	progress       textui.Portion[int64]
	progressWriter *textui.Progress[textui.Portion[int64]]
	unreadCnt      uint64
	reader         *bufio.Reader
	closer         io.Closer
}

func newRuneScanner(ctx context.Context, fh *os.File) (*runeScanner, error) {
	fi, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	ret := &runeScanner{
		ctx: ctx,
		progress: textui.Portion[int64]{
			D: fi.Size(),
		},
		progressWriter: textui.NewProgress[textui.Portion[int64]](ctx, dlog.LogLevelDebug, textui.Tunable(1*time.Second)),
		reader:         bufio.NewReader(fh),
		closer:         fh,
	}
	return ret, nil
}

func (rs *runeScanner) ReadRune() (r rune, size int, err error) {
	if err := rs.ctx.Err(); err != nil {
		return 0, 0, err
	}
	r, size, err = rs.reader.ReadRune()
	if rs.unreadCnt > 0 {
		rs.unreadCnt--
	} else {
		rs.progress.N += int64(size)
		rs.progressWriter.Set(rs.progress)
	}
	return
}

func (rs *runeScanner) UnreadRune() error {
	if err := rs.ctx.Err(); err != nil {
		return err
	}
	if err := rs.reader.UnreadRune(); err != nil {
		return err
	}
	rs.unreadCnt++
	return nil
}

func (rs *runeScanner) Close() error {
	rs.progressWriter.Done()
	return rs.closer.Close()
}

func readJSONFile[T any](ctx context.Context, filename string) (T, error) {
	var zero T
	fh, err := os.Open(filename)
	if err != nil {
		return zero, err
	}
	buf, err := newRuneScanner(dlog.WithField(ctx, "femu-fdp.read-json-file", filename), fh)
	if err != nil {
		_ = fh.Close()
		return zero, err
	}
	defer func() {
		_ = buf.Close()
	}()
	var ret T
	if err := lowmemjson.DecodeThenEOF(buf, &ret); err != nil {
		return zero, err
	}
	return ret, nil
}

var prettyJSON = lowmemjson.ReEncoder{
	Indent:                "\t",
	ForceTrailingNewlines: true,
}

func writeJSONFile(w io.Writer, obj any, cfg lowmemjson.ReEncoder) (err error) {
	buffer := bufio.NewWriter(w)
	defer func() {
		if _err := buffer.Flush(); err == nil && _err != nil {
			err = _err
		}
	}()
	cfg.Out = buffer
	return lowmemjson.Encode(&cfg, obj)
}
