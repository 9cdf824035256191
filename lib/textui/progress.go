// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dlog"
)

type Stats interface {
	comparable
	fmt.Stringer
}

// Progress periodically logs the latest value passed to Set, skipping
// ticks where nothing changed.
type Progress[T Stats] struct {
	ctx      context.Context //nolint:containedctx // For detecting shutdown from methods
	lvl      dlog.LogLevel
	interval time.Duration

	cancel    context.CancelFunc
	startOnce sync.Once
	done      chan struct{}

	cur     atomic.Value // Value[T]
	oldStat T
	oldLine string
}

func NewProgress[T Stats](ctx context.Context, lvl dlog.LogLevel, interval time.Duration) *Progress[T] {
	ctx, cancel := context.WithCancel(ctx)
	ret := &Progress[T]{
		ctx:      ctx,
		lvl:      lvl,
		interval: interval,

		cancel: cancel,
		done:   make(chan struct{}),
	}
	return ret
}

func (p *Progress[T]) Set(val T) {
	p.cur.Store(val)
	p.startOnce.Do(func() { go p.run() })
}

// Done stops the ticker and logs the final value, if any.  It is safe
// to call Done without ever having called Set.
func (p *Progress[T]) Done() {
	p.startOnce.Do(func() { close(p.done) })
	p.cancel()
	<-p.done
}

func (p *Progress[T]) flush(force bool) {
	cur := p.cur.Load().(T) //nolint:forcetypeassert // Typed wrapper around untyped lib.
	if !force && cur == p.oldStat {
		return
	}
	defer func() { p.oldStat = cur }()

	line := cur.String()
	if !force && line == p.oldLine {
		return
	}
	defer func() { p.oldLine = line }()

	dlog.Log(p.ctx, p.lvl, line)
}

func (p *Progress[T]) run() {
	p.flush(true)
	ticker := time.NewTicker(p.interval)
	for {
		select {
		case <-p.ctx.Done():
			ticker.Stop()
			p.flush(false)
			close(p.done)
			return
		case <-ticker.C:
			p.flush(false)
		}
	}
}
