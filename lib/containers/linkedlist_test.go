// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkedListFIFO(t *testing.T) {
	t.Parallel()
	var l LinkedList[int]
	assert.True(t, l.IsEmpty())
	_, ok := l.PopOldest()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		l.Store(i)
	}
	assert.Equal(t, 5, l.Len())

	var seen []int
	l.Each(func(v int) { seen = append(seen, v) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)

	v, ok := l.PopOldest()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 4, l.Len())

	// Delete from the middle keeps both ends intact.
	l.Delete(l.Oldest().newer)
	seen = nil
	l.Each(func(v int) { seen = append(seen, v) })
	assert.Equal(t, []int{1, 3, 4}, seen)

	for !l.IsEmpty() {
		_, _ = l.PopOldest()
	}
	assert.Zero(t, l.Len())
	assert.Nil(t, l.Oldest())

	// Entries recycled through the pool come back clean.
	l.Store(42)
	assert.Equal(t, 42, l.Oldest().Value)
	assert.Nil(t, l.Oldest().newer)
	assert.Nil(t, l.Oldest().older)
}

func TestOptionalString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "none", Optional[uint16]{}.String())
	assert.Equal(t, "3", OptionalValue[uint16](3).String())
}
