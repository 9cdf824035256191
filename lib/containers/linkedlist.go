// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"git.lukeshu.com/go/typedsync"
)

// LinkedListEntry[T] is an entry in a LinkedList[T].
type LinkedListEntry[T any] struct {
	older, newer *LinkedListEntry[T]
	Value        T
}

// LinkedList is a doubly-linked list used as a FIFO queue.
//
// Rather than "head/tail" or "front/back", it has "oldest" and
// "newest": values are stored at the newest end and taken from the
// oldest end.  It maintains a Pool of entries, so churning through
// the list does not churn out garbage.
type LinkedList[T any] struct {
	oldest, newest *LinkedListEntry[T]
	len            int
	pool           typedsync.Pool[*LinkedListEntry[T]]
}

// IsEmpty returns whether the list empty or not.
func (l *LinkedList[T]) IsEmpty() bool {
	return l.oldest == nil
}

// Len returns the number of entries in the list.
func (l *LinkedList[T]) Len() int {
	return l.len
}

// Delete removes an entry from the list.  The entry is invalid once
// Delete returns, and should not be reused or have its .Value
// accessed.
//
// It is invalid (runtime-panic) to call Delete on a nil entry.
//
// It is invalid (corrupt the list) to call Delete on an entry that
// isn't in the list.
func (l *LinkedList[T]) Delete(entry *LinkedListEntry[T]) {
	if entry.newer == nil {
		l.newest = entry.older
	} else {
		entry.newer.older = entry.older
	}
	if entry.older == nil {
		l.oldest = entry.newer
	} else {
		entry.older.newer = entry.newer
	}
	l.len--

	*entry = LinkedListEntry[T]{} // no memory leaks
	l.pool.Put(entry)
}

// Store appends a value to the "newest" end of the list, returning
// the created entry.
func (l *LinkedList[T]) Store(val T) *LinkedListEntry[T] {
	entry, ok := l.pool.Get()
	if !ok {
		entry = new(LinkedListEntry[T])
	}
	*entry = LinkedListEntry[T]{
		older: l.newest,
		Value: val,
	}
	l.newest = entry
	if entry.older == nil {
		l.oldest = entry
	} else {
		entry.older.newer = entry
	}
	l.len++
	return entry
}

// Oldest returns the entry at the "oldest" end of the list, or nil if
// the list is empty.
func (l *LinkedList[T]) Oldest() *LinkedListEntry[T] {
	return l.oldest
}

// PopOldest removes the entry at the "oldest" end of the list and
// returns its value.  The second return value is false if the list
// was empty.
func (l *LinkedList[T]) PopOldest() (T, bool) {
	entry := l.oldest
	if entry == nil {
		var zero T
		return zero, false
	}
	val := entry.Value
	l.Delete(entry)
	return val, true
}

// Each calls fn for every value, oldest first.  fn must not modify
// the list.
func (l *LinkedList[T]) Each(fn func(T)) {
	for entry := l.oldest; entry != nil; entry = entry.newer {
		fn(entry.Value)
	}
}
