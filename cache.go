// seehuhn.de/go/cos - PDF document objects and storage
// Copyright (C) 2025  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cos

import "sync"

// payload holds the value of an indirect object.  Cells keep a weak pointer
// to the payload while the object is in the soft state, the cache below
// keeps the recently used payloads alive.
type payload struct {
	obj Object
}

// lruCache keeps the most recently used payloads in memory.
type lruCache struct {
	mu          sync.Mutex
	capacity    int
	entries     map[uint32]*cacheEntry
	first, last *cacheEntry
}

type cacheEntry struct {
	prev, next *cacheEntry
	key        uint32
	val        *payload
}

// newCache creates a new LRU cache with the given capacity.
func newCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[uint32]*cacheEntry, max(capacity, 0)),
	}
}

// Put adds a payload to the cache.
func (l *lruCache) Put(key uint32, val *payload) {
	if l.capacity <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.val = val
		l.moveToFront(ent)
		return
	}

	ent := &cacheEntry{
		key: key,
		val: val,
	}
	l.entries[key] = ent
	l.moveToFront(ent)

	if len(l.entries) > l.capacity {
		l.removeLast()
	}
}

// Touch marks the entry for key as recently used.
func (l *lruCache) Touch(key uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		l.moveToFront(ent)
	}
}

// Remove drops the entry for key from the cache.
func (l *lruCache) Remove(key uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[key]
	if !ok {
		return
	}
	l.unlink(ent)
	delete(l.entries, key)
}

// Clear removes all entries from the cache.
func (l *lruCache) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.entries)
	l.first = nil
	l.last = nil
}

func (l *lruCache) moveToFront(ent *cacheEntry) {
	if ent == l.first {
		return
	}
	l.unlink(ent)

	ent.next = l.first
	if l.first != nil {
		l.first.prev = ent
	}
	l.first = ent
	if l.last == nil {
		l.last = ent
	}
}

func (l *lruCache) unlink(ent *cacheEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if ent == l.first {
		l.first = ent.next
	}
	if ent == l.last {
		l.last = ent.prev
	}
	ent.prev = nil
	ent.next = nil
}

func (l *lruCache) removeLast() {
	if l.last == nil {
		return
	}
	last := l.last
	l.unlink(last)
	delete(l.entries, last.key)
}
