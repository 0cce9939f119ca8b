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

import (
	"testing"
)

// get looks up key and marks the entry as recently used.
func (l *lruCache) get(key uint32) (*payload, bool) {
	l.Touch(key)
	ent, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	return ent.val, true
}

func (l *lruCache) has(key uint32) bool {
	_, ok := l.entries[key]
	return ok
}

func TestLRUCache(t *testing.T) {
	cache := newCache(12)
	p100 := &payload{Integer(100)}
	cache.Put(100, p100)
	cache.Put(101, &payload{Integer(101)})
	cache.Put(102, &payload{Integer(102)})
	val, ok := cache.get(100)
	if !ok {
		t.Error("cache miss")
	}
	if val != p100 {
		t.Error("wrong object")
	}
	// now 101 is the oldest entry and should drop out later

	val, ok = cache.get(0)
	if ok {
		t.Error("cache hit")
	}
	if val != nil {
		t.Error("wrong object")
	}

	for i := 0; i < 25; i++ {
		x := uint32(i % 10)

		val, ok := cache.get(x)
		if ok != (i >= 10) {
			t.Error("cache hit/miss mismatch")
		}
		if ok {
			if val.obj != Integer(x) {
				t.Error("wrong object")
			}
		} else {
			cache.Put(x, &payload{Integer(x)})
		}
	}

	if !cache.has(100) {
		t.Error("cache miss")
	}
	if cache.has(101) {
		t.Error("cache hit")
	}
	if !cache.has(102) {
		t.Error("cache miss")
	}
	if n := len(cache.entries); n != 12 {
		t.Errorf("wrong cache size %d", n)
	}
}

func TestLRUCacheRemove(t *testing.T) {
	cache := newCache(3)
	for i := uint32(1); i <= 3; i++ {
		cache.Put(i, &payload{Integer(i)})
	}
	cache.Remove(3) // the most recent entry
	cache.Remove(1) // the oldest entry
	cache.Put(4, &payload{Integer(4)})
	cache.Put(5, &payload{Integer(5)})
	if !cache.has(2) || !cache.has(4) || !cache.has(5) {
		t.Error("entries lost after removal")
	}

	cache.Put(6, &payload{Integer(6)})
	if cache.has(2) {
		t.Error("oldest entry not evicted")
	}

	cache.Clear()
	if len(cache.entries) != 0 || cache.has(5) {
		t.Error("cache not empty after Clear")
	}
}

func TestLRUCacheDisabled(t *testing.T) {
	cache := newCache(-1)
	cache.Put(1, &payload{Integer(1)})
	if cache.has(1) {
		t.Error("disabled cache stored an entry")
	}
}
