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
	"fmt"
	"weak"
)

// GCMode selects the type of garbage collection.
type GCMode int

// These are the supported garbage collection modes.
const (
	// GCFull removes all objects which cannot be reached from the trailer
	// and renumbers the remaining objects consecutively, starting at 1.
	// After a full collection, the document can only be written as a
	// complete new file.
	GCFull GCMode = iota

	// GCIncremental removes new objects, which cannot be reached from
	// the trailer, from the set of modified objects.  Object numbers are
	// not changed, and the document can still be saved incrementally.
	GCIncremental
)

func (m GCMode) String() string {
	switch m {
	case GCFull:
		return "full"
	case GCIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("cos.GCMode(%d)", int(m))
	}
}

// CollectGarbage removes objects which are no longer used.
//
// A full collection loads all reachable objects into memory.  Indirect
// objects which are not reachable become invalid and must no longer be
// used.
func (d *Document) CollectGarbage(mode GCMode) error {
	d.access.Lock()
	var err error
	switch mode {
	case GCFull:
		err = d.gcFullLocked()
	case GCIncremental:
		d.gcIncrementalLocked()
	default:
		err = fmt.Errorf("cos: invalid GC mode %s", mode)
	}
	pending := d.takeLoadErrors()
	d.access.Unlock()

	d.reportLoadErrors(pending)
	return err
}

func (d *Document) gcFullLocked() error {
	if d.closed {
		return ErrClosed
	}

	cells := d.reachableLocked()

	// Keep the values of all surviving objects in memory, since the
	// renumbered objects cannot be loaded from the file any more.
	values := make([]Object, len(cells))
	for i, c := range cells {
		values[i] = c.valueLocked()
	}

	d.mu.Lock()
	d.cells = make([]*Indirect, len(cells)+1)
	clear(d.dirty)
	for i, c := range cells {
		num := uint32(i + 1)
		c.mu.Lock()
		c.ref = NewReference(num, 0)
		c.state = stateHard
		c.hard = values[i]
		c.soft = weak.Pointer[payload]{}
		c.err = nil
		c.dirty = true
		c.backed = false
		c.mu.Unlock()

		d.cells[num] = c
		d.dirty[num] = c
	}
	d.nextNumber = uint32(len(cells) + 1)
	d.free = newFreeList()
	d.xref = newXRefSection(XRefRebuilt)
	d.needFull = true
	d.trailerDirty = true
	if c, ok := d.trailer.Get("Encrypt").(*Indirect); ok {
		d.writeEncrypt = c.Reference().Number()
	}
	d.mu.Unlock()

	d.cache.Clear()
	clear(d.objStms)
	return nil
}

// gcIncrementalLocked removes objects which can no longer be reached from
// the trailer from the dirty set.  Objects are not renumbered.
//
// Objects stored in the file can only refer to numbers which are present
// in the cross-reference chain.  If no such number is in the dirty set,
// objects which are not held in memory need not be traversed.
func (d *Document) gcIncrementalLocked() {
	d.mu.Lock()
	load := false
	for num := range d.dirty {
		if _, found := d.xref.lookup(num); found {
			load = true
			break
		}
	}
	d.mu.Unlock()

	w := &walker{
		get: func(c *Indirect) (Object, bool) {
			if c.doc != d {
				return nil, false
			}
			if load {
				return c.valueLocked(), true
			}
			return c.peek()
		},
		seen: make(map[uint32]bool),
	}
	reached := make(map[*Indirect]bool)
	for c := range w.walk(d.trailer) {
		reached[c] = true
	}

	var evict []*Indirect
	d.mu.Lock()
	for num, c := range d.dirty {
		if reached[c] {
			continue
		}
		c.mu.Lock()
		if c.deleted {
			c.mu.Unlock()
			continue
		}
		if c.backed {
			c.dirty = false
			evict = append(evict, c)
		}
		c.mu.Unlock()
		delete(d.dirty, num)
	}
	d.mu.Unlock()

	for _, c := range evict {
		c.Evict()
	}
}
