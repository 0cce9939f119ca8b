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

import "iter"

// Walk iterates over the indirect objects which can be reached from the
// trailer dictionary.  The objects are visited in breadth-first order,
// starting with the trailer entries in sorted order.  Each indirect object
// is visited once, and objects are loaded from the file as needed.
//
// Objects which cannot be loaded are visited with a null value.
func (d *Document) Walk() iter.Seq2[*Indirect, Object] {
	return func(yield func(*Indirect, Object) bool) {
		w := &walker{
			get: func(c *Indirect) (Object, bool) {
				return c.Value(), true
			},
			seen: make(map[uint32]bool),
		}
		for c, obj := range w.walk(d.trailer) {
			if !yield(c, obj) {
				return
			}
		}
	}
}

// reachableLocked returns all indirect objects which can be reached from
// the trailer, in breadth-first order.
// The caller must hold d.access.
func (d *Document) reachableLocked() []*Indirect {
	w := &walker{
		get: func(c *Indirect) (Object, bool) {
			if c.doc != d {
				return nil, false
			}
			return c.valueLocked(), true
		},
		seen: make(map[uint32]bool),
	}
	var res []*Indirect
	for c := range w.walk(d.trailer) {
		c.mu.Lock()
		deleted := c.deleted
		c.mu.Unlock()
		if !deleted {
			res = append(res, c)
		}
	}
	return res
}

// walker traverses an object graph.  Indirect objects are identified by
// their object number.
type walker struct {
	// get returns the value of an indirect object.  If the second return
	// value is false, the object is visited but its value is not
	// traversed.
	get  func(*Indirect) (Object, bool)
	seen map[uint32]bool
}

func (w *walker) walk(root Object) iter.Seq2[*Indirect, Object] {
	return func(yield func(*Indirect, Object) bool) {
		var queue []*Indirect
		enqueue := func(c *Indirect) {
			num := c.Reference().Number()
			if !w.seen[num] {
				w.seen[num] = true
				queue = append(queue, c)
			}
		}

		forEachRef(root, enqueue)
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]

			obj, ok := w.get(c)
			if !yield(c, obj) {
				return
			}
			if ok {
				forEachRef(obj, enqueue)
			}
		}
	}
}

// forEachRef calls fn for all indirect objects which are referenced from
// obj, without following references.  Dictionaries are traversed in sorted
// key order.
func forEachRef(obj Object, fn func(*Indirect)) {
	switch x := obj.(type) {
	case *Indirect:
		fn(x)
	case *Array:
		for _, elem := range x.items {
			forEachRef(elem, fn)
		}
	case *Dict:
		for _, key := range x.Keys() {
			forEachRef(x.m[key], fn)
		}
	case *Stream:
		forEachRef(x.dict, fn)
	}
}
