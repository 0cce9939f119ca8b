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
)

// A Container owns PDF objects.  Arrays, dictionaries, streams, indirect
// objects and documents (which own the trailer dictionary) are containers.
type Container interface {
	parentContainer() Container
}

// ChangeEvent describes a modification of a container.
type ChangeEvent struct {
	// Target is the object which was modified.
	Target Object

	// Slot identifies the modified part of Target.  This is a [Name] for
	// dictionaries, an int for arrays, and nil for the data of streams and
	// for the value of indirect objects.
	Slot any

	// Old and New are the values before and after the change.
	// Missing values are represented by [Null].
	Old, New Object
}

// An OwnershipError is used as the panic value when the containment rules
// for PDF objects are violated.
type OwnershipError struct {
	Obj Object
	Msg string
}

func (err *OwnershipError) Error() string {
	return fmt.Sprintf("cos: %s (%s)", err.Msg, describe(err.Obj))
}

// node holds the state shared by all composite objects.
type node struct {
	parent    Container
	listeners []func(ChangeEvent)
}

func (n *node) parentContainer() Container {
	return n.parent
}

// AddListener registers fn to be called after every modification
// of the container.
func (n *node) AddListener(fn func(ChangeEvent)) {
	n.listeners = append(n.listeners, fn)
}

// composite is implemented by *Array, *Dict and *Stream.
type composite interface {
	Object
	Container
	base() *node
}

// containable prepares obj for being stored in a slot of c.
// The value to store is returned; nil means that the slot must be removed.
//
// Composite objects must either be detached or already be owned by c.
// The caller must check that an object owned by c is not stored in a
// second slot.
func containable(c Container, obj Object) Object {
	switch x := obj.(type) {
	case nil, Null:
		return nil
	case *Indirect:
		if d := documentOf(c); d != nil && x.doc != nil && x.doc != d {
			panic(&OwnershipError{Obj: x, Msg: "indirect object belongs to a different document"})
		}
		x.refs.Add(1)
		if x.doc != nil && x.IsDirty() {
			x.doc.markDirty(x)
		}
		return x
	case composite:
		b := x.base()
		switch {
		case b.parent == nil:
			if x == c {
				panic(&OwnershipError{Obj: x, Msg: "object cannot contain itself"})
			}
			if d := documentOf(c); d != nil {
				checkForeign(d, x)
			}
			b.parent = c
		case b.parent == c:
			// re-insertion into the same container
		default:
			panic(&OwnershipError{Obj: x, Msg: "object is already contained in " + describe(b.parent)})
		}
		return x
	default:
		return obj
	}
}

// checkForeign panics if obj contains references to indirect objects of a
// document other than d.
func checkForeign(d *Document, obj Object) {
	switch x := obj.(type) {
	case *Indirect:
		if x.doc != nil && x.doc != d {
			panic(&OwnershipError{Obj: x, Msg: "indirect object belongs to a different document"})
		}
	case *Array:
		for _, val := range x.items {
			checkForeign(d, val)
		}
	case *Dict:
		for _, val := range x.m {
			checkForeign(d, val)
		}
	case *Stream:
		checkForeign(d, x.dict)
	}
}

// release undoes the effect of containable, after obj has been removed
// from c.
func release(c Container, obj Object) {
	switch x := obj.(type) {
	case *Indirect:
		x.refs.Add(-1)
	case composite:
		if b := x.base(); b.parent == c {
			b.parent = nil
		}
	}
}

// willChange must be called before obj is modified.  The change is
// propagated to the indirect object or document at the root of the
// ownership chain.
func willChange(obj composite) {
	var cur Object = obj
	for {
		var parent Container
		if c, ok := cur.(composite); ok {
			parent = c.base().parent
		}
		switch p := parent.(type) {
		case nil:
			return
		case *Indirect:
			p.childWillChange(cur, obj)
			return
		case *Document:
			p.trailerWillChange(obj)
			return
		case composite:
			cur = p
		default:
			return
		}
	}
}

// changed notifies the listeners of obj, and of the document obj belongs to.
func changed(obj composite, slot any, oldVal, newVal Object) {
	ev := ChangeEvent{
		Target: obj,
		Slot:   slot,
		Old:    nullIfNil(oldVal),
		New:    nullIfNil(newVal),
	}
	for _, fn := range obj.base().listeners {
		fn(ev)
	}
	if d := documentOf(obj); d != nil {
		d.fireChanged(ev)
	}
}

// documentOf returns the document which owns c, or nil if c is not
// attached to a document.
func documentOf(c Container) *Document {
	for c != nil {
		switch x := c.(type) {
		case *Document:
			return x
		case *Indirect:
			return x.doc
		}
		c = c.parentContainer()
	}
	return nil
}

// sameObject reports whether a and b are the same object.  Strings are
// never considered the same, since they cannot be compared using ==.
func sameObject(a, b Object) bool {
	if _, ok := a.(String); ok {
		return false
	}
	if _, ok := b.(String); ok {
		return false
	}
	return a == b
}

func nullIfNil(obj Object) Object {
	if obj == nil {
		return Null{}
	}
	return obj
}

func describe(x any) string {
	switch x := x.(type) {
	case nil:
		return "nil"
	case *Indirect:
		return "indirect object " + x.Reference().String()
	case *Document:
		return "document"
	case *Dict:
		return "dictionary"
	case *Array:
		return "array"
	case *Stream:
		return "stream"
	case Object:
		return x.Kind().String()
	default:
		return fmt.Sprintf("%T", x)
	}
}
