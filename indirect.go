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
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"weak"
)

// cellState describes how the value of an indirect object is held.
type cellState uint8

const (
	stateUnresolved cellState = iota // not yet loaded
	stateHard                        // held by a strong reference
	stateSoft                        // held weakly, may be reclaimed
	stateEvicted                     // was loaded, must be loaded again
	stateFailed                      // loading failed, value is null
)

func (s cellState) String() string {
	switch s {
	case stateUnresolved:
		return "unresolved"
	case stateHard:
		return "hard"
	case stateSoft:
		return "soft"
	case stateEvicted:
		return "evicted"
	case stateFailed:
		return "failed"
	default:
		return "cellState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Indirect is an indirect object in a PDF document.  Each indirect object
// is identified by a [Reference] and is unique within its document.
//
// The value of an indirect object is loaded from the file when it is first
// needed.  Objects which have not been modified may be dropped from memory
// and are then loaded again when they are next used.
type Indirect struct {
	doc *Document

	// mu protects the fields below.  The lock must not be held while
	// acquiring doc.access.
	mu      sync.Mutex
	ref     Reference
	state   cellState
	hard    Object
	soft    weak.Pointer[payload]
	err     error
	dirty   bool
	pinned  bool
	backed  bool // the object has an entry in the cross-reference chain
	deleted bool

	refs atomic.Int32
}

// Kind implements the [Object] interface.
func (*Indirect) Kind() Kind { return KindReference }

func (*Indirect) isObject() {}

func (c *Indirect) parentContainer() Container {
	return c.doc
}

// Document returns the document the indirect object belongs to.
func (c *Indirect) Document() *Document {
	return c.doc
}

// Reference returns the object and generation number.
func (c *Indirect) Reference() Reference {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref
}

// Value returns the value of the indirect object, loading it from the file
// if needed.  If the object cannot be loaded, [Null] is returned and the
// error is reported to the document's error handler; see [Indirect.Err].
func (c *Indirect) Value() Object {
	c.mu.Lock()
	obj, ok := c.cachedLocked()
	c.mu.Unlock()
	if ok {
		return obj
	}

	d := c.doc
	d.access.Lock()
	obj = c.valueLocked()
	pending := d.takeLoadErrors()
	d.access.Unlock()

	d.reportLoadErrors(pending)
	return obj
}

// valueLocked returns the value of the indirect object.
// The caller must hold c.doc.access.
func (c *Indirect) valueLocked() Object {
	c.mu.Lock()
	if obj, ok := c.cachedLocked(); ok {
		c.mu.Unlock()
		return obj
	}
	ref := c.ref
	c.mu.Unlock()

	d := c.doc
	obj, err := d.loadLocked(ref)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cachedLocked(); ok {
		// The value was set while we were loading.
		return cached
	}
	if err != nil {
		c.state = stateFailed
		c.err = err
		c.hard = nil
		d.recordLoadError(ref, err)
		return Null{}
	}
	if comp, ok := obj.(composite); ok {
		comp.base().parent = c
	}
	c.storeLocked(obj)
	return nullIfNil(obj)
}

// cachedLocked returns the value of the object, if it is held in memory.
// The caller must hold c.mu.
func (c *Indirect) cachedLocked() (Object, bool) {
	switch c.state {
	case stateHard:
		return nullIfNil(c.hard), true
	case stateSoft:
		p := c.soft.Value()
		if p == nil {
			c.state = stateEvicted
			return nil, false
		}
		if c.doc != nil {
			c.doc.cache.Touch(c.ref.Number())
		}
		return nullIfNil(p.obj), true
	case stateFailed:
		return Null{}, true
	default:
		return nil, false
	}
}

// storeLocked stores a freshly loaded value.
// The caller must hold c.mu.
func (c *Indirect) storeLocked(obj Object) {
	if c.dirty || c.pinned || !c.backed || c.doc == nil {
		c.state = stateHard
		c.hard = obj
		c.soft = weak.Pointer[payload]{}
		return
	}
	p := &payload{obj: obj}
	c.state = stateSoft
	c.hard = nil
	c.soft = weak.Make(p)
	c.doc.cache.Put(c.ref.Number(), p)
}

// Err returns the error which occurred when the object was last loaded,
// or nil if the object was loaded successfully.
func (c *Indirect) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Retry clears a load failure, so that the next call to [Indirect.Value]
// tries to load the object again.
func (c *Indirect) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateFailed {
		c.state = stateUnresolved
		c.err = nil
	}
}

// Set replaces the value of the indirect object.  Arrays, dictionaries and
// streams must not be contained in any other object.
func (c *Indirect) Set(obj Object) {
	if comp, ok := obj.(composite); ok && comp.base().parent == Container(c) {
		// re-assignment of the current value
		c.mu.Lock()
		cur, _ := c.cachedLocked()
		c.mu.Unlock()
		if !sameObject(cur, obj) {
			panic(&OwnershipError{Obj: obj, Msg: "object is stale"})
		}
	}

	d := c.doc
	d.fireWillChange(c)

	c.mu.Lock()
	old, _ := c.cachedLocked()
	c.mu.Unlock()
	if !sameObject(old, obj) {
		release(c, old)
		obj = containable(c, obj)
	}

	c.mu.Lock()
	c.state = stateHard
	c.hard = obj
	c.soft = weak.Pointer[payload]{}
	c.err = nil
	c.dirty = true
	revived := c.deleted
	c.deleted = false
	num := c.ref.Number()
	c.mu.Unlock()

	d.cache.Remove(num)
	if revived {
		d.mu.Lock()
		d.free.remove(num)
		d.mu.Unlock()
	}
	d.markDirty(c)
	d.fireChanged(ChangeEvent{Target: c, Old: nullIfNil(old), New: nullIfNil(obj)})
}

// childWillChange is called before an object owned by c is modified.
// root is the object directly held by c, obj is the object being changed.
func (c *Indirect) childWillChange(root Object, obj composite) {
	c.mu.Lock()
	cur, ok := c.cachedLocked()
	switch {
	case ok && c.state != stateFailed && sameObject(cur, root):
		// pass
	case !ok && c.state == stateEvicted:
		// The caller still holds the object which was dropped from the
		// cache.  This becomes the value again.
	default:
		c.mu.Unlock()
		panic(&OwnershipError{Obj: obj, Msg: "modification of a stale object"})
	}
	c.state = stateHard
	c.hard = root
	c.soft = weak.Pointer[payload]{}
	c.dirty = true
	num := c.ref.Number()
	c.mu.Unlock()

	d := c.doc
	d.cache.Remove(num)
	d.fireWillChange(obj)
	d.markDirty(c)
}

// IsDirty reports whether the object was modified since the document was
// last saved.
func (c *Indirect) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// RefCount returns the number of containers which hold a reference to c.
// References from objects which have not been loaded are not counted.
func (c *Indirect) RefCount() int {
	return int(c.refs.Load())
}

// Harden loads the value of the object and keeps it in memory until
// [Indirect.Soften] is called.
func (c *Indirect) Harden() {
	c.Value()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = true
	if c.state == stateSoft {
		if p := c.soft.Value(); p != nil {
			c.state = stateHard
			c.hard = p.obj
			c.soft = weak.Pointer[payload]{}
			c.doc.cache.Remove(c.ref.Number())
		} else {
			c.state = stateEvicted
		}
	}
}

// Soften allows the value of the object to be dropped from memory.
// Objects which have been modified are kept until the document is saved.
func (c *Indirect) Soften() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
	c.softenLocked()
}

func (c *Indirect) softenLocked() {
	if c.state != stateHard || c.dirty || c.pinned || !c.backed || c.doc == nil {
		return
	}
	c.storeLocked(c.hard)
}

// Evict drops the value of the object from memory.  The object is loaded
// again when it is next used.  Evict has no effect on objects which have
// been modified, and on objects which are not backed by the file.
// The return value indicates whether the value was dropped.
func (c *Indirect) Evict() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty || !c.backed {
		return false
	}
	switch c.state {
	case stateHard, stateSoft:
		c.state = stateEvicted
		c.hard = nil
		c.soft = weak.Pointer[payload]{}
		c.pinned = false
		c.doc.cache.Remove(c.ref.Number())
		return true
	}
	return false
}

// vacant reports whether the object number of c may be given to a new
// object.  This is the case for deleted objects, and for references to
// object numbers which are neither stored in the file nor in use.
func (c *Indirect) vacant() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted || !c.backed && !c.dirty
}

// peek returns the value of the object if it is in memory, without loading
// it from the file.
func (c *Indirect) peek() (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedLocked()
}

// PDF implements the [Object] interface.
// This writes a reference "n g R" to the object.
func (c *Indirect) PDF(w io.Writer) error {
	ref := c.Reference()
	if pw, ok := w.(*posWriter); ok && pw.trans != nil {
		var found bool
		ref, found = pw.trans(c)
		if !found {
			_, err := w.Write([]byte("null"))
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d %d R", ref.Number(), ref.Generation())
	return err
}

func (c *Indirect) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "<" + c.ref.String() + ", " + c.state.String() + ">"
}
