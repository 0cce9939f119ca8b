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
	"io"
	"iter"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Array represent an array of objects in a PDF file.
type Array struct {
	node
	items []Object
}

// NewArray returns a new array holding the given elements.
func NewArray(elems ...Object) *Array {
	a := &Array{}
	for _, e := range elems {
		a.Append(e)
	}
	return a
}

// Kind implements the [Object] interface.
func (*Array) Kind() Kind { return KindArray }

func (*Array) isObject() {}

func (a *Array) base() *node { return &a.node }

// Container returns the container which holds the array directly,
// or nil if the array is detached.
func (a *Array) Container() Container { return a.parent }

// Len returns the number of elements of the array.
func (a *Array) Len() int {
	return len(a.items)
}

// Get returns the element at index i.  References to indirect objects are
// not resolved.  If i is out of range, [Null] is returned.
func (a *Array) Get(i int) Object {
	if i < 0 || i >= len(a.items) {
		return Null{}
	}
	return nullIfNil(a.items[i])
}

// Set replaces the element at index i and returns the previous value.
// The function panics if i is out of range.
func (a *Array) Set(i int, val Object) Object {
	if i < 0 || i >= len(a.items) {
		panic("cos: array index " + strconv.Itoa(i) + " out of range")
	}
	old := a.items[i]
	if c, ok := val.(composite); ok && c.base().parent == Container(a) && !sameObject(old, val) {
		panic(&OwnershipError{Obj: val, Msg: "object is already contained in this array"})
	}

	willChange(a)
	if !sameObject(old, val) {
		release(a, old)
		val = containable(a, val)
		if val == nil {
			val = Null{}
		}
		a.items[i] = val
	}
	changed(a, i, old, val)
	return nullIfNil(old)
}

// Append adds val at the end of the array.
func (a *Array) Append(val Object) {
	a.Insert(len(a.items), val)
}

// Insert inserts val at index i, shifting the following elements.
func (a *Array) Insert(i int, val Object) {
	if i < 0 || i > len(a.items) {
		panic("cos: array index " + strconv.Itoa(i) + " out of range")
	}
	if c, ok := val.(composite); ok && c.base().parent == Container(a) {
		panic(&OwnershipError{Obj: val, Msg: "object is already contained in this array"})
	}

	willChange(a)
	val = containable(a, val)
	if val == nil {
		val = Null{}
	}
	a.items = slices.Insert(a.items, i, val)
	changed(a, i, nil, val)
}

// Remove removes the element at index i and returns it.
func (a *Array) Remove(i int) Object {
	if i < 0 || i >= len(a.items) {
		return Null{}
	}
	willChange(a)
	old := a.items[i]
	a.items = slices.Delete(a.items, i, i+1)
	release(a, old)
	changed(a, i, old, nil)
	return nullIfNil(old)
}

// All iterates over the elements of the array.
func (a *Array) All() iter.Seq2[int, Object] {
	return func(yield func(int, Object) bool) {
		for i, obj := range a.items {
			if !yield(i, nullIfNil(obj)) {
				return
			}
		}
	}
}

// Clone returns a copy of the array.  Directly contained arrays,
// dictionaries and streams are copied recursively, references to indirect
// objects are shared.
func (a *Array) Clone() *Array {
	res := &Array{items: make([]Object, len(a.items))}
	for i, obj := range a.items {
		res.items[i] = attachCopy(res, obj)
	}
	return res
}

// appendRaw adds an element without change notification.
// This is used while objects are constructed by the parser.
func (a *Array) appendRaw(val Object) {
	val = containable(a, val)
	if val == nil {
		val = Null{}
	}
	a.items = append(a.items, val)
}

func (a *Array) String() string {
	return "<Array, " + strconv.Itoa(len(a.items)) + " elements>"
}

// PDF implements the [Object] interface.
func (a *Array) PDF(w io.Writer) error {
	_, err := w.Write([]byte("["))
	if err != nil {
		return err
	}
	for i, val := range a.items {
		if i > 0 {
			_, err := w.Write([]byte(" "))
			if err != nil {
				return err
			}
		}
		err = writeDirect(w, val)
		if err != nil {
			return err
		}
	}
	_, err = w.Write([]byte("]"))
	return err
}

// Dict represent a dictionary object in a PDF file.
type Dict struct {
	node
	m map[Name]Object
}

// NewDict returns a new, empty dictionary.
func NewDict() *Dict {
	return &Dict{m: make(map[Name]Object)}
}

// DictOf returns a new dictionary holding the given entries.
func DictOf(entries map[Name]Object) *Dict {
	d := NewDict()
	for _, key := range sortedKeys(entries) {
		d.Set(key, entries[key])
	}
	return d
}

// Kind implements the [Object] interface.
func (*Dict) Kind() Kind { return KindDict }

func (*Dict) isObject() {}

func (d *Dict) base() *node { return &d.node }

// Container returns the container which holds the dictionary directly,
// or nil if the dictionary is detached.
func (d *Dict) Container() Container { return d.parent }

// Len returns the number of entries in the dictionary.
func (d *Dict) Len() int {
	return len(d.m)
}

// Get returns the value stored under key.  References to indirect objects
// are not resolved.  If the key is missing, [Null] is returned.
func (d *Dict) Get(key Name) Object {
	return nullIfNil(d.m[key])
}

// Has reports whether the dictionary contains key.
func (d *Dict) Has(key Name) bool {
	_, ok := d.m[key]
	return ok
}

// Set stores val under key and returns the previous value.  If val is
// [Null] or nil, the key is removed.
func (d *Dict) Set(key Name, val Object) Object {
	if d.m == nil {
		d.m = make(map[Name]Object)
	}
	old := d.m[key]
	if c, ok := val.(composite); ok && c.base().parent == Container(d) && !sameObject(old, val) {
		panic(&OwnershipError{Obj: val, Msg: "object is already contained in this dictionary"})
	}
	if old == nil && isNull(val) {
		return Null{}
	}

	willChange(d)
	if !sameObject(old, val) {
		release(d, old)
		val = containable(d, val)
		if val == nil {
			delete(d.m, key)
		} else {
			d.m[key] = val
		}
	}
	changed(d, key, old, val)
	return nullIfNil(old)
}

// Delete removes key from the dictionary and returns the previous value.
func (d *Dict) Delete(key Name) Object {
	return d.Set(key, nil)
}

// Keys returns the keys of the dictionary in sorted order.
func (d *Dict) Keys() []Name {
	return sortedKeys(d.m)
}

// All iterates over the entries of the dictionary, in sorted order.
func (d *Dict) All() iter.Seq2[Name, Object] {
	return func(yield func(Name, Object) bool) {
		for _, key := range d.Keys() {
			val, ok := d.m[key]
			if !ok {
				continue
			}
			if !yield(key, val) {
				return
			}
		}
	}
}

// Clone returns a copy of the dictionary.  Directly contained arrays,
// dictionaries and streams are copied recursively, references to indirect
// objects are shared.
func (d *Dict) Clone() *Dict {
	res := NewDict()
	for key, val := range d.m {
		res.m[key] = attachCopy(res, val)
	}
	return res
}

// setRaw stores a value without change notification.  This is used by the
// parser, and for the /Length entry of streams.
func (d *Dict) setRaw(key Name, val Object) {
	if d.m == nil {
		d.m = make(map[Name]Object)
	}
	old := d.m[key]
	if sameObject(old, val) {
		return
	}
	release(d, old)
	val = containable(d, val)
	if val == nil {
		delete(d.m, key)
	} else {
		d.m[key] = val
	}
}

func (d *Dict) String() string {
	res := []string{}
	if tp, ok := d.m["Type"].(Name); ok {
		res = append(res, string(tp)+" Dict")
	} else {
		res = append(res, "Dict")
	}
	if len(d.m) != 1 {
		res = append(res, strconv.Itoa(len(d.m))+" entries")
	} else {
		res = append(res, "1 entry")
	}
	return "<" + strings.Join(res, ", ") + ">"
}

// PDF implements the [Object] interface.
func (d *Dict) PDF(w io.Writer) error {
	return d.writeEntries(w, nil)
}

// writeEntries writes the dictionary, replacing the values of the keys
// present in override.
func (d *Dict) writeEntries(w io.Writer, override map[Name]Object) error {
	_, err := w.Write([]byte("<<"))
	if err != nil {
		return err
	}

	keys := d.Keys()
	for key := range override {
		if _, seen := d.m[key]; !seen {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	for _, name := range keys {
		val, ok := override[name]
		if !ok {
			val = d.m[name]
		}
		if isNull(val) {
			continue
		}

		_, err = w.Write([]byte("\n"))
		if err != nil {
			return err
		}
		err = name.PDF(w)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(" "))
		if err != nil {
			return err
		}
		err = writeDirect(w, val)
		if err != nil {
			return err
		}
	}
	_, err = w.Write([]byte("\n>>"))
	return err
}

// writeDirect writes an object which is stored inside a container.
func writeDirect(w io.Writer, obj Object) error {
	if obj == nil {
		_, err := w.Write([]byte("null"))
		return err
	}
	if _, isStream := obj.(*Stream); isStream {
		return &OwnershipError{Obj: obj, Msg: "streams must be indirect objects"}
	}
	return obj.PDF(w)
}

// attachCopy returns a copy of obj, owned by c.
func attachCopy(c Container, obj Object) Object {
	var res Object
	switch x := obj.(type) {
	case *Array:
		res = x.Clone()
	case *Dict:
		res = x.Clone()
	case *Stream:
		res = x.Clone()
	case *Indirect:
		x.refs.Add(1)
		return x
	default:
		return obj
	}
	res.(composite).base().parent = c
	return res
}

func sortedKeys[T any](m map[Name]T) []Name {
	keys := make([]Name, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
