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

// A Copier is used to copy objects from one document to another.  The
// Copier keeps track of the indirect objects that have already been copied
// and ensures that each object is copied only once.
//
// Indirect objects are allocated in the target document as needed, and
// references are translated accordingly.
type Copier struct {
	trans map[*Indirect]*Indirect
	dst   *Document
}

// NewCopier creates a new Copier which copies objects into dst.
func NewCopier(dst *Document) *Copier {
	return &Copier{
		trans: make(map[*Indirect]*Indirect),
		dst:   dst,
	}
}

// Copy copies an object into the target document, recursively.  The
// returned object is detached and has the same type as the input object.
// Indirect objects which already belong to the target document are
// returned unchanged.
func (c *Copier) Copy(obj Object) (Object, error) {
	switch x := obj.(type) {
	case *Dict:
		return c.CopyDict(x)
	case *Array:
		return c.CopyArray(x)
	case *Stream:
		return c.CopyStream(x)
	case *Indirect:
		return c.CopyIndirect(x)
	case nil:
		return Null{}, nil
	case String:
		return String(append([]byte(nil), x...)), nil
	default:
		return obj, nil
	}
}

// CopyDict copies a dictionary into the target document.
func (c *Copier) CopyDict(obj *Dict) (*Dict, error) {
	res := NewDict()
	for key, val := range obj.All() {
		repl, err := c.Copy(val)
		if err != nil {
			return nil, err
		}
		res.setRaw(key, repl)
	}
	return res, nil
}

// CopyArray copies an array into the target document.
func (c *Copier) CopyArray(obj *Array) (*Array, error) {
	res := &Array{}
	for _, val := range obj.All() {
		repl, err := c.Copy(val)
		if err != nil {
			return nil, err
		}
		res.appendRaw(repl)
	}
	return res, nil
}

// CopyStream copies a stream into the target document.  The encoded data
// is copied unchanged.
func (c *Copier) CopyStream(obj *Stream) (*Stream, error) {
	dict, err := c.CopyDict(obj.Dict())
	if err != nil {
		return nil, err
	}
	data, err := obj.Encoded()
	if err != nil {
		return nil, err
	}
	return newStreamEncoded(dict, data), nil
}

// CopyIndirect copies an indirect object into the target document.  The
// new object is allocated before its value is copied, so that cyclic
// structures are copied correctly.
func (c *Copier) CopyIndirect(obj *Indirect) (*Indirect, error) {
	if obj.doc == c.dst {
		return obj, nil
	}
	if res, ok := c.trans[obj]; ok {
		return res, nil
	}

	res := c.dst.NewIndirect(nil)
	c.trans[obj] = res

	val := obj.Value()
	if err := obj.Err(); err != nil {
		return nil, err
	}
	repl, err := c.Copy(val)
	if err != nil {
		return nil, err
	}
	res.Set(repl)
	return res, nil
}

// Redirect arranges for references to orig to be replaced by references to
// repl, which must belong to the target document.
func (c *Copier) Redirect(orig, repl *Indirect) {
	c.trans[orig] = repl
}
