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

import "bytes"

// Equal reports whether a and b represent the same PDF data.  References
// to indirect objects are followed, so that objects from different
// documents can be compared.  The /Length entries of stream dictionaries
// are ignored, and stream data is compared after decoding.
//
// Objects which cannot be loaded compare as null.
func Equal(a, b Object) bool {
	eq := &equality{seen: make(map[[2]*Indirect]bool)}
	return eq.equal(a, b)
}

type equality struct {
	seen map[[2]*Indirect]bool
}

func (eq *equality) equal(a, b Object) bool {
	ca, aIsRef := a.(*Indirect)
	cb, bIsRef := b.(*Indirect)
	if aIsRef && bIsRef {
		if ca == cb {
			return true
		}
		key := [2]*Indirect{ca, cb}
		if eq.seen[key] {
			// assume equality for cycles
			return true
		}
		eq.seen[key] = true
	}
	a, _ = Resolve(a)
	b, _ = Resolve(b)

	switch x := a.(type) {
	case Null:
		return isNull(b)
	case Bool, Name:
		return a == b
	case Integer:
		switch y := b.(type) {
		case Integer:
			return x == y
		case Real:
			return float64(x) == float64(y)
		}
		return false
	case Real:
		switch y := b.(type) {
		case Real:
			return x == y
		case Integer:
			return float64(x) == float64(y)
		}
		return false
	case String:
		y, ok := b.(String)
		return ok && bytes.Equal(x, y)
	case *Array:
		y, ok := b.(*Array)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i := range x.Len() {
			if !eq.equal(x.Get(i), y.Get(i)) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		return ok && eq.equalDicts(x, y, false)
	case *Stream:
		y, ok := b.(*Stream)
		if !ok || !eq.equalDicts(x.Dict(), y.Dict(), true) {
			return false
		}
		dx, err1 := x.Decoded()
		dy, err2 := y.Decoded()
		if err1 != nil || err2 != nil {
			return false
		}
		return bytes.Equal(dx, dy)
	}
	return false
}

func (eq *equality) equalDicts(x, y *Dict, isStream bool) bool {
	keys := make(map[Name]bool)
	for _, key := range x.Keys() {
		keys[key] = true
	}
	for _, key := range y.Keys() {
		keys[key] = true
	}
	for key := range keys {
		if isStream && (key == "Length" || key == "Filter" || key == "DecodeParms") {
			continue
		}
		if !eq.equal(x.Get(key), y.Get(key)) {
			return false
		}
	}
	return true
}
