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
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Stream represents a stream object in a PDF file.
//
// The data of a stream is available in two forms: the encoded form, which is
// stored in the file, and the decoded form, which is obtained by applying the
// filters listed in the /Filter entry of the stream dictionary.  The forms are
// converted into each other on demand.
type Stream struct {
	node
	dict *Dict

	mu         sync.Mutex
	encoded    []byte
	decoded    []byte
	hasEncoded bool
	hasDecoded bool
}

// NewStream returns a new stream with the given dictionary and decoded data.
// If dict is nil, an empty dictionary is used.  The data is encoded using the
// filters given in dict when the stream is written.
func NewStream(dict *Dict, data []byte) *Stream {
	s := &Stream{
		decoded:    data,
		hasDecoded: true,
	}
	s.setDict(dict)
	return s
}

// newStreamEncoded returns a stream holding the encoded data read from a file.
func newStreamEncoded(dict *Dict, data []byte) *Stream {
	s := &Stream{
		encoded:    data,
		hasEncoded: true,
	}
	s.setDict(dict)
	s.dict.setRaw("Length", Integer(len(data)))
	return s
}

func (s *Stream) setDict(dict *Dict) {
	if dict == nil {
		dict = NewDict()
	}
	containable(s, dict)
	s.dict = dict
}

// Kind implements the [Object] interface.
func (*Stream) Kind() Kind { return KindStream }

func (*Stream) isObject() {}

func (s *Stream) base() *node { return &s.node }

// Container returns the indirect object which holds the stream,
// or nil if the stream is detached.
func (s *Stream) Container() Container { return s.parent }

// Dict returns the stream dictionary.
func (s *Stream) Dict() *Dict {
	return s.dict
}

// Filters returns the names of the filters which are applied to the
// stream data, in the order in which they are used for decoding.
func (s *Stream) Filters() []Name {
	names, _, err := filterChain(s.dict, s.resolver())
	if err != nil {
		return nil
	}
	return names
}

// Decoded returns the decoded stream data.
// The returned slice must not be modified.
func (s *Stream) Decoded() ([]byte, error) {
	return s.decodedWith(s.resolver())
}

func (s *Stream) decodedWith(resolve func(Object) (Object, error)) ([]byte, error) {
	s.mu.Lock()
	if s.hasDecoded {
		data := s.decoded
		s.mu.Unlock()
		return data, nil
	}
	data := s.encoded
	s.mu.Unlock()

	// The filter parameters may need to be loaded from the file, so the
	// stream lock cannot be held here.
	names, parms, err := filterChain(s.dict, resolve)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		f, err := lookupFilter(name)
		if err != nil {
			return nil, err
		}
		data, err = f.Decode(data, parms[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	s.mu.Lock()
	if !s.hasDecoded {
		s.decoded = data
		s.hasDecoded = true
	}
	s.mu.Unlock()
	return data, nil
}

// Encoded returns the encoded stream data, as it is stored in a PDF file.
// The returned slice must not be modified.
func (s *Stream) Encoded() ([]byte, error) {
	return s.encodedWith(s.resolver())
}

func (s *Stream) encodedWith(resolve func(Object) (Object, error)) ([]byte, error) {
	s.mu.Lock()
	if s.hasEncoded {
		data := s.encoded
		s.mu.Unlock()
		return data, nil
	}
	data := s.decoded
	s.mu.Unlock()

	names, parms, err := filterChain(s.dict, resolve)
	if err != nil {
		return nil, err
	}
	for i := len(names) - 1; i >= 0; i-- {
		f, err := lookupFilter(names[i])
		if err != nil {
			return nil, err
		}
		data, err = f.Encode(data, parms[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", names[i], err)
		}
	}

	s.mu.Lock()
	if !s.hasEncoded {
		s.encoded = data
		s.hasEncoded = true
		s.dict.setRaw("Length", Integer(len(data)))
	}
	s.mu.Unlock()
	return data, nil
}

// SetDecoded replaces the stream data.  The data is encoded using the
// filters listed in the stream dictionary.
func (s *Stream) SetDecoded(data []byte) {
	willChange(s)
	s.mu.Lock()
	s.decoded = data
	s.hasDecoded = true
	s.encoded = nil
	s.hasEncoded = false
	s.mu.Unlock()
	// The length is only known once the data has been encoded.
	s.dict.setRaw("Length", nil)
	changed(s, nil, nil, nil)
}

// SetEncoded replaces the stream data by data which is already encoded
// using the filters listed in the stream dictionary.
func (s *Stream) SetEncoded(data []byte) {
	willChange(s)
	s.mu.Lock()
	s.encoded = data
	s.hasEncoded = true
	s.decoded = nil
	s.hasDecoded = false
	s.mu.Unlock()
	s.dict.setRaw("Length", Integer(len(data)))
	changed(s, nil, nil, nil)
}

// SetFilter changes the filter used to encode the stream data.  If name is
// empty, the data is stored without encoding.
func (s *Stream) SetFilter(name Name, parms *Dict) error {
	data, err := s.Decoded()
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := lookupFilter(name); err != nil {
			return err
		}
		s.dict.Set("Filter", name)
	} else {
		s.dict.Delete("Filter")
	}
	if parms != nil {
		s.dict.Set("DecodeParms", parms)
	} else {
		s.dict.Delete("DecodeParms")
	}
	s.SetDecoded(data)
	return nil
}

// Clone returns a copy of the stream.  The stream dictionary is copied,
// the data is shared.
func (s *Stream) Clone() *Stream {
	s.mu.Lock()
	res := &Stream{
		encoded:    s.encoded,
		decoded:    s.decoded,
		hasEncoded: s.hasEncoded,
		hasDecoded: s.hasDecoded,
	}
	s.mu.Unlock()
	res.dict = s.dict.Clone()
	res.dict.parent = res
	return res
}

func (s *Stream) resolver() func(Object) (Object, error) {
	if d := documentOf(s); d != nil {
		return d.Resolve
	}
	return resolveDetached
}

func resolveDetached(obj Object) (Object, error) {
	if c, ok := obj.(*Indirect); ok {
		return c.Value(), c.Err()
	}
	return obj, nil
}

func (s *Stream) String() string {
	tp := "Stream"
	if t, ok := s.dict.Get("Type").(Name); ok {
		tp = string(t) + " Stream"
	}
	s.mu.Lock()
	n := len(s.encoded)
	if !s.hasEncoded {
		n = len(s.decoded)
	}
	s.mu.Unlock()
	return "<" + tp + ", " + strconv.Itoa(n) + " bytes>"
}

// PDF implements the [Object] interface.
func (s *Stream) PDF(w io.Writer) error {
	resolve := s.resolver()
	compress := false
	pw, _ := w.(*posWriter)
	if pw != nil {
		if pw.resolve != nil {
			resolve = pw.resolve
		}
		compress = pw.compress
	}

	data, err := s.encodedWith(resolve)
	if err != nil {
		return err
	}

	override := map[Name]Object{}
	if compress && isNull(s.dict.Get("Filter")) && len(data) > 0 {
		buf, err := flateFilter{}.Encode(data, nil)
		if err != nil {
			return err
		}
		if len(buf) < len(data) {
			data = buf
			override["Filter"] = Name("FlateDecode")
		}
	}
	if pw != nil && pw.sec != nil && !pw.plain && s.dict.Get("Type") != Name("XRef") {
		data, err = pw.sec.EncryptBytes(pw.ref, data)
		if err != nil {
			return err
		}
	}
	override["Length"] = Integer(len(data))

	err = s.dict.writeEntries(w, override)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("\nstream\n"))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("\nendstream"))
	return err
}

// filterChain returns the filters and filter parameters given in a stream
// dictionary.
func filterChain(dict *Dict, resolve func(Object) (Object, error)) ([]Name, []*Dict, error) {
	filter, err := resolve(dict.Get("Filter"))
	if err != nil {
		return nil, nil, err
	}
	parmsObj, err := resolve(dict.Get("DecodeParms"))
	if err != nil {
		return nil, nil, err
	}

	var names []Name
	switch f := filter.(type) {
	case Null:
		return nil, nil, nil
	case Name:
		names = append(names, f)
	case *Array:
		for _, elem := range f.All() {
			elem, err := resolve(elem)
			if err != nil {
				return nil, nil, err
			}
			name, ok := elem.(Name)
			if !ok {
				return nil, nil, errInvalidFilter
			}
			names = append(names, name)
		}
	default:
		return nil, nil, errInvalidFilter
	}

	parms := make([]*Dict, len(names))
	switch p := parmsObj.(type) {
	case *Dict:
		parms[0] = p
	case *Array:
		for i := range parms {
			elem, err := resolve(p.Get(i))
			if err != nil {
				return nil, nil, err
			}
			parms[i], _ = elem.(*Dict)
		}
	}
	return names, parms, nil
}

var errInvalidFilter = errors.New("malformed /Filter entry")

// isObjectStream reports whether s is an object stream.
func (s *Stream) isObjectStream() bool {
	return s.dict.Get("Type") == Name("ObjStm")
}
