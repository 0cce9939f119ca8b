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
	"bytes"
	"errors"
	"fmt"
)

// maxObjStms is the number of decoded object streams kept in memory.
const maxObjStms = 16

// objStm holds the decoded contents of an object stream.
type objStm struct {
	nums []uint32
	offs []int64 // offsets of the objects inside data
	data []byte
}

// objStmLocked returns the decoded object stream with the given number.
// The caller must hold d.access.
func (d *Document) objStmLocked(num uint32) (*objStm, error) {
	if stm, ok := d.objStms[num]; ok {
		return stm, nil
	}

	d.mu.Lock()
	entry, found := d.xref.lookup(num)
	d.mu.Unlock()
	if !found || entry.Type != EntryInUse {
		return nil, &MalformedFileError{
			Err: fmt.Errorf("object stream %d not found", num),
		}
	}

	obj, err := d.readObjectAt(entry.Offset, num)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*Stream)
	if !ok || !stream.isObjectStream() {
		return nil, &MalformedFileError{
			Pos: entry.Offset,
			Err: errors.New("wrong type for object stream"),
		}
	}

	stm, err := decodeObjStm(stream, d.resolveLocked)
	if err != nil {
		return nil, &MalformedFileError{Pos: entry.Offset, Err: err}
	}

	if len(d.objStms) >= maxObjStms {
		clear(d.objStms)
	}
	d.objStms[num] = stm
	return stm, nil
}

// decodeObjStm reads the header of an object stream.
func decodeObjStm(stream *Stream, resolve func(Object) (Object, error)) (*objStm, error) {
	dict := stream.Dict()
	nObj, err := resolve(dict.Get("N"))
	if err != nil {
		return nil, err
	}
	N, ok := nObj.(Integer)
	if !ok || N < 0 || N > 1<<20 {
		return nil, errors.New("no valid /N for ObjStm")
	}
	firstObj, err := resolve(dict.Get("First"))
	if err != nil {
		return nil, err
	}
	first, ok := firstObj.(Integer)
	if !ok || first < 0 {
		return nil, errors.New("no valid /First for ObjStm")
	}

	data, err := stream.decodedWith(resolve)
	if err != nil {
		return nil, err
	}
	if int64(first) > int64(len(data)) {
		return nil, errors.New("no valid /First for ObjStm")
	}

	n := int(N)
	stm := &objStm{
		nums: make([]uint32, n),
		offs: make([]int64, n),
		data: data,
	}
	s := newScanner(bytes.NewReader(data), int64(first))
	for i := range n {
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		no, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		offs, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if no < 0 || no > 1<<32-1 || offs < 0 || int64(first)+int64(offs) > int64(len(data)) {
			return nil, errors.New("malformed ObjStm header")
		}
		stm.nums[i] = uint32(no)
		stm.offs[i] = int64(first) + int64(offs)
	}
	return stm, nil
}

// readCompressed reads an object stored in an object stream.
// The caller must hold d.access.
func (d *Document) readCompressed(num uint32, entry XRefEntry) (Object, error) {
	stm, err := d.objStmLocked(entry.Stream)
	if err != nil {
		return nil, err
	}

	idx := entry.Index
	if idx < 0 || idx >= len(stm.nums) || stm.nums[idx] != num {
		idx = -1
		for i, n := range stm.nums {
			if n == num {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &MalformedFileError{
				Err: fmt.Errorf("object %d missing from object stream %d", num, entry.Stream),
			}
		}
	}

	s := newScanner(bytes.NewReader(stm.data), int64(len(stm.data)))
	s.ref = d.refObject
	s.warn = d.warn
	s.seek(stm.offs[idx])
	obj, err := s.ReadObject()
	if err != nil {
		return nil, err
	}
	if _, isStream := obj.(*Stream); isStream {
		return nil, &MalformedFileError{
			Err: fmt.Errorf("stream %d inside object stream %d", num, entry.Stream),
		}
	}
	return obj, nil
}

// objStmMember is an object to be stored in an object stream.
type objStmMember struct {
	num uint32
	obj Object
}

// encodeObjStm creates an object stream holding the given objects.
// The objects are written using w.
func encodeObjStm(members []objStmMember, write func(buf *bytes.Buffer, obj Object) error) (*Stream, error) {
	header := &bytes.Buffer{}
	body := &bytes.Buffer{}
	for i, m := range members {
		if i > 0 {
			header.WriteByte(' ')
			body.WriteByte('\n')
		}
		fmt.Fprintf(header, "%d %d", m.num, body.Len())
		err := write(body, m.obj)
		if err != nil {
			return nil, err
		}
	}
	header.WriteByte('\n')

	dict := NewDict()
	dict.Set("Type", Name("ObjStm"))
	dict.Set("N", Integer(len(members)))
	dict.Set("First", Integer(header.Len()))
	dict.Set("Filter", Name("FlateDecode"))
	data := append(header.Bytes(), body.Bytes()...)
	return NewStream(dict, data), nil
}
