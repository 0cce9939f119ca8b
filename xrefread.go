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
	"io"
	"strconv"
)

// findXRef returns the offset given after the last "startxref" keyword.
func (d *Document) findXRef() (int64, error) {
	pos, err := lastOccurrence(d.src, d.size, "startxref")
	if err != nil {
		return 0, err
	}
	s := newScanner(d.src, d.size)
	s.seek(pos + 9)
	err = s.SkipWhiteSpace()
	if err != nil {
		return 0, err
	}
	xrefPos, err := s.ReadInteger()
	if err != nil {
		return 0, err
	}

	if xrefPos <= 0 || int64(xrefPos) >= d.size {
		return 0, &MalformedFileError{
			Pos: s.currentPos(),
			Err: errors.New("invalid xref position"),
		}
	}
	return int64(xrefPos), nil
}

func lastOccurrence(r io.ReaderAt, size int64, pat string) (int64, error) {
	const chunkSize = 1024

	buf := make([]byte, chunkSize)
	k := int64(len(pat))
	pos := size
	for pos >= k {
		start := max(pos-chunkSize, 0)
		n, err := r.ReadAt(buf[:pos-start], start)
		if err != nil && err != io.EOF {
			return 0, err
		}

		idx := bytes.LastIndex(buf[:n], []byte(pat))
		if idx >= 0 {
			return start + int64(idx), nil
		}

		if start == 0 {
			break
		}
		pos = start + k - 1
	}
	return 0, &MalformedFileError{
		Err: errors.New(pat + " not found"),
	}
}

// readXRefChain reads all cross-reference sections of the file, starting
// with the newest one.
func (d *Document) readXRefChain() (*xrefSection, error) {
	start, err := d.findXRef()
	if err != nil {
		return nil, err
	}

	var head, tail *xrefSection
	link := func(sec *xrefSection) {
		if head == nil {
			head = sec
		} else {
			tail.prev = sec
		}
		tail = sec
	}

	seen := make(map[int64]bool)
	pos := start
	for {
		if seen[pos] {
			d.warn(pos, "loop in cross-reference chain")
			break
		}
		seen[pos] = true

		sec, err := d.readXRefSection(pos)
		if err != nil {
			return nil, err
		}
		link(sec)

		if sec.xrefStm > 0 && !seen[sec.xrefStm] {
			seen[sec.xrefStm] = true
			stm, err := d.readXRefStream(sec.xrefStm)
			if err != nil {
				return nil, err
			}
			stm.hybrid = true
			link(stm)
		}

		if sec.prevPos == 0 {
			break
		}
		if sec.prevPos < 0 || sec.prevPos >= d.size {
			return nil, &MalformedFileError{
				Pos: pos,
				Err: fmt.Errorf("invalid /Prev value %d", sec.prevPos),
			}
		}
		pos = sec.prevPos
	}

	return head, nil
}

// readXRefSection reads the cross-reference table or stream at pos.
func (d *Document) readXRefSection(pos int64) (*xrefSection, error) {
	s := d.newScanner()
	s.seek(pos)
	err := s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	buf, err := s.Peek(4)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(buf, []byte("xref")) {
		return d.readXRefTable(s, pos)
	}
	return d.readXRefStream(pos)
}

// readXRefTable reads a classic cross-reference table, followed by the
// trailer dictionary.
func (d *Document) readXRefTable(s *scanner, pos int64) (*xrefSection, error) {
	err := s.SkipString("xref")
	if err != nil {
		return nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}

	sec := newXRefSection(XRefTable)
	sec.pos = pos
	first := true
	for {
		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 || buf[0] < '0' || buf[0] > '9' {
			break
		}

		start, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		length, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if start < 0 || length < 0 || start+length > 1<<32-1 {
			return nil, s.malformed("invalid xref subsection %d %d", start, length)
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		entries, err := decodeXRefTableEntries(s, int(length))
		if err != nil {
			return nil, err
		}

		// Some writers start the first subsection at 1, even though it
		// contains the entry for object 0.
		if first && start == 1 && len(entries) > 0 &&
			entries[0].Type == EntryFree && entries[0].Generation == 65535 {
			d.warn(s.currentPos(), "xref table starts at object 1 instead of 0")
			start = 0
		}
		first = false

		for i, entry := range entries {
			sec.add(uint32(start)+uint32(i), entry)
		}

		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
	}

	err = s.SkipString("trailer")
	if err != nil {
		return nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	trailer, err := s.ReadDict()
	if err != nil {
		return nil, err
	}
	err = sec.setTrailer(trailer)
	if err != nil {
		return nil, &MalformedFileError{Pos: pos, Err: err}
	}
	return sec, nil
}

// decodeXRefTableEntries reads n entries of a classic cross-reference
// table.  Entries are normally 20 bytes long, but 19-byte entries with a
// single end-of-line character are accepted as well.
func decodeXRefTableEntries(s *scanner, n int) ([]XRefEntry, error) {
	entries := make([]XRefEntry, 0, min(n, 1<<16))
	for range n {
		buf, err := s.Peek(20)
		if err != nil {
			return nil, err
		}
		if len(buf) < 18 {
			return nil, &MalformedFileError{
				Pos: s.currentPos(),
				Err: io.ErrUnexpectedEOF,
			}
		}

		a, err := strconv.ParseInt(string(buf[:10]), 10, 64)
		if err != nil {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: err}
		}
		tp := buf[17]
		b, err := strconv.ParseUint(string(buf[11:16]), 10, 16)
		if err != nil {
			// fix a common error in some PDF files
			if bytes.HasPrefix(buf, []byte("0000000000 65536 ")) {
				b = 65535
				tp = 'f'
			} else {
				return nil, &MalformedFileError{Pos: s.currentPos(), Err: err}
			}
		}

		var entry XRefEntry
		switch tp {
		case 'f':
			entry = XRefEntry{
				Type:       EntryFree,
				NextFree:   uint32(a),
				Generation: uint16(b),
			}
		case 'n':
			entry = XRefEntry{
				Type:       EntryInUse,
				Offset:     a,
				Generation: uint16(b),
			}
		default:
			return nil, &MalformedFileError{
				Pos: s.currentPos(),
				Err: errors.New("malformed xref table"),
			}
		}
		entries = append(entries, entry)

		s.pos += 18
		for k := 0; k < 2; k++ {
			buf, _ := s.Peek(1)
			if len(buf) == 0 || !(buf[0] == ' ' || buf[0] == '\r' || buf[0] == '\n') {
				break
			}
			s.pos++
		}
	}
	return entries, nil
}

// readXRefStream reads a cross-reference stream.
func (d *Document) readXRefStream(pos int64) (*xrefSection, error) {
	s := d.newScanner()
	s.getInt = nil
	s.seek(pos)
	obj, ref, err := s.ReadIndirectObject()
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return nil, &MalformedFileError{
			Pos: pos,
			Err: errors.New("invalid xref stream"),
		}
	}
	dict := stream.Dict()
	if tp := dict.Get("Type"); tp != Name("XRef") {
		d.warn(pos, "xref stream "+ref.String()+" has wrong /Type")
	}

	w, index, err := checkXRefStreamDict(dict)
	if err != nil {
		return nil, &MalformedFileError{Pos: pos, Err: err}
	}
	data, err := stream.Decoded()
	if err != nil {
		return nil, &MalformedFileError{Pos: pos, Err: err}
	}

	sec := newXRefSection(XRefStream)
	sec.pos = pos
	err = decodeXRefStream(sec, data, w, index)
	if err != nil {
		return nil, &MalformedFileError{Pos: pos, Err: err}
	}

	trailer := dict.Clone()
	for _, key := range []Name{"Type", "W", "Index", "Length", "Filter", "DecodeParms"} {
		trailer.setRaw(key, nil)
	}
	err = sec.setTrailer(trailer)
	if err != nil {
		return nil, &MalformedFileError{Pos: pos, Err: err}
	}
	return sec, nil
}

// checkXRefStreamDict reads /W and /Index from the dictionary of a
// cross-reference stream.
func checkXRefStreamDict(dict *Dict) ([]int, [][2]uint32, error) {
	size, ok := dict.Get("Size").(Integer)
	if !ok || size < 0 || size > 1<<32-1 {
		return nil, nil, errors.New("invalid /Size in xref stream")
	}
	W, ok := dict.Get("W").(*Array)
	if !ok || W.Len() < 3 {
		return nil, nil, errors.New("invalid /W in xref stream")
	}
	var w []int
	for i, Wi := range W.All() {
		wi, ok := Wi.(Integer)
		if !ok || wi < 0 || i < 3 && wi > 8 {
			return nil, nil, errors.New("invalid /W in xref stream")
		}
		w = append(w, int(wi))
	}

	var index [][2]uint32
	switch ind := dict.Get("Index").(type) {
	case Null:
		index = append(index, [2]uint32{0, uint32(size)})
	case *Array:
		if ind.Len()%2 != 0 {
			return nil, nil, errors.New("invalid /Index in xref stream")
		}
		for i := 0; i < ind.Len(); i += 2 {
			start, ok1 := ind.Get(i).(Integer)
			n, ok2 := ind.Get(i + 1).(Integer)
			if !ok1 || !ok2 || start < 0 || n < 0 || start+n > 1<<32-1 {
				return nil, nil, errors.New("invalid /Index in xref stream")
			}
			index = append(index, [2]uint32{uint32(start), uint32(n)})
		}
	default:
		return nil, nil, errors.New("invalid /Index in xref stream")
	}
	return w, index, nil
}

// decodeXRefStream adds the entries of a cross-reference stream to sec.
func decodeXRefStream(sec *xrefSection, data []byte, w []int, index [][2]uint32) error {
	wTotal := 0
	for _, wi := range w {
		wTotal += wi
	}
	if wTotal == 0 {
		return errors.New("invalid /W in xref stream")
	}

	w0 := w[0]
	w1 := w[1]
	w2 := w[2]
	for _, ss := range index {
		for i := range ss[1] {
			if len(data) < wTotal {
				return io.ErrUnexpectedEOF
			}
			buf := data[:wTotal]
			data = data[wTotal:]

			tp := decodeInt(buf[:w0])
			if w0 == 0 {
				tp = 1
			}
			a := decodeInt(buf[w0 : w0+w1])
			b := decodeInt(buf[w0+w1 : w0+w1+w2])

			num := ss[0] + i
			switch tp {
			case 0:
				sec.add(num, XRefEntry{
					Type:       EntryFree,
					NextFree:   uint32(a),
					Generation: uint16(b),
				})
			case 1:
				sec.add(num, XRefEntry{
					Type:       EntryInUse,
					Offset:     int64(a),
					Generation: uint16(b),
				})
			case 2:
				sec.add(num, XRefEntry{
					Type:   EntryCompressed,
					Stream: uint32(a),
					Index:  int(b),
				})
			default:
				// Unknown entry types are treated as references to the
				// null object.
			}
		}
	}
	return nil
}

func decodeInt(buf []byte) (res uint64) {
	for _, x := range buf {
		res = res<<8 | uint64(x)
	}
	return res
}

// setTrailer stores the trailer dictionary of the section and extracts
// the links to other sections.
func (sec *xrefSection) setTrailer(trailer *Dict) error {
	sec.trailer = trailer
	trailer.parent = nil

	switch prev := trailer.Get("Prev").(type) {
	case Null:
	case Integer:
		sec.prevPos = int64(prev)
	case Real:
		sec.prevPos = int64(prev)
	default:
		return errors.New("wrong type for /Prev")
	}

	switch stm := trailer.Get("XRefStm").(type) {
	case Null:
	case Integer:
		sec.xrefStm = int64(stm)
	default:
		return errors.New("wrong type for /XRefStm")
	}
	return nil
}
