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
	"math/bits"
)

// posWriter keeps track of the current position in the output, and carries
// the state needed to serialize objects.
type posWriter struct {
	w   io.Writer
	pos int64

	// sec, if set, is used to encrypt strings and streams of the object
	// ref.  Encryption is disabled if plain is set.
	sec   SecurityHandler
	ref   Reference
	plain bool

	// trans maps indirect objects to the references used in the output.
	// If trans returns false, the reference is written as null.
	trans func(*Indirect) (Reference, bool)

	// resolve is used to load filter parameters while writing streams.
	resolve func(Object) (Object, error)

	// compress enables Flate compression for streams without filters.
	compress bool
}

func (w *posWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}

// objectWriter writes indirect objects and collects their
// cross-reference entries.
type objectWriter struct {
	pw      *posWriter
	sec     *xrefSection
	encrypt uint32 // the encryption dictionary is never encrypted
}

func (ow *objectWriter) writeHeader(v Version) error {
	vs, err := v.ToString()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ow.pw, "%%PDF-%s\n%%\x80\x80\x80\x80\n", vs)
	return err
}

// writeObject writes obj as the indirect object ref.
func (ow *objectWriter) writeObject(ref Reference, obj Object) error {
	pw := ow.pw
	pos := pw.pos
	pw.ref = ref
	pw.plain = ref.Number() == ow.encrypt

	_, err := fmt.Fprintf(pw, "%d %d obj\n", ref.Number(), ref.Generation())
	if err != nil {
		return err
	}
	if obj == nil {
		obj = Null{}
	}
	err = obj.PDF(pw)
	if err != nil {
		return err
	}
	_, err = pw.Write([]byte("\nendobj\n"))
	if err != nil {
		return err
	}

	ow.sec.set(ref.Number(), XRefEntry{
		Type:       EntryInUse,
		Offset:     pos,
		Generation: ref.Generation(),
	})
	return nil
}

// writeObjStms stores the given objects in object streams.  New object
// numbers for the streams are obtained from alloc.
func (ow *objectWriter) writeObjStms(members []objStmMember, alloc func() uint32) error {
	const perStream = 100

	pw := ow.pw
	write := func(buf *bytes.Buffer, obj Object) error {
		inner := &posWriter{
			w:       buf,
			plain:   true,
			trans:   pw.trans,
			resolve: pw.resolve,
		}
		if obj == nil {
			obj = Null{}
		}
		return obj.PDF(inner)
	}

	for len(members) > 0 {
		n := min(len(members), perStream)
		chunk := members[:n]
		members = members[n:]

		stream, err := encodeObjStm(chunk, write)
		if err != nil {
			return err
		}
		num := alloc()
		err = ow.writeObject(NewReference(num, 0), stream)
		if err != nil {
			return err
		}
		for i, m := range chunk {
			ow.sec.set(m.num, XRefEntry{
				Type:   EntryCompressed,
				Stream: num,
				Index:  i,
			})
		}
	}
	return nil
}

// linkFreeEntries sets the NextFree fields of the free entries of the
// section, so that they form a circular list in order of increasing object
// number, starting and ending at object 0.
func linkFreeEntries(sec *xrefSection) {
	var free []uint32
	for num, entry := range sec.all() {
		if entry.Type == EntryFree {
			free = append(free, num)
		}
	}
	for i, num := range free {
		next := uint32(0)
		if i+1 < len(free) {
			next = free[i+1]
		}
		entry, _ := sec.get(num)
		entry.NextFree = next
		sec.set(num, entry)
	}
}

// writeXRefTable writes a classic cross-reference table, followed by the
// trailer.  Entries in override replace the entries of the trailer
// dictionary.
func (ow *objectWriter) writeXRefTable(trailer *Dict, override map[Name]Object) error {
	pw := ow.pw
	xrefPos := pw.pos

	_, err := pw.Write([]byte("xref\n"))
	if err != nil {
		return err
	}
	for _, ss := range ow.sec.subsections {
		_, err = fmt.Fprintf(pw, "%d %d\n", ss.start, len(ss.entries))
		if err != nil {
			return err
		}
		for _, entry := range ss.entries {
			switch entry.Type {
			case EntryInUse:
				_, err = fmt.Fprintf(pw, "%010d %05d n\r\n", entry.Offset, entry.Generation)
			case EntryFree:
				_, err = fmt.Fprintf(pw, "%010d %05d f\r\n", entry.NextFree, entry.Generation)
			default:
				return errors.New("compressed objects require an xref stream")
			}
			if err != nil {
				return err
			}
		}
	}

	_, err = pw.Write([]byte("trailer\n"))
	if err != nil {
		return err
	}
	pw.plain = true
	err = trailer.writeEntries(pw, override)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(pw, "\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return err
}

// writeXRefStream writes a cross-reference stream as object num.  The
// entries of the trailer dictionary, modified by override, are included in
// the stream dictionary.
func (ow *objectWriter) writeXRefStream(num uint32, trailer *Dict, override map[Name]Object, compress bool) error {
	pw := ow.pw
	xrefPos := pw.pos
	ow.sec.set(num, XRefEntry{Type: EntryInUse, Offset: xrefPos})

	data, w, index := encodeXRefStream(ow.sec)

	ov := make(map[Name]Object, len(override)+6)
	for key, val := range override {
		ov[key] = val
	}
	ov["Type"] = Name("XRef")
	W := NewArray()
	for _, wi := range w {
		W.Append(Integer(wi))
	}
	ov["W"] = W
	if index != nil {
		ov["Index"] = index
	} else {
		ov["Index"] = Null{}
	}
	ov["DecodeParms"] = Null{}
	ov["Filter"] = Null{}
	if compress {
		buf, err := flateFilter{}.Encode(data, nil)
		if err != nil {
			return err
		}
		data = buf
		ov["Filter"] = Name("FlateDecode")
	}
	ov["Length"] = Integer(len(data))

	pw.plain = true
	_, err := fmt.Fprintf(pw, "%d 0 obj\n", num)
	if err != nil {
		return err
	}
	err = trailer.writeEntries(pw, ov)
	if err != nil {
		return err
	}
	_, err = pw.Write([]byte("\nstream\n"))
	if err != nil {
		return err
	}
	_, err = pw.Write(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(pw, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return err
}

// encodeXRefStream encodes the entries of a section in the binary format
// of cross-reference streams.  The field widths are chosen as small as
// possible.  The returned index is nil if the section covers the object
// numbers 0, ..., n-1 without gaps.
func encodeXRefStream(sec *xrefSection) ([]byte, [3]int, *Array) {
	var max2, max3 uint64
	for _, entry := range sec.all() {
		f2, f3 := xrefFields(entry)
		max2 = max(max2, f2)
		max3 = max(max3, f3)
	}
	w := [3]int{
		1,
		max((bits.Len64(max2)+7)/8, 1),
		(bits.Len64(max3) + 7) / 8,
	}

	data := &bytes.Buffer{}
	for _, entry := range sec.all() {
		data.WriteByte(byte(entry.Type))
		f2, f3 := xrefFields(entry)
		encodeInt(data, f2, w[1])
		encodeInt(data, f3, w[2])
	}

	var index *Array
	if len(sec.subsections) != 1 || sec.subsections[0].start != 0 {
		index = NewArray()
		for _, r := range sec.ranges() {
			index.Append(Integer(r[0]))
			index.Append(Integer(r[1]))
		}
	}
	return data.Bytes(), w, index
}

// xrefFields returns the second and third field of a cross-reference
// stream entry.
func xrefFields(entry XRefEntry) (uint64, uint64) {
	switch entry.Type {
	case EntryInUse:
		return uint64(entry.Offset), uint64(entry.Generation)
	case EntryCompressed:
		return uint64(entry.Stream), uint64(entry.Index)
	default:
		return uint64(entry.NextFree), uint64(entry.Generation)
	}
}

func encodeInt(data *bytes.Buffer, x uint64, w int) {
	for i := w - 1; i >= 0; i-- {
		data.WriteByte(byte(x >> (i * 8)))
	}
}
