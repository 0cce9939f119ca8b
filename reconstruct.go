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
	"io"
	"regexp"

	"golang.org/x/exp/slices"
)

// foundObject is an indirect object located by scanning the file.
type foundObject struct {
	pos int64
	end int64
	num uint32
	gen uint16
}

// reconstruct builds a cross-reference section by scanning the whole file
// for objects and trailer dictionaries.  This is used when the
// cross-reference information of a file is missing or damaged.
//
// If an object number occurs several times, the last occurrence in the
// file is used.  Trailer dictionaries without a valid /Root entry are
// ignored.  If no usable trailer is found, the document catalog is located
// by its /Type and a new trailer is created.
func (d *Document) reconstruct() (*xrefSection, error) {
	markers, err := findMarkers(d.src, d.size)
	if err != nil {
		return nil, err
	}

	var objects []foundObject
	var trailers []int64
	var catalogs []foundObject
	var objStms []foundObject
	var xrefStms []foundObject

	s := newScanner(d.src, d.size)
	s.ref = func(num uint32, gen uint16) Object {
		return &Indirect{ref: NewReference(num, gen)}
	}
	var skipUntil int64
	for _, m := range markers {
		if m.pos < skipUntil {
			// inside the data of an earlier object
			continue
		}
		if m.kind == "trailer" {
			trailers = append(trailers, m.pos)
			continue
		}

		s.seek(m.pos)
		obj, ref, err := s.ReadIndirectObject()
		if err != nil {
			continue
		}
		found := foundObject{
			pos: m.pos,
			end: s.currentPos(),
			num: ref.Number(),
			gen: ref.Generation(),
		}
		skipUntil = found.end
		objects = append(objects, found)

		switch x := obj.(type) {
		case *Dict:
			if x.Get("Type") == Name("Catalog") {
				catalogs = append(catalogs, found)
			}
		case *Stream:
			switch x.Dict().Get("Type") {
			case Name("ObjStm"):
				objStms = append(objStms, found)
			case Name("XRef"):
				xrefStms = append(xrefStms, found)
			}
		}
	}
	if len(objects) == 0 {
		return nil, &MalformedFileError{Err: errors.New("no objects found")}
	}

	// Object streams contribute their members at the position of the
	// stream, so that later objects in the file take precedence.
	type located struct {
		pos   int64
		num   uint32
		entry XRefEntry
	}
	var all []located
	for _, obj := range objects {
		all = append(all, located{
			pos: obj.pos,
			num: obj.num,
			entry: XRefEntry{
				Type:       EntryInUse,
				Offset:     obj.pos,
				Generation: obj.gen,
			},
		})
	}
	for _, obj := range objStms {
		s.seek(obj.pos)
		x, _, err := s.ReadIndirectObject()
		if err != nil {
			continue
		}
		stream := x.(*Stream)
		stm, err := decodeObjStm(stream, resolveDetached)
		if err != nil {
			d.warn(obj.pos, "cannot decode object stream: "+err.Error())
			continue
		}
		for i, num := range stm.nums {
			all = append(all, located{
				pos: obj.pos,
				num: num,
				entry: XRefEntry{
					Type:   EntryCompressed,
					Stream: obj.num,
					Index:  i,
				},
			})
		}
	}
	slices.SortStableFunc(all, func(a, b located) int {
		switch {
		case a.pos < b.pos:
			return -1
		case a.pos > b.pos:
			return 1
		}
		return 0
	})

	sec := newXRefSection(XRefRebuilt)
	sec.set(0, XRefEntry{Type: EntryFree, Generation: 65535})
	exists := make(map[uint32]bool)
	for _, loc := range all {
		if loc.num == 0 {
			continue
		}
		sec.set(loc.num, loc.entry)
		exists[loc.num] = true
	}

	// Find the last usable trailer.  Trailer dictionaries of
	// cross-reference streams are considered as well.
	type candidate struct {
		pos    int64
		stream bool
	}
	var cands []candidate
	for _, pos := range trailers {
		cands = append(cands, candidate{pos: pos})
	}
	for _, obj := range xrefStms {
		cands = append(cands, candidate{pos: obj.pos, stream: true})
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		switch {
		case a.pos > b.pos:
			return -1
		case a.pos < b.pos:
			return 1
		}
		return 0
	})

	rs := d.newScanner()
	rs.getInt = nil
	var trailer *Dict
	for _, cand := range cands {
		dict := readTrailerCandidate(s, cand.pos, cand.stream)
		if dict == nil {
			continue
		}
		root, ok := dict.Get("Root").(*Indirect)
		if !ok || !exists[root.ref.Number()] {
			continue
		}

		// Read the trailer again, this time creating proper references.
		trailer = readTrailerCandidate(rs, cand.pos, cand.stream)
		if trailer != nil {
			break
		}
	}

	if trailer == nil {
		if len(catalogs) == 0 {
			return nil, &MalformedFileError{Err: errors.New("document catalog not found")}
		}
		cat := catalogs[len(catalogs)-1]
		d.warn(cat.pos, "no usable trailer found, using catalog "+NewReference(cat.num, cat.gen).String())
		trailer = NewDict()
		trailer.setRaw("Root", d.refObject(cat.num, cat.gen))
	}
	for _, key := range []Name{"Prev", "XRefStm", "Type", "W", "Index", "Length", "Filter", "DecodeParms"} {
		trailer.setRaw(key, nil)
	}
	trailer.setRaw("Size", Integer(sec.maxNumber()))
	err = sec.setTrailer(trailer)
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// readTrailerCandidate reads the trailer dictionary at pos.  If stream is
// set, the dictionary of the cross-reference stream at pos is returned.
// The function returns nil if no dictionary can be read.
func readTrailerCandidate(s *scanner, pos int64, stream bool) *Dict {
	s.seek(pos)
	if stream {
		obj, _, err := s.ReadIndirectObject()
		if err != nil {
			return nil
		}
		x, ok := obj.(*Stream)
		if !ok {
			return nil
		}
		dict := x.Dict()
		res := dict.Clone()
		return res
	}

	if s.SkipString("trailer") != nil || s.SkipWhiteSpace() != nil {
		return nil
	}
	dict, err := s.ReadDict()
	if err != nil {
		return nil
	}
	return dict
}

type marker struct {
	pos  int64
	kind string // "obj" or "trailer"
}

// findMarkers locates the "n g obj" and "trailer" keywords in the file.
func findMarkers(r io.ReaderAt, size int64) ([]marker, error) {
	const (
		chunkSize = 1 << 20
		overlap   = 128
	)

	var res []marker
	buf := make([]byte, chunkSize)
	var start int64
	for start < size {
		n, err := r.ReadAt(buf[:min(int64(chunkSize), size-start)], start)
		if err != nil && err != io.EOF {
			return nil, err
		}
		last := start+int64(n) >= size
		limit := n
		if !last {
			limit = n - overlap
		}

		for _, m := range markerRegexp.FindAllSubmatchIndex(buf[:n], -1) {
			if m[0] >= limit {
				break
			}
			pos := start + int64(m[0]) + countLeadingSpaces(buf[m[0]:m[1]])
			if m[4] >= 0 {
				res = append(res, marker{pos: pos, kind: "obj"})
			} else if string(buf[m[2]:m[3]]) == "trailer" {
				res = append(res, marker{pos: pos, kind: "trailer"})
			}
		}

		if last {
			break
		}
		start += int64(limit)
	}
	return res, nil
}

// countLeadingSpaces returns the number of leading whitespace characters
// in buf.
func countLeadingSpaces(buf []byte) int64 {
	var n int64
	for n < int64(len(buf)) && isSpace[buf[n]] {
		n++
	}
	return n
}

var (
	whiteSpacePat = `[\000\011\014 ]+`
	eolPat        = `(?:\r|\n|\r\n)`
	objectPat     = `([0-9]+)` + whiteSpacePat + `([0-9]+)` + whiteSpacePat + `obj`
	markerPat     = eolPat + `(` + objectPat + `|trailer)\b`
	markerRegexp  = regexp.MustCompile(markerPat)
)
