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
	"encoding/binary"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
)

// IndexCache stores the cross-reference information of PDF files, so
// that it does not need to be parsed again when a file is re-opened.
// Files are identified by a fingerprint computed from their size and
// contents.
//
// See the xrefcache package for an implementation backed by a database
// file.
type IndexCache interface {
	// LoadIndex returns the stored information for the file with the given
	// fingerprint.  If no information is available, nil is returned
	// without error.
	LoadIndex(fp uint64) (*IndexSnapshot, error)

	// StoreIndex stores the information for the given fingerprint.
	StoreIndex(fp uint64, snap *IndexSnapshot) error
}

// IndexSnapshot is the serializable form of the cross-reference sections
// of a file, newest first.
type IndexSnapshot struct {
	Size     int64             `msgpack:"size"`
	Sections []SectionSnapshot `msgpack:"sections"`
}

// SectionSnapshot describes one cross-reference section.
type SectionSnapshot struct {
	Offset      int64                `msgpack:"offset"`
	Format      XRefFormat           `msgpack:"format"`
	Trailer     []byte               `msgpack:"trailer"`
	Prev        int64                `msgpack:"prev,omitempty"`
	XRefStm     int64                `msgpack:"xrefstm,omitempty"`
	Hybrid      bool                 `msgpack:"hybrid,omitempty"`
	Subsections []SubsectionSnapshot `msgpack:"subsections"`
}

// SubsectionSnapshot holds the entries for a contiguous range of object
// numbers.
type SubsectionSnapshot struct {
	Start   uint32      `msgpack:"start"`
	Entries []XRefEntry `msgpack:"entries"`
}

// fingerprintSpan is the number of bytes at the start and at the end of a
// file which are included in the fingerprint.
const fingerprintSpan = 1024

// fingerprint computes a hash of the size of a file and of the data at the
// start and at the end of the file.  Since incremental updates append data,
// the fingerprint changes whenever a revision is added.
func fingerprint(r io.ReaderAt, size int64) (uint64, error) {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(size))
	h.Write(buf[:])

	head := make([]byte, min(size, fingerprintSpan))
	_, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return 0, err
	}
	h.Write(head)

	tailStart := max(size-fingerprintSpan, 0)
	tail := make([]byte, size-tailStart)
	_, err = r.ReadAt(tail, tailStart)
	if err != nil && err != io.EOF {
		return 0, err
	}
	h.Write(tail)

	return h.Sum64(), nil
}

// snapshot converts the cross-reference chain into serializable form.
func (d *Document) snapshot() *IndexSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := &IndexSnapshot{Size: d.size}
	for sec := d.xref; sec != nil; sec = sec.prev {
		ss := SectionSnapshot{
			Offset:  sec.pos,
			Format:  sec.format,
			Prev:    sec.prevPos,
			XRefStm: sec.xrefStm,
			Hybrid:  sec.hybrid,
		}
		if sec.trailer != nil {
			ss.Trailer = []byte(Format(sec.trailer))
		}
		for _, sub := range sec.subsections {
			ss.Subsections = append(ss.Subsections, SubsectionSnapshot{
				Start:   sub.start,
				Entries: sub.entries,
			})
		}
		snap.Sections = append(snap.Sections, ss)
	}
	return snap
}

// storeIndex saves the cross-reference chain in the index cache.
func (d *Document) storeIndex() error {
	return d.indexCache.StoreIndex(d.fingerprint, d.snapshot())
}

// loadIndex restores the cross-reference chain from the index cache.
// If the cache has no information for the file, nil is returned.
func (d *Document) loadIndex() (*xrefSection, error) {
	snap, err := d.indexCache.LoadIndex(d.fingerprint)
	if err != nil || snap == nil {
		return nil, err
	}
	if snap.Size != d.size || len(snap.Sections) == 0 {
		return nil, errStaleSnapshot
	}

	var head, tail *xrefSection
	for _, ss := range snap.Sections {
		sec := newXRefSection(ss.Format)
		sec.pos = ss.Offset
		sec.prevPos = ss.Prev
		sec.xrefStm = ss.XRefStm
		sec.hybrid = ss.Hybrid
		for _, sub := range ss.Subsections {
			if len(sub.Entries) == 0 {
				continue
			}
			sec.subsections = append(sec.subsections, &xrefSubsection{
				start:   sub.Start,
				entries: sub.Entries,
			})
		}
		if len(ss.Trailer) > 0 {
			s := newScanner(bytes.NewReader(ss.Trailer), int64(len(ss.Trailer)))
			s.ref = d.refObject
			trailer, err := s.ReadObject()
			if err != nil {
				return nil, err
			}
			dict, ok := trailer.(*Dict)
			if !ok {
				return nil, errStaleSnapshot
			}
			sec.trailer = dict
		}

		if head == nil {
			head = sec
		} else {
			tail.prev = sec
		}
		tail = sec
	}
	if err := checkTrailer(head.trailer); err != nil {
		return nil, err
	}
	return head, nil
}

var errStaleSnapshot = errors.New("cached xref index does not match file")
