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
	"iter"
	"sort"
	"strconv"

	"golang.org/x/exp/slices"
)

// EntryType is the type of a cross-reference entry.
type EntryType uint8

// These are the possible types of cross-reference entries.
const (
	EntryFree       EntryType = iota // the object number is not in use
	EntryInUse                       // the object is stored at a byte offset
	EntryCompressed                  // the object is stored in an object stream
)

func (tp EntryType) String() string {
	switch tp {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in use"
	case EntryCompressed:
		return "compressed"
	default:
		return "cos.EntryType(" + strconv.Itoa(int(tp)) + ")"
	}
}

// XRefEntry describes the location of an object in a PDF file.
type XRefEntry struct {
	Type EntryType `msgpack:"t"`

	// Offset is the byte offset of an in-use object.
	Offset int64 `msgpack:"o,omitempty"`

	// Generation is the generation number of an in-use object, or the
	// generation number to use if a free object number is re-used.
	Generation uint16 `msgpack:"g,omitempty"`

	// NextFree is the number of the next free object, for free entries.
	NextFree uint32 `msgpack:"n,omitempty"`

	// Stream and Index give the object stream and the position inside the
	// object stream, for compressed entries.
	Stream uint32 `msgpack:"s,omitempty"`
	Index  int    `msgpack:"i,omitempty"`
}

// xrefSubsection covers a contiguous range of object numbers.
type xrefSubsection struct {
	start   uint32
	entries []XRefEntry
}

func (ss *xrefSubsection) end() uint32 {
	return ss.start + uint32(len(ss.entries))
}

// xrefSection holds the cross-reference information of one revision of a
// PDF file.
type xrefSection struct {
	// subsections are sorted by start and never overlap or touch.
	subsections []*xrefSubsection

	trailer *Dict // trailer as found in the file, detached
	prev    *xrefSection
	format  XRefFormat

	pos     int64 // value of startxref for this section, or -1
	prevPos int64
	xrefStm int64

	// hybrid is set for the stream section referenced by /XRefStm
	// in a classic table.
	hybrid bool
}

func newXRefSection(format XRefFormat) *xrefSection {
	return &xrefSection{
		format: format,
		pos:    -1,
	}
}

// get returns the entry for object number num in this section only.
func (sec *xrefSection) get(num uint32) (XRefEntry, bool) {
	subs := sec.subsections
	i := sort.Search(len(subs), func(i int) bool { return subs[i].end() > num })
	if i < len(subs) && subs[i].start <= num {
		return subs[i].entries[num-subs[i].start], true
	}
	return XRefEntry{}, false
}

// set stores the entry for object number num, replacing any existing entry.
func (sec *xrefSection) set(num uint32, entry XRefEntry) {
	sec.put(num, entry, true)
}

// add stores the entry for object number num, unless the section already
// has an entry for this number.
func (sec *xrefSection) add(num uint32, entry XRefEntry) {
	sec.put(num, entry, false)
}

func (sec *xrefSection) put(num uint32, entry XRefEntry, overwrite bool) {
	subs := sec.subsections
	i := sort.Search(len(subs), func(i int) bool { return subs[i].end() >= num })

	switch {
	case i < len(subs) && subs[i].start <= num && num < subs[i].end():
		if overwrite {
			subs[i].entries[num-subs[i].start] = entry
		}
	case i < len(subs) && subs[i].end() == num:
		ss := subs[i]
		ss.entries = append(ss.entries, entry)
		if i+1 < len(subs) && subs[i+1].start == ss.end() {
			ss.entries = append(ss.entries, subs[i+1].entries...)
			sec.subsections = slices.Delete(subs, i+1, i+2)
		}
	case i < len(subs) && num != ^uint32(0) && subs[i].start == num+1:
		ss := subs[i]
		ss.entries = slices.Insert(ss.entries, 0, entry)
		ss.start = num
	default:
		ss := &xrefSubsection{start: num, entries: []XRefEntry{entry}}
		sec.subsections = slices.Insert(subs, i, ss)
	}
}

// all iterates over the entries of the section, in order of increasing
// object number.
func (sec *xrefSection) all() iter.Seq2[uint32, XRefEntry] {
	return func(yield func(uint32, XRefEntry) bool) {
		for _, ss := range sec.subsections {
			for i, entry := range ss.entries {
				if !yield(ss.start+uint32(i), entry) {
					return
				}
			}
		}
	}
}

// ranges returns the start and length of all subsections.
func (sec *xrefSection) ranges() [][2]uint32 {
	res := make([][2]uint32, len(sec.subsections))
	for i, ss := range sec.subsections {
		res[i] = [2]uint32{ss.start, uint32(len(ss.entries))}
	}
	return res
}

// lookup finds the entry for object number num.  The chain of sections is
// searched from newest to oldest.  The method can be called on a nil
// section.
func (sec *xrefSection) lookup(num uint32) (XRefEntry, bool) {
	for ; sec != nil; sec = sec.prev {
		if entry, ok := sec.get(num); ok {
			if hidden, ok := sec.hidden(num, entry); ok {
				return hidden, true
			}
			return entry, true
		}
	}
	return XRefEntry{}, false
}

// hidden returns the entry of the supplementary cross-reference stream,
// if num is marked as free in the table of a hybrid file but is present in
// the stream.
func (sec *xrefSection) hidden(num uint32, entry XRefEntry) (XRefEntry, bool) {
	if entry.Type != EntryFree || sec.prev == nil || !sec.prev.hybrid {
		return XRefEntry{}, false
	}
	res, ok := sec.prev.get(num)
	if !ok || res.Type == EntryFree {
		return XRefEntry{}, false
	}
	return res, true
}

// merged iterates over the effective entries of the whole chain.  Each
// object number is visited once, in no particular order.
func (sec *xrefSection) merged() iter.Seq2[uint32, XRefEntry] {
	return func(yield func(uint32, XRefEntry) bool) {
		seen := make(map[uint32]bool)
		for ; sec != nil; sec = sec.prev {
			for num, entry := range sec.all() {
				if seen[num] {
					continue
				}
				if _, ok := sec.hidden(num, entry); ok {
					continue
				}
				seen[num] = true
				if !yield(num, entry) {
					return
				}
			}
		}
	}
}

// maxNumber returns one more than the largest object number in the chain.
func (sec *xrefSection) maxNumber() uint32 {
	var res uint32
	for ; sec != nil; sec = sec.prev {
		if n := len(sec.subsections); n > 0 {
			res = max(res, sec.subsections[n-1].end())
		}
	}
	return res
}

// RevisionInfo describes one cross-reference section of a PDF file.
type RevisionInfo struct {
	// Offset is the byte offset of the section, or -1 for a section
	// reconstructed by scanning the file.
	Offset int64

	Format XRefFormat

	// Trailer is a copy of the trailer dictionary of the section.
	Trailer *Dict

	// Subsections lists the start and length of the object number ranges
	// covered by the section.
	Subsections [][2]uint32

	// Prev is the offset of the previous section, or 0.
	Prev int64

	// XRefStm is the offset of the supplementary cross-reference stream
	// in a hybrid file, or 0.
	XRefStm int64
}

// Revisions describes the cross-reference sections of the file the document
// was read from, starting with the newest one.  Sections written by
// [Document.SaveInPlace] are included.
func (d *Document) Revisions() []RevisionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res []RevisionInfo
	for sec := d.xref; sec != nil; sec = sec.prev {
		info := RevisionInfo{
			Offset:      sec.pos,
			Format:      sec.format,
			Subsections: sec.ranges(),
			Prev:        sec.prevPos,
			XRefStm:     sec.xrefStm,
		}
		if sec.trailer != nil {
			info.Trailer = sec.trailer.Clone()
		}
		res = append(res, info)
	}
	return res
}

// XRefEntry returns the cross-reference entry for the given object number,
// as found in the file.  Changes which have not been saved are not
// reflected.
func (d *Document) XRefEntry(num uint32) (XRefEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.xref.lookup(num)
}

// FreeObjects lists the free object numbers of the document in increasing
// order, together with the generation number a new object would get.
// Numbers with generation 65535 are listed but never re-used.  Numbers
// freed by [Document.Delete] are included.
func (d *Document) FreeObjects() iter.Seq2[uint32, uint16] {
	d.mu.Lock()
	fl := d.free.clone()
	d.mu.Unlock()
	return fl.Walk()
}

// freeList holds the free object numbers of a document.  The list is
// circular: following the links from object 0 visits all free objects in
// increasing order and then returns to object 0.
type freeList struct {
	nums []uint32 // sorted, without 0
	gens map[uint32]uint16
}

func newFreeList() *freeList {
	return &freeList{gens: make(map[uint32]uint16)}
}

// insert adds num to the list.  gen is the generation number to use when
// the object number is re-used.
func (fl *freeList) insert(num uint32, gen uint16) {
	if num == 0 {
		return
	}
	i, found := slices.BinarySearch(fl.nums, num)
	if !found {
		fl.nums = slices.Insert(fl.nums, i, num)
	}
	fl.gens[num] = gen
}

// remove deletes num from the list.
func (fl *freeList) remove(num uint32) {
	i, found := slices.BinarySearch(fl.nums, num)
	if found {
		fl.nums = slices.Delete(fl.nums, i, i+1)
		delete(fl.gens, num)
	}
}

// pop removes and returns the smallest free object number which can be
// re-used.  Numbers which have reached generation 65535 are skipped.
func (fl *freeList) pop() (uint32, uint16, bool) {
	for i, num := range fl.nums {
		gen := fl.gens[num]
		if gen == 65535 {
			continue
		}
		fl.nums = slices.Delete(fl.nums, i, i+1)
		delete(fl.gens, num)
		return num, gen, true
	}
	return 0, 0, false
}

// Next returns the free object number following num, or 0 at the end
// of the list.
func (fl *freeList) Next(num uint32) uint32 {
	i, found := slices.BinarySearch(fl.nums, num)
	if found {
		i++
	}
	if i < len(fl.nums) {
		return fl.nums[i]
	}
	return 0
}

// Prev returns the free object number preceding num.  The predecessor of
// the first free object is 0, and the predecessor of 0 is the last free
// object.
func (fl *freeList) Prev(num uint32) uint32 {
	if num == 0 {
		if len(fl.nums) == 0 {
			return 0
		}
		return fl.nums[len(fl.nums)-1]
	}
	i, _ := slices.BinarySearch(fl.nums, num)
	if i == 0 {
		return 0
	}
	return fl.nums[i-1]
}

// Gen returns the generation number stored for a free object number.
func (fl *freeList) Gen(num uint32) uint16 {
	if num == 0 {
		return 65535
	}
	return fl.gens[num]
}

// Walk follows the links of the list, starting after object 0, and
// visits all free object numbers in increasing order.
func (fl *freeList) Walk() iter.Seq2[uint32, uint16] {
	return func(yield func(uint32, uint16) bool) {
		for num := fl.Next(0); num != 0; num = fl.Next(num) {
			if !yield(num, fl.gens[num]) {
				return
			}
		}
	}
}

func (fl *freeList) clone() *freeList {
	res := &freeList{
		nums: slices.Clone(fl.nums),
		gens: make(map[uint32]uint16, len(fl.gens)),
	}
	for k, v := range fl.gens {
		res.gens[k] = v
	}
	return res
}
