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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSectionPut(t *testing.T) {
	sec := newXRefSection(XRefTable)
	for _, num := range []uint32{5, 3, 10, 4, 11, 0} {
		sec.set(num, XRefEntry{Type: EntryInUse, Offset: int64(num)})
	}
	want := [][2]uint32{{0, 1}, {3, 3}, {10, 2}}
	if d := cmp.Diff(want, sec.ranges()); d != "" {
		t.Errorf("ranges (-want +got):\n%s", d)
	}

	// filling the gap joins the neighbouring subsections
	for num := uint32(6); num < 10; num++ {
		sec.set(num, XRefEntry{Type: EntryInUse, Offset: int64(num)})
	}
	want = [][2]uint32{{0, 1}, {3, 9}}
	if d := cmp.Diff(want, sec.ranges()); d != "" {
		t.Errorf("ranges (-want +got):\n%s", d)
	}

	for num, entry := range sec.all() {
		if entry.Offset != int64(num) {
			t.Errorf("object %d: wrong offset %d", num, entry.Offset)
		}
	}
	if n := sec.maxNumber(); n != 12 {
		t.Errorf("maxNumber = %d, want 12", n)
	}

	sec.add(4, XRefEntry{Type: EntryFree})
	if e, _ := sec.get(4); e.Type != EntryInUse {
		t.Error("add replaced an existing entry")
	}
	sec.set(4, XRefEntry{Type: EntryFree})
	if e, _ := sec.get(4); e.Type != EntryFree {
		t.Error("set did not replace the entry")
	}
	if _, found := sec.get(2); found {
		t.Error("found entry for missing object")
	}
}

func TestChainLookup(t *testing.T) {
	old := newXRefSection(XRefTable)
	old.set(1, XRefEntry{Type: EntryInUse, Offset: 100})
	old.set(2, XRefEntry{Type: EntryInUse, Offset: 200})

	upd := newXRefSection(XRefTable)
	upd.prev = old
	upd.set(2, XRefEntry{Type: EntryInUse, Offset: 300, Generation: 1})
	upd.set(3, XRefEntry{Type: EntryFree, Generation: 2})

	cases := []struct {
		num   uint32
		found bool
		entry XRefEntry
	}{
		{1, true, XRefEntry{Type: EntryInUse, Offset: 100}},
		{2, true, XRefEntry{Type: EntryInUse, Offset: 300, Generation: 1}},
		{3, true, XRefEntry{Type: EntryFree, Generation: 2}},
		{4, false, XRefEntry{}},
	}
	for _, c := range cases {
		entry, found := upd.lookup(c.num)
		if found != c.found || entry != c.entry {
			t.Errorf("%d: got %v %v, want %v %v", c.num, entry, found, c.entry, c.found)
		}
	}

	merged := make(map[uint32]XRefEntry)
	for num, entry := range upd.merged() {
		if _, dup := merged[num]; dup {
			t.Errorf("object %d visited twice", num)
		}
		merged[num] = entry
	}
	if len(merged) != 3 || merged[2].Offset != 300 {
		t.Errorf("unexpected merged entries %v", merged)
	}

	var nilSec *xrefSection
	if _, found := nilSec.lookup(1); found {
		t.Error("lookup on empty chain succeeded")
	}
}

func TestHiddenEntries(t *testing.T) {
	stm := newXRefSection(XRefStream)
	stm.hybrid = true
	stm.set(3, XRefEntry{Type: EntryCompressed, Stream: 4})

	table := newXRefSection(XRefTable)
	table.prev = stm
	table.set(3, XRefEntry{Type: EntryFree, Generation: 65535})
	table.set(5, XRefEntry{Type: EntryFree, Generation: 1})

	if e, _ := table.lookup(3); e.Type != EntryCompressed {
		t.Errorf("hidden object not found: %v", e)
	}
	if e, _ := table.lookup(5); e.Type != EntryFree {
		t.Errorf("free entry changed: %v", e)
	}
	for num, entry := range table.merged() {
		if num == 3 && entry.Type == EntryFree {
			t.Error("hidden object reported as free")
		}
	}
}

func TestFreeList(t *testing.T) {
	fl := newFreeList()
	fl.insert(7, 1)
	fl.insert(3, 2)
	fl.insert(5, 65535)
	fl.insert(0, 0)

	type pair struct {
		Num uint32
		Gen uint16
	}
	var got []pair
	for num, gen := range fl.Walk() {
		got = append(got, pair{num, gen})
	}
	want := []pair{{3, 2}, {5, 65535}, {7, 1}}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("free list (-want +got):\n%s", d)
	}

	if fl.Next(0) != 3 || fl.Next(7) != 0 || fl.Next(4) != 5 {
		t.Error("wrong forward links")
	}
	if fl.Prev(0) != 7 || fl.Prev(3) != 0 || fl.Prev(7) != 5 {
		t.Error("wrong backward links")
	}
	if fl.Gen(0) != 65535 || fl.Gen(7) != 1 {
		t.Error("wrong generation numbers")
	}

	clone := fl.clone()

	num, gen, ok := fl.pop()
	if !ok || num != 3 || gen != 2 {
		t.Errorf("pop = %d %d %t", num, gen, ok)
	}
	// generation 65535 cannot be re-used
	num, gen, ok = fl.pop()
	if !ok || num != 7 || gen != 1 {
		t.Errorf("pop = %d %d %t", num, gen, ok)
	}
	if _, _, ok = fl.pop(); ok {
		t.Error("exhausted list returned an entry")
	}
	if len(fl.nums) != 1 {
		t.Errorf("%d entries left, want 1", len(fl.nums))
	}

	clone.remove(5)
	if len(clone.nums) != 2 || fl.Next(0) != 5 {
		t.Error("clone shares state with the original")
	}
}

func TestXRefStreamRoundTrip(t *testing.T) {
	sec := newXRefSection(XRefStream)
	sec.set(0, XRefEntry{Type: EntryFree, Generation: 65535, NextFree: 4})
	sec.set(1, XRefEntry{Type: EntryInUse, Offset: 15})
	sec.set(2, XRefEntry{Type: EntryInUse, Offset: 70000, Generation: 3})
	sec.set(3, XRefEntry{Type: EntryCompressed, Stream: 2, Index: 300})
	sec.set(4, XRefEntry{Type: EntryFree, Generation: 1})
	sec.set(9, XRefEntry{Type: EntryInUse, Offset: 1 << 33})

	data, w, index := encodeXRefStream(sec)
	if w != [3]int{1, 5, 2} {
		t.Errorf("W = %v", w)
	}
	if index == nil {
		t.Fatal("missing /Index")
	}
	wantIndex := NewArray(Integer(0), Integer(5), Integer(9), Integer(1))
	if !Equal(index, wantIndex) {
		t.Errorf("Index = %s", Format(index))
	}
	if len(data) != 6*8 {
		t.Errorf("got %d bytes, want %d", len(data), 6*8)
	}

	dec := newXRefSection(XRefStream)
	err := decodeXRefStream(dec, data, w[:], [][2]uint32{{0, 5}, {9, 1}})
	if err != nil {
		t.Fatal(err)
	}
	for num, entry := range sec.all() {
		got, found := dec.get(num)
		if !found || got != entry {
			t.Errorf("%d: got %v, want %v", num, got, entry)
		}
	}

	// a single subsection starting at 0 needs no /Index
	sec = newXRefSection(XRefStream)
	sec.set(0, XRefEntry{Type: EntryFree, Generation: 65535})
	sec.set(1, XRefEntry{Type: EntryInUse, Offset: 15})
	_, _, index = encodeXRefStream(sec)
	if index != nil {
		t.Errorf("unexpected /Index %s", Format(index))
	}
}

func TestDecodeXRefStreamErrors(t *testing.T) {
	sec := newXRefSection(XRefStream)
	err := decodeXRefStream(sec, []byte{1, 0}, []int{1, 2, 0}, [][2]uint32{{0, 1}})
	if err == nil {
		t.Error("short data accepted")
	}
	err = decodeXRefStream(sec, nil, []int{0, 0, 0}, [][2]uint32{{0, 1}})
	if err == nil {
		t.Error("zero width accepted")
	}

	// type 1 is implied when the first field is missing
	sec = newXRefSection(XRefStream)
	err = decodeXRefStream(sec, []byte{0, 15}, []int{0, 2, 0}, [][2]uint32{{7, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if e, _ := sec.get(7); e.Type != EntryInUse || e.Offset != 15 {
		t.Errorf("unexpected entry %v", e)
	}
}

func TestCheckXRefStreamDict(t *testing.T) {
	dict := NewDict()
	dict.Set("Size", Integer(10))
	dict.Set("W", NewArray(Integer(1), Integer(2), Integer(1)))
	w, index, err := checkXRefStreamDict(dict)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]int{1, 2, 1}, w); d != "" {
		t.Errorf("W (-want +got):\n%s", d)
	}
	if d := cmp.Diff([][2]uint32{{0, 10}}, index); d != "" {
		t.Errorf("Index (-want +got):\n%s", d)
	}

	dict.Set("Index", NewArray(Integer(3), Integer(2), Integer(8)))
	if _, _, err := checkXRefStreamDict(dict); err == nil {
		t.Error("odd /Index accepted")
	}
	dict.Set("Index", NewArray(Integer(3), Integer(2)))
	dict.Set("W", NewArray(Integer(1), Integer(9), Integer(1)))
	if _, _, err := checkXRefStreamDict(dict); err == nil {
		t.Error("field width 9 accepted")
	}
	dict.Set("W", NewArray(Integer(1), Integer(2)))
	if _, _, err := checkXRefStreamDict(dict); err == nil {
		t.Error("short /W accepted")
	}
}

func TestDecodeXRefTableEntries(t *testing.T) {
	cases := []struct {
		in   string
		want []XRefEntry
		ok   bool
	}{
		{
			in: "0000000000 65535 f\r\n0000000015 00000 n\r\n",
			want: []XRefEntry{
				{Type: EntryFree, Generation: 65535},
				{Type: EntryInUse, Offset: 15},
			},
			ok: true,
		},
		{ // 19-byte entries
			in: "0000000000 65535 f\n0000000015 00002 n\n",
			want: []XRefEntry{
				{Type: EntryFree, Generation: 65535},
				{Type: EntryInUse, Offset: 15, Generation: 2},
			},
			ok: true,
		},
		{
			in: "0000000000 65536 f \n0000000015 00000 n \n",
			want: []XRefEntry{
				{Type: EntryFree, Generation: 65535},
				{Type: EntryInUse, Offset: 15},
			},
			ok: true,
		},
		{
			in: "0000000003 00001 f\r\n0000000015 00000 n\r\n",
			want: []XRefEntry{
				{Type: EntryFree, Generation: 1, NextFree: 3},
				{Type: EntryInUse, Offset: 15},
			},
			ok: true,
		},
		{in: "0000000000 65535 x\r\n0000000015 00000 n\r\n"},
		{in: "00000000xx 65535 f\r\n0000000015 00000 n\r\n"},
		{in: "0000000000 65535 f\r\n000000"},
	}
	for i, c := range cases {
		s := newScanner(bytes.NewReader([]byte(c.in)), int64(len(c.in)))
		got, err := decodeXRefTableEntries(s, 2)
		if (err == nil) != c.ok {
			t.Errorf("%d: unexpected error %v", i, err)
			continue
		}
		if !c.ok {
			continue
		}
		if d := cmp.Diff(c.want, got); d != "" {
			t.Errorf("%d: entries (-want +got):\n%s", i, d)
		}
	}
}
