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
	"testing"
)

func TestCopyCycle(t *testing.T) {
	src := New(nil)
	a := NewDict()
	b := NewDict()
	ca := src.NewIndirect(a)
	cb := src.NewIndirect(b)
	a.Set("Next", cb)
	b.Set("Next", ca)
	a.Set("Name", String("a"))

	dst := New(nil)
	copier := NewCopier(dst)
	res, err := copier.Copy(ca)
	if err != nil {
		t.Fatal(err)
	}
	ra, ok := res.(*Indirect)
	if !ok || ra.Document() != dst {
		t.Fatalf("unexpected result %v", res)
	}
	if !Equal(ca, ra) {
		t.Error("copy differs from original")
	}

	da := getDict(t, ra)
	rb := da.Get("Next").(*Indirect)
	db := getDict(t, rb)
	if db.Get("Next") != Object(ra) {
		t.Error("cycle not preserved")
	}

	// copying again gives the same objects
	res2, err := copier.Copy(cb)
	if err != nil {
		t.Fatal(err)
	}
	if res2 != Object(rb) {
		t.Error("object copied twice")
	}

	// objects of the target document are not copied
	res3, _ := copier.Copy(ra)
	if res3 != Object(ra) {
		t.Error("target object was copied")
	}
}

func TestCopyDetached(t *testing.T) {
	src := New(nil)
	inner := NewArray(Integer(1), String("x"))
	dict := DictOf(map[Name]Object{"A": inner})
	src.NewIndirect(dict)

	copier := NewCopier(New(nil))
	res, err := copier.CopyDict(dict)
	if err != nil {
		t.Fatal(err)
	}
	if res.Container() != nil {
		t.Error("copy is not detached")
	}
	if res.Get("A") == Object(inner) {
		t.Error("nested array shared")
	}
	if !Equal(res, dict) {
		t.Error("copy differs from original")
	}

	// the copy is independent of the original
	res.Get("A").(*Array).Set(1, String("y"))
	if !Equal(inner.Get(1), String("x")) {
		t.Error("modification affects the original")
	}
}

func TestCopyStream(t *testing.T) {
	src := New(nil)
	stm := NewStream(nil, []byte("some stream data, some stream data"))
	if err := stm.SetFilter("FlateDecode", nil); err != nil {
		t.Fatal(err)
	}
	c := src.NewIndirect(stm)

	dst := New(nil)
	res, err := NewCopier(dst).Copy(c)
	if err != nil {
		t.Fatal(err)
	}
	stm2, err := GetStream(res)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(stm, stm2) {
		t.Error("stream data differs")
	}
	if f := stm2.Filters(); len(f) != 1 || f[0] != "FlateDecode" {
		t.Errorf("filters not preserved: %v", f)
	}
}

func TestCopyRedirect(t *testing.T) {
	src := New(nil)
	font := src.NewIndirect(DictOf(map[Name]Object{"Type": Name("Font")}))
	page := DictOf(map[Name]Object{"Font": font})

	dst := New(nil)
	existing := dst.NewIndirect(DictOf(map[Name]Object{"Type": Name("Font"), "Shared": Bool(true)}))
	copier := NewCopier(dst)
	copier.Redirect(font, existing)

	res, err := copier.CopyDict(page)
	if err != nil {
		t.Fatal(err)
	}
	if res.Get("Font") != Object(existing) {
		t.Error("reference not redirected")
	}
}

func TestCopyLoadError(t *testing.T) {
	src := openBytes(t, brokenFile(), nil)
	_, err := NewCopier(New(nil)).Copy(src.Trailer().Get("Extra"))
	if err == nil {
		t.Error("load error not reported")
	}
}
