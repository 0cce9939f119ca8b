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

package xrefcache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/cos"
)

func TestStoreLoad(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "xref.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	snap := &cos.IndexSnapshot{
		Size: 1234,
		Sections: []cos.SectionSnapshot{
			{
				Offset:  1000,
				Format:  cos.XRefTable,
				Trailer: []byte("<</Root 1 0 R>>"),
				Subsections: []cos.SubsectionSnapshot{
					{
						Start: 0,
						Entries: []cos.XRefEntry{
							{Type: cos.EntryFree, Generation: 65535},
							{Type: cos.EntryInUse, Offset: 15},
							{Type: cos.EntryCompressed, Stream: 3, Index: 7},
						},
					},
				},
			},
		},
	}
	err = c.StoreIndex(42, snap)
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.LoadIndex(42)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(snap, got); d != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", d)
	}

	missing, err := c.LoadIndex(43)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("unexpected entry for unknown fingerprint: %v", missing)
	}

	n, err := c.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}

	err = c.Forget(42)
	if err != nil {
		t.Fatal(err)
	}
	got, err = c.LoadIndex(42)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("entry still present after Forget")
	}
}

// TestReopen checks that a document opened using the index of a previous
// run gives the same objects as a document opened without the index.
func TestReopen(t *testing.T) {
	doc := cos.New(nil)
	catalog, err := doc.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	pages := doc.NewIndirect(cos.DictOf(map[cos.Name]cos.Object{
		"Type":  cos.Name("Pages"),
		"Count": cos.Integer(0),
		"Kids":  cos.NewArray(),
	}))
	catalog.Set("Pages", pages)

	buf := &bytes.Buffer{}
	err = doc.Save(buf, &cos.SaveOptions{Format: cos.XRefStream})
	if err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	c, err := Open(filepath.Join(t.TempDir(), "xref.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	opt := &cos.ReaderOptions{IndexCache: c}
	for run := range 2 {
		doc2, err := cos.Open(bytes.NewReader(data), int64(len(data)), opt)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		n, err := c.Len()
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("run %d: %d entries, want 1", run, n)
		}

		catalog2, err := doc2.Catalog()
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if !cos.Equal(catalog, catalog2) {
			t.Errorf("run %d: catalog mismatch", run)
		}
		if w := doc2.Warnings(); len(w) > 0 {
			t.Errorf("run %d: unexpected warnings %v", run, w)
		}
	}
}
