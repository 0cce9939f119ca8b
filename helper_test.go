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
	"fmt"
	"testing"
)

// fileBuilder assembles PDF files by hand, for tests which need precise
// control over the file layout.
type fileBuilder struct {
	buf  bytes.Buffer
	offs map[uint32]int64
}

func newFileBuilder(version string) *fileBuilder {
	b := &fileBuilder{offs: make(map[uint32]int64)}
	fmt.Fprintf(&b.buf, "%%PDF-%s\n%%\x80\x80\x80\x80\n", version)
	return b
}

// object appends the indirect object num with the given body.
func (b *fileBuilder) object(num uint32, body string) {
	b.offs[num] = int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

// raw appends data without any processing.
func (b *fileBuilder) raw(data string) int64 {
	pos := int64(b.buf.Len())
	b.buf.WriteString(data)
	return pos
}

// xrefTable appends a classic cross-reference table with one subsection
// covering the given object numbers, followed by the trailer.  Object
// numbers which were not written are marked as free.
func (b *fileBuilder) xrefTable(start, n uint32, trailer string) int64 {
	pos := int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "xref\n%d %d\n", start, n)
	for num := start; num < start+n; num++ {
		if off, ok := b.offs[num]; ok {
			fmt.Fprintf(&b.buf, "%010d 00000 n\r\n", off)
		} else {
			b.buf.WriteString("0000000000 65535 f\r\n")
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, pos)
	return pos
}

func (b *fileBuilder) bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

// simpleFile returns a small, well-formed file with a catalog, a page tree
// and one extra dictionary as object 3.
func simpleFile() []byte {
	b := newFileBuilder("1.4")
	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.object(3, "<< /Foo 1 /Bar (baz) >>")
	b.xrefTable(0, 4, "<< /Size 4 /Root 1 0 R /Extra 3 0 R >>")
	return b.bytes()
}

func openBytes(t *testing.T, data []byte, opt *ReaderOptions) *Document {
	t.Helper()
	d, err := Open(bytes.NewReader(data), int64(len(data)), opt)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func saveBytes(t *testing.T, d *Document, opt *SaveOptions) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	err := d.Save(buf, opt)
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// getDict resolves obj and fails the test if it is not a dictionary.
func getDict(t *testing.T, obj Object) *Dict {
	t.Helper()
	dict, err := GetDict(obj)
	if err != nil {
		t.Fatal(err)
	}
	if dict == nil {
		t.Fatalf("expected a dictionary, got %s", Format(obj))
	}
	return dict
}
