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

package memfile

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteSeekRead(t *testing.T) {
	f := New()
	_, err := f.Write([]byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Seek(6, io.SeekStart)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Write([]byte("there!"))
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff("hello there!", string(f.Data)); d != "" {
		t.Errorf("unexpected contents (-want +got):\n%s", d)
	}

	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello there!" {
		t.Errorf("got %q", got)
	}
}

func TestReadAt(t *testing.T) {
	f := NewFrom([]byte("0123456789"))
	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 3)
	if err != nil || n != 4 || string(buf) != "3456" {
		t.Errorf("ReadAt(3) = %d, %v, %q", n, err, buf)
	}
	n, err = f.ReadAt(buf, 8)
	if err != io.EOF || n != 2 || string(buf[:n]) != "89" {
		t.Errorf("ReadAt(8) = %d, %v, %q", n, err, buf[:n])
	}
	if f.Offset != 10 {
		t.Errorf("offset changed to %d", f.Offset)
	}
}

func TestTruncate(t *testing.T) {
	f := NewFrom([]byte("0123456789"))
	err := f.Truncate(4)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 4 || string(f.Data) != "0123" {
		t.Errorf("after truncate: %q", f.Data)
	}
	err = f.Truncate(6)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]byte("0123\x00\x00"), f.Data); d != "" {
		t.Errorf("unexpected contents (-want +got):\n%s", d)
	}
	if f.Truncate(-1) == nil {
		t.Error("negative size accepted")
	}
}
