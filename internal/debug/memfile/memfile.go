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
	"errors"
	"io"
)

// MemFile is a temporary in-memory file.
//
// This type implements the [io.ReadWriteSeeker] and [io.ReaderAt]
// interfaces, and has a Truncate method.
type MemFile struct {
	// Data are the file contents.
	Data []byte

	// Offset is the current file offset.
	Offset int64
}

// New creates a new MemFile.
func New() *MemFile {
	return &MemFile{}
}

// NewFrom creates a MemFile holding a copy of data.
// The file offset is placed at the end of the data.
func NewFrom(data []byte) *MemFile {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &MemFile{Data: buf, Offset: int64(len(buf))}
}

// Write writes data to the file.
// This implements the [io.Writer] interface.
func (f *MemFile) Write(p []byte) (n int, err error) {
	if f.Offset > int64(len(f.Data)) {
		f.Data = append(f.Data, make([]byte, f.Offset-int64(len(f.Data)))...)
	}

	if f.Offset == int64(len(f.Data)) {
		f.Data = append(f.Data, p...)
		n = len(p)
	} else {
		n = copy(f.Data[f.Offset:], p)
		if n < len(p) {
			f.Data = append(f.Data, p[n:]...)
			n = len(p)
		}
	}

	f.Offset += int64(n)
	return n, nil
}

// Read reads data from the file.
// This implements the [io.Reader] interface.
func (f *MemFile) Read(p []byte) (n int, err error) {
	if f.Offset >= int64(len(f.Data)) {
		return 0, io.EOF
	}
	n = copy(p, f.Data[f.Offset:])
	f.Offset += int64(n)
	if n < len(p) {
		err = io.EOF
	}
	return
}

// ReadAt reads data from the given offset, without changing the
// file offset.  This implements the [io.ReaderAt] interface.
func (f *MemFile) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errInvalidOffset
	}
	if off >= int64(len(f.Data)) {
		return 0, io.EOF
	}
	n = copy(p, f.Data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Seek sets the offset in the file.
// This implements the [io.Seeker] interface.
func (f *MemFile) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.Offset + offset
	case io.SeekEnd:
		newOffset = int64(len(f.Data)) + offset
	default:
		return 0, errInvalidWhence
	}

	if newOffset < 0 {
		return 0, errInvalidOffset
	}

	f.Offset = newOffset
	return newOffset, nil
}

// Truncate changes the size of the file.  The file offset is not changed.
func (f *MemFile) Truncate(size int64) error {
	if size < 0 {
		return errInvalidOffset
	}
	if size <= int64(len(f.Data)) {
		f.Data = f.Data[:size]
	} else {
		f.Data = append(f.Data, make([]byte, size-int64(len(f.Data)))...)
	}
	return nil
}

// Size returns the current size of the file.
func (f *MemFile) Size() int64 {
	return int64(len(f.Data))
}

var (
	errInvalidWhence = errors.New("invalid whence")
	errInvalidOffset = errors.New("invalid offset")
)
