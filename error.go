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
	"strconv"
)

var (
	// ErrNoPDF is returned by [Open] if the input does not start with a
	// PDF or FDF header.
	ErrNoPDF = errors.New("PDF header not found")

	// ErrVersion indicates an unsupported PDF version.
	ErrVersion = errors.New("unsupported PDF version")

	// ErrNoSource is returned when an operation needs the bytes of the
	// original file, but the document was not read from a file.
	ErrNoSource = errors.New("document has no source file")

	// ErrClosed is returned by operations on a closed document.
	ErrClosed = errors.New("document is closed")

	// ErrEncrypted is returned by [Open] for encrypted files, if no
	// security handler is available.
	ErrEncrypted = errors.New("encrypted file requires a security handler")

	// ErrNeedFullSave is returned when an incremental update is requested,
	// but the document can only be written as a complete new file.
	ErrNeedFullSave = errors.New("document requires a full rewrite")
)

// MalformedFileError indicates that a PDF file could not be parsed.
type MalformedFileError struct {
	// Pos is the byte offset in the file where the problem was detected,
	// or 0 if no position is known.
	Pos int64

	// Err is the underlying error.
	Err error

	// Loc lists the objects which were being read when the error occurred,
	// innermost last.
	Loc []string
}

func (err *MalformedFileError) Error() string {
	middle := ""
	if err.Err != nil {
		middle = ": " + err.Err.Error()
	}
	tail := ""
	if err.Pos > 0 {
		tail = " (at byte " + strconv.FormatInt(err.Pos, 10) + ")"
	}
	loc := ""
	for _, l := range err.Loc {
		loc += l + ": "
	}
	return loc + "not a valid PDF file" + middle + tail
}

func (err *MalformedFileError) Unwrap() error {
	return err.Err
}

// Wrap adds location information to an error.  If err is a
// *MalformedFileError, loc is recorded in the Loc field.  Otherwise, err is
// wrapped into a new *MalformedFileError.
func Wrap(err error, loc string) error {
	if err == nil {
		return nil
	}
	var m *MalformedFileError
	if errors.As(err, &m) {
		res := &MalformedFileError{
			Pos: m.Pos,
			Err: m.Err,
			Loc: append([]string{loc}, m.Loc...),
		}
		return res
	}
	return &MalformedFileError{Err: err, Loc: []string{loc}}
}

// isMalformed reports whether err is a *MalformedFileError.
func isMalformed(err error) bool {
	var m *MalformedFileError
	return errors.As(err, &m)
}
