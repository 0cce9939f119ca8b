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

import "log/slog"

// ReaderOptions contains options for opening an existing PDF file.
// The zero value is valid and selects the defaults.
type ReaderOptions struct {
	// CacheSize is the number of clean objects which are kept in memory
	// in addition to the objects held by the caller.  If this is zero,
	// [DefaultCacheSize] is used.  Use a negative value to disable the
	// cache, in which case objects are only held via weak references.
	CacheSize int

	// Logger is used to report problems which do not prevent the file from
	// being read.  If this is nil, slog.Default() is used.
	Logger *slog.Logger

	// OnLoadError, if set, is called when an indirect object cannot be
	// loaded.  The object is replaced by null and processing continues.
	// The function must not access objects of the document.
	OnLoadError func(ref Reference, err error)

	// Security, if set, is called for encrypted files to obtain the
	// handler used to decrypt strings and streams.  The arguments are the
	// encryption dictionary and the file identifier.
	Security func(encrypt *Dict, id [][]byte) (SecurityHandler, error)

	// IndexCache, if set, is used to store and retrieve the parsed
	// cross-reference information, so that the cross-reference sections
	// of large files need not be parsed again.
	IndexCache IndexCache

	// StrictXRef disables the reconstruction of damaged cross-reference
	// information.  If set, a file with a broken cross-reference table
	// cannot be opened.
	StrictXRef bool
}

// DefaultCacheSize is the default number of objects kept in the
// object cache.
const DefaultCacheSize = 1024

// WriterOptions contains options for creating a new document.
type WriterOptions struct {
	// Version is the PDF version of the new document.
	// If this is zero, PDF-1.7 is used.
	Version Version

	// ID, if set, is the first part of the file identifier.
	ID []byte

	// Logger is used for diagnostic messages.  If this is nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// SaveMode selects between incremental updates and complete rewrites.
type SaveMode int

// These are the supported save modes.
const (
	// SaveAuto writes an incremental update where possible.  Otherwise
	// it writes a compacted file, as for SaveCompact.
	SaveAuto SaveMode = iota

	// SaveIncremental appends a new revision to the original file.
	SaveIncremental

	// SaveFull writes a new file which contains all objects of the
	// document.  Object numbers are preserved.
	SaveFull

	// SaveCompact writes a new file which contains only the objects
	// reachable from the trailer, renumbered contiguously starting at 1.
	SaveCompact
)

func (m SaveMode) String() string {
	switch m {
	case SaveAuto:
		return "auto"
	case SaveIncremental:
		return "incremental"
	case SaveFull:
		return "full"
	case SaveCompact:
		return "compact"
	default:
		return "cos.SaveMode(?)"
	}
}

// XRefFormat describes the encoding of a cross-reference section.
type XRefFormat int

// These are the cross-reference encodings.
const (
	// XRefAuto selects the format automatically.  When used in
	// [SaveOptions], incremental updates use the format of the newest
	// revision, and complete files use cross-reference streams for
	// PDF-1.5 and newer.
	XRefAuto XRefFormat = iota

	// XRefTable is the classic textual cross-reference table.
	XRefTable

	// XRefStream is the binary cross-reference stream of PDF-1.5.
	XRefStream

	// XRefRebuilt marks cross-reference information which was
	// reconstructed by scanning the file.
	XRefRebuilt
)

func (f XRefFormat) String() string {
	switch f {
	case XRefAuto:
		return "auto"
	case XRefTable:
		return "table"
	case XRefStream:
		return "stream"
	case XRefRebuilt:
		return "rebuilt"
	default:
		return "cos.XRefFormat(?)"
	}
}

// SaveOptions control how a document is written.
type SaveOptions struct {
	Mode   SaveMode
	Format XRefFormat

	// Compress enables Flate compression for cross-reference streams and
	// for new streams which have no filter.
	Compress bool

	// ObjectStreams stores objects other than streams inside compressed
	// object streams.  This requires cross-reference streams and is ignored
	// for classic cross-reference tables.
	ObjectStreams bool
}

func (opt *SaveOptions) mode() SaveMode {
	if opt == nil {
		return SaveAuto
	}
	return opt.Mode
}
