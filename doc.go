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

// Package cos implements the object layer of the PDF file format.
//
// A [Document] holds the graph of PDF objects which is rooted in the trailer
// dictionary.  Objects are loaded lazily from the underlying file, can be
// modified in memory, and are written back either as a complete new file or
// as an incremental update appended to the original bytes.
//
// A document is opened using [Open] or [OpenFile]:
//
//	doc, err := cos.OpenFile("in.pdf", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//	catalog, err := doc.Catalog()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	catalog.Set("PageMode", cos.Name("UseOutlines"))
//	err = doc.Save(out, &cos.SaveOptions{Mode: cos.SaveIncremental})
//
// The following types implement the native PDF object types.
// All of these implement the [Object] interface:
//
//	*Array
//	Bool
//	*Dict
//	*Indirect
//	Integer
//	Name
//	Null
//	Real
//	*Stream
//	String
//
// Bool, Integer, Name, Null, Real and String are immutable values.  Arrays,
// dictionaries and streams are containers.  A container can be stored
// directly in at most one other container.  To share an object between
// several containers, it must first be turned into an indirect object using
// [Document.MakeIndirect].
//
// Reading objects is safe for concurrent use.  Modifications of the object
// graph, and calls to the Save methods, must not run concurrently with each
// other or with reads of the objects being modified.
package cos
