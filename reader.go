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
	"fmt"
	"io"
)

// Open reads a PDF document from r.  The size of the data must be given.
// Objects are read from r when they are first used, so r must remain
// valid until the document is closed.
//
// If the cross-reference information of the file is damaged, the file is
// scanned for objects instead, unless opt.StrictXRef is set.
func Open(r io.ReaderAt, size int64, opt *ReaderOptions) (*Document, error) {
	if opt == nil {
		opt = &ReaderOptions{}
	}

	d := newDocument(opt.Logger, opt.CacheSize)
	d.src = r
	d.size = size
	d.onLoadError = opt.OnLoadError
	d.indexCache = opt.IndexCache

	s := newScanner(r, size)
	headerPos, version, err := s.readHeaderVersion()
	if err != nil {
		return nil, err
	}
	if headerPos > 0 {
		d.warn(headerPos, "garbage before PDF header")
	}
	d.version = version

	fromCache := false
	if d.indexCache != nil {
		d.fingerprint, err = fingerprint(r, size)
		if err != nil {
			return nil, err
		}
		chain, err := d.loadIndex()
		if err != nil {
			d.logger.Warn("cos: cannot use cached xref index", "err", err)
		} else if chain != nil {
			d.xref = chain
			fromCache = true
		}
	}

	if d.xref == nil {
		chain, err := d.readXRefChain()
		if err == nil {
			err = checkTrailer(chain.trailer)
		}
		if err != nil {
			if opt.StrictXRef {
				return nil, err
			}
			d.warn(0, "damaged cross-reference information: "+err.Error())
			chain, err = d.reconstruct()
			if err != nil {
				return nil, err
			}
		}
		d.xref = chain
	}

	err = d.setup(opt)
	if err != nil && (isMalformed(err) || errors.Is(err, errNoCatalog)) &&
		d.xref.format != XRefRebuilt && !opt.StrictXRef {
		// The xref chain looked fine, but we cannot find the catalog.
		// Try scanning the file instead.
		d.warn(0, "cannot read document catalog: "+err.Error())
		d.resetCells()
		chain, err2 := d.reconstruct()
		if err2 != nil {
			return nil, err
		}
		d.xref = chain
		fromCache = false
		err = d.setup(opt)
	}
	if err != nil {
		return nil, err
	}

	if d.indexCache != nil && !fromCache && d.xref.format != XRefRebuilt {
		err = d.storeIndex()
		if err != nil {
			d.logger.Warn("cos: cannot store xref index", "err", err)
		}
	}

	return d, nil
}

// setup initializes the document state from the cross-reference chain.
func (d *Document) setup(opt *ReaderOptions) error {
	sec := d.xref
	if sec.format == XRefRebuilt {
		d.needFull = true
	}

	d.refreshBacking()

	trailer := NewDict()
	trailer.parent = d
	for key, val := range sec.trailer.All() {
		switch key {
		case "Size", "Prev", "XRefStm":
			continue
		}
		trailer.setRaw(key, attachCopy(trailer, val))
	}
	d.trailer = trailer
	d.trailerDirty = false

	d.id = nil
	if ID, ok := trailer.Get("ID").(*Array); ok && ID.Len() >= 2 {
		for i := range 2 {
			s, ok := ID.Get(i).(String)
			if !ok {
				break
			}
			d.id = append(d.id, []byte(s))
		}
		if len(d.id) != 2 {
			d.id = nil
		}
	}

	size := sec.maxNumber()
	if x, ok := sec.trailer.Get("Size").(Integer); ok && x > 0 && x <= 1<<32-1 {
		size = max(size, uint32(x))
	}
	d.mu.Lock()
	d.nextNumber = max(d.nextNumber, size, 1)
	d.free = newFreeList()
	for num, entry := range sec.merged() {
		if num != 0 && entry.Type == EntryFree {
			d.free.insert(num, entry.Generation)
		}
	}
	d.mu.Unlock()

	encObj := trailer.Get("Encrypt")
	if !isNull(encObj) {
		if c, ok := encObj.(*Indirect); ok {
			d.mu.Lock()
			d.encrypt = c.Reference().Number()
			d.writeEncrypt = d.encrypt
			d.mu.Unlock()
		}
		if opt.Security == nil {
			return ErrEncrypted
		}
		encrypt, err := GetDict(encObj)
		if err != nil {
			return err
		}
		if encrypt == nil {
			return &MalformedFileError{Err: errors.New("missing encryption dictionary")}
		}
		h, err := opt.Security(encrypt, d.id)
		if err != nil {
			return err
		}
		d.access.Lock()
		d.sec = h
		d.writeSec = h
		d.access.Unlock()
	}

	catalog, err := d.Catalog()
	if err != nil {
		return err
	}
	if v, ok := catalog.Get("Version").(Name); ok {
		catVersion, err := ParseVersion(string(v))
		if err == nil && catVersion > d.version {
			d.version = catVersion
		}
	}
	return nil
}

// checkTrailer verifies that a trailer dictionary points to a catalog.
func checkTrailer(trailer *Dict) error {
	if trailer == nil {
		return &MalformedFileError{Err: errors.New("missing trailer dictionary")}
	}
	if _, ok := trailer.Get("Root").(*Indirect); !ok {
		return &MalformedFileError{Err: errors.New("missing /Root in trailer")}
	}
	return nil
}

// refreshBacking updates the indirect objects which were created while
// the cross-reference information was read.
func (d *Document) refreshBacking() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for num, c := range d.cells {
		if c == nil {
			continue
		}
		entry, found := d.xref.lookup(uint32(num))
		c.mu.Lock()
		c.backed = found && entry.Type != EntryFree
		if c.backed {
			c.ref = NewReference(uint32(num), entry.Generation)
		}
		c.mu.Unlock()
	}
}

// resetCells discards all indirect objects.  This is only used while the
// document is opened, before any objects can have been modified.
func (d *Document) resetCells() {
	d.mu.Lock()
	d.cells = make([]*Indirect, 1)
	d.mu.Unlock()

	d.access.Lock()
	clear(d.objStms)
	d.cache.Clear()
	d.access.Unlock()
}

// newScanner returns a scanner for reading objects from the file.
func (d *Document) newScanner() *scanner {
	s := newScanner(d.src, d.size)
	s.ref = d.refObject
	s.getInt = d.getIntLocked
	s.warn = d.warn
	return s
}

// refObject is used by the scanner to convert references.
func (d *Document) refObject(num uint32, gen uint16) Object {
	c := d.cell(num, gen)
	if c == nil {
		return Null{}
	}
	return c
}

// getIntLocked resolves the /Length of streams.
// The caller must hold d.access.
func (d *Document) getIntLocked(obj Object) (Integer, error) {
	obj, err := d.resolveLocked(obj)
	if err != nil {
		return 0, err
	}
	x, ok := obj.(Integer)
	if !ok {
		return 0, &MalformedFileError{
			Err: fmt.Errorf("expected Integer but got %T", obj),
		}
	}
	return x, nil
}

// loadLocked reads the object ref from the file.  Objects which are not
// present in the file are read as null.
// The caller must hold d.access.
func (d *Document) loadLocked(ref Reference) (Object, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.src == nil {
		return Null{}, nil
	}

	num := ref.Number()
	d.mu.Lock()
	entry, found := d.xref.lookup(num)
	d.mu.Unlock()
	if !found || entry.Type == EntryFree {
		return Null{}, nil
	}

	if d.loading[num] {
		return nil, &MalformedFileError{
			Err: fmt.Errorf("object %s depends on itself", ref),
		}
	}
	d.loading[num] = true
	defer delete(d.loading, num)

	var obj Object
	var err error
	switch entry.Type {
	case EntryInUse:
		obj, err = d.readObjectAt(entry.Offset, num)
	case EntryCompressed:
		obj, err = d.readCompressed(num, entry)
	}
	if err != nil {
		return nil, Wrap(err, "object "+ref.String())
	}
	return obj, nil
}

// readObjectAt reads the indirect object num from the given file offset.
// The caller must hold d.access.
func (d *Document) readObjectAt(pos int64, num uint32) (Object, error) {
	if pos < 0 || pos >= d.size {
		return nil, &MalformedFileError{
			Pos: pos,
			Err: fmt.Errorf("invalid offset for object %d", num),
		}
	}

	s := d.newScanner()
	d.mu.Lock()
	encrypt := d.encrypt
	d.mu.Unlock()
	if num != encrypt {
		s.sec = d.sec
	}
	s.seek(pos)
	obj, ref, err := s.ReadIndirectObject()
	if err != nil {
		return nil, err
	}
	if ref.Number() != num {
		return nil, &MalformedFileError{
			Pos: pos,
			Err: fmt.Errorf("xref corrupted: found object %d instead of %d", ref.Number(), num),
		}
	}
	return obj, nil
}
