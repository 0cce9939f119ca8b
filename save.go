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
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/exp/slices"
)

// File is a file which can be updated in place by [Document.SaveInPlace].
// *os.File implements this interface.
type File interface {
	io.ReaderAt
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// Save writes the document to w.
//
// Depending on opt.Mode, either the original file followed by an
// incremental update, or a complete new file is written.  The state of the
// document is not changed: modified objects remain marked as modified.
func (d *Document) Save(w io.Writer, opt *SaveOptions) error {
	if opt == nil {
		opt = &SaveOptions{}
	}

	d.access.Lock()
	err := d.saveLocked(w, opt)
	pending := d.takeLoadErrors()
	d.access.Unlock()

	d.reportLoadErrors(pending)
	return err
}

func (d *Document) saveLocked(w io.Writer, opt *SaveOptions) error {
	if d.closed {
		return ErrClosed
	}

	d.mu.Lock()
	needFull := d.needFull
	d.mu.Unlock()

	mode := opt.mode()
	if mode == SaveAuto {
		if d.src != nil && !needFull {
			mode = SaveIncremental
		} else {
			mode = SaveCompact
		}
	}

	switch mode {
	case SaveIncremental:
		if d.src == nil {
			return ErrNoSource
		}
		if needFull {
			return ErrNeedFullSave
		}
		pw := &posWriter{w: w}
		_, err := io.Copy(pw, io.NewSectionReader(d.src, 0, d.size))
		if err != nil {
			return err
		}
		_, _, err = d.writeRevision(pw, opt)
		return err
	case SaveFull, SaveCompact:
		return d.writeFull(w, opt, mode == SaveCompact)
	default:
		return fmt.Errorf("cos: invalid save mode %s", mode)
	}
}

// SaveInPlace appends an incremental update to f, which must contain the
// data the document was read from.  After a successful call, f becomes the
// source of the document and all objects are marked as unmodified.
//
// If writing fails, f is truncated to its original length.
func (d *Document) SaveInPlace(f File, opt *SaveOptions) error {
	if opt == nil {
		opt = &SaveOptions{}
	}
	switch opt.mode() {
	case SaveAuto, SaveIncremental:
	default:
		return fmt.Errorf("cos: SaveInPlace requires incremental mode, not %s", opt.mode())
	}

	d.access.Lock()
	err := d.saveInPlaceLocked(f, opt)
	pending := d.takeLoadErrors()
	d.access.Unlock()

	d.reportLoadErrors(pending)
	return err
}

func (d *Document) saveInPlaceLocked(f File, opt *SaveOptions) error {
	if d.closed {
		return ErrClosed
	}
	if d.src == nil {
		return ErrNoSource
	}
	d.mu.Lock()
	needFull := d.needFull
	d.mu.Unlock()
	if needFull {
		return ErrNeedFullSave
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if size != d.size {
		return fmt.Errorf("cos: file size %d does not match document size %d", size, d.size)
	}

	pw := &posWriter{w: f, pos: size}
	sec, written, err := d.writeRevision(pw, opt)
	if err != nil {
		if err2 := f.Truncate(size); err2 != nil {
			return errors.Join(err, err2)
		}
		_, _ = f.Seek(size, io.SeekStart)
		return err
	}
	if sec == nil {
		// nothing to write
		return nil
	}

	d.commitRevision(f, pw.pos, sec, written)
	return nil
}

// commitRevision makes a revision which was appended to the source file
// the current state of the document.
func (d *Document) commitRevision(src io.ReaderAt, size int64, sec *xrefSection, written []*Indirect) {
	d.mu.Lock()
	sec.prev = d.xref
	d.xref = sec
	d.src = src
	d.size = size
	for _, c := range d.dirty {
		c.mu.Lock()
		if c.deleted {
			c.dirty = false
		}
		c.mu.Unlock()
	}
	clear(d.dirty)
	d.trailerDirty = false
	d.nextNumber = max(d.nextNumber, sec.maxNumber())
	d.mu.Unlock()

	if ID, ok := sec.trailer.Get("ID").(*Array); ok {
		first, _ := ID.Get(0).(String)
		second, _ := ID.Get(1).(String)
		d.id = [][]byte{first, second}
		d.trailer.setRaw("ID", ID.Clone())
	}

	for _, c := range written {
		c.mu.Lock()
		c.dirty = false
		c.backed = true
		c.softenLocked()
		c.mu.Unlock()
	}

	if d.indexCache != nil {
		fp, err := fingerprint(src, size)
		if err == nil {
			d.fingerprint = fp
			err = d.storeIndex()
		}
		if err != nil {
			d.logger.Warn("cos: cannot store xref index", "err", err)
		}
	}
}

// writeRevision writes the modified objects and a new cross-reference
// section, as an incremental update.  The data of the original file must
// already have been written to pw.  If the document is unmodified, nothing
// is written and a nil section is returned.
// The caller must hold d.access.
func (d *Document) writeRevision(pw *posWriter, opt *SaveOptions) (*xrefSection, []*Indirect, error) {
	d.mu.Lock()
	if len(d.dirty) == 0 && !d.trailerDirty {
		d.mu.Unlock()
		return nil, nil, nil
	}
	cells := make([]*Indirect, 0, len(d.dirty))
	for _, c := range d.dirty {
		cells = append(cells, c)
	}
	prev := d.xref
	free := d.free.clone()
	encrypt := d.writeEncrypt
	d.mu.Unlock()

	slices.SortFunc(cells, func(a, b *Indirect) int {
		na, nb := a.Reference().Number(), b.Reference().Number()
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	})

	format := opt.Format
	if format == XRefAuto || format == XRefRebuilt {
		format = prev.format
		if prev.hybrid || format == XRefRebuilt {
			format = XRefTable
		}
	}
	if format == XRefStream && d.version < V1_5 {
		return nil, nil, fmt.Errorf("cos: xref streams need PDF-1.5 or newer: %w", ErrVersion)
	}

	// make sure the new revision starts on a new line
	var last [1]byte
	if _, err := d.src.ReadAt(last[:], d.size-1); err == nil && last[0] != '\n' && last[0] != '\r' {
		if _, err := pw.Write([]byte("\n")); err != nil {
			return nil, nil, err
		}
	}

	pw.sec = d.writeSec
	pw.resolve = d.resolveLocked
	pw.compress = opt.Compress
	pw.trans = func(c *Indirect) (Reference, bool) {
		return c.Reference(), c.doc == d
	}
	sec := newXRefSection(format)
	ow := &objectWriter{pw: pw, sec: sec, encrypt: encrypt}

	var members []objStmMember
	useObjStms := opt.ObjectStreams && format == XRefStream
	var written []*Indirect
	var deleted []Reference
	for _, c := range cells {
		c.mu.Lock()
		ref := c.ref
		isDeleted := c.deleted
		c.mu.Unlock()

		if isDeleted {
			deleted = append(deleted, ref)
			continue
		}

		obj := c.valueLocked()
		written = append(written, c)
		if _, isStream := obj.(*Stream); useObjStms && !isStream &&
			ref.Generation() == 0 && ref.Number() != encrypt {
			members = append(members, objStmMember{num: ref.Number(), obj: obj})
			continue
		}
		err := ow.writeObject(ref, obj)
		if err != nil {
			return nil, nil, err
		}
	}

	alloc := func() uint32 {
		d.mu.Lock()
		defer d.mu.Unlock()
		for int(d.nextNumber) < len(d.cells) && d.cells[d.nextNumber] != nil {
			d.nextNumber++
		}
		num := d.nextNumber
		d.nextNumber++
		return num
	}
	if len(members) > 0 {
		err := ow.writeObjStms(members, alloc)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(deleted) > 0 {
		for _, ref := range deleted {
			gen := ref.Generation()
			if gen < 65535 {
				gen++
			}
			sec.set(ref.Number(), XRefEntry{Type: EntryFree, Generation: gen})
		}
		sec.set(0, XRefEntry{Type: EntryFree, Generation: 65535, NextFree: free.Next(0)})
		for num, entry := range sec.all() {
			if num != 0 && entry.Type == EntryFree {
				entry.NextFree = free.Next(num)
				sec.set(num, entry)
			}
		}
	}

	var xrefNum uint32
	if format == XRefStream {
		xrefNum = alloc()
	}
	d.mu.Lock()
	size := max(d.nextNumber, prev.maxNumber(), sec.maxNumber())
	d.mu.Unlock()

	override := map[Name]Object{
		"Size":    Integer(size),
		"Prev":    Integer(prev.pos),
		"XRefStm": Null{},
	}
	if id := d.nextID(false); id != nil {
		override["ID"] = id
	}

	sec.prevPos = prev.pos
	sec.pos = pw.pos
	var err error
	if format == XRefStream {
		err = ow.writeXRefStream(xrefNum, d.trailer, override, pw.compress)
	} else {
		err = ow.writeXRefTable(d.trailer, override)
	}
	if err != nil {
		return nil, nil, err
	}
	sec.trailer = d.trailer.Clone()
	for key, val := range override {
		sec.trailer.setRaw(key, val)
	}
	return sec, written, nil
}

// writeFull writes the document as a complete new file.  If compact is
// set, only objects reachable from the trailer are included, and objects
// are renumbered consecutively.
// The caller must hold d.access.
func (d *Document) writeFull(w io.Writer, opt *SaveOptions, compact bool) error {
	d.mu.Lock()
	encrypt := d.writeEncrypt
	version := d.version
	d.mu.Unlock()

	format := opt.Format
	if format == XRefAuto || format == XRefRebuilt {
		if version >= V1_5 {
			format = XRefStream
		} else {
			format = XRefTable
		}
	}
	if format == XRefStream && version < V1_5 {
		return fmt.Errorf("cos: xref streams need PDF-1.5 or newer: %w", ErrVersion)
	}

	// Determine the objects to write, and their numbers in the output.
	var cells []*Indirect
	var refs []Reference
	numbers := make(map[*Indirect]Reference)
	if compact {
		cells = d.reachableLocked()
		for i, c := range cells {
			ref := NewReference(uint32(i+1), 0)
			refs = append(refs, ref)
			numbers[c] = ref
		}
		if encrypt != 0 {
			encrypt = 0
			if c, ok := d.trailer.Get("Encrypt").(*Indirect); ok {
				encrypt = numbers[c].Number()
			}
		}
	} else {
		cells = d.liveCells()
		for _, c := range cells {
			ref := c.Reference()
			refs = append(refs, ref)
			numbers[c] = ref
		}
	}

	pw := &posWriter{
		w:        w,
		sec:      d.writeSec,
		resolve:  d.resolveLocked,
		compress: opt.Compress,
		trans: func(c *Indirect) (Reference, bool) {
			ref, ok := numbers[c]
			return ref, ok
		},
	}
	sec := newXRefSection(format)
	ow := &objectWriter{pw: pw, sec: sec, encrypt: encrypt}

	err := ow.writeHeader(version)
	if err != nil {
		return err
	}

	var nextNum uint32 = 1
	if len(refs) > 0 {
		nextNum = max(refs[len(refs)-1].Number()+1, 1)
	}
	alloc := func() uint32 {
		num := nextNum
		nextNum++
		return num
	}

	var members []objStmMember
	useObjStms := opt.ObjectStreams && format == XRefStream
	for i, c := range cells {
		ref := refs[i]
		obj := c.valueLocked()
		if _, isStream := obj.(*Stream); useObjStms && !isStream &&
			ref.Generation() == 0 && ref.Number() != encrypt {
			members = append(members, objStmMember{num: ref.Number(), obj: obj})
			continue
		}
		err = ow.writeObject(ref, obj)
		if err != nil {
			return err
		}
	}
	if len(members) > 0 {
		err = ow.writeObjStms(members, alloc)
		if err != nil {
			return err
		}
	}

	var xrefNum uint32
	if format == XRefStream {
		xrefNum = alloc()
	}

	// All object numbers which are not used are free.
	d.mu.Lock()
	for num := range nextNum {
		if _, found := sec.get(num); found || format == XRefStream && num == xrefNum {
			continue
		}
		gen := uint16(0)
		if num == 0 {
			gen = 65535
		} else if !compact {
			gen = d.free.Gen(num)
		}
		sec.set(num, XRefEntry{Type: EntryFree, Generation: gen})
	}
	d.mu.Unlock()
	linkFreeEntries(sec)

	override := map[Name]Object{
		"Size":    Integer(nextNum),
		"Prev":    Null{},
		"XRefStm": Null{},
	}
	if id := d.nextID(true); id != nil {
		override["ID"] = id
	}

	if format == XRefStream {
		return ow.writeXRefStream(xrefNum, d.trailer, override, opt.Compress)
	}
	return ow.writeXRefTable(d.trailer, override)
}

// liveCells returns all indirect objects of the document which have not
// been deleted, in order of increasing object number.  Objects which are
// stored in the file are included, even if they have not been loaded.
// The caller must hold d.access.
func (d *Document) liveCells() []*Indirect {
	d.mu.Lock()
	n := max(d.nextNumber, d.xref.maxNumber())
	var missing []Reference
	var cells []*Indirect
	for num := uint32(1); num < n; num++ {
		if int(num) < len(d.cells) && d.cells[num] != nil {
			c := d.cells[num]
			c.mu.Lock()
			live := (c.dirty || c.backed) && !c.deleted
			c.mu.Unlock()
			if live {
				cells = append(cells, c)
			}
			continue
		}
		entry, found := d.xref.lookup(num)
		if found && entry.Type != EntryFree {
			missing = append(missing, NewReference(num, entry.Generation))
		}
	}
	d.mu.Unlock()

	for _, ref := range missing {
		cells = append(cells, d.Cell(ref))
	}
	slices.SortFunc(cells, func(a, b *Indirect) int {
		na, nb := a.Reference().Number(), b.Reference().Number()
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	})
	return cells
}

// nextID returns the file identifier for the next revision.  The first
// part of an existing identifier is kept, the second part is replaced.  If
// the file has no identifier, one is only created for complete files.
func (d *Document) nextID(full bool) *Array {
	if d.id == nil && !full {
		return nil
	}

	h := md5.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(d.size))
	h.Write(buf[:])
	if d.id != nil {
		h.Write(d.id[0])
	}
	second := h.Sum(nil)

	first := second
	if d.id != nil {
		first = d.id[0]
	}
	return NewArray(String(first), String(second))
}
