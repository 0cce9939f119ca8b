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
	"log/slog"
	"os"
	"sync"
	"weak"

	"golang.org/x/exp/slices"
)

// Document is a PDF document, represented as a graph of objects rooted in
// the trailer dictionary.
//
// Objects are loaded from the underlying file on demand.  Modifications are
// tracked, so that the document can be written either as an incremental
// update of the original file or as a complete new file.
type Document struct {
	// access serializes loading of objects from the file and the writing
	// of the document.  When both locks are needed, access must be
	// acquired before the lock of an indirect object.
	access sync.Mutex

	// mu protects the registry and the change tracking state below.  While
	// mu is held, the locks of indirect objects may be acquired, but not
	// the other way round.
	mu           sync.Mutex
	cells        []*Indirect
	dirty        map[uint32]*Indirect
	trailerDirty bool
	nextNumber   uint32
	free         *freeList
	xref         *xrefSection
	needFull     bool
	warnings     []error

	hookMu          sync.Mutex
	willChangeHooks []func(Object)
	changeHooks     []func(ChangeEvent)

	src    io.ReaderAt
	size   int64
	closer io.Closer
	closed bool

	version Version
	trailer *Dict
	id      [][]byte

	cache   *lruCache
	objStms map[uint32]*objStm
	pending []loadFailure
	loading map[uint32]bool

	// sec decrypts objects read from the file, writeSec encrypts objects
	// when the document is saved.  Both are protected by access.
	sec      SecurityHandler
	writeSec SecurityHandler

	// encrypt and writeEncrypt are the object numbers of the encryption
	// dictionaries, which are not encrypted themselves.  Both are
	// protected by mu.
	encrypt      uint32
	writeEncrypt uint32

	logger      *slog.Logger
	onLoadError func(Reference, error)
	indexCache  IndexCache
	fingerprint uint64
}

type loadFailure struct {
	ref Reference
	err error
}

// New creates a new, empty document.  The document contains a catalog
// dictionary, which can be replaced using [Document.SetCatalog].
func New(opt *WriterOptions) *Document {
	if opt == nil {
		opt = &WriterOptions{}
	}
	d := newDocument(opt.Logger, DefaultCacheSize)
	d.version = opt.Version
	if d.version == 0 {
		d.version = V1_7
	}
	if opt.ID != nil {
		d.id = [][]byte{opt.ID, opt.ID}
	}
	d.xref = newXRefSection(XRefRebuilt)
	d.needFull = true

	catalog := NewDict()
	catalog.Set("Type", Name("Catalog"))
	d.trailer.Set("Root", d.NewIndirect(catalog))
	return d
}

func newDocument(logger *slog.Logger, cacheSize int) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	d := &Document{
		dirty:      make(map[uint32]*Indirect),
		nextNumber: 1,
		free:       newFreeList(),
		cache:      newCache(cacheSize),
		objStms:    make(map[uint32]*objStm),
		loading:    make(map[uint32]bool),
		logger:     logger,
		cells:      make([]*Indirect, 1),
	}
	d.trailer = NewDict()
	d.trailer.parent = d
	return d
}

// OpenFile opens the named PDF file.  The file is kept open until
// [Document.Close] is called.
func OpenFile(name string, opt *ReaderOptions) (*Document, error) {
	fd, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	d, err := Open(fd, fi.Size(), opt)
	if err != nil {
		fd.Close()
		return nil, err
	}
	d.closer = fd
	return d, nil
}

// Close releases the resources held by the document.  If the document was
// opened using [OpenFile], the file is closed.
func (d *Document) Close() error {
	d.access.Lock()
	defer d.access.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.cache.Clear()
	clear(d.objStms)
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d *Document) parentContainer() Container {
	return nil
}

// Trailer returns the trailer dictionary.  Entries which describe the
// cross-reference information (/Size, /Prev, /XRefStm) are not included;
// they are generated when the document is written.
func (d *Document) Trailer() *Dict {
	return d.trailer
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (*Dict, error) {
	catalog, err := GetDict(d.trailer.Get("Root"))
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, errNoCatalog
	}
	return catalog, nil
}

// SetCatalog replaces the document catalog.
func (d *Document) SetCatalog(catalog *Dict) {
	d.trailer.Set("Root", d.MakeIndirect(catalog))
}

// Info returns the document information dictionary,
// or nil if the document has none.
func (d *Document) Info() (*Dict, error) {
	return GetDict(d.trailer.Get("Info"))
}

// Version returns the PDF version of the document.
func (d *Document) Version() Version {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// SetVersion changes the PDF version used when the document is written.
func (d *Document) SetVersion(v Version) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = v
}

// ID returns the file identifier, or nil if the file has none.
func (d *Document) ID() [][]byte {
	return d.id
}

// Size returns the length of the file the document was read from.
func (d *Document) Size() int64 {
	d.access.Lock()
	defer d.access.Unlock()
	return d.size
}

// Cell returns the indirect object for ref.  Indirect objects are unique
// within a document: repeated calls for the same object number return the
// same *Indirect.  Generation numbers are not compared.  If the object
// number is 0, nil is returned.
func (d *Document) Cell(ref Reference) *Indirect {
	return d.cell(ref.Number(), ref.Generation())
}

func (d *Document) cell(num uint32, gen uint16) *Indirect {
	if num == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(num) < len(d.cells) {
		if c := d.cells[num]; c != nil {
			return c
		}
	}

	c := &Indirect{doc: d}
	entry, found := d.xref.lookup(num)
	if found && entry.Type != EntryFree {
		c.backed = true
		gen = entry.Generation
	}
	c.ref = NewReference(num, gen)
	d.setCellLocked(num, c)
	if num >= d.nextNumber {
		d.nextNumber = num + 1
	}
	return c
}

func (d *Document) setCellLocked(num uint32, c *Indirect) {
	if int(num) >= len(d.cells) {
		d.cells = slices.Grow(d.cells, int(num)+1-len(d.cells))
		d.cells = d.cells[:int(num)+1]
	}
	d.cells[num] = c
}

// NewIndirect adds a new indirect object to the document.  If obj is an
// array, dictionary or stream, it must not be contained in any other object.
func (d *Document) NewIndirect(obj Object) *Indirect {
	c := &Indirect{
		doc:   d,
		state: stateHard,
		dirty: true,
	}
	c.hard = containable(c, obj)

	d.mu.Lock()
	num, gen, old := d.allocateLocked()
	if old != nil {
		// The number belongs to a deleted object, or to a dangling
		// reference.  Existing references now refer to the new object.
		old.mu.Lock()
		old.ref = NewReference(num, gen)
		old.state = stateHard
		old.hard = c.hard
		old.soft = weak.Pointer[payload]{}
		old.err = nil
		old.dirty = true
		old.backed = false
		old.deleted = false
		if comp, ok := old.hard.(composite); ok {
			comp.base().parent = old
		}
		old.mu.Unlock()
		c = old
	} else {
		c.ref = NewReference(num, gen)
		d.setCellLocked(num, c)
	}
	d.dirty[num] = c
	d.mu.Unlock()

	d.cache.Remove(num)
	return c
}

// allocateLocked returns the number for a new object.  Free object numbers
// are re-used in ascending order.  If a cell for the number exists, it is
// returned as well.  The caller must hold d.mu.
func (d *Document) allocateLocked() (uint32, uint16, *Indirect) {
	for {
		num, gen, ok := d.free.pop()
		if !ok {
			break
		}
		if int(num) >= len(d.cells) || d.cells[num] == nil {
			return num, gen, nil
		}
		if c := d.cells[num]; c.vacant() {
			return num, gen, c
		}
	}
	for int(d.nextNumber) < len(d.cells) && d.cells[d.nextNumber] != nil {
		d.nextNumber++
	}
	num := d.nextNumber
	d.nextNumber++
	return num, 0, nil
}

// MakeIndirect returns an indirect object holding obj.
//
// If obj is an indirect object, it is returned unchanged.  If obj is already
// the value of an indirect object, that object is returned.  If obj is
// directly contained in an array or dictionary, it is moved into a new
// indirect object and the original slot is updated to refer to it.
// Otherwise, a new indirect object is created.
//
// Calling MakeIndirect for the trailer dictionary, or for the dictionary of
// a stream, panics.
func (d *Document) MakeIndirect(obj Object) *Indirect {
	switch x := obj.(type) {
	case *Indirect:
		if x.doc != d {
			panic(&OwnershipError{Obj: x, Msg: "indirect object belongs to a different document"})
		}
		return x
	case composite:
		switch p := x.base().parent.(type) {
		case nil:
			return d.NewIndirect(obj)
		case *Indirect:
			if p.doc != d {
				panic(&OwnershipError{Obj: x, Msg: "object belongs to a different document"})
			}
			return p
		case *Document:
			panic(&OwnershipError{Obj: x, Msg: "the trailer cannot be made indirect"})
		case *Array:
			idx := slices.IndexFunc(p.items, func(o Object) bool { return o == obj })
			x.base().parent = nil
			c := d.NewIndirect(obj)
			p.Set(idx, c)
			return c
		case *Dict:
			var key Name
			for k, v := range p.m {
				if v == obj {
					key = k
					break
				}
			}
			x.base().parent = nil
			c := d.NewIndirect(obj)
			p.Set(key, c)
			return c
		default:
			panic(&OwnershipError{Obj: x, Msg: "object cannot be made indirect"})
		}
	default:
		return d.NewIndirect(obj)
	}
}

// Delete removes an indirect object from the document.  The object number
// is marked as free and may be re-used for new objects.  References to the
// deleted object are read as null.
func (d *Document) Delete(c *Indirect) {
	if c.doc != d {
		panic(&OwnershipError{Obj: c, Msg: "indirect object belongs to a different document"})
	}
	d.fireWillChange(c)

	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return
	}
	old, _ := c.cachedLocked()
	c.state = stateHard
	c.hard = nil
	c.soft = weak.Pointer[payload]{}
	c.err = nil
	c.dirty = true
	c.deleted = true
	ref := c.ref
	c.mu.Unlock()
	release(c, old)
	d.cache.Remove(ref.Number())

	// The cell stays in the registry, so that references to the deleted
	// object keep reading as null.
	d.mu.Lock()
	num := ref.Number()
	d.dirty[num] = c
	if gen := ref.Generation(); gen < 65535 {
		d.free.insert(num, gen+1)
	}
	d.mu.Unlock()

	d.fireChanged(ChangeEvent{Target: c, Old: nullIfNil(old), New: Null{}})
}

// OnWillChange registers fn to be called before any object of the document
// is modified.
func (d *Document) OnWillChange(fn func(obj Object)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.willChangeHooks = append(d.willChangeHooks, fn)
}

// OnChange registers fn to be called after any object of the document
// has been modified.
func (d *Document) OnChange(fn func(ev ChangeEvent)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.changeHooks = append(d.changeHooks, fn)
}

func (d *Document) fireWillChange(obj Object) {
	d.hookMu.Lock()
	hooks := d.willChangeHooks
	d.hookMu.Unlock()
	for _, fn := range hooks {
		fn(obj)
	}
}

func (d *Document) fireChanged(ev ChangeEvent) {
	d.hookMu.Lock()
	hooks := d.changeHooks
	d.hookMu.Unlock()
	for _, fn := range hooks {
		fn(ev)
	}
}

func (d *Document) trailerWillChange(obj composite) {
	d.fireWillChange(obj)
	d.mu.Lock()
	d.trailerDirty = true
	d.mu.Unlock()
}

func (d *Document) markDirty(c *Indirect) {
	num := c.Reference().Number()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty[num] = c
}

// Dirty returns the references of all objects which have been modified since
// the document was last saved, in increasing order.
func (d *Document) Dirty() []Reference {
	d.mu.Lock()
	cells := make([]*Indirect, 0, len(d.dirty))
	for _, c := range d.dirty {
		cells = append(cells, c)
	}
	d.mu.Unlock()

	res := make([]Reference, len(cells))
	for i, c := range cells {
		res[i] = c.Reference()
	}
	slices.Sort(res)
	return res
}

// Modified reports whether the document has been changed since it was
// last saved.
func (d *Document) Modified() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dirty) > 0 || d.trailerDirty
}

// Warnings returns the problems found while reading the file, which did not
// prevent the file from being read.
func (d *Document) Warnings() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.warnings)
}

func (d *Document) warn(pos int64, msg string) {
	d.logger.Warn("cos: "+msg, slog.Int64("pos", pos))
	d.mu.Lock()
	d.warnings = append(d.warnings, &MalformedFileError{Pos: pos, Err: errors.New(msg)})
	d.mu.Unlock()
}

// recordLoadError remembers a load failure until the access lock is
// released.  The caller must hold d.access.
func (d *Document) recordLoadError(ref Reference, err error) {
	d.pending = append(d.pending, loadFailure{ref: ref, err: err})
}

// takeLoadErrors returns the recorded load failures.
// The caller must hold d.access.
func (d *Document) takeLoadErrors() []loadFailure {
	res := d.pending
	d.pending = nil
	return res
}

func (d *Document) reportLoadErrors(failures []loadFailure) {
	for _, f := range failures {
		d.logger.Error("cos: cannot load object",
			slog.String("ref", f.ref.String()),
			slog.Any("err", f.err))
		d.mu.Lock()
		d.warnings = append(d.warnings, Wrap(f.err, "object "+f.ref.String()))
		d.mu.Unlock()
		if d.onLoadError != nil {
			d.onLoadError(f.ref, f.err)
		}
	}
}

// Resolve follows references to indirect objects, until a direct object is
// found.  If an indirect object cannot be loaded, [Null] and the load error
// are returned.
func (d *Document) Resolve(obj Object) (Object, error) {
	return Resolve(obj)
}

// resolveLocked is like Resolve, but requires that the caller holds
// d.access.
func (d *Document) resolveLocked(obj Object) (Object, error) {
	for count := 0; ; count++ {
		c, ok := obj.(*Indirect)
		if !ok {
			return nullIfNil(obj), nil
		}
		if count >= maxIndirection {
			return Null{}, errIndirectionLoop
		}
		if c.doc != d {
			obj = c.Value()
		} else {
			obj = c.valueLocked()
		}
		if err := c.Err(); err != nil {
			return Null{}, err
		}
	}
}

const maxIndirection = 16

// Resolve follows references to indirect objects, until a direct object is
// found.  If an indirect object cannot be loaded, [Null] and the load error
// are returned.
func Resolve(obj Object) (Object, error) {
	for count := 0; ; count++ {
		c, ok := obj.(*Indirect)
		if !ok {
			return nullIfNil(obj), nil
		}
		if count >= maxIndirection {
			return Null{}, errIndirectionLoop
		}
		obj = c.Value()
		if err := c.Err(); err != nil {
			return Null{}, err
		}
	}
}

func resolveAndCast[T Object](obj Object) (x T, err error) {
	obj, err = Resolve(obj)
	if err != nil {
		return x, err
	}

	if isNull(obj) {
		return x, nil
	}

	var isCorrectType bool
	x, isCorrectType = obj.(T)
	if isCorrectType {
		return x, nil
	}

	return x, &MalformedFileError{
		Err: fmt.Errorf("expected %T but got %T", x, obj),
	}
}

// Helper functions for getting objects of a specific type.  Each of these
// functions calls Resolve on the object before attempting to convert it to the
// desired type.  If the object is `null`, a zero object is returned without
// error.  If the object is of the wrong type, an error is returned.
//
// The signature of these functions is
//
//	func GetT(obj Object) (x T, err error)
//
// where T is the type of the object to be returned.
var (
	GetArray   = resolveAndCast[*Array]
	GetBool    = resolveAndCast[Bool]
	GetDict    = resolveAndCast[*Dict]
	GetInteger = resolveAndCast[Integer]
	GetName    = resolveAndCast[Name]
	GetReal    = resolveAndCast[Real]
	GetStream  = resolveAndCast[*Stream]
	GetString  = resolveAndCast[String]
)

// GetNumber resolves obj and converts integers and reals to float64.
func GetNumber(obj Object) (float64, error) {
	obj, err := Resolve(obj)
	if err != nil {
		return 0, err
	}
	switch x := obj.(type) {
	case Integer:
		return float64(x), nil
	case Real:
		return float64(x), nil
	case Null:
		return 0, nil
	default:
		return 0, &MalformedFileError{
			Err: fmt.Errorf("expected number but got %T", obj),
		}
	}
}

var (
	errIndirectionLoop = errors.New("too many levels of indirection")
	errNoCatalog       = errors.New("document catalog not found")
)
