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
	"io"
	"strconv"
)

const (
	scannerBufSize = 1024
	maxNesting     = 128
)

// scanner reads PDF objects from an io.ReaderAt.  Positions are absolute
// byte offsets in the underlying data.
type scanner struct {
	r      io.ReaderAt
	size   int64
	buf    []byte
	bufPos int64 // file offset of buf[0]
	used   int
	pos    int

	// ref maps "n g R" to an object.  If this is nil, references are
	// read as null.
	ref func(num uint32, gen uint16) Object

	// getInt resolves the /Length of streams.  If this is nil, only
	// direct integers are accepted.
	getInt func(Object) (Integer, error)

	// sec, if set, is used to decrypt strings and streams of the object cur.
	sec SecurityHandler
	cur Reference

	// warn is called for recoverable problems.
	warn func(pos int64, msg string)

	depth int
}

func newScanner(r io.ReaderAt, size int64) *scanner {
	return &scanner{
		r:    r,
		size: size,
		buf:  make([]byte, scannerBufSize),
	}
}

func (s *scanner) currentPos() int64 {
	return s.bufPos + int64(s.pos)
}

// seek moves the read position to the absolute offset pos.
func (s *scanner) seek(pos int64) {
	if pos >= s.bufPos && pos <= s.bufPos+int64(s.used) {
		s.pos = int(pos - s.bufPos)
		return
	}
	s.bufPos = pos
	s.used = 0
	s.pos = 0
}

func (s *scanner) malformed(format string, args ...any) error {
	return &MalformedFileError{
		Pos: s.currentPos(),
		Err: fmt.Errorf(format, args...),
	}
}

// ReadIndirectObject reads an object of the form "n g obj ... endobj".
func (s *scanner) ReadIndirectObject() (Object, Reference, error) {
	// Some files point the xref entries at the end of the previous line.
	err := s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}

	number, err := s.ReadInteger()
	if err != nil {
		return nil, 0, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}
	generation, err := s.ReadInteger()
	if err != nil {
		return nil, 0, err
	}
	if number < 0 || number > 1<<32-1 || generation < 0 || generation > 65535 {
		return nil, 0, s.malformed("invalid object identifier %d %d", number, generation)
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}
	err = s.SkipString("obj")
	if err != nil {
		return nil, 0, err
	}
	ref := NewReference(uint32(number), uint16(generation))
	s.cur = ref

	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, 0, err
	}

	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}
	buf, _ := s.Peek(6)
	if !bytes.Equal(buf, []byte("endobj")) {
		// A missing "endobj" is a common problem, which we ignore.
		if s.warn != nil {
			s.warn(s.currentPos(), "missing endobj for "+ref.String())
		}
	} else {
		s.pos += 6
	}

	return obj, ref, nil
}

// ReadObject reads the next object.  References of the form "n g R" are
// converted using s.ref.
func (s *scanner) ReadObject() (Object, error) {
	buf, err := s.Peek(5) // len("false") == 5
	if err == nil {
		// Below, we return `err` if we cannot detect an object.
		if len(buf) < 5 {
			err = &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		} else {
			err = s.malformed("unexpected %q", string(buf))
		}
	}

	switch {
	case len(buf) == 0:
		// Test this first, so that we can use buf[0] in the following cases.
		return nil, err
	case bytes.HasPrefix(buf, []byte("null")):
		s.pos += 4
		return Null{}, nil
	case bytes.HasPrefix(buf, []byte("true")):
		s.pos += 4
		return Bool(true), nil
	case bytes.HasPrefix(buf, []byte("false")):
		s.pos += 5
		return Bool(false), nil
	case buf[0] == '/':
		return s.ReadName()
	case buf[0] >= '0' && buf[0] <= '9', buf[0] == '+', buf[0] == '-', buf[0] == '.':
		obj, err := s.ReadNumber()
		if err != nil {
			return nil, err
		}
		if x, isInt := obj.(Integer); isInt && x >= 0 {
			if ref, ok := s.tryReference(x); ok {
				return ref, nil
			}
		}
		return obj, nil
	case bytes.HasPrefix(buf, []byte("<<")):
		if s.depth >= maxNesting {
			return nil, s.malformed("objects nested too deeply")
		}
		s.depth++
		dict, err := s.ReadDict()
		s.depth--
		if err != nil {
			return nil, err
		}

		// check whether this is the start of a stream
		err = s.SkipWhiteSpace()
		if err != nil && err != io.EOF {
			return nil, err
		}
		buf, _ = s.Peek(6) // len("stream") == 6
		if !bytes.HasPrefix(buf, []byte("stream")) {
			return dict, nil
		}
		return s.ReadStreamData(dict)
	case buf[0] == '(':
		s.pos++
		return s.decryptString(s.ReadQuotedString())
	case buf[0] == '<':
		s.pos++
		return s.decryptString(s.ReadHexString())
	case buf[0] == '[':
		if s.depth >= maxNesting {
			return nil, s.malformed("objects nested too deeply")
		}
		s.pos++
		s.depth++
		a, err := s.ReadArray()
		s.depth--
		return a, err
	}
	return nil, err
}

// tryReference checks whether the integer num, which has just been read,
// is the start of a reference "num gen R".  If not, the read position is
// left unchanged.
func (s *scanner) tryReference(num Integer) (Object, bool) {
	start := s.currentPos()
	fail := func() (Object, bool) {
		s.seek(start)
		return nil, false
	}

	if s.SkipWhiteSpace() != nil {
		return fail()
	}
	buf, _ := s.Peek(1)
	if len(buf) == 0 || buf[0] < '0' || buf[0] > '9' {
		return fail()
	}
	gen, err := s.ReadInteger()
	if err != nil || gen < 0 || gen > 65535 || num > 1<<32-1 {
		return fail()
	}
	if s.SkipWhiteSpace() != nil {
		return fail()
	}
	buf, _ = s.Peek(2)
	if len(buf) == 0 || buf[0] != 'R' || len(buf) > 1 && !isSpace[buf[1]] && !isDelimiter[buf[1]] {
		return fail()
	}
	s.pos++

	if s.ref == nil {
		return Null{}, true
	}
	return s.ref(uint32(num), uint16(gen)), true
}

// ReadInteger reads an integer.
func (s *scanner) ReadInteger() (Integer, error) {
	first := true
	var res []byte
	err := s.ScanBytes(func(c byte) bool {
		if first && (c == '+' || c == '-') {
			res = append(res, c)
		} else if c >= '0' && c <= '9' {
			res = append(res, c)
		} else {
			return false
		}
		first = false
		return true
	})
	if err != nil {
		return 0, err
	}

	x, err := strconv.ParseInt(string(res), 10, 64)
	if err != nil {
		return 0, &MalformedFileError{
			Pos: s.currentPos(),
			Err: err,
		}
	}
	return Integer(x), nil
}

// ReadNumber reads an integer or real number.
func (s *scanner) ReadNumber() (Object, error) {
	hasDot := false
	first := true
	var res []byte
	err := s.ScanBytes(func(c byte) bool {
		if !hasDot && c == '.' {
			hasDot = true
			res = append(res, c)
		} else if first && (c == '+' || c == '-') {
			res = append(res, c)
		} else if c >= '0' && c <= '9' {
			res = append(res, c)
		} else {
			return false
		}
		first = false
		return true
	})
	if err != nil {
		return nil, err
	}

	if hasDot {
		if len(res) == 1 || len(res) == 2 && (res[0] == '+' || res[0] == '-') {
			// a lone "." is read as zero
			return Real(0), nil
		}
		x, err := strconv.ParseFloat(string(res), 64)
		if err != nil {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: err}
		}
		return Real(x), nil
	}

	x, err := strconv.ParseInt(string(res), 10, 64)
	if err != nil {
		if f, err2 := strconv.ParseFloat(string(res), 64); err2 == nil {
			// integers which are too large are read as reals
			return Real(f), nil
		}
		return nil, &MalformedFileError{Pos: s.currentPos(), Err: err}
	}
	return Integer(x), nil
}

// ReadQuotedString reads a ()-delimited string, starting after the opening
// bracket.
func (s *scanner) ReadQuotedString() (String, error) {
	var res []byte
	parentCount := 0
	escape := false
	ignoreLF := false
	isOctal := 0
	octalVal := byte(0)
	err := s.ScanBytes(func(c byte) bool {
		if ignoreLF {
			ignoreLF = false
			if c == '\n' {
				return true
			}
		}
		if isOctal > 0 {
			if c >= '0' && c <= '7' {
				octalVal = octalVal*8 + (c - '0')
				isOctal--
				if isOctal > 0 {
					return true
				}
				res = append(res, octalVal)
				return true
			}
			// short octal escape
			res = append(res, octalVal)
			isOctal = 0
		}
		if escape {
			escape = false
			switch c {
			case '\n':
				return true
			case '\r':
				ignoreLF = true
				return true
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'b':
				c = '\b'
			case 'f':
				c = '\f'
			}
			if c >= '0' && c <= '7' {
				isOctal = 2
				octalVal = c - '0'
				return true
			}
		} else if c == '\\' {
			escape = true
			return true
		} else if c == '(' {
			parentCount++
		} else if c == ')' {
			if parentCount > 0 {
				parentCount--
			} else {
				return false
			}
		} else if c == '\r' {
			c = '\n'
			ignoreLF = true
		}
		res = append(res, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	if isOctal > 0 {
		res = append(res, octalVal)
	}

	err = s.SkipString(")")
	if err != nil {
		return nil, err
	}
	return String(res), nil
}

// ReadHexString reads a <>-delimited string, starting after the opening
// angled bracket.
func (s *scanner) ReadHexString() (String, error) {
	var res []byte
	var hexVal byte
	first := true
	err := s.ScanBytes(func(c byte) bool {
		var d byte
		if c >= '0' && c <= '9' {
			d = c - '0'
		} else if c >= 'A' && c <= 'F' {
			d = c - 'A' + 10
		} else if c >= 'a' && c <= 'f' {
			d = c - 'a' + 10
		} else if c == '>' {
			return false
		} else {
			return true
		}
		if first {
			hexVal = d
		} else {
			res = append(res, 16*hexVal+d)
		}
		first = !first
		return true
	})
	if err != nil {
		return nil, err
	}
	if !first {
		res = append(res, 16*hexVal)
	}

	// If we reach the end of the file, the trailing ">" will be missing.
	_ = s.SkipString(">")

	if res == nil {
		res = []byte{}
	}
	return String(res), nil
}

func (s *scanner) decryptString(str String, err error) (Object, error) {
	if err != nil {
		return nil, err
	}
	if s.sec == nil {
		return str, nil
	}
	plain, err := s.sec.DecryptBytes(s.cur, str)
	if err != nil {
		return nil, &MalformedFileError{Pos: s.currentPos(), Err: err}
	}
	return String(plain), nil
}

// ReadName reads a PDF name object.
func (s *scanner) ReadName() (Name, error) {
	err := s.SkipString("/")
	if err != nil {
		return "", err
	}

	hex := 0
	var hexByte byte
	var res []byte
	err = s.ScanBytes(func(c byte) bool {
		if hex > 0 {
			var val byte
			switch {
			case c >= '0' && c <= '9':
				val = c - '0'
			case c >= 'A' && c <= 'F':
				val = c - 'A' + 10
			case c >= 'a' && c <= 'f':
				val = c - 'a' + 10
			default:
				// not a valid escape, keep the '#' as is
				res = append(res, '#')
				hex = 0
				if isSpace[c] || isDelimiter[c] {
					return false
				}
				res = append(res, c)
				return true
			}
			hexByte = 16*hexByte + val
			hex--
			if hex == 0 {
				res = append(res, hexByte)
			}
		} else if c == '#' {
			hexByte = 0
			hex = 2
		} else if isSpace[c] || isDelimiter[c] {
			return false
		} else {
			res = append(res, c)
		}
		return true
	})
	if err != nil && err != io.EOF {
		return "", err
	}

	return Name(res), nil
}

// ReadArray reads an array, starting after the opening "[".
func (s *scanner) ReadArray() (*Array, error) {
	array := &Array{}
	for {
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		if buf[0] == ']' {
			break
		}

		obj, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		if _, isStream := obj.(*Stream); isStream {
			return nil, s.malformed("stream inside array")
		}
		array.appendRaw(obj)
	}
	s.pos++ // we have already seen the closing "]"

	return array, nil
}

// ReadDict reads a PDF dictionary.
func (s *scanner) ReadDict() (*Dict, error) {
	err := s.SkipString("<<")
	if err != nil {
		return nil, err
	}

	dict := NewDict()
	for {
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		buf, _ := s.Peek(2)
		if len(buf) == 0 {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		if buf[0] == '>' {
			break
		}
		if buf[0] != '/' {
			return nil, s.malformed("expected name but found %q", string(buf))
		}

		key, err := s.ReadName()
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		buf, _ = s.Peek(2)
		if bytes.Equal(buf, []byte(">>")) {
			// missing value, the key is ignored
			break
		}
		val, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		if _, isStream := val.(*Stream); isStream {
			return nil, s.malformed("stream inside dictionary")
		}
		dict.setRaw(key, val)
	}
	err = s.SkipString(">>")
	if err != nil {
		return nil, err
	}

	return dict, nil
}

// ReadStreamData reads the data of a PDF Stream, starting after the Dict.
func (s *scanner) ReadStreamData(dict *Dict) (*Stream, error) {
	err := s.SkipString("stream")
	if err != nil {
		return nil, err
	}

	buf, err := s.Peek(2)
	if err != nil {
		return nil, err
	}
	if len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
		s.pos += 2
	} else if len(buf) >= 1 && (buf[0] == '\n' || buf[0] == '\r') {
		s.pos++
	} else if s.warn != nil {
		s.warn(s.currentPos(), "missing end of line after stream keyword")
	}
	start := s.currentPos()

	length := int64(-1)
	lengthObj := dict.Get("Length")
	if x, ok := lengthObj.(Integer); ok {
		length = int64(x)
	} else if s.getInt != nil && !isNull(lengthObj) {
		x, err := s.getInt(lengthObj)
		if err == nil {
			length = int64(x)
		}
	}

	var data []byte
	if length >= 0 && start+length <= s.size {
		s.seek(start + length)
		err = s.SkipWhiteSpace()
		buf, _ := s.Peek(9)
		if err == nil && bytes.Equal(buf, []byte("endstream")) {
			data = make([]byte, length)
			_, err = s.r.ReadAt(data, start)
			if err != nil && err != io.EOF {
				return nil, err
			}
			s.pos += 9
		}
	}
	if data == nil {
		// The length is missing or wrong.  Search for "endstream" instead.
		s.seek(start)
		err = s.SkipAfter("endstream")
		if err != nil {
			return nil, s.malformed("unterminated stream")
		}
		end := s.currentPos() - 9
		n := end - start
		data = make([]byte, n)
		_, err = s.r.ReadAt(data, start)
		if err != nil && err != io.EOF {
			return nil, err
		}
		data = bytes.TrimSuffix(data, []byte("\n"))
		data = bytes.TrimSuffix(data, []byte("\r"))
		if s.warn != nil {
			s.warn(start, "wrong /Length for stream in "+s.cur.String())
		}
	}

	if s.sec != nil && dict.Get("Type") != Name("XRef") {
		data, err = s.sec.DecryptBytes(s.cur, data)
		if err != nil {
			return nil, &MalformedFileError{Pos: start, Err: err}
		}
	}

	return newStreamEncoded(dict, data), nil
}

// readHeaderVersion reads the "%PDF-x.y" header at the start of a file.
// The offset of the header and the version are returned.
func (s *scanner) readHeaderVersion() (int64, Version, error) {
	buf, err := s.Peek(scannerBufSize)
	if err != nil {
		return 0, 0, err
	}

	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 {
		idx = bytes.Index(buf, []byte("%FDF-"))
	}
	if idx < 0 || idx+8 > len(buf) {
		return 0, 0, ErrNoPDF
	}
	ver, err := ParseVersion(string(buf[idx+5 : idx+8]))
	if err != nil || idx+8 < len(buf) && buf[idx+8] >= '0' && buf[idx+8] <= '9' {
		return 0, 0, &MalformedFileError{Pos: int64(idx + 5), Err: ErrVersion}
	}
	s.pos += idx + 8
	return int64(idx), ver, nil
}

// refill discards the read part of the buffer and reads as much new data as
// possible.  At the end of the data, s.used will be smaller than the
// buffer size, but no error will be returned.
func (s *scanner) refill() error {
	s.bufPos += int64(s.pos)
	copy(s.buf, s.buf[s.pos:s.used])
	s.used -= s.pos
	s.pos = 0

	start := s.bufPos + int64(s.used)
	want := int64(len(s.buf) - s.used)
	if start+want > s.size {
		want = s.size - start
	}
	if want <= 0 {
		return nil
	}
	n, err := s.r.ReadAt(s.buf[s.used:s.used+int(want)], start)
	s.used += n
	if err == io.EOF {
		err = nil
	}
	return err
}

// Peek returns a view of the next n bytes of input.  The function panics, if n
// is larger than scannerBufSize.  At the end of the data, short buffers
// without an error code are returned.
func (s *scanner) Peek(n int) ([]byte, error) {
	if n > scannerBufSize {
		panic("peek window too large")
	}

	var err error
	if s.pos+n > s.used {
		err = s.refill()
	}

	if s.pos+n > s.used {
		return s.buf[s.pos:s.used], err
	}

	return s.buf[s.pos : s.pos+n], nil
}

// ScanBytes calls accept for the following input bytes, until accept returns
// false or the end of input is reached.  If the end of input is reached
// before any byte was accepted, io.EOF is returned.
func (s *scanner) ScanBytes(accept func(c byte) bool) error {
	empty := true
	for {
		for s.pos < s.used {
			if !accept(s.buf[s.pos]) {
				return nil
			}
			s.pos++
			empty = false
		}
		err := s.refill()
		if err != nil {
			return err
		}
		if s.used == 0 {
			if empty {
				return io.EOF
			}
			return nil
		}
	}
}

// SkipWhiteSpace skips white space and comments.
func (s *scanner) SkipWhiteSpace() error {
	isComment := false
	err := s.ScanBytes(func(c byte) bool {
		if isComment {
			if c == '\r' || c == '\n' {
				isComment = false
			}
		} else if c == '%' {
			isComment = true
		} else {
			return isSpace[c]
		}
		return true
	})
	if err == io.EOF {
		err = nil
	}
	return err
}

// SkipString skips the string pat, which must appear at the current
// position.
func (s *scanner) SkipString(pat string) error {
	patBytes := []byte(pat)
	n := len(patBytes)
	buf, err := s.Peek(n)
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, patBytes) {
		return &MalformedFileError{
			Pos: s.currentPos(),
			Err: fmt.Errorf("expected %q but found %q", pat, string(buf)),
		}
	}
	s.pos += n
	return nil
}

// SkipAfter advances the read position to just after the next occurrence
// of pat.
func (s *scanner) SkipAfter(pat string) error {
	patBytes := []byte(pat)
	n := len(patBytes)
	if n > scannerBufSize {
		panic("SkipAfter target too large")
	}

	for {
		idx := bytes.Index(s.buf[s.pos:s.used], patBytes)
		if idx >= 0 {
			s.pos += idx + n
			return nil
		}
		if s.used-s.pos >= n {
			s.pos = s.used - n + 1
		}
		oldEnd := s.bufPos + int64(s.used)
		err := s.refill()
		if err != nil {
			return err
		}
		if s.bufPos+int64(s.used) == oldEnd {
			return io.EOF
		}
	}
}

var (
	isSpace = map[byte]bool{
		0:  true,
		9:  true,
		10: true,
		12: true,
		13: true,
		32: true,
	}
	isDelimiter = map[byte]bool{
		'(': true,
		')': true,
		'<': true,
		'>': true,
		'[': true,
		']': true,
		'{': true,
		'}': true,
		'/': true,
		'%': true,
	}
)
