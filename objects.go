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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type of a PDF object.
type Kind uint8

// These are the possible object kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindReal
	KindName
	KindString
	KindArray
	KindDict
	KindStream
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindName:
		return "name"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindDict:
		return "dictionary"
	case KindStream:
		return "stream"
	case KindReference:
		return "reference"
	default:
		return "cos.Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Object represents an object in a PDF file.  The set of implementations is
// closed: [Null], [Bool], [Integer], [Real], [Name], [String], [*Array],
// [*Dict], [*Stream], and [*Indirect].
type Object interface {
	// Kind returns the type of the object.
	Kind() Kind

	// PDF writes the PDF file representation of the object to w.
	PDF(w io.Writer) error

	isObject()
}

// Null represents the PDF null object.
type Null struct{}

// Kind implements the [Object] interface.
func (Null) Kind() Kind { return KindNull }

// PDF implements the [Object] interface.
func (Null) PDF(w io.Writer) error {
	_, err := w.Write([]byte("null"))
	return err
}

func (Null) isObject() {}

// Bool represents a boolean value in a PDF file.
type Bool bool

// Kind implements the [Object] interface.
func (Bool) Kind() Kind { return KindBool }

// PDF implements the [Object] interface.
func (x Bool) PDF(w io.Writer) error {
	var s string
	if x {
		s = "true"
	} else {
		s = "false"
	}
	_, err := w.Write([]byte(s))
	return err
}

func (Bool) isObject() {}

// Integer represents an integer constant in a PDF file.
type Integer int64

// Kind implements the [Object] interface.
func (Integer) Kind() Kind { return KindInteger }

// PDF implements the [Object] interface.
func (x Integer) PDF(w io.Writer) error {
	s := strconv.FormatInt(int64(x), 10)
	_, err := w.Write([]byte(s))
	return err
}

func (Integer) isObject() {}

// Real represents an real number in a PDF file.
type Real float64

// Kind implements the [Object] interface.
func (Real) Kind() Kind { return KindReal }

// PDF implements the [Object] interface.
func (x Real) PDF(w io.Writer) error {
	s := strconv.FormatFloat(float64(x), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s = s + "."
	}
	_, err := w.Write([]byte(s))
	return err
}

func (Real) isObject() {}

// Name represents a name object in a PDF file.
type Name string

// Kind implements the [Object] interface.
func (Name) Kind() Kind { return KindName }

// PDF implements the [Object] interface.
func (x Name) PDF(w io.Writer) error {
	l := []byte(x)

	buf := &bytes.Buffer{}
	buf.WriteByte('/')
	for _, c := range l {
		if isSpace[c] || isDelimiter[c] || c < 0x21 || c > 0x7e || c == '#' {
			fmt.Fprintf(buf, "#%02x", c)
		} else {
			buf.WriteByte(c)
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func (Name) isObject() {}

// ParseName parses a PDF name from the given buffer.  The buffer must include
// the leading slash.
func ParseName(buf []byte) (Name, error) {
	s := newScanner(bytes.NewReader(buf), int64(len(buf)))
	b, _ := s.Peek(1)
	if len(b) < 1 || b[0] != '/' {
		return "", errInvalidName
	}
	n, err := s.ReadName()
	if err != nil {
		return "", err
	}
	if s.currentPos() != int64(len(buf)) {
		return "", errInvalidName
	}
	return n, nil
}

var errInvalidName = errors.New("malformed PDF name")

// String represents a raw string in a PDF file.  The character set encoding,
// if any, is determined by the context.
type String []byte

// Kind implements the [Object] interface.
func (String) Kind() Kind { return KindString }

// PDF implements the [Object] interface.
func (x String) PDF(w io.Writer) error {
	l := []byte(x)

	if pw, ok := w.(*posWriter); ok && pw.sec != nil && !pw.plain {
		enc, err := pw.sec.EncryptBytes(pw.ref, l)
		if err != nil {
			return err
		}
		l = enc
	}

	level := 0
	for _, c := range l {
		if c == '(' {
			level++
		} else if c == ')' {
			level--
			if level < 0 {
				break
			}
		}
	}
	balanced := level == 0

	var funny []int
	for i, c := range l {
		if c == '\n' || c == '\t' {
			continue
		}
		if c < 32 || c >= 127 || c == '\\' ||
			!balanced && (c == '(' || c == ')') {
			funny = append(funny, i)
		}
	}
	n := len(l)

	buf := &bytes.Buffer{}
	if 3*len(funny) <= n {
		buf.WriteString("(")
		pos := 0
		for _, i := range funny {
			if pos < i {
				buf.Write(l[pos:i])
			}
			c := l[i]
			switch c {
			case '\r':
				buf.WriteString(`\r`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '(':
				buf.WriteString(`\(`)
			case ')':
				buf.WriteString(`\)`)
			case '\\':
				buf.WriteString(`\\`)
			default:
				fmt.Fprintf(buf, `\%03o`, c)
			}
			pos = i + 1
		}
		if pos < n {
			buf.Write(l[pos:n])
		}
		buf.WriteString(")")
	} else {
		fmt.Fprintf(buf, "<%x>", l)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func (String) isObject() {}

// ParseString parses a string from the given buffer.  The buffer must include
// the surrounding parentheses or angle brackets.
func ParseString(buf []byte) (String, error) {
	s := newScanner(bytes.NewReader(buf), int64(len(buf)))
	b, _ := s.Peek(1)
	if len(b) < 1 {
		return nil, errInvalidString
	}
	var res String
	var err error
	switch b[0] {
	case '(':
		s.pos++
		res, err = s.ReadQuotedString()
	case '<':
		s.pos++
		res, err = s.ReadHexString()
	default:
		err = errInvalidString
	}
	if err != nil {
		return nil, err
	}
	if s.currentPos() != int64(len(buf)) {
		return nil, errInvalidString
	}
	return res, nil
}

var errInvalidString = errors.New("malformed PDF string")

// AsDate converts a PDF date string to a time.Time object.
// If the string does not have the correct format, an error is returned.
func (x String) AsDate() (time.Time, error) {
	s := x.AsTextString()
	if s == "D:" || s == "" {
		return time.Time{}, nil
	}
	s = strings.ReplaceAll(s, "'", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "19") || strings.HasPrefix(s, "20") {
		s = "D:" + s
	}

	formats := []string{
		"D:20060102150405-0700",
		"D:20060102150405-07",
		"D:20060102150405Z0000",
		"D:20060102150405Z00",
		"D:20060102150405Z",
		"D:20060102150405",
		"D:200601021504",
		"D:2006010215",
		"D:20060102",
		"D:200601",
		"D:2006",
		time.ANSIC,
	}
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDate
}

var errNoDate = errors.New("not a valid date string")

// Date creates a PDF String object encoding the given date and time.
func Date(t time.Time) String {
	s := t.Format("D:20060102150405-0700")
	k := len(s) - 2
	s = s[:k] + "'" + s[k:]
	return String(s)
}

// Reference identifies an indirect object in a PDF file.
// The lower 32 bits hold the object number, the next 16 bits the
// generation number.
type Reference uint64

// NewReference returns the reference with the given object number and
// generation number.
func NewReference(number uint32, generation uint16) Reference {
	return Reference(uint64(number) | uint64(generation)<<32)
}

// Number returns the object number.
func (x Reference) Number() uint32 {
	return uint32(x)
}

// Generation returns the generation number.
func (x Reference) Generation() uint16 {
	return uint16(x >> 32)
}

// Equal reports whether x and other refer to the same object.
// Only the object numbers are compared, generation numbers are ignored.
func (x Reference) Equal(other Reference) bool {
	return x.Number() == other.Number()
}

func (x Reference) String() string {
	res := "obj_" + strconv.FormatUint(uint64(x.Number()), 10)
	if gen := x.Generation(); gen > 0 {
		res += "@" + strconv.FormatUint(uint64(gen), 10)
	}
	return res
}

// Format formats a PDF object as a string, in the same way as
// it would be written to a PDF file.
func Format(obj Object) string {
	if obj == nil {
		return "null"
	}
	buf := &bytes.Buffer{}
	err := obj.PDF(buf)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return buf.String()
}

func isNull(obj Object) bool {
	if obj == nil {
		return true
	}
	_, ok := obj.(Null)
	return ok
}

func isPrimitive(obj Object) bool {
	switch obj.(type) {
	case nil, Null, Bool, Integer, Real, Name, String:
		return true
	default:
		return false
	}
}
