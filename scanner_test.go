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
	"io"
	"strings"
	"testing"
)

func testScanner(contents string) *scanner {
	s := newScanner(strings.NewReader(contents), int64(len(contents)))
	s.ref = func(num uint32, gen uint16) Object {
		return &Indirect{ref: NewReference(num, gen)}
	}
	return s
}

func TestRefill(t *testing.T) {
	n := scannerBufSize + 2
	buf := make([]byte, n)
	s := newScanner(bytes.NewReader(buf), int64(n))

	for _, inc := range []int{0, 1, scannerBufSize, 1} {
		s.pos += inc
		err := s.refill()
		total := int(s.bufPos) + s.pos
		expectUsed := min(scannerBufSize, n-total)
		if err != nil || s.pos != 0 || s.used != expectUsed {
			t.Errorf("%d: s.pos = %d, s.used = %d, err = %v",
				total, s.pos, s.used, err)
		}
	}
}

func TestReadObject(t *testing.T) {
	cases := []struct {
		in  string
		val Object
		ok  bool
		err error
	}{
		{"", nil, false, io.ErrUnexpectedEOF},
		{"null", Null{}, true, nil},

		{"true", Bool(true), true, nil},
		{"false", Bool(false), true, nil},
		{"TRUE", nil, false, nil},
		{"FALSE", nil, false, nil},

		{"0", Integer(0), true, nil},
		{"+0", Integer(0), true, nil},
		{"-0", Integer(0), true, nil},
		{"1", Integer(1), true, nil},
		{"+1", Integer(1), true, nil},
		{"-1", Integer(-1), true, nil},
		{"12", Integer(12), true, nil},
		{"-4567", Integer(-4567), true, nil},
		{"999999999999999999", Integer(999999999999999999), true, nil},
		{"-999999999999999999", Integer(-999999999999999999), true, nil},

		{".5", Real(.5), true, nil},
		{"+.5", Real(.5), true, nil},
		{"-.5", Real(-.5), true, nil},
		{"0.5", Real(.5), true, nil},
		{"-0.5", Real(-.5), true, nil},
		{".", Real(0), true, nil},

		{"/a", Name("a"), true, nil},
		{"/123456789012345678901234567890123", Name("123456789012345678901234567890123"), true, nil},
		{"/A;Name_With-Various***Characters?", Name("A;Name_With-Various***Characters?"), true, nil},
		{"/1.2", Name("1.2"), true, nil},
		{"/A#42", Name("AB"), true, nil},
		{"/F#23#20minor", Name("F# minor"), true, nil},
		{"/1#2E5", Name("1.5"), true, nil},
		{"/ß", Name("ß"), true, nil},
		{"/", Name(""), true, nil},

		{`()`, String(nil), true, nil},
		{"(test string)", String("test string"), true, nil},
		{`(he(ll)o)`, String("he(ll)o"), true, nil},
		{`(he\)ll\(o)`, String("he)ll(o"), true, nil},
		{"(hello\n)", String("hello\n"), true, nil},
		{"(hello\r)", String("hello\n"), true, nil},
		{"(hello\r\n)", String("hello\n"), true, nil},
		{"(hello\n\r)", String("hello\n\n"), true, nil},
		{"(hell\\\no)", String("hello"), true, nil},
		{"(hell\\\ro)", String("hello"), true, nil},
		{"(hell\\\r\no)", String("hello"), true, nil},
		{`(h\145llo)`, String("hello"), true, nil},
		{`(\0612)`, String("12"), true, nil},

		{"<>", String(nil), true, nil},
		{"<68656c6c6f>", String("hello"), true, nil},
		{"<68 65 6C 6C 6F>", String("hello"), true, nil},
		{"<68656C7>", String("help"), true, nil},

		{"[1 2 3]", NewArray(Integer(1), Integer(2), Integer(3)), true, nil},
		{"[1 2 3 R 4]", NewArray(Integer(1), &Indirect{ref: NewReference(2, 3)}, Integer(4)), true, nil},

		{"<< /key 12 /val /23 >>", DictOf(map[Name]Object{
			"key": Integer(12),
			"val": Name("23"),
		}), true, nil},
		{"<< /key1 1 /key2 2 2 R /key3 3 >>", DictOf(map[Name]Object{
			"key1": Integer(1),
			"key2": &Indirect{ref: NewReference(2, 2)},
			"key3": Integer(3),
		}), true, nil},

		{"<< /Length 5 >>\nstream\nhello\nendstream",
			NewStream(DictOf(map[Name]Object{"Length": Integer(5)}), []byte("hello")),
			true, nil},

		{"fals", nil, false, nil},
		{"abc", nil, false, nil},
	}

	for _, test := range cases {
		for _, suffix := range []string{">>", " 1\n"} {
			body := test.in + suffix
			if test.in == "" {
				body = ""
			}
			s := testScanner(body)

			val, err := s.ReadObject()
			if test.ok {
				if err != nil {
					t.Errorf("%q: unexpected error %q", body, err)
					continue
				}
				if got, want := Format(val), Format(test.val); got != want {
					t.Errorf("%q: wrong value: expected %q, got %q", body, want, got)
				}
				continue
			}

			var e2 *MalformedFileError
			if err == nil {
				t.Errorf("%q: missing error", body)
			} else if !errors.As(err, &e2) {
				t.Errorf("%q: wrong error %q", body, err)
			} else if test.err != nil && !errors.Is(err, test.err) {
				t.Errorf("%q: error does not wrap %q", body, test.err)
			}
		}
	}
}

func TestReferenceWithoutResolver(t *testing.T) {
	body := "[1 0 R]"
	s := newScanner(strings.NewReader(body), int64(len(body)))
	obj, err := s.ReadObject()
	if err != nil {
		t.Fatal(err)
	}
	if got := Format(obj); got != "[null]" {
		t.Errorf("got %q, want %q", got, "[null]")
	}
}

func TestNesting(t *testing.T) {
	deep := strings.Repeat("[", maxNesting+1) + strings.Repeat("]", maxNesting+1)
	_, err := testScanner(deep).ReadObject()
	if err == nil {
		t.Error("deeply nested array accepted")
	}

	ok := strings.Repeat("[", maxNesting) + strings.Repeat("]", maxNesting)
	_, err = testScanner(ok).ReadObject()
	if err != nil {
		t.Errorf("nesting %d: %v", maxNesting, err)
	}
}

func TestReadIndirectObject(t *testing.T) {
	body := "\n7 2 obj\n<< /A [1 2] >>\nendobj\n"
	obj, ref, err := testScanner(body).ReadIndirectObject()
	if err != nil {
		t.Fatal(err)
	}
	if ref != NewReference(7, 2) {
		t.Errorf("wrong reference %s", ref)
	}
	if got := Format(obj); got != "<<\n/A [1 2]\n>>" {
		t.Errorf("wrong value %q", got)
	}

	// a missing endobj only causes a warning
	var warnings []string
	s := testScanner("1 0 obj 42 2 0 obj 43 endobj")
	s.warn = func(pos int64, msg string) {
		warnings = append(warnings, msg)
	}
	obj, _, err = s.ReadIndirectObject()
	if err != nil || obj != Integer(42) {
		t.Errorf("got %v, %v", obj, err)
	}
	if len(warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(warnings))
	}

	_, _, err = testScanner("1 0 R").ReadIndirectObject()
	if err == nil {
		t.Error("missing error for a reference")
	}
}

func TestStreamWrongLength(t *testing.T) {
	for _, length := range []string{"3", "100", "-1", "/X"} {
		body := "<< /Length " + length + " >>\nstream\nhello world\nendstream\nendobj\n"
		var warned bool
		s := testScanner(body)
		s.warn = func(pos int64, msg string) { warned = true }
		obj, err := s.ReadObject()
		if err != nil {
			t.Errorf("/Length %s: %v", length, err)
			continue
		}
		stm, ok := obj.(*Stream)
		if !ok {
			t.Errorf("/Length %s: got %T", length, obj)
			continue
		}
		data, err := stm.Encoded()
		if err != nil || string(data) != "hello world" {
			t.Errorf("/Length %s: got %q, %v", length, data, err)
		}
		if stm.Dict().Get("Length") != Integer(11) {
			t.Errorf("/Length %s: length not corrected", length)
		}
		if !warned {
			t.Errorf("/Length %s: no warning", length)
		}
	}

	_, err := testScanner("<< >>\nstream\nhello").ReadObject()
	if err == nil {
		t.Error("unterminated stream accepted")
	}
}

func TestSkipWhiteSpace(t *testing.T) {
	cases := []string{
		"",
		" ",
		"               ",
		"                ",
		"                 ",
		"\r",
		"\n",
		"% comment\r\n",
		" % comment\r\n % comment\r\n % comment\r\n   ",
		strings.Repeat(" ", scannerBufSize+3),
	}

	for _, test := range cases {
		for _, suffix := range []string{">>", "x y\n"} {
			body := test + suffix
			s := testScanner(body)

			err := s.SkipWhiteSpace()
			if err != nil {
				t.Errorf("%q: unexpected error: %s", body, err)
			}
			if pos := s.currentPos(); pos != int64(len(test)) {
				t.Errorf("%q: wrong position %d", body, pos)
			}
		}
	}
}

func TestReadHeaderVersion(t *testing.T) {
	body := "junk%PDF-1.7\n1 0 obj\n"
	s := testScanner(body)
	pos, version, err := s.readHeaderVersion()
	if err != nil {
		t.Errorf("unexpected error %q", err)
	}
	if version != V1_7 {
		t.Errorf("wrong version: expected %s, got %s", V1_7, version)
	}
	if pos != 4 {
		t.Errorf("wrong header position %d", pos)
	}

	for _, in := range []string{"", "%PEF-1.7\n", "%PDF-1"} {
		_, _, err = testScanner(in).readHeaderVersion()
		if !errors.Is(err, ErrNoPDF) {
			t.Errorf("%q: wrong error %v", in, err)
		}
	}

	for _, in := range []string{"%PDF-0.1\n", "%PDF-1.9\n", "%PDF-1.50\n"} {
		_, _, err = testScanner(in).readHeaderVersion()
		if !errors.Is(err, ErrVersion) {
			t.Errorf("%q: wrong error %v", in, err)
		}
	}
}

func TestFuzzerFinds(t *testing.T) {
	cases := []string{
		"0 ",
		"<0d>",
		"-0.",
		"//",
		"/#23",
		"<<>>0",
		"<</<</ 0 0>>",
		"[0 0 R]",
		"<</Length 1 0 R>>stream\nxendstream",
	}
	for _, in := range cases {
		roundTrip(t, in)
	}
}

func FuzzReadObject(f *testing.F) {
	f.Add("<< /A [1 2.5 (x) <ab> /N true null 3 0 R] >>")
	f.Add("<< /Length 3 >>\nstream\nabc\nendstream")
	f.Fuzz(roundTrip)
}

// roundTrip checks that an object which can be read is written
// in a form which reads back to the same object.
func roundTrip(t *testing.T, in string) {
	obj1, err := testScanner(in).ReadObject()
	if err != nil {
		return
	}
	out1 := Format(obj1)

	obj2, err := testScanner(out1).ReadObject()
	if err != nil {
		t.Fatalf("%q -> %q: %v", in, out1, err)
	}
	out2 := Format(obj2)
	if out1 != out2 {
		t.Errorf("%q -> %q -> %q", in, out1, out2)
	}
}
