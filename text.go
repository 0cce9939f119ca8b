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
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// AsTextString interprets x as a PDF "text string" and returns
// the corresponding utf-8 encoded string.
func (x String) AsTextString() string {
	switch {
	case bytes.HasPrefix(x, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(x)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(x, []byte{0xEF, 0xBB, 0xBF}) && utf8.Valid(x[3:]):
		// PDF 2.0 allows UTF-8 text strings
		return string(x[3:])
	}
	return pdfDocDecode(x)
}

// TextString creates a String object using the "text string" encoding,
// i.e. using either PDFDocEncoding or UTF-16BE with a byte order mark.
func TextString(s string) String {
	if buf, ok := pdfDocEncode(s); ok {
		return buf
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		// only happens for invalid utf-8, which we pass through unchanged
		return String(s)
	}
	return String(out)
}

func pdfDocDecode(s String) string {
	r := make([]rune, len(s))
	for i, c := range s {
		if x, ok := pdfDocSpecial[c]; ok {
			r[i] = x
		} else {
			r[i] = rune(c)
		}
	}
	return string(r)
}

func pdfDocEncode(s string) (String, bool) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if c, ok := pdfDocReverse[r]; ok {
			buf = append(buf, c)
			continue
		}
		if r >= 256 || !pdfDocLatin1(byte(r)) {
			return nil, false
		}
		buf = append(buf, byte(r))
	}
	return String(buf), true
}

// pdfDocLatin1 reports whether PDFDocEncoding maps c to the
// ISO 8859-1 character with the same code.
func pdfDocLatin1(c byte) bool {
	switch {
	case c == 0x09 || c == 0x0A || c == 0x0D:
		return true
	case c >= 0x20 && c <= 0x7E:
		return true
	case c >= 0xA1 && c != 0xAD:
		return true
	}
	return false
}

var pdfDocSpecial = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

var pdfDocReverse = func() map[rune]byte {
	res := make(map[rune]byte, len(pdfDocSpecial))
	for c, r := range pdfDocSpecial {
		res[r] = c
	}
	return res
}()
