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
	"compress/zlib"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"seehuhn.de/go/cos/internal/filter/predict"
)

// A Filter converts stream data between its encoded and its decoded form.
// The parameters are taken from the /DecodeParms entry of the stream
// dictionary and may be nil.
type Filter interface {
	Decode(data []byte, parms *Dict) ([]byte, error)
	Encode(data []byte, parms *Dict) ([]byte, error)
}

var (
	filterMu sync.RWMutex
	filters  = map[Name]Filter{
		"FlateDecode":    flateFilter{},
		"Fl":             flateFilter{},
		"ASCIIHexDecode": asciiHexFilter{},
		"AHx":            asciiHexFilter{},
	}
)

// RegisterFilter makes a filter available for use in streams.
// Registering a filter for an existing name replaces the previous filter.
func RegisterFilter(name Name, f Filter) {
	filterMu.Lock()
	defer filterMu.Unlock()
	filters[name] = f
}

// UnsupportedFilterError is returned when stream data uses a filter which
// has not been registered.
type UnsupportedFilterError struct {
	Name Name
}

func (err *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("unsupported filter %q", string(err.Name))
}

func lookupFilter(name Name) (Filter, error) {
	filterMu.RLock()
	defer filterMu.RUnlock()
	f, ok := filters[name]
	if !ok {
		return nil, &UnsupportedFilterError{Name: name}
	}
	return f, nil
}

type flateFilter struct{}

func (flateFilter) Decode(data []byte, parms *Dict) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	res, err := io.ReadAll(zr)
	if err == io.ErrUnexpectedEOF && len(res) > 0 {
		// Truncated streams are common, we use what we got.
		err = nil
	}
	if err != nil {
		return nil, err
	}
	err = zr.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	p, err := predictParams(parms)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return res, nil
	}
	return predict.Decode(res, p)
}

func (flateFilter) Encode(data []byte, parms *Dict) ([]byte, error) {
	p, err := predictParams(parms)
	if err != nil {
		return nil, err
	}
	if p != nil {
		data, err = predict.Encode(data, p)
		if err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	_, err = zw.Write(data)
	if err != nil {
		return nil, err
	}
	err = zw.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// predictParams extracts the predictor parameters from a /DecodeParms
// dictionary.  If no predictor is used, nil is returned.
func predictParams(parms *Dict) (*predict.Params, error) {
	if parms == nil {
		return nil, nil
	}
	p := &predict.Params{
		Predictor:        1,
		Colors:           1,
		BitsPerComponent: 8,
		Columns:          1,
	}
	fields := []struct {
		key Name
		val *int
	}{
		{"Predictor", &p.Predictor},
		{"Colors", &p.Colors},
		{"BitsPerComponent", &p.BitsPerComponent},
		{"Columns", &p.Columns},
	}
	for _, f := range fields {
		switch x := parms.Get(f.key).(type) {
		case Integer:
			*f.val = int(x)
		case Null:
			// use the default
		default:
			return nil, fmt.Errorf("invalid /%s in DecodeParms", f.key)
		}
	}
	if p.Predictor == 1 {
		return nil, nil
	}
	return p, nil
}

type asciiHexFilter struct{}

func (asciiHexFilter) Decode(data []byte, _ *Dict) ([]byte, error) {
	res := make([]byte, 0, len(data)/2)
	var high byte
	haveHigh := false
	for _, c := range data {
		var b byte
		switch {
		case c >= '0' && c <= '9':
			b = c - '0'
		case c >= 'A' && c <= 'F':
			b = c - 'A' + 10
		case c >= 'a' && c <= 'f':
			b = c - 'a' + 10
		case isSpace[c]:
			continue
		case c == '>':
			if haveHigh {
				res = append(res, high<<4)
			}
			return res, nil
		default:
			return nil, fmt.Errorf("invalid hex character %q", c)
		}
		if haveHigh {
			res = append(res, high<<4|b)
		} else {
			high = b
		}
		haveHigh = !haveHigh
	}
	return nil, errMissingEOD
}

func (asciiHexFilter) Encode(data []byte, _ *Dict) ([]byte, error) {
	const lineWidth = 64

	enc := hex.EncodeToString(data)
	buf := &bytes.Buffer{}
	for len(enc) > lineWidth {
		buf.WriteString(enc[:lineWidth])
		buf.WriteByte('\n')
		enc = enc[lineWidth:]
	}
	buf.WriteString(enc)
	buf.WriteByte('>')
	return buf.Bytes(), nil
}

var errMissingEOD = errors.New("missing end-of-data marker")
