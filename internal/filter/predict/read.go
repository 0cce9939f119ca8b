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

package predict

import "errors"

// Decode undoes the effect of a predictor.
func Decode(data []byte, p *Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch {
	case p.Predictor == 1:
		return data, nil
	case p.Predictor == 2:
		return decodeTIFF(data, p)
	default:
		return decodePNG(data, p)
	}
}

func decodePNG(data []byte, p *Params) ([]byte, error) {
	rowLen := p.bytesPerRow()
	bpp := p.bytesPerPixel()

	res := make([]byte, 0, len(data)/(rowLen+1)*rowLen)
	prev := make([]byte, rowLen)
	for len(data) > 0 {
		tag := data[0]
		n := min(len(data)-1, rowLen)
		row := make([]byte, rowLen)
		copy(row, data[1:1+n])
		data = data[1+n:]

		switch tag {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := range row {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := range row {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := range row {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, errors.New("invalid PNG predictor tag")
		}

		res = append(res, row[:n]...)
		prev = row
	}
	return res, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func decodeTIFF(data []byte, p *Params) ([]byte, error) {
	rowLen := p.bytesPerRow()
	res := make([]byte, len(data))
	copy(res, data)

	for start := 0; start < len(res); start += rowLen {
		row := res[start:min(start+rowLen, len(res))]
		switch p.BitsPerComponent {
		case 8:
			for i := p.Colors; i < len(row); i++ {
				row[i] += row[i-p.Colors]
			}
		case 16:
			step := 2 * p.Colors
			for i := step; i+1 < len(row); i += 2 {
				v := uint16(row[i])<<8 | uint16(row[i+1])
				l := uint16(row[i-step])<<8 | uint16(row[i-step+1])
				v += l
				row[i] = byte(v >> 8)
				row[i+1] = byte(v)
			}
		default:
			transformBits(row, p, true)
		}
	}
	return res, nil
}

// transformBits applies or removes TIFF differencing for sub-byte
// component sizes.
func transformBits(row []byte, p *Params, decode bool) {
	bpc := p.BitsPerComponent
	mask := uint(1)<<bpc - 1
	n := len(row) * 8 / bpc
	get := func(i int) uint {
		bit := i * bpc
		return uint(row[bit/8]) >> (8 - bpc - bit%8) & mask
	}
	set := func(i int, v uint) {
		bit := i * bpc
		shift := 8 - bpc - bit%8
		row[bit/8] = row[bit/8]&^byte(mask<<shift) | byte((v&mask)<<shift)
	}
	if decode {
		for i := p.Colors; i < n; i++ {
			set(i, get(i)+get(i-p.Colors))
		}
	} else {
		for i := n - 1; i >= p.Colors; i-- {
			set(i, get(i)-get(i-p.Colors))
		}
	}
}
