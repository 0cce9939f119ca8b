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

// Encode applies a predictor to data.  For the PNG predictors, predictor 15
// ("optimum") uses the Up filter for every row, and 10 to 14 use the
// corresponding filter type.
func Encode(data []byte, p *Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch {
	case p.Predictor == 1:
		return data, nil
	case p.Predictor == 2:
		return encodeTIFF(data, p), nil
	default:
		return encodePNG(data, p), nil
	}
}

func encodePNG(data []byte, p *Params) []byte {
	rowLen := p.bytesPerRow()
	bpp := p.bytesPerPixel()
	tag := byte(p.Predictor - 10)
	if p.Predictor == 15 {
		tag = 2
	}

	res := make([]byte, 0, len(data)+len(data)/rowLen+1)
	prev := make([]byte, rowLen)
	for start := 0; start < len(data); start += rowLen {
		row := make([]byte, rowLen)
		n := copy(row, data[start:min(start+rowLen, len(data))])

		out := make([]byte, rowLen)
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			switch tag {
			case 0:
				out[i] = row[i]
			case 1:
				out[i] = row[i] - left
			case 2:
				out[i] = row[i] - prev[i]
			case 3:
				out[i] = row[i] - byte((int(left)+int(prev[i]))/2)
			case 4:
				out[i] = row[i] - paeth(left, prev[i], upLeft)
			}
		}
		res = append(res, tag)
		res = append(res, out[:n]...)
		prev = row
	}
	return res
}

func encodeTIFF(data []byte, p *Params) []byte {
	rowLen := p.bytesPerRow()
	res := make([]byte, len(data))
	copy(res, data)

	for start := 0; start < len(res); start += rowLen {
		row := res[start:min(start+rowLen, len(res))]
		switch p.BitsPerComponent {
		case 8:
			for i := len(row) - 1; i >= p.Colors; i-- {
				row[i] -= row[i-p.Colors]
			}
		case 16:
			step := 2 * p.Colors
			for i := len(row) - 2; i >= step; i -= 2 {
				v := uint16(row[i])<<8 | uint16(row[i+1])
				l := uint16(row[i-step])<<8 | uint16(row[i-step+1])
				v -= l
				row[i] = byte(v >> 8)
				row[i+1] = byte(v)
			}
		default:
			transformBits(row, p, false)
		}
	}
	return res
}
