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

// Package predict implements the TIFF and PNG predictors which can be
// combined with the Flate and LZW filters.
package predict

import (
	"errors"
	"fmt"
)

const maxColumns = 1 << 20

// Params describes the layout of the predicted data.
type Params struct {
	// Predictor is the prediction algorithm:
	//   1: no prediction
	//   2: TIFF horizontal differencing
	//   10-15: PNG predictors, with the filter type stored in each row
	Predictor int

	// Colors is the number of color components per pixel.
	Colors int

	// BitsPerComponent is the number of bits per color component.
	// Valid values are 1, 2, 4, 8, and 16.
	BitsPerComponent int

	// Columns is the number of pixels per row.
	Columns int
}

// Validate checks whether the parameters are valid.
func (p *Params) Validate() error {
	switch p.Predictor {
	case 1:
		return nil
	case 2, 10, 11, 12, 13, 14, 15:
		// pass
	default:
		return fmt.Errorf("unsupported predictor %d", p.Predictor)
	}

	if p.Colors < 1 || p.Colors > 256 {
		return errors.New("invalid Colors value")
	}
	switch p.BitsPerComponent {
	case 1, 2, 4, 8, 16:
		// pass
	default:
		return fmt.Errorf("invalid BitsPerComponent %d", p.BitsPerComponent)
	}
	maxCols := min(maxColumns, (1<<31-1)/p.bitsPerPixel())
	if p.Columns < 1 || p.Columns > maxCols {
		return errors.New("invalid Columns value")
	}
	return nil
}

func (p *Params) bitsPerPixel() int {
	return p.Colors * p.BitsPerComponent
}

func (p *Params) bytesPerRow() int {
	return (p.bitsPerPixel()*p.Columns + 7) / 8
}

// bytesPerPixel is the distance to the "left" byte used by the PNG
// predictors.
func (p *Params) bytesPerPixel() int {
	return (p.bitsPerPixel() + 7) / 8
}
