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

// SecurityHandler encrypts and decrypts the strings and streams of an
// encrypted PDF file.  The object and generation number of the enclosing
// indirect object are passed in ref, since the standard PDF encryption
// schemes derive a per-object key from them.
//
// The encryption dictionary itself, cross-reference streams, and objects
// stored inside object streams are never passed to the handler.
type SecurityHandler interface {
	DecryptBytes(ref Reference, data []byte) ([]byte, error)
	EncryptBytes(ref Reference, data []byte) ([]byte, error)
}

// SetSecurity installs a security handler for writing.  Strings and streams
// are encrypted using sec when the document is next saved, and the given
// encryption dictionary is stored in the trailer.  If sec is nil,
// the document is written without encryption.
//
// Changing the encryption requires a complete rewrite of the file.
func (d *Document) SetSecurity(sec SecurityHandler, encrypt *Dict) {
	var num uint32
	if sec == nil {
		d.trailer.Set("Encrypt", nil)
	} else {
		c := d.MakeIndirect(encrypt)
		d.trailer.Set("Encrypt", c)
		num = c.Reference().Number()
	}

	d.access.Lock()
	d.writeSec = sec
	d.access.Unlock()

	d.mu.Lock()
	d.writeEncrypt = num
	d.needFull = true
	d.mu.Unlock()
}
