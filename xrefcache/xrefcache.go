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

// Package xrefcache stores the cross-reference information of PDF files in
// a bbolt database, so that large files can be re-opened without parsing
// their cross-reference sections again.
//
// Entries are keyed by the file fingerprint computed by the cos package,
// and are encoded using MessagePack.
package xrefcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"seehuhn.de/go/cos"
)

var bucketName = []byte("xref")

// Cache is an implementation of [cos.IndexCache] which is backed by a
// bbolt database.
type Cache struct {
	db    *bbolt.DB
	owned bool
}

var _ cos.IndexCache = (*Cache)(nil)

// Open opens or creates the database file at path.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	c, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// New uses an existing database.  The database is not closed
// when the cache is closed.
func New(db *bbolt.DB) (*Cache, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the database, if it was opened by [Open].
func (c *Cache) Close() error {
	if !c.owned {
		return nil
	}
	return c.db.Close()
}

// LoadIndex implements the [cos.IndexCache] interface.
func (c *Cache) LoadIndex(fp uint64) (*cos.IndexSnapshot, error) {
	var snap *cos.IndexSnapshot
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		raw := b.Get(key(fp))
		if raw == nil {
			return nil
		}

		// raw is only valid during the transaction
		dec := msgpack.GetDecoder()
		defer msgpack.PutDecoder(dec)
		dec.Reset(bytes.NewReader(raw))
		res := &cos.IndexSnapshot{}
		err := dec.Decode(res)
		if err != nil {
			return fmt.Errorf("xrefcache: entry %016x: %w", fp, err)
		}
		snap = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// StoreIndex implements the [cos.IndexCache] interface.
func (c *Cache) StoreIndex(fp uint64, snap *cos.IndexSnapshot) error {
	buf := &bytes.Buffer{}
	enc := msgpack.GetEncoder()
	enc.Reset(buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(snap)
	msgpack.PutEncoder(enc)
	if err != nil {
		return fmt.Errorf("xrefcache: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(key(fp), buf.Bytes())
	})
}

// Forget removes the entry for the given fingerprint.
func (c *Cache) Forget(fp uint64) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete(key(fp))
	})
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func key(fp uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], fp)
	return buf[:]
}
