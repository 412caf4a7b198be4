// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package history keeps an audit trail of processed batches.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/backpork/backpork/pipeline"
)

var ErrNotFound = errors.New("batch not found")

var batchesBucket = []byte("batches")

// Entry is a recorded batch.
type Entry struct {
	ID       string           `json:"id"`
	Time     time.Time        `json:"time"`
	Firmware string           `json:"firmware"`
	GamePath string           `json:"game-path"`
	Result   *pipeline.Result `json:"result"`
}

// Store persists entries in a bolt database.
type Store struct {
	db *bolt.DB
}

var timeNow = time.Now

// Open opens, creating if needed, the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open history database: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(batchesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot initialize history database: %v", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores res. It implements pipeline.Recorder.
func (s *Store) Record(req *pipeline.Request, res *pipeline.Result) error {
	if res.ID == "" {
		return errors.New("cannot record batch without id")
	}
	e := &Entry{
		ID:       res.ID,
		Time:     timeNow().UTC(),
		Firmware: req.Firmware,
		GamePath: req.GamePath,
		Result:   res,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		// keys sort by time, then id
		return tx.Bucket(batchesBucket).Put(key(e), data)
	})
}

func key(e *Entry) []byte {
	return []byte(e.Time.Format("20060102T150405.000000000Z") + "/" + e.ID)
}

// Get returns the entry for the batch id.
func (s *Store) Get(id string) (*Entry, error) {
	var found *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(batchesBucket).ForEach(func(k, v []byte) error {
			if found != nil || !hasID(k, id) {
				return nil
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("cannot decode history entry %s: %v", k, err)
			}
			found = &e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func hasID(k []byte, id string) bool {
	return len(k) > len(id) && string(k[len(k)-len(id)-1:]) == "/"+id
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(limit int) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(batchesBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("cannot decode history entry %s: %v", k, err)
			}
			entries = append(entries, &e)
		}
		return nil
	})
	return entries, err
}
