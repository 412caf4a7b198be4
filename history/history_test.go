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

package history_test

import (
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/backpork/backpork/history"
	"github.com/backpork/backpork/pipeline"
)

func Test(t *testing.T) { TestingT(t) }

type historySuite struct {
	store   *history.Store
	path    string
	now     time.Time
	restore func()
}

var _ = Suite(&historySuite{})

func (s *historySuite) SetUpTest(c *C) {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.restore = history.MockTimeNow(func() time.Time { return s.now })
	s.path = filepath.Join(c.MkDir(), "history.db")
	var err error
	s.store, err = history.Open(s.path)
	c.Assert(err, IsNil)
}

func (s *historySuite) TearDownTest(c *C) {
	c.Check(s.store.Close(), IsNil)
	s.restore()
}

func (s *historySuite) record(c *C, id string, success bool) *pipeline.Result {
	res := &pipeline.Result{
		ID:      id,
		Success: success,
		Results: []*pipeline.Job{{
			Library: "libSceAgc.sprx",
			Success: success,
			Message: "processed and uploaded libSceAgc.sprx",
			Steps:   []pipeline.Step{{Name: "Fetching library", Success: true}},
		}},
	}
	req := &pipeline.Request{Firmware: "9.60", GamePath: "/user/app/PPSA01234"}
	c.Assert(s.store.Record(req, res), IsNil)
	s.now = s.now.Add(time.Minute)
	return res
}

func (s *historySuite) TestRecordAndGet(c *C) {
	res := s.record(c, "0b1d3c7e-0000-4000-8000-000000000001", true)

	e, err := s.store.Get(res.ID)
	c.Assert(err, IsNil)
	c.Check(e.ID, Equals, res.ID)
	c.Check(e.Firmware, Equals, "9.60")
	c.Check(e.GamePath, Equals, "/user/app/PPSA01234")
	c.Check(e.Time.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), Equals, true)
	c.Check(e.Result, DeepEquals, res)
}

func (s *historySuite) TestGetMissing(c *C) {
	s.record(c, "a", true)
	_, err := s.store.Get("b")
	c.Check(err, Equals, history.ErrNotFound)
}

func (s *historySuite) TestListNewestFirst(c *C) {
	s.record(c, "c", true)
	s.record(c, "a", false)
	s.record(c, "b", true)

	entries, err := s.store.List(0)
	c.Assert(err, IsNil)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	c.Check(ids, DeepEquals, []string{"b", "a", "c"})

	entries, err = s.store.List(2)
	c.Assert(err, IsNil)
	c.Check(entries, HasLen, 2)
	c.Check(entries[0].ID, Equals, "b")
}

func (s *historySuite) TestRecordRequiresID(c *C) {
	err := s.store.Record(&pipeline.Request{}, &pipeline.Result{})
	c.Check(err, ErrorMatches, "cannot record batch without id")
}

func (s *historySuite) TestPersists(c *C) {
	s.record(c, "x", true)
	c.Assert(s.store.Close(), IsNil)

	var err error
	s.store, err = history.Open(s.path)
	c.Assert(err, IsNil)
	e, err := s.store.Get("x")
	c.Assert(err, IsNil)
	c.Check(e.Result.Success, Equals, true)
}

func (s *historySuite) TestSatisfiesRecorder(c *C) {
	var _ pipeline.Recorder = s.store
}
