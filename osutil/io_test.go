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

package osutil_test

import (
	"os"
	"path/filepath"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/backpork/backpork/osutil"
	"github.com/backpork/backpork/testutil"
)

type AtomicWriteTestSuite struct{}

var _ = Suite(&AtomicWriteTestSuite{})

func (ts *AtomicWriteTestSuite) TestAtomicWriteFile(c *C) {
	tmpdir := c.MkDir()

	p := filepath.Join(tmpdir, "foo")
	err := osutil.AtomicWriteFile(p, []byte("canary"), 0644)
	c.Assert(err, IsNil)

	c.Check(p, testutil.FileEquals, "canary")

	// no files left behind!
	d, err := os.ReadDir(tmpdir)
	c.Assert(err, IsNil)
	c.Assert(len(d), Equals, 1)
}

func (ts *AtomicWriteTestSuite) TestAtomicWriteFilePermissions(c *C) {
	tmpdir := c.MkDir()

	p := filepath.Join(tmpdir, "foo")
	err := osutil.AtomicWriteFile(p, []byte(""), 0600)
	c.Assert(err, IsNil)

	st, err := os.Stat(p)
	c.Assert(err, IsNil)
	c.Assert(st.Mode()&os.ModePerm, Equals, os.FileMode(0600))
}

func (ts *AtomicWriteTestSuite) TestAtomicWriteFileOverwrite(c *C) {
	tmpdir := c.MkDir()
	p := filepath.Join(tmpdir, "foo")
	c.Assert(os.WriteFile(p, []byte("hello"), 0644), IsNil)
	c.Assert(osutil.AtomicWriteFile(p, []byte("hi"), 0600), IsNil)

	c.Assert(p, testutil.FileEquals, "hi")
}

func (ts *AtomicWriteTestSuite) TestAtomicWriteFileNoDir(c *C) {
	p := filepath.Join(c.MkDir(), "no-such-dir", "foo")
	err := osutil.AtomicWriteFile(p, []byte("hi"), 0600)
	c.Check(err, ErrorMatches, `open .*no-such-dir/foo\.[a-zA-Z0-9]+~: no such file or directory`)
}

func (ts *AtomicWriteTestSuite) TestAtomicFileCancel(c *C) {
	d := c.MkDir()
	p := filepath.Join(d, "foo")

	aw, err := osutil.NewAtomicFile(p, 0644)
	c.Assert(err, IsNil)
	_, err = aw.Write([]byte("partial"))
	c.Assert(err, IsNil)
	c.Assert(aw.Cancel(), IsNil)

	c.Check(osutil.FileExists(p), Equals, false)
	entries, err := os.ReadDir(d)
	c.Assert(err, IsNil)
	c.Check(entries, HasLen, 0)
}

func (ts *AtomicWriteTestSuite) TestAtomicFileCancelAfterFinalize(c *C) {
	p := filepath.Join(c.MkDir(), "foo")

	aw, err := osutil.NewAtomicFile(p, 0644)
	c.Assert(err, IsNil)
	c.Assert(aw.Finalize(), IsNil)
	c.Check(aw.Cancel(), Equals, osutil.ErrCannotCancel)
}

func (ts *AtomicWriteTestSuite) TestAtomicWriteStream(c *C) {
	p := filepath.Join(c.MkDir(), "foo")
	err := osutil.AtomicWrite(p, strings.NewReader("streamed"), 0644)
	c.Assert(err, IsNil)
	c.Check(p, testutil.FileEquals, "streamed")
}
