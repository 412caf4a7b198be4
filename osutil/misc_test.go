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
	"os/exec"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/backpork/backpork/osutil"
)

type envSuite struct{}

var _ = Suite(&envSuite{})

func (s *envSuite) TestGetenvBoolTrue(c *C) {
	key := "__XYZZY__"
	os.Unsetenv(key)

	for _, s := range []string{
		"1", "t", "TRUE",
	} {
		os.Setenv(key, s)
		c.Assert(os.Getenv(key), Equals, s)
		c.Check(osutil.GetenvBool(key), Equals, true, Commentf(s))
		c.Check(osutil.GetenvBool(key, false), Equals, true, Commentf(s))
		c.Check(osutil.GetenvBool(key, true), Equals, true, Commentf(s))
	}
}

func (s *envSuite) TestGetenvBoolFalse(c *C) {
	key := "__XYZZY__"
	os.Unsetenv(key)
	c.Assert(osutil.GetenvBool(key), Equals, false)

	for _, s := range []string{
		"", "0", "f", "FALSE", "potato",
	} {
		os.Setenv(key, s)
		c.Assert(os.Getenv(key), Equals, s)
		c.Check(osutil.GetenvBool(key), Equals, false, Commentf(s))
		c.Check(osutil.GetenvBool(key, false), Equals, false, Commentf(s))
	}
}

func (s *envSuite) TestGetenvBoolFalseDefaultTrue(c *C) {
	key := "__XYZZY__"
	os.Unsetenv(key)
	c.Assert(osutil.GetenvBool(key), Equals, false)

	for _, s := range []string{
		"0", "f", "FALSE",
	} {
		os.Setenv(key, s)
		c.Assert(os.Getenv(key), Equals, s)
		c.Check(osutil.GetenvBool(key, true), Equals, false, Commentf(s))
	}

	for _, s := range []string{
		"", "potato", // etc
	} {
		os.Setenv(key, s)
		c.Assert(os.Getenv(key), Equals, s)
		c.Check(osutil.GetenvBool(key, true), Equals, true, Commentf(s))
	}
}

type statSuite struct{}

var _ = Suite(&statSuite{})

func (s *statSuite) TestFileExists(c *C) {
	d := c.MkDir()
	p := filepath.Join(d, "foo")
	c.Check(osutil.FileExists(p), Equals, false)
	c.Assert(os.WriteFile(p, nil, 0644), IsNil)
	c.Check(osutil.FileExists(p), Equals, true)
}

func (s *statSuite) TestExecutableExists(c *C) {
	c.Check(osutil.ExecutableExists("sh"), Equals, true)
	c.Check(osutil.ExecutableExists("xyzzy-no-such-tool"), Equals, false)
}

type execSuite struct{}

var _ = Suite(&execSuite{})

func (s *execSuite) TestOutputErrSingleLine(c *C) {
	err := osutil.OutputErr([]byte("boom\n"), os.ErrInvalid)
	c.Check(err, ErrorMatches, "boom")
}

func (s *execSuite) TestOutputErrMultiLine(c *C) {
	err := osutil.OutputErr([]byte("boom\nbang"), os.ErrInvalid)
	c.Check(err, ErrorMatches, "\n-----\nboom\nbang\n-----")
}

func (s *execSuite) TestOutputErrNoOutput(c *C) {
	err := osutil.OutputErr(nil, os.ErrInvalid)
	c.Check(err, Equals, os.ErrInvalid)
}

func (s *execSuite) TestExitCode(c *C) {
	err := exec.Command("sh", "-c", "exit 3").Run()
	c.Check(osutil.ExitCode(err), Equals, 3)
	c.Check(osutil.ExitCode(os.ErrInvalid), Equals, -1)
}

type flockSuite struct{}

var _ = Suite(&flockSuite{})

func (s *flockSuite) TestLockUnlock(c *C) {
	p := filepath.Join(c.MkDir(), "lock")
	l, err := osutil.NewFileLock(p)
	c.Assert(err, IsNil)
	defer l.Close()
	c.Check(l.Path(), Equals, p)

	c.Assert(l.Lock(), IsNil)

	other, err := osutil.NewFileLock(p)
	c.Assert(err, IsNil)
	defer other.Close()
	c.Check(other.TryLock(), Equals, osutil.ErrAlreadyLocked)

	c.Assert(l.Unlock(), IsNil)
	c.Check(other.TryLock(), IsNil)
}

type digestSuite struct{}

var _ = Suite(&digestSuite{})

func (s *digestSuite) TestDigest(c *C) {
	digest := osutil.Digest([]byte("hello"))
	c.Check(digest, HasLen, 96)
	c.Check(digest, Equals, osutil.Digest([]byte("hello")))
	c.Check(digest, Not(Equals), osutil.Digest([]byte("hello\n")))
}
