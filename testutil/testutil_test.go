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

package testutil_test

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"gopkg.in/check.v1"

	. "github.com/backpork/backpork/testutil"
)

func Test(t *testing.T) {
	check.TestingT(t)
}

type CheckersS struct{}

var _ = check.Suite(&CheckersS{})

func testCheck(c *check.C, checker check.Checker, result bool, error string, params ...interface{}) {
	info := checker.Info()
	if len(params) != len(info.Params) {
		c.Fatalf("unexpected param count in test; expected %d got %d", len(info.Params), len(params))
	}
	names := append([]string{}, info.Params...)
	resultActual, errorActual := checker.Check(params, names)
	if resultActual != result || errorActual != error {
		c.Fatalf("%s.Check(%#v) returned (%#v, %#v) rather than (%#v, %#v)",
			info.Name, params, resultActual, errorActual, result, error)
	}
}

func (s *CheckersS) TestContainsString(c *check.C) {
	c.Assert("foo", Contains, "f")
	c.Assert("foo", Contains, "fo")
	c.Assert("foo", check.Not(Contains), "foobar")
}

func (s *CheckersS) TestContainsSlice(c *check.C) {
	c.Assert([]int{1, 2, 3}, Contains, 1)
	c.Assert([]int{1, 2, 3}, check.Not(Contains), 4)
	c.Assert([]string{"foo", "bar"}, Contains, "bar")
}

func (s *CheckersS) TestContainsVerifiesTypes(c *check.C) {
	testCheck(c, Contains,
		false, "haystack contains items of type int but needle is a string",
		[...]int{1, 2, 3}, "foo")
	testCheck(c, Contains,
		false, "haystack is of unsupported type int",
		42, 1)
}

type myStringer struct{ str string }

func (m myStringer) String() string { return m.str }

func (s *CheckersS) TestFileEquals(c *check.C) {
	d := c.MkDir()
	content := "not-so-random-string"
	filename := filepath.Join(d, "canary")
	c.Assert(os.WriteFile(filename, []byte(content), 0644), check.IsNil)

	testCheck(c, FileEquals, true, "", filename, content)
	testCheck(c, FileEquals, true, "", filename, []byte(content))
	testCheck(c, FileEquals, true, "", filename, myStringer{content})

	testCheck(c, FileEquals, false, "", filename, "not-it")
	testCheck(c, FileContains, true, "", filename, "random")
	testCheck(c, FileContains, false, "", filename, "potato")

	testCheck(c, FileEquals, false, `Cannot read file "`+filename+`-nope": open `+filename+`-nope: no such file or directory`, filename+"-nope", "")
	testCheck(c, FileEquals, false, "Filename must be a string", 42, "")
	testCheck(c, FileEquals, false, "Cannot compare file contents with something of type int", filename, 1)
}

func (s *CheckersS) TestFilePresence(c *check.C) {
	d := c.MkDir()
	filename := filepath.Join(d, "foo")
	testCheck(c, FilePresent, false, fmt.Sprintf("file %q is absent but should exist", filename), filename)
	testCheck(c, FileAbsent, true, "", filename)
	c.Assert(os.WriteFile(filename, nil, 0644), check.IsNil)
	testCheck(c, FilePresent, true, "", filename)
	testCheck(c, FileAbsent, false, fmt.Sprintf("file %q is present but should not exist", filename), filename)
}

var errBoom = errors.New("boom")

func (s *CheckersS) TestErrorIs(c *check.C) {
	testCheck(c, ErrorIs, true, "", nil, nil)
	testCheck(c, ErrorIs, true, "", fmt.Errorf("wrapped: %w", errBoom), errBoom)
	testCheck(c, ErrorIs, false, "", errors.New("other"), errBoom)
	testCheck(c, ErrorIs, false, "first argument must be an error", "foo", errBoom)
	testCheck(c, ErrorIs, false, "second argument must be an error", errBoom, "foo")
}

type mockCommandSuite struct{}

var _ = check.Suite(&mockCommandSuite{})

func (s *mockCommandSuite) TestMockCommand(c *check.C) {
	mock := MockCommand(c, "cmd", "")
	defer mock.Restore()
	err := exec.Command("cmd", "first-run", "--arg1", "arg2", "a space").Run()
	c.Assert(err, check.IsNil)
	err = exec.Command("cmd", "second-run", "--arg1", "arg2", "a %s").Run()
	c.Assert(err, check.IsNil)
	c.Assert(mock.Calls(), check.DeepEquals, [][]string{
		{"cmd", "first-run", "--arg1", "arg2", "a space"},
		{"cmd", "second-run", "--arg1", "arg2", "a %s"},
	})

	mock.ForgetCalls()
	c.Check(mock.Calls(), check.IsNil)
}

func (s *mockCommandSuite) TestMockCommandAbsPath(c *check.C) {
	binDirRoot := c.MkDir()
	exeFile := filepath.Join(binDirRoot, "some/path/cmd")
	mock := MockCommand(c, exeFile, "exit 4")
	defer mock.Restore()

	c.Check(mock.Exe(), Equals, exeFile)
	c.Check(mock.BinDir(), Equals, filepath.Dir(exeFile))
	err := exec.Command(exeFile, "x").Run()
	c.Assert(err, check.NotNil)
	c.Check(mock.Calls(), check.DeepEquals, [][]string{{"cmd", "x"}})
}

var Equals = check.Equals
