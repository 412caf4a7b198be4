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

package main_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/backpork/backpork/bps/bpstest"
	backpork "github.com/backpork/backpork/cmd/backpork"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/remote/remotetest"
	"github.com/backpork/backpork/testutil"
)

func Test(t *testing.T) { TestingT(t) }

const (
	gameSource = "/data/games/PPSA01234"
	gamePath   = "/user/app/PPSA01234"
)

type backporkSuite struct {
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	dir    string
	config string
	fs     *remotetest.FS
	srv    *httptest.Server
	signer *testutil.MockCmd

	source []byte
	target []byte
	patch  []byte

	restore []func()
}

var _ = Suite(&backporkSuite{})

func (s *backporkSuite) SetUpTest(c *C) {
	s.restore = nil
	s.stdout = &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}
	oldStdout, oldStderr := backpork.Stdout, backpork.Stderr
	backpork.Stdout, backpork.Stderr = s.stdout, s.stderr
	s.restore = append(s.restore, func() { backpork.Stdout, backpork.Stderr = oldStdout, oldStderr })
	_, restore := logger.MockLogger()
	s.restore = append(s.restore, restore)

	s.source = make([]byte, 64)
	copy(s.source, "\x7fELF")
	s.target = append(append(append([]byte(nil), s.source[:4]...), "patched!"...), s.source[12:]...)
	s.patch = bpstest.New(64, 64).SourceRead(4).TargetRead([]byte("patched!")).SourceRead(52).Bytes(s.source, s.target)

	s.fs = remotetest.New()
	s.fs.AddFile("/system/common/lib/libSceNpAuth.sprx", s.source)
	s.fs.AddDir(gameSource + "/sce_sys")
	s.fs.AddDir(gamePath + "/app0")
	s.restore = append(s.restore, backpork.MockDialer(s.fs))

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/9.60/libSceNpAuth.bps" {
			http.NotFound(w, r)
			return
		}
		w.Write(s.patch)
	}))
	s.restore = append(s.restore, s.srv.Close)

	s.signer = testutil.MockCommand(c, "make_fself", `cp "$1" "$2"`)
	s.restore = append(s.restore, s.signer.Restore)

	s.dir = c.MkDir()
	s.config = filepath.Join(s.dir, "config.yaml")
	content := fmt.Sprintf(`
console:
  host: 192.168.1.20
patches:
  base-url: %s/
  cache-dir: %s
work-dir: %s
state-dir: %s
tools:
  sign: [%s]
locate:
  search-paths: [/data/games]
`, s.srv.URL, filepath.Join(s.dir, "patches"), filepath.Join(s.dir, "work"), filepath.Join(s.dir, "state"), s.signer.Exe())
	c.Assert(os.WriteFile(s.config, []byte(content), 0644), IsNil)
}

func (s *backporkSuite) TearDownTest(c *C) {
	for i := len(s.restore) - 1; i >= 0; i-- {
		s.restore[i]()
	}
}

func (s *backporkSuite) run(c *C, args ...string) error {
	_, err := backpork.Parser().ParseArgs(append([]string{"--config", s.config}, args...))
	return err
}

func (s *backporkSuite) TestApply(c *C) {
	src := filepath.Join(s.dir, "lib.elf")
	patch := filepath.Join(s.dir, "lib.bps")
	out := filepath.Join(s.dir, "out.elf")
	c.Assert(os.WriteFile(src, s.source, 0644), IsNil)
	c.Assert(os.WriteFile(patch, s.patch, 0644), IsNil)

	err := s.run(c, "apply", "-o", out, src, patch)
	c.Assert(err, IsNil)
	c.Check(out, testutil.FileEquals, s.target)
	c.Check(s.stdout.String(), Equals, fmt.Sprintf("wrote 64B to %s\n", out))

	err = s.run(c, "apply", src, patch)
	c.Assert(err, IsNil)
	c.Check(src+".patched", testutil.FileEquals, s.target)
}

func (s *backporkSuite) TestApplyVerify(c *C) {
	wrong := append([]byte(nil), s.target...)
	wrong[30] ^= 1
	src := filepath.Join(s.dir, "lib.elf")
	patch := filepath.Join(s.dir, "lib.bps")
	c.Assert(os.WriteFile(src, s.source, 0644), IsNil)
	c.Assert(os.WriteFile(patch, bpstest.New(64, 64).SourceRead(4).TargetRead([]byte("patched!")).SourceRead(52).Bytes(s.source, wrong), 0644), IsNil)

	err := s.run(c, "apply", "--verify", src, patch)
	c.Check(err, ErrorMatches, "BPS checksum mismatch.*")

	err = s.run(c, "apply", src, patch)
	c.Check(err, IsNil)
	c.Check(s.stderr.String(), Matches, "WARNING: BPS checksum mismatch.*\n")
}

func (s *backporkSuite) TestApplyBadPatch(c *C) {
	src := filepath.Join(s.dir, "lib.elf")
	patch := filepath.Join(s.dir, "lib.bps")
	c.Assert(os.WriteFile(src, s.source, 0644), IsNil)
	c.Assert(os.WriteFile(patch, []byte("IPS!"), 0644), IsNil)
	err := s.run(c, "apply", src, patch)
	c.Check(err, ErrorMatches, `invalid BPS patch \(missing header or too small\).*`)
}

func (s *backporkSuite) TestGames(c *C) {
	s.fs.AddFile(gamePath+"/sce_sys/param.json", []byte(`{"title": "Astro"}`))
	err := s.run(c, "games")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, ""+
		"Title ID   Title  Path\n"+
		"PPSA01234  Astro  /user/app/PPSA01234\n")
}

func (s *backporkSuite) TestTestConnection(c *C) {
	err := s.run(c, "test-connection")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, "FTP connection successful to 192.168.1.20:2121\n")
}

func (s *backporkSuite) TestHostOverride(c *C) {
	err := s.run(c, "test-connection", "--host", "10.0.0.5")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, "FTP connection successful to 10.0.0.5:2121\n")
}

func (s *backporkSuite) TestLocate(c *C) {
	err := s.run(c, "locate", "PPSA01234")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, gameSource+"\n")

	err = s.run(c, "locate", "PPSA99999")
	c.Check(err, ErrorMatches, "cannot find game source directory for PPSA99999, searched in: /data/games")
}

func (s *backporkSuite) TestFakelib(c *C) {
	err := s.run(c, "fakelib", gamePath)
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, "fakelib folder ready at "+gameSource+"/fakelib\n")
	c.Check(s.fs.IsDir(gameSource+"/fakelib"), Equals, true)
}

func (s *backporkSuite) TestProcessAndHistory(c *C) {
	err := s.run(c, "process", "--firmware", "9.60", gamePath, "libSceNpAuth.sprx")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Equals, ""+
		"libSceNpAuth.sprx: ok\n"+
		"  ✓ Fetching library\n"+
		"  ✓ Converting SELF to ELF\n"+
		"  ✓ Downloading patch file\n"+
		"  ✓ Applying BPS patch\n"+
		"  ✓ Fake signing library\n"+
		"  ✓ Creating fakelib folder\n"+
		"  ✓ Uploading library\n")
	uploaded, ok := s.fs.File(gameSource + "/fakelib/libSceNpAuth.sprx")
	c.Assert(ok, Equals, true)
	c.Check(uploaded, DeepEquals, s.target)
	c.Check(s.signer.Calls(), HasLen, 1)
	c.Check(filepath.Join(s.dir, "patches", "9.60", "libSceNpAuth.bps"), testutil.FileEquals, s.patch)

	s.stdout.Reset()
	err = s.run(c, "history")
	c.Assert(err, IsNil)
	c.Check(s.stdout.String(), Matches, "(?s)ID +Time +Firmware +Game +Status\n.* 9.60 +/user/app/PPSA01234 +Done\n")
}

func (s *backporkSuite) TestProcessFailure(c *C) {
	err := s.run(c, "process", "--firmware", "9.00", gamePath, "libSceNpAuth.sprx")
	c.Check(err, ErrorMatches, "batch .* did not complete successfully")
	c.Check(s.stdout.String(), testutil.Contains, "  ✗ Downloading patch file: patch libSceNpAuth.bps does not exist for firmware 9.00\n")
}

func (s *backporkSuite) TestProcessNeedsFirmware(c *C) {
	err := s.run(c, "process", gamePath)
	c.Check(err, ErrorMatches, ".*the required flag `--firmware' was not specified")
}

func (s *backporkSuite) TestHistoryEmpty(c *C) {
	err := s.run(c, "history")
	c.Assert(err, IsNil)
	c.Check(s.stderr.String(), Equals, "No batches recorded.\n")

	err = s.run(c, "history", "nope")
	c.Check(err, ErrorMatches, `cannot find batch "nope": batch not found`)
}

func (s *backporkSuite) TestExtraArgs(c *C) {
	err := s.run(c, "games", "extra")
	c.Check(err, Equals, backpork.ErrExtraArgs)
}
