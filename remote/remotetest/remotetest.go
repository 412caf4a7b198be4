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

// Package remotetest provides an in-memory remote filesystem for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/backpork/backpork/remote"
)

// FS is an in-memory tree reachable through remote.Session values. It
// implements remote.Dialer.
type FS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte

	// DialErr is returned by Dial when set.
	DialErr error
	// ChangeDirErr, ListErr, RetrieveErr and StoreErr force failures for
	// specific absolute paths.
	ChangeDirErr map[string]error
	ListErr      map[string]error
	RetrieveErr  map[string]error
	StoreErr     map[string]error
	// MakeDirErr holds errors returned by successive MakeDir calls on a
	// path, before the default behaviour resumes.
	MakeDirErr map[string][]error

	dials  int
	closed int
	calls  []string
}

// New returns an FS holding only the root directory.
func New() *FS {
	return &FS{
		dirs:         map[string]bool{"/": true},
		files:        map[string][]byte{},
		ChangeDirErr: map[string]error{},
		ListErr:      map[string]error{},
		RetrieveErr:  map[string]error{},
		StoreErr:     map[string]error{},
		MakeDirErr:   map[string][]error{},
	}
}

// AddDir creates dir and its parents.
func (fs *FS) AddDir(dir string) *FS {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.addDir(path.Clean("/" + dir))
	return fs
}

func (fs *FS) addDir(dir string) {
	for d := dir; ; d = path.Dir(d) {
		fs.dirs[d] = true
		if d == "/" {
			return
		}
	}
}

// AddFile creates a file and its parent directories.
func (fs *FS) AddFile(p string, data []byte) *FS {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p = path.Clean("/" + p)
	fs.addDir(path.Dir(p))
	fs.files[p] = append([]byte(nil), data...)
	return fs
}

// File returns the content stored at p.
func (fs *FS) File(p string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[path.Clean(p)]
	return data, ok
}

// IsDir reports whether p is a directory.
func (fs *FS) IsDir(p string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dirs[path.Clean(p)]
}

// Dials returns how many sessions were opened.
func (fs *FS) Dials() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dials
}

// Closed returns how many sessions were closed.
func (fs *FS) Closed() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.closed
}

// Calls returns the operations performed so far, as "OP /abs/path".
func (fs *FS) Calls() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.calls...)
}

func (fs *FS) Dial(ctx context.Context, host string, port int) (remote.Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.DialErr != nil {
		return nil, fs.DialErr
	}
	fs.dials++
	return &session{fs: fs, cwd: "/"}, nil
}

func notFound(p string) error {
	return &remote.ReplyError{Code: 550, Msg: fmt.Sprintf("%s: No such file or directory", p)}
}

type session struct {
	fs  *FS
	cwd string
}

func (s *session) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p)
}

func (s *session) record(op, p string) {
	s.fs.calls = append(s.fs.calls, op+" "+p)
}

func (s *session) ChangeDir(dir string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	p := s.abs(dir)
	s.record("CWD", p)
	if err := s.fs.ChangeDirErr[p]; err != nil {
		return err
	}
	if !s.fs.dirs[p] {
		return notFound(p)
	}
	s.cwd = p
	return nil
}

func (s *session) List(dir string) ([]remote.Entry, error) {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	p := s.abs(dir)
	s.record("LIST", p)
	if err := s.fs.ListErr[p]; err != nil {
		return nil, err
	}
	if !s.fs.dirs[p] {
		return nil, notFound(p)
	}

	var lines []string
	for d := range s.fs.dirs {
		if d != "/" && path.Dir(d) == p {
			lines = append(lines, listLine("drwxr-xr-x", 512, path.Base(d)))
		}
	}
	for f, data := range s.fs.files {
		if path.Dir(f) == p {
			lines = append(lines, listLine("-rw-r--r--", len(data), path.Base(f)))
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		return lineName(lines[i]) < lineName(lines[j])
	})

	entries := make([]remote.Entry, 0, len(lines))
	for _, l := range lines {
		if e, ok := remote.ParseListLine(l); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func listLine(perms string, size int, name string) string {
	return fmt.Sprintf("%s 1 root wheel %d Jan  1 00:00 %s", perms, size, name)
}

func lineName(l string) string {
	f := strings.Fields(l)
	return f[len(f)-1]
}

func (s *session) Retrieve(p string) ([]byte, error) {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	p = s.abs(p)
	s.record("RETR", p)
	if err := s.fs.RetrieveErr[p]; err != nil {
		return nil, err
	}
	data, ok := s.fs.files[p]
	if !ok {
		return nil, notFound(p)
	}
	return append([]byte(nil), data...), nil
}

func (s *session) Store(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	p = s.abs(p)
	s.record("STOR", p)
	if err := s.fs.StoreErr[p]; err != nil {
		return err
	}
	if !s.fs.dirs[path.Dir(p)] {
		return notFound(path.Dir(p))
	}
	s.fs.files[p] = data
	return nil
}

func (s *session) MakeDir(dir string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	p := s.abs(dir)
	s.record("MKD", p)
	if errs := s.fs.MakeDirErr[p]; len(errs) > 0 {
		s.fs.MakeDirErr[p] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	if _, isFile := s.fs.files[p]; s.fs.dirs[p] || isFile {
		return &remote.ReplyError{Code: 550, Msg: fmt.Sprintf("%s: File exists", p)}
	}
	if !s.fs.dirs[path.Dir(p)] {
		return notFound(path.Dir(p))
	}
	s.fs.dirs[p] = true
	return nil
}

func (s *session) Close() error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	s.fs.closed++
	return nil
}
