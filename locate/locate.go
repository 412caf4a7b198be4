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

// Package locate finds where an installed title really lives on the
// console, never accepting the mounted copy under /user/app.
package locate

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/remote"
)

// MountRoot is where the loader mounts installed titles. Paths below it are
// decoys and never a source.
const MountRoot = "/user/app"

var (
	ErrNotFound    = errors.New("cannot find game source directory")
	ErrNoTitleID   = errors.New("title id is required to find the game source directory")
	ErrForbidden   = errors.New("path points into the mounted application tree")
	titlePrefixes  = []string{"PPSA", "CUSA"}
	structureNames = []string{"app0", "sce_sys"}
)

// IsForbidden reports whether p lies in the mounted decoy tree or names an
// app0 payload.
func IsForbidden(p string) bool {
	return strings.Contains(p+"/", MountRoot+"/") || strings.Contains(p, "app0")
}

// HasTitlePrefix reports whether name looks like a title id.
func HasTitlePrefix(name string) bool {
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// TitleIDFromPath returns the title id from a mounted path such as
// /user/app/PPSA01234 or /user/app/PPSA01234/app0.
func TitleIDFromPath(gamePath string) (string, error) {
	idx := strings.Index(gamePath, MountRoot+"/")
	if idx < 0 {
		return "", fmt.Errorf("cannot extract title id from %q: not under %s", gamePath, MountRoot)
	}
	rest := gamePath[idx+len(MountRoot)+1:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", fmt.Errorf("cannot extract title id from %q: empty title id", gamePath)
	}
	return rest, nil
}

// DefaultSearchPaths returns the ordered list of directories games get
// installed to.
func DefaultSearchPaths() []string {
	paths := []string{
		"/data/games",
		"/data/homebrew",
		"/data/etaHEN/games",
		"/data/etaHEN",
		"/data",
		"/mnt/ext0/games",
		"/mnt/ext0/homebrew",
		"/mnt/ext0/etaHEN/games",
		"/mnt/ext0/etaHEN",
		"/mnt/ext0",
	}
	for i := 0; i < 8; i++ {
		usb := fmt.Sprintf("/mnt/usb%d", i)
		paths = append(paths,
			usb+"/games",
			usb+"/homebrew",
			usb+"/etaHEN/games",
			usb+"/etaHEN",
			usb,
		)
	}
	return paths
}

// GameRecord describes a located title.
type GameRecord struct {
	TitleID string
	// SourcePath is the verified on-disk location.
	SourcePath string
	// MountedPath is where the loader exposes the title; informational.
	MountedPath      string
	HasGameStructure bool
}

// NotFoundError is returned when no search path holds the title.
type NotFoundError struct {
	TitleID  string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v for %s, searched in: %s", ErrNotFound, e.TitleID, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Locator searches a remote session for game source directories.
type Locator struct {
	sess        remote.Session
	searchPaths []string
}

// New returns a Locator over sess. A nil searchPaths means
// DefaultSearchPaths.
func New(sess remote.Session, searchPaths []string) *Locator {
	if len(searchPaths) == 0 {
		searchPaths = DefaultSearchPaths()
	}
	return &Locator{sess: sess, searchPaths: searchPaths}
}

// SearchPaths returns the bases searched, in order.
func (l *Locator) SearchPaths() []string {
	return append([]string(nil), l.searchPaths...)
}

// Locate returns the source directory of titleID. Candidates under the
// mounted tree are rejected even when they look like a game.
func (l *Locator) Locate(titleID string) (*GameRecord, error) {
	if titleID == "" {
		return nil, ErrNoTitleID
	}
	for _, base := range l.searchPaths {
		if IsForbidden(base) {
			logger.Debugf("skipping forbidden search path %s", base)
			continue
		}
		rec, err := l.searchBase(base, titleID)
		if err != nil {
			logger.Debugf("search path %s not accessible: %v", base, err)
			continue
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, &NotFoundError{TitleID: titleID, Searched: l.SearchPaths()}
}

func (l *Locator) searchBase(base, titleID string) (*GameRecord, error) {
	if err := l.sess.ChangeDir(base); err != nil {
		return nil, err
	}
	entries, err := l.sess.List(base)
	if err != nil {
		return nil, err
	}

	var exact, partial []string
	for _, e := range entries {
		if !e.IsDir() || e.Name == "" || e.Name == "." || e.Name == ".." {
			continue
		}
		switch {
		case e.Name == titleID:
			exact = append(exact, e.Name)
		case strings.Contains(e.Name, titleID) || strings.Contains(titleID, e.Name):
			partial = append(partial, e.Name)
		}
	}

	for _, name := range append(exact, partial...) {
		candidate := path.Join(base, name)
		ok, err := l.hasGameStructure(candidate, name)
		if err != nil {
			logger.Debugf("cannot inspect %s: %v", candidate, err)
			continue
		}
		if !ok {
			logger.Debugf("%s does not look like a game directory", candidate)
			continue
		}
		if IsForbidden(candidate) {
			logger.Noticef("rejecting mounted path %s as game source", candidate)
			continue
		}
		logger.Debugf("found game source for %s at %s", titleID, candidate)
		return &GameRecord{
			TitleID:          titleID,
			SourcePath:       candidate,
			MountedPath:      path.Join(MountRoot, titleID),
			HasGameStructure: true,
		}, nil
	}
	return nil, nil
}

func (l *Locator) hasGameStructure(candidate, name string) (bool, error) {
	children, err := l.sess.List(candidate)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		lower := strings.ToLower(child.Name)
		for _, marker := range structureNames {
			if strings.Contains(lower, marker) {
				return true, nil
			}
		}
	}
	if _, err := l.sess.Retrieve(path.Join(candidate, "sce_sys", "param.json")); err == nil {
		return true, nil
	}
	return HasTitlePrefix(name), nil
}
