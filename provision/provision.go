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

// Package provision creates directories next to a located game source.
package provision

import (
	"errors"
	"fmt"
	"path"

	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/remote"
)

// FakelibDir is the directory the loader checks for replacement libraries.
const FakelibDir = "fakelib"

var (
	ErrForbiddenPath    = errors.New("refusing to use mounted path")
	ErrCreateFailed     = errors.New("cannot create directory")
	ErrPermissionDenied = errors.New("permission denied creating directory")
	ErrSourceMissing    = errors.New("game source directory not found")
)

// Error carries the path an operation failed on. Err is one of the package
// sentinels.
type Error struct {
	Err    error
	Path   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Path)
	}
	return fmt.Sprintf("%v %s: %s", e.Err, e.Path, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func checked(target string) (string, error) {
	if locate.IsForbidden(target) {
		return "", &Error{Err: ErrForbiddenPath, Path: target}
	}
	return target, nil
}

// EnsureSubdir makes sure sourcePath/name exists and returns its path. It
// never returns, or creates anything in, the mounted application tree.
func EnsureSubdir(sess remote.Session, sourcePath, name string) (string, error) {
	target := path.Join(sourcePath, name)
	if locate.IsForbidden(sourcePath) || locate.IsForbidden(target) {
		return "", &Error{Err: ErrForbiddenPath, Path: target}
	}

	if err := sess.ChangeDir(sourcePath); err != nil {
		return "", &Error{Err: ErrSourceMissing, Path: sourcePath, Detail: err.Error()}
	}

	mkErr := sess.MakeDir(target)
	if mkErr == nil {
		logger.Debugf("created %s", target)
		return checked(target)
	}
	if !remote.IsAlreadyExists(mkErr) {
		return "", &Error{Err: ErrPermissionDenied, Path: target, Detail: mkErr.Error()}
	}

	verifyErr := sess.ChangeDir(target)
	if verifyErr == nil {
		if err := sess.ChangeDir(sourcePath); err != nil {
			logger.Debugf("cannot return to %s: %v", sourcePath, err)
		}
		logger.Debugf("%s already exists", target)
		return checked(target)
	}

	logger.Debugf("%s reported as existing but cannot be entered: %v", target, verifyErr)
	if retryErr := sess.MakeDir(target); retryErr != nil {
		return "", &Error{
			Err:    ErrCreateFailed,
			Path:   target,
			Detail: fmt.Sprintf("original error: %v, retry error: %v", mkErr, retryErr),
		}
	}
	logger.Debugf("created %s on retry", target)
	return checked(target)
}
