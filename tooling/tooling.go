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

// Package tooling wraps the external signing and decryption tools and
// knows the container formats they work on.
package tooling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/osutil"
)

var (
	elfMagic   = []byte("\x7fELF")
	selfMagics = [][]byte{
		{0x4f, 0x15, 0x3d, 0x1d},
		{0x1d, 0x3d, 0x15, 0x4f},
	}
)

var (
	ErrMissingOutput = errors.New("tool exited successfully but did not produce an output file")
	ErrNotConfigured = errors.New("tool is not configured")
	ErrNotSELF       = errors.New("file is not a SELF file")
)

// IsELF reports whether data starts with the ELF magic.
func IsELF(data []byte) bool {
	return bytes.HasPrefix(data, elfMagic)
}

// IsSELF reports whether data starts with a SELF magic.
func IsSELF(data []byte) bool {
	for _, m := range selfMagics {
		if bytes.HasPrefix(data, m) {
			return true
		}
	}
	return false
}

// ToolError is returned when an external tool fails.
type ToolError struct {
	Tool     string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// toolName names the script when the command runs one through an
// interpreter.
func toolName(command []string) string {
	if len(command) > 1 && !strings.HasPrefix(command[1], "-") {
		return filepath.Base(command[1])
	}
	return filepath.Base(command[0])
}

func run(ctx context.Context, timeout time.Duration, command []string, args ...string) error {
	if len(command) == 0 {
		return ErrNotConfigured
	}
	if !osutil.ExecutableExists(command[0]) {
		return &ToolError{Tool: toolName(command), Err: fmt.Errorf("cannot find %q", command[0])}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	argv := append(append([]string(nil), command[1:]...), args...)
	logger.Debugf("running %s %s", command[0], strings.Join(argv, " "))
	output, err := exec.CommandContext(ctx, command[0], argv...).CombinedOutput()
	if err != nil {
		terr := &ToolError{Tool: toolName(command), ExitCode: osutil.ExitCode(err)}
		if ctx.Err() == context.DeadlineExceeded {
			terr.Err = fmt.Errorf("timed out after %v", timeout)
		} else {
			terr.Err = osutil.OutputErr(output, err)
		}
		return terr
	}
	return nil
}

// removeStale drops output left by an earlier run so that only what the
// tool writes now is picked up.
func removeStale(out string) error {
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Signer fake-signs ELF files into loadable system libraries.
type Signer struct {
	// Command is the signing tool invocation, e.g. {"python3", "make_fself.py"}.
	Command []string
	Timeout time.Duration
}

// Sign writes the signed form of in to out.
func (s *Signer) Sign(ctx context.Context, in, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	if err := removeStale(out); err != nil {
		return err
	}
	if err := run(ctx, s.Timeout, s.Command, in, out, "--ptype", "system_dynlib"); err != nil {
		return err
	}
	if !osutil.FileExists(out) {
		return ErrMissingOutput
	}
	return nil
}
