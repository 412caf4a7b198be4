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

// Package bps decodes and applies patches in the BPS delta format.
//
// Only application is supported. Patches are treated as untrusted input:
// every read is bounds checked and malformed streams end in a *PatchError
// rather than a panic.
package bps

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Magic is the four byte marker every BPS patch starts with.
const Magic = "BPS1"

const (
	footerSize = 12
	minSize    = len(Magic) + footerSize
)

var (
	ErrBadHeader        = errors.New("invalid BPS patch (missing header or too small)")
	ErrInvalidTarget    = errors.New("invalid BPS target size")
	ErrInvalidAction    = errors.New("invalid BPS action")
	ErrSizeMismatch     = errors.New("BPS output size mismatch")
	ErrChecksumMismatch = errors.New("BPS checksum mismatch")
)

// PatchError is returned for any failure to parse or apply a patch. Err is
// one of the package sentinels.
type PatchError struct {
	Err    error
	Detail string
}

func (e *PatchError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

func patchErrorf(sentinel error, format string, v ...interface{}) *PatchError {
	return &PatchError{Err: sentinel, Detail: fmt.Sprintf(format, v...)}
}

// HasMagic reports whether data starts like a BPS patch.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}

// Container is a parsed BPS patch. The action stream is decoded lazily
// through Actions.
type Container struct {
	SourceSize uint64
	TargetSize uint64
	Metadata   []byte

	SourceCRC32 uint32
	TargetCRC32 uint32
	PatchCRC32  uint32

	patch        []byte
	actionsStart int
}

// Parse reads the header, metadata and footer of patch.
func Parse(patch []byte) (*Container, error) {
	if len(patch) < minSize || !HasMagic(patch) {
		return nil, &PatchError{Err: ErrBadHeader}
	}
	pos := len(Magic)
	c := &Container{patch: patch}
	c.SourceSize, pos = decodeVLI(patch, pos)
	c.TargetSize, pos = decodeVLI(patch, pos)
	var metaSize uint64
	metaSize, pos = decodeVLI(patch, pos)

	footer := len(patch) - footerSize
	if metaSize > uint64(len(patch)-pos) {
		// an oversized metadata block leaves no room for actions
		c.Metadata = patch[pos:]
		c.actionsStart = len(patch)
	} else {
		end := pos + int(metaSize)
		c.Metadata = patch[pos:end]
		c.actionsStart = end
	}

	c.SourceCRC32 = binary.LittleEndian.Uint32(patch[footer:])
	c.TargetCRC32 = binary.LittleEndian.Uint32(patch[footer+4:])
	c.PatchCRC32 = binary.LittleEndian.Uint32(patch[footer+8:])
	return c, nil
}

// Actions returns a reader over the action stream, validating lengths
// against the declared target size.
func (c *Container) Actions() *ActionReader {
	return c.actions(c.TargetSize)
}

func (c *Container) actions(capacity uint64) *ActionReader {
	return &ActionReader{
		patch:    c.patch,
		pos:      c.actionsStart,
		footer:   len(c.patch) - footerSize,
		capacity: capacity,
	}
}

// VerifyChecksums checks the footer CRC32s against the given source and
// target buffers and the patch itself.
func (c *Container) VerifyChecksums(source, target []byte) error {
	if got := crc32.ChecksumIEEE(source); got != c.SourceCRC32 {
		return patchErrorf(ErrChecksumMismatch, "source crc32 %08x, expected %08x", got, c.SourceCRC32)
	}
	if got := crc32.ChecksumIEEE(target); got != c.TargetCRC32 {
		return patchErrorf(ErrChecksumMismatch, "target crc32 %08x, expected %08x", got, c.TargetCRC32)
	}
	if got := crc32.ChecksumIEEE(c.patch[:len(c.patch)-4]); got != c.PatchCRC32 {
		return patchErrorf(ErrChecksumMismatch, "patch crc32 %08x, expected %08x", got, c.PatchCRC32)
	}
	return nil
}
