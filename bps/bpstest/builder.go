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

// Package bpstest builds BPS patches by hand for tests.
package bpstest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/backpork/backpork/bps"
)

// Builder assembles a patch from an explicit action sequence.
type Builder struct {
	sourceSize uint64
	targetSize uint64
	metadata   []byte
	actions    bytes.Buffer
}

// New starts a patch declaring the given source and target sizes.
func New(sourceSize, targetSize uint64) *Builder {
	return &Builder{sourceSize: sourceSize, targetSize: targetSize}
}

func (b *Builder) Metadata(meta []byte) *Builder {
	b.metadata = meta
	return b
}

func (b *Builder) word(kind bps.Kind, length uint64) {
	b.actions.Write(bps.EncodeVLI((length-1)<<2 | uint64(kind)))
}

func encodeOffset(off int64) []byte {
	if off < 0 {
		return bps.EncodeVLI(uint64(-off)<<1 | 1)
	}
	return bps.EncodeVLI(uint64(off) << 1)
}

func (b *Builder) SourceRead(length uint64) *Builder {
	b.word(bps.SourceRead, length)
	return b
}

func (b *Builder) TargetRead(data []byte) *Builder {
	b.word(bps.TargetRead, uint64(len(data)))
	b.actions.Write(data)
	return b
}

func (b *Builder) SourceCopy(length uint64, offset int64) *Builder {
	b.word(bps.SourceCopy, length)
	b.actions.Write(encodeOffset(offset))
	return b
}

func (b *Builder) TargetCopy(length uint64, offset int64) *Builder {
	b.word(bps.TargetCopy, length)
	b.actions.Write(encodeOffset(offset))
	return b
}

// Raw appends bytes to the action stream as is.
func (b *Builder) Raw(data []byte) *Builder {
	b.actions.Write(data)
	return b
}

// Bytes returns the encoded patch with footer checksums computed over
// source and target.
func (b *Builder) Bytes(source, target []byte) []byte {
	var out bytes.Buffer
	out.WriteString(bps.Magic)
	out.Write(bps.EncodeVLI(b.sourceSize))
	out.Write(bps.EncodeVLI(b.targetSize))
	out.Write(bps.EncodeVLI(uint64(len(b.metadata))))
	out.Write(b.metadata)
	out.Write(b.actions.Bytes())

	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(source))
	out.Write(crc[:])
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(target))
	out.Write(crc[:])
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(out.Bytes()))
	out.Write(crc[:])
	return out.Bytes()
}
