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

package bps

import (
	"fmt"
	"io"
	"math"
)

// Kind is the type of a patch action.
type Kind uint8

const (
	SourceRead Kind = iota
	TargetRead
	SourceCopy
	TargetCopy
)

func (k Kind) String() string {
	switch k {
	case SourceRead:
		return "SourceRead"
	case TargetRead:
		return "TargetRead"
	case SourceCopy:
		return "SourceCopy"
	case TargetCopy:
		return "TargetCopy"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Action is one decoded instruction of the action stream.
type Action struct {
	Kind   Kind
	Length uint64
	// Offset is the signed relative offset of copy actions.
	Offset int64
	// Data holds the literal bytes of a TargetRead. It may be shorter than
	// Length when the stream runs into the footer.
	Data []byte
}

// ActionReader decodes actions one at a time.
type ActionReader struct {
	patch    []byte
	pos      int
	footer   int
	capacity uint64
}

// Next returns the next action, or io.EOF once the footer is reached.
func (r *ActionReader) Next() (Action, error) {
	if r.pos >= r.footer {
		return Action{}, io.EOF
	}
	var word uint64
	word, r.pos = decodeVLI(r.patch, r.pos)
	a := Action{
		Kind:   Kind(word & 3),
		Length: (word >> 2) + 1,
	}
	if a.Length == 0 || a.Length > r.capacity {
		return Action{}, patchErrorf(ErrInvalidAction, "length %d (target size %d)", a.Length, r.capacity)
	}

	switch a.Kind {
	case TargetRead:
		if r.pos >= r.footer {
			break
		}
		n := uint64(r.footer - r.pos)
		if n > a.Length {
			n = a.Length
		}
		a.Data = r.patch[r.pos : r.pos+int(n)]
		r.pos += int(n)
	case SourceCopy, TargetCopy:
		if r.pos >= r.footer {
			return Action{}, io.EOF
		}
		var v uint64
		v, r.pos = decodeVLI(r.patch, r.pos)
		a.Offset = signedOffset(v)
	}
	return a, nil
}

func signedOffset(v uint64) int64 {
	mag := v >> 1
	if mag > math.MaxInt64 {
		mag = math.MaxInt64
	}
	if v&1 != 0 {
		return -int64(mag)
	}
	return int64(mag)
}

// addOffset moves a cursor by a relative offset, saturating instead of
// wrapping around.
func addOffset(cur, off int64) int64 {
	switch {
	case off > 0 && cur > math.MaxInt64-off:
		return math.MaxInt64
	case off < 0 && cur < math.MinInt64-off:
		return math.MinInt64
	}
	return cur + off
}
