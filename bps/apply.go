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
	"io"

	"github.com/backpork/backpork/logger"
)

// Apply produces the target buffer described by patch from source.
//
// The source size recorded in the patch is informational only: the actual
// length of source is used. The footer checksums are not checked here, see
// Container.VerifyChecksums.
func Apply(source, patch []byte) ([]byte, error) {
	c, err := Parse(patch)
	if err != nil {
		return nil, err
	}
	return c.Apply(source)
}

// Apply runs the action stream of c over source.
func (c *Container) Apply(source []byte) ([]byte, error) {
	srcLen := uint64(len(source))
	if c.SourceSize != srcLen {
		logger.Debugf("BPS source size mismatch: patch expects %d bytes, have %d", c.SourceSize, srcLen)
	}

	target := c.TargetSize
	if target == 0 {
		return nil, patchErrorf(ErrInvalidTarget, "target size is 0")
	}
	if target > srcLen*10 {
		return nil, patchErrorf(ErrInvalidTarget, "target size %d is unreasonably large for source size %d", target, srcLen)
	}
	if target*10 < srcLen {
		logger.Debugf("BPS target size %d too small for source size %d, using source size", target, srcLen)
		if srcLen > target {
			target = srcLen
		}
	}

	out := make([]byte, target)
	var written uint64
	var srcCursor int64

	r := c.actions(target)
	for written < target {
		a, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch a.Kind {
		case SourceRead:
			for i := uint64(0); i < a.Length && written < target; i++ {
				if written < srcLen {
					out[written] = source[written]
				}
				written++
			}
		case TargetRead:
			for _, b := range a.Data {
				if written >= target {
					break
				}
				out[written] = b
				written++
			}
		case SourceCopy:
			srcCursor = addOffset(srcCursor, a.Offset)
			for i := uint64(0); i < a.Length && written < target; i++ {
				if srcCursor >= 0 && srcCursor < int64(srcLen) {
					out[written] = source[srcCursor]
				}
				written++
				srcCursor = addOffset(srcCursor, 1)
			}
		case TargetCopy:
			copyCursor := addOffset(int64(written), a.Offset)
			for i := uint64(0); i < a.Length && written < target; i++ {
				if copyCursor >= 0 && copyCursor < int64(written) {
					out[written] = out[copyCursor]
				}
				written++
				copyCursor = addOffset(copyCursor, 1)
			}
		}
	}

	if written != target {
		return nil, patchErrorf(ErrSizeMismatch, "expected %d bytes, wrote %d", target, written)
	}
	return out, nil
}
