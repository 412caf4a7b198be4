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

// maxShift bounds decoding so malformed input always terminates.
const maxShift = uint64(1) << 56

// decodeVLI reads a BPS variable length integer from buf at pos and
// returns it with the position following it. Decoding stops at the end of
// buf; the value read so far is returned.
//
// Every continuation byte adds the current shift on top of the payload,
// so each encoding is unique. This is not a base-128 varint.
func decodeVLI(buf []byte, pos int) (uint64, int) {
	var result uint64
	shift := uint64(1)
	for pos < len(buf) {
		b := buf[pos]
		pos++
		result += uint64(b&0x7f) * shift
		if b&0x80 != 0 {
			break
		}
		shift <<= 7
		result += shift
		if shift > maxShift {
			break
		}
	}
	return result, pos
}

// EncodeVLI returns the BPS encoding of x.
func EncodeVLI(x uint64) []byte {
	var out []byte
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x == 0 {
			out = append(out, 0x80|b)
			return out
		}
		out = append(out, b)
		x--
	}
}

// DecodeVLI decodes a single integer from the start of buf and returns it
// with the number of bytes consumed.
func DecodeVLI(buf []byte) (uint64, int) {
	return decodeVLI(buf, 0)
}
