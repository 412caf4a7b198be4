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

package tooling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/osutil"
)

const (
	minEmbeddedELF = 1024
	// the ELF magic must start this far from the end at least
	elfTrailer = 100
)

var ErrNoEmbeddedELF = errors.New("could not decrypt SELF file, no decryption tool is configured and no embedded ELF was found")

// Decrypter converts SELF containers into plain ELF files.
type Decrypter struct {
	// Command is the decryption tool invocation; it is run as
	// <command...> <in> <out>. When empty the embedded ELF fallback is used.
	Command []string
	Timeout time.Duration
}

// ELFPath returns the output path used when decrypting p.
func ELFPath(p string) string {
	return strings.TrimSuffix(p, ".sprx") + ".elf"
}

// Decrypt converts the file at p and returns the path of the ELF output.
func (d *Decrypter) Decrypt(ctx context.Context, p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	if !IsSELF(data) && (IsELF(data) || !strings.HasSuffix(p, ".sprx")) {
		return "", ErrNotSELF
	}
	out := ELFPath(p)

	if len(d.Command) > 0 {
		if err := removeStale(out); err != nil {
			return "", err
		}
		if err := run(ctx, d.Timeout, d.Command, p, out); err != nil {
			return "", err
		}
		if !osutil.FileExists(out) {
			return "", ErrMissingOutput
		}
		return out, nil
	}

	logger.Debugf("no decryption tool configured, looking for an embedded ELF in %s", p)
	elf, err := ExtractEmbeddedELF(data)
	if err != nil {
		return "", err
	}
	if err := osutil.AtomicWriteFile(out, elf, 0644); err != nil {
		return "", err
	}
	return out, nil
}

// ExtractEmbeddedELF returns the ELF image carried unencrypted inside a
// SELF container, from its magic to the end of data.
func ExtractEmbeddedELF(data []byte) ([]byte, error) {
	pos := bytes.Index(data, elfMagic)
	if pos < 0 || pos >= len(data)-elfTrailer {
		return nil, ErrNoEmbeddedELF
	}
	elf := data[pos:]

	var headerSize int
	switch class := elf[4]; class {
	case 1:
		headerSize = 52
	case 2:
		headerSize = 64
	default:
		return nil, fmt.Errorf("invalid ELF class %02x, the extracted file may be incomplete or corrupted", class)
	}
	if len(elf) < headerSize {
		return nil, fmt.Errorf("extracted ELF file is incomplete (%d bytes, need at least %d)", len(elf), headerSize)
	}
	if len(elf) < minEmbeddedELF {
		return nil, fmt.Errorf("extracted ELF file is very small (%d bytes), likely incomplete", len(elf))
	}
	return elf, nil
}
