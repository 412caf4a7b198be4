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

package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/backpork/backpork/bps"
	"github.com/backpork/backpork/osutil"
	"github.com/backpork/backpork/strutil"
)

type cmdApply struct {
	Output string `short:"o" long:"output"`
	Verify bool   `long:"verify"`

	Positional struct {
		Source string `positional-arg-name:"<source>"`
		Patch  string `positional-arg-name:"<patch>"`
	} `positional-args:"yes" required:"yes"`
}

var shortApplyHelp = "Apply a BPS patch to a local file"
var longApplyHelp = `
The apply command applies the BPS patch to the source file and writes the
result next to it, or to the file given with --output.
`

func init() {
	addCommand("apply", shortApplyHelp, longApplyHelp, func() flags.Commander {
		return &cmdApply{}
	}, map[string]string{
		"output": "Where to write the patched file",
		"verify": "Fail when the patch checksums do not match",
	})
}

func (x *cmdApply) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	source, err := os.ReadFile(x.Positional.Source)
	if err != nil {
		return err
	}
	patch, err := os.ReadFile(x.Positional.Patch)
	if err != nil {
		return err
	}
	c, err := bps.Parse(patch)
	if err != nil {
		return err
	}
	target, err := c.Apply(source)
	if err != nil {
		return err
	}
	if err := c.VerifyChecksums(source, target); err != nil {
		if x.Verify {
			return err
		}
		fmt.Fprintf(Stderr, "WARNING: %v\n", err)
	}

	out := x.Output
	if out == "" {
		out = x.Positional.Source + ".patched"
	}
	if err := osutil.AtomicWriteFile(out, target, 0644); err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "wrote %s to %s\n", strutil.SizeToStr(int64(len(target))), out)
	return nil
}
