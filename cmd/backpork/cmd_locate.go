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
	"context"
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/backpork/backpork/locate"
)

type cmdLocate struct {
	Positional struct {
		TitleID string `positional-arg-name:"<title-id>"`
	} `positional-args:"yes" required:"yes"`
}

var shortLocateHelp = "Find where a game is installed"
var longLocateHelp = `
The locate command searches the console storage for the source directory of
the given title. The mounted /user/app tree is never reported.
`

func init() {
	addCommand("locate", shortLocateHelp, longLocateHelp, func() flags.Commander {
		return &cmdLocate{}
	}, nil)
}

func (x *cmdLocate) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Console.Host == "" {
		return fmt.Errorf("console address not set, use --host or the configuration file")
	}
	sess, err := consoleDialer(cfg).Dial(context.Background(), cfg.Console.Host, cfg.Console.FTPPort)
	if err != nil {
		return err
	}
	defer sess.Close()

	rec, err := locate.New(sess, cfg.Locate.SearchPaths).Locate(x.Positional.TitleID)
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, rec.SourcePath)
	return nil
}

type cmdFakelib struct {
	TitleID string `long:"title-id"`

	Positional struct {
		GamePath string `positional-arg-name:"<game-path>"`
	} `positional-args:"yes" required:"yes"`
}

var shortFakelibHelp = "Create the fakelib directory of a game"
var longFakelibHelp = `
The fakelib command locates the source directory of the game mounted at the
given path and creates its fakelib directory when missing.
`

func init() {
	addCommand("fakelib", shortFakelibHelp, longFakelibHelp, func() flags.Commander {
		return &cmdFakelib{}
	}, map[string]string{
		"title-id": "Title id, when it cannot be taken from the game path",
	})
}

func (x *cmdFakelib) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runner, err := newRunner(cfg, nil)
	if err != nil {
		return err
	}
	p, err := runner.CreateFakelib(context.Background(), x.Positional.GamePath, x.TitleID)
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "fakelib folder ready at %s\n", p)
	return nil
}
