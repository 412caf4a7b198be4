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
)

type cmdGames struct{}

var shortGamesHelp = "List the games installed on the console"
var longGamesHelp = `
The games command lists the titles installed on the console.
`

func init() {
	addCommand("games", shortGamesHelp, longGamesHelp, func() flags.Commander {
		return &cmdGames{}
	}, nil)
}

func (x *cmdGames) Execute(args []string) error {
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
	games, err := runner.Games(context.Background())
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintln(Stderr, "No games found.")
		return nil
	}

	w := tabWriter()
	defer w.Flush()
	fmt.Fprintln(w, "Title ID\tTitle\tPath")
	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.TitleID, g.Title, g.Path)
	}
	return nil
}

type cmdTestConnection struct{}

func init() {
	addCommand("test-connection", "Check that the console is reachable", `
The test-connection command connects to the console FTP server and lists
its root directory.
`, func() flags.Commander {
		return &cmdTestConnection{}
	}, nil)
}

func (x *cmdTestConnection) Execute(args []string) error {
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
	if err := runner.TestConnection(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "FTP connection successful to %s\n", runner.Address())
	return nil
}
