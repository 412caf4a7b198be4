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
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/backpork/backpork/history"
	"github.com/backpork/backpork/pipeline"
)

type cmdProcess struct {
	Firmware string `long:"firmware" required:"yes"`
	JSON     bool   `long:"json"`

	Positional struct {
		GamePath  string   `positional-arg-name:"<game-path>" required:"yes"`
		Libraries []string `positional-arg-name:"<library>"`
	} `positional-args:"yes"`
}

var shortProcessHelp = "Patch and install libraries for a game"
var longProcessHelp = `
The process command fetches each library from the console, applies the patch
for the given firmware, fake signs it and uploads it to the fakelib directory
of the game. Without libraries all known libraries are processed.
`

func init() {
	addCommand("process", shortProcessHelp, longProcessHelp, func() flags.Commander {
		return &cmdProcess{}
	}, map[string]string{
		"firmware": "Firmware version the patches are for",
		"json":     "Print the result as JSON",
	})
}

func openHistory(path string) *history.Store {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(Stderr, "WARNING: batch history disabled: %v\n", err)
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(Stderr, "WARNING: batch history disabled: %v\n", err)
		return nil
	}
	return store
}

func (x *cmdProcess) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var rec pipeline.Recorder
	if store := openHistory(cfg.HistoryPath()); store != nil {
		defer store.Close()
		rec = store
	}
	runner, err := newRunner(cfg, rec)
	if err != nil {
		return err
	}

	res, err := runner.Run(context.Background(), &pipeline.Request{
		Firmware:  x.Firmware,
		GamePath:  x.Positional.GamePath,
		Libraries: x.Positional.Libraries,
	})
	if err != nil {
		return err
	}

	if x.JSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printResult(res)
	}
	if !res.Success {
		return fmt.Errorf("batch %s did not complete successfully", res.ID)
	}
	return nil
}

func printResult(res *pipeline.Result) {
	for _, j := range res.Results {
		status := "ok"
		if !j.Success {
			status = "failed"
		}
		fmt.Fprintf(Stdout, "%s: %s\n", j.Library, status)
		for _, st := range j.Steps {
			mark := "✓"
			if !st.Success {
				mark = "✗"
			}
			if st.Error != "" {
				fmt.Fprintf(Stdout, "  %s %s: %s\n", mark, st.Name, st.Error)
			} else {
				fmt.Fprintf(Stdout, "  %s %s\n", mark, st.Name)
			}
		}
		if !j.Success {
			fmt.Fprintf(Stdout, "  %s\n", j.Message)
		}
	}
}
